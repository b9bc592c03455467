package config

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-bag/internal/storage"
)

// Validate checks config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch cfg.Network {
	case Mainnet, Testnet, Devnet:
	default:
		return fmt.Errorf("network must be %q, %q or %q", Mainnet, Testnet, Devnet)
	}
	switch cfg.Ledger.Backend {
	case storage.BackendBadger, storage.BackendBolt, storage.BackendLevelDB, storage.BackendMemory:
	default:
		return fmt.Errorf("ledger.backend %q is not one of badger, bolt, leveldb, memory", cfg.Ledger.Backend)
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.RPC.Faucet && cfg.Network == Mainnet {
		return fmt.Errorf("rpc.faucet cannot be enabled on %s", Mainnet)
	}

	u := cfg.Unwind
	if u.LeafWidth < 1 {
		return fmt.Errorf("unwind.leafwidth must be at least 1")
	}
	if u.BatchSize < 1 {
		return fmt.Errorf("unwind.batchsize must be at least 1")
	}
	if u.PollInterval <= 0 {
		return fmt.Errorf("unwind.poll must be positive")
	}
	if u.MaxRetries < 0 {
		return fmt.Errorf("unwind.retries must not be negative")
	}
	if u.ConfirmTimeout < 0 {
		return fmt.Errorf("unwind.confirmtimeout must not be negative")
	}
	if _, err := cfg.Genesis(); err != nil {
		return err
	}

	if cfg.Node.BlockInterval <= 0 {
		return fmt.Errorf("node.blockinterval must be positive")
	}
	if cfg.Wallet.Keys == 0 {
		return fmt.Errorf("wallet.keys must be at least 1")
	}
	return nil
}
