package config

import "time"

// Unwind defaults.
const (
	DefaultLeafWidth     = 25
	DefaultBatchSize     = 10
	DefaultFeePerSpend   = 500_000
	DefaultPollInterval  = 3 * time.Second
	DefaultMaxRetries    = 5
	DefaultRetryInterval = time.Second
	DefaultBlockInterval = 3 * time.Second
	DefaultMempoolSize   = 5000
)

// DefaultMainnet returns the default configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Ledger: LedgerConfig{
			Backend: "badger",
		},
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       8565,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Unwind: UnwindConfig{
			LeafWidth:     DefaultLeafWidth,
			BatchSize:     DefaultBatchSize,
			FeePerSpend:   DefaultFeePerSpend,
			PollInterval:  DefaultPollInterval,
			MaxRetries:    DefaultMaxRetries,
			RetryInterval: DefaultRetryInterval,
		},
		Node: NodeConfig{
			BlockInterval: DefaultBlockInterval,
			MempoolSize:   DefaultMempoolSize,
		},
		Wallet: WalletConfig{
			Name: "default",
			Keys: 20,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.RPC.Port = 8665
	return cfg
}

// DefaultDevnet returns the default configuration for a local devnet: fast
// blocks, in-memory ledger and an open faucet.
func DefaultDevnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Devnet
	cfg.RPC.Port = 8765
	cfg.RPC.Faucet = true
	cfg.Ledger.Backend = "memory"
	cfg.Node.BlockInterval = time.Second
	cfg.Unwind.PollInterval = time.Second
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	case Devnet:
		return DefaultDevnet()
	default:
		return DefaultMainnet()
	}
}
