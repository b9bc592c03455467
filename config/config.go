// Package config handles application configuration for the bag tools and
// the ledger node.
//
// Settings come from three layers, lowest precedence first: per-network
// defaults, the config file (key = value) with KLINGBAG_* environment
// overrides, and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies the ledger network.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
	Devnet  NetworkType = "devnet"
)

// Config holds runtime configuration shared by klingbag and klingbagd.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Coin ledger storage
	Ledger LedgerConfig

	// RPC server
	RPC RPCConfig

	// Tree building and unwinding
	Unwind UnwindConfig

	// Ledger node block loop
	Node NodeConfig

	// Funding wallet
	Wallet WalletConfig

	// Logging
	Log LogConfig
}

// LedgerConfig selects the storage backend of the ledger node.
type LedgerConfig struct {
	Backend string `conf:"ledger.backend"` // badger, bolt, leveldb or memory
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
	Faucet      bool     `conf:"rpc.faucet"`
}

// UnwindConfig holds tree and scheduler settings.
type UnwindConfig struct {
	Endpoint       string        `conf:"unwind.endpoint"` // Ledger node RPC URL; empty = local node address.
	Genesis        string        `conf:"unwind.genesis"`  // Hex genesis reference; empty = network default.
	LeafWidth      int           `conf:"unwind.leafwidth"`
	BatchSize      int           `conf:"unwind.batchsize"`
	FeePerSpend    uint64        `conf:"unwind.fee"`
	PollInterval   time.Duration `conf:"unwind.poll"`
	MaxRetries     int           `conf:"unwind.retries"`
	RetryInterval  time.Duration `conf:"unwind.retryinterval"`
	ConfirmTimeout time.Duration `conf:"unwind.confirmtimeout"`
}

// NodeConfig holds ledger node settings.
type NodeConfig struct {
	BlockInterval time.Duration `conf:"node.blockinterval"`
	MempoolSize   int           `conf:"node.mempool"`
}

// WalletConfig holds funding wallet settings.
type WalletConfig struct {
	Name    string `conf:"wallet.name"`
	Account uint32 `conf:"wallet.account"`
	Keys    uint32 `conf:"wallet.keys"` // External keys scanned for funding coins.
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingbag
//	macOS:   ~/Library/Application Support/Klingbag
//	Windows: %APPDATA%\Klingbag
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingbag"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Klingbag")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Klingbag")
		}
		return filepath.Join(home, "AppData", "Roaming", "Klingbag")
	default:
		return filepath.Join(home, ".klingbag")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// LedgerDir returns the ledger database directory.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.NetworkDataDir(), "ledger")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "klingbag.conf")
}

// ListenAddr returns the RPC listen address as host:port.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.RPC.Addr, c.RPC.Port)
}

// Endpoint returns the ledger RPC URL the bag tools talk to.
func (c *Config) Endpoint() string {
	if c.Unwind.Endpoint != "" {
		return c.Unwind.Endpoint
	}
	return "http://" + c.ListenAddr()
}

// EnsureDataDirs creates the data directory layout if missing.
func EnsureDataDirs(cfg *Config) error {
	for _, dir := range []string{cfg.NetworkDataDir(), cfg.KeystoreDir(), cfg.LogsDir()} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if _, err := os.Stat(cfg.ConfigFile()); os.IsNotExist(err) {
		if err := WriteDefaultConfig(cfg.ConfigFile(), cfg.Network); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}
