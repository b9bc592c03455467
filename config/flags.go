package config

import (
	"fmt"
	"strings"

	"github.com/urfave/cli"
)

// Flag names shared by klingbag and klingbagd.
const (
	FlagNetwork        = "network"
	FlagDataDir        = "datadir"
	FlagConfig         = "config"
	FlagBackend        = "backend"
	FlagRPCAddr        = "rpc-addr"
	FlagRPCPort        = "rpc-port"
	FlagRPCAllowed     = "rpc-allowed"
	FlagFaucet         = "faucet"
	FlagEndpoint       = "endpoint"
	FlagGenesis        = "genesis"
	FlagLeafWidth      = "leaf-width"
	FlagBatchSize      = "batch-size"
	FlagFee            = "fee"
	FlagPoll           = "poll"
	FlagRetries        = "retries"
	FlagConfirmTimeout = "confirm-timeout"
	FlagBlockInterval  = "block-interval"
	FlagWallet         = "wallet"
	FlagAccount        = "account"
	FlagLogLevel       = "log-level"
	FlagLogFile        = "log-file"
	FlagLogJSON        = "log-json"
)

// Flags returns the global command-line flags that override file config.
func Flags() []cli.Flag {
	return []cli.Flag{
		// Core
		cli.StringFlag{Name: FlagNetwork + ", n", Value: string(Mainnet), Usage: "network: mainnet, testnet or devnet"},
		cli.StringFlag{Name: FlagDataDir, Usage: "data directory (default: " + DefaultDataDir() + ")"},
		cli.StringFlag{Name: FlagConfig + ", c", Usage: "config file (default: <datadir>/klingbag.conf)"},

		// Ledger node
		cli.StringFlag{Name: FlagBackend, Usage: "ledger storage backend: badger, bolt, leveldb or memory"},
		cli.DurationFlag{Name: FlagBlockInterval, Usage: "ledger block interval"},

		// RPC
		cli.StringFlag{Name: FlagRPCAddr, Usage: "RPC listen address"},
		cli.IntFlag{Name: FlagRPCPort, Usage: "RPC listen port"},
		cli.StringFlag{Name: FlagRPCAllowed, Usage: "comma-separated IPs or CIDRs allowed to call RPC"},
		cli.BoolFlag{Name: FlagFaucet, Usage: "enable coin_mint (devnet and testnet only)"},

		// Unwind
		cli.StringFlag{Name: FlagEndpoint + ", e", Usage: "ledger RPC endpoint"},
		cli.StringFlag{Name: FlagGenesis, Usage: "hex genesis reference the root coin is minted under"},
		cli.IntFlag{Name: FlagLeafWidth, Usage: "targets per leaf batch"},
		cli.IntFlag{Name: FlagBatchSize, Usage: "spends per submitted bundle"},
		cli.Uint64Flag{Name: FlagFee, Usage: "fee per spend"},
		cli.DurationFlag{Name: FlagPoll, Usage: "confirmation poll interval"},
		cli.IntFlag{Name: FlagRetries, Usage: "submission retries per bundle"},
		cli.DurationFlag{Name: FlagConfirmTimeout, Usage: "give up waiting for a bundle after this long (0 = never)"},

		// Wallet
		cli.StringFlag{Name: FlagWallet + ", w", Usage: "funding wallet name"},
		cli.UintFlag{Name: FlagAccount, Usage: "funding wallet account index"},

		// Logging
		cli.StringFlag{Name: FlagLogLevel, Usage: "log level: debug, info, warn, error"},
		cli.StringFlag{Name: FlagLogFile, Usage: "log file path"},
		cli.BoolFlag{Name: FlagLogJSON, Usage: "JSON log output"},
	}
}

// ApplyFlags applies explicitly set command-line flags to the config.
func ApplyFlags(cfg *Config, c *cli.Context) {
	if isSet(c, FlagNetwork) {
		cfg.Network = NetworkType(strings.ToLower(c.GlobalString(FlagNetwork)))
	}
	if isSet(c, FlagDataDir) {
		cfg.DataDir = c.GlobalString(FlagDataDir)
	}

	// Ledger node
	if isSet(c, FlagBackend) {
		cfg.Ledger.Backend = strings.ToLower(c.GlobalString(FlagBackend))
	}
	if isSet(c, FlagBlockInterval) {
		cfg.Node.BlockInterval = c.GlobalDuration(FlagBlockInterval)
	}

	// RPC
	if isSet(c, FlagRPCAddr) {
		cfg.RPC.Addr = c.GlobalString(FlagRPCAddr)
	}
	if isSet(c, FlagRPCPort) {
		cfg.RPC.Port = c.GlobalInt(FlagRPCPort)
	}
	if isSet(c, FlagRPCAllowed) {
		cfg.RPC.AllowedIPs = parseStringList(c.GlobalString(FlagRPCAllowed))
	}
	if isSet(c, FlagFaucet) {
		cfg.RPC.Faucet = c.GlobalBool(FlagFaucet)
	}

	// Unwind
	if isSet(c, FlagEndpoint) {
		cfg.Unwind.Endpoint = c.GlobalString(FlagEndpoint)
	}
	if isSet(c, FlagGenesis) {
		cfg.Unwind.Genesis = c.GlobalString(FlagGenesis)
	}
	if isSet(c, FlagLeafWidth) {
		cfg.Unwind.LeafWidth = c.GlobalInt(FlagLeafWidth)
	}
	if isSet(c, FlagBatchSize) {
		cfg.Unwind.BatchSize = c.GlobalInt(FlagBatchSize)
	}
	if isSet(c, FlagFee) {
		cfg.Unwind.FeePerSpend = c.GlobalUint64(FlagFee)
	}
	if isSet(c, FlagPoll) {
		cfg.Unwind.PollInterval = c.GlobalDuration(FlagPoll)
	}
	if isSet(c, FlagRetries) {
		cfg.Unwind.MaxRetries = c.GlobalInt(FlagRetries)
	}
	if isSet(c, FlagConfirmTimeout) {
		cfg.Unwind.ConfirmTimeout = c.GlobalDuration(FlagConfirmTimeout)
	}

	// Wallet
	if isSet(c, FlagWallet) {
		cfg.Wallet.Name = c.GlobalString(FlagWallet)
	}
	if isSet(c, FlagAccount) {
		cfg.Wallet.Account = uint32(c.GlobalUint(FlagAccount))
	}

	// Logging
	if isSet(c, FlagLogLevel) {
		cfg.Log.Level = c.GlobalString(FlagLogLevel)
	}
	if isSet(c, FlagLogFile) {
		cfg.Log.File = c.GlobalString(FlagLogFile)
	}
	if isSet(c, FlagLogJSON) {
		cfg.Log.JSON = c.GlobalBool(FlagLogJSON)
	}
}

// isSet reports whether a global flag was given on the command line.
func isSet(c *cli.Context, name string) bool {
	return c.IsSet(name) || c.GlobalIsSet(name)
}

// Load loads configuration with the following precedence:
// 1. Default values for the selected network
// 2. Config file and KLINGBAG_* environment
// 3. Command-line flags
//
// Data directories are created on first use.
func Load(c *cli.Context) (*Config, error) {
	network := NetworkType(strings.ToLower(c.GlobalString(FlagNetwork)))
	if network == "" {
		network = Mainnet
	}
	cfg := Default(network)
	if isSet(c, FlagDataDir) {
		cfg.DataDir = c.GlobalString(FlagDataDir)
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := c.GlobalString(FlagConfig)
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}
	if err := LoadInto(cfg, configPath); err != nil {
		return nil, err
	}

	ApplyFlags(cfg, c)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadInto applies the config file at path and the environment to cfg.
func LoadInto(cfg *Config, path string) error {
	fileValues, err := LoadFile(path)
	if err != nil {
		return fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return fmt.Errorf("applying config file: %w", err)
	}
	return nil
}
