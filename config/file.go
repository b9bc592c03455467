package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: rpc.port is read from
// KLINGBAG_RPC_PORT.
const EnvPrefix = "KLINGBAG"

// fileKeys lists every key the config file and environment may set.
var fileKeys = []string{
	"network", "datadir",
	"ledger.backend",
	"rpc.enabled", "rpc.addr", "rpc.port", "rpc.allowed", "rpc.cors", "rpc.faucet",
	"unwind.endpoint", "unwind.genesis", "unwind.leafwidth", "unwind.batchsize", "unwind.fee",
	"unwind.poll", "unwind.retries", "unwind.retryinterval", "unwind.confirmtimeout",
	"node.blockinterval", "node.mempool",
	"wallet.name", "wallet.account", "wallet.keys",
	"log.level", "log.file", "log.json",
}

// newViper returns a viper instance reading key = value files with
// environment overrides. The file is parsed with viper's dotenv codec: keys
// stay flat ("unwind.poll"), viper resolves them as nested paths.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("dotenv")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadFile reads configuration from a key = value file (# for comments) and
// KLINGBAG_* environment variables. A missing file yields environment values
// only.
func LoadFile(path string) (map[string]string, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	values := make(map[string]string)
	for _, key := range fileKeys {
		if v.IsSet(key) {
			values[key] = unquote(strings.TrimSpace(v.GetString(key)))
		}
	}
	return values, nil
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	var err error
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value

	// Ledger
	case "ledger.backend":
		cfg.Ledger.Backend = strings.ToLower(value)

	// RPC
	case "rpc.enabled":
		cfg.RPC.Enabled = parseBool(value)
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.port":
		cfg.RPC.Port, err = strconv.Atoi(value)
	case "rpc.allowed":
		cfg.RPC.AllowedIPs = parseStringList(value)
	case "rpc.cors":
		cfg.RPC.CORSOrigins = parseStringList(value)
	case "rpc.faucet":
		cfg.RPC.Faucet = parseBool(value)

	// Unwind
	case "unwind.endpoint":
		cfg.Unwind.Endpoint = value
	case "unwind.genesis":
		cfg.Unwind.Genesis = value
	case "unwind.leafwidth":
		cfg.Unwind.LeafWidth, err = strconv.Atoi(value)
	case "unwind.batchsize":
		cfg.Unwind.BatchSize, err = strconv.Atoi(value)
	case "unwind.fee":
		cfg.Unwind.FeePerSpend, err = strconv.ParseUint(value, 10, 64)
	case "unwind.poll":
		cfg.Unwind.PollInterval, err = time.ParseDuration(value)
	case "unwind.retries":
		cfg.Unwind.MaxRetries, err = strconv.Atoi(value)
	case "unwind.retryinterval":
		cfg.Unwind.RetryInterval, err = time.ParseDuration(value)
	case "unwind.confirmtimeout":
		cfg.Unwind.ConfirmTimeout, err = time.ParseDuration(value)

	// Node
	case "node.blockinterval":
		cfg.Node.BlockInterval, err = time.ParseDuration(value)
	case "node.mempool":
		cfg.Node.MempoolSize, err = strconv.Atoi(value)

	// Wallet
	case "wallet.name":
		cfg.Wallet.Name = value
	case "wallet.account":
		var n uint64
		n, err = strconv.ParseUint(value, 10, 31)
		cfg.Wallet.Account = uint32(n)
	case "wallet.keys":
		var n uint64
		n, err = strconv.ParseUint(value, 10, 32)
		cfg.Wallet.Keys = uint32(n)

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return err
}

// unquote strips one pair of matching quotes.
func unquote(value string) string {
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	d := Default(network)
	content := `# Klingbag Configuration
#
# Every key can also be set from the environment, e.g. rpc.port is read
# from KLINGBAG_RPC_PORT. Command-line flags take precedence over both.

# Network: mainnet, testnet or devnet
network = ` + string(network) + `

# Data directory (default: ~/.klingbag)
# datadir = ~/.klingbag

# ============================================================================
# Ledger node
# ============================================================================

# Storage backend: badger, bolt, leveldb or memory
ledger.backend = ` + d.Ledger.Backend + `
node.blockinterval = ` + d.Node.BlockInterval.String() + `
node.mempool = ` + strconv.Itoa(d.Node.MempoolSize) + `

# ============================================================================
# RPC Server
# ============================================================================

rpc.enabled = true
rpc.addr = 127.0.0.1
rpc.port = ` + strconv.Itoa(d.RPC.Port) + `
rpc.allowed = 127.0.0.1
# CORS allowed origins ("*" for all)
# rpc.cors = http://localhost:3000
# Allow coin_mint (never on mainnet)
rpc.faucet = ` + strconv.FormatBool(d.RPC.Faucet) + `

# ============================================================================
# Tree building and unwinding
# ============================================================================

# Ledger RPC endpoint (default: the local node)
# unwind.endpoint = http://127.0.0.1:` + strconv.Itoa(d.RPC.Port) + `
# Hex genesis reference the root coin is minted under (default: network)
# unwind.genesis =
unwind.leafwidth = ` + strconv.Itoa(d.Unwind.LeafWidth) + `
unwind.batchsize = ` + strconv.Itoa(d.Unwind.BatchSize) + `
unwind.fee = ` + strconv.FormatUint(d.Unwind.FeePerSpend, 10) + `
unwind.poll = ` + d.Unwind.PollInterval.String() + `
unwind.retries = ` + strconv.Itoa(d.Unwind.MaxRetries) + `
# unwind.retryinterval = 1s
# unwind.confirmtimeout = 10m

# ============================================================================
# Wallet
# ============================================================================

wallet.name = ` + d.Wallet.Name + `
wallet.account = 0
wallet.keys = ` + strconv.FormatUint(uint64(d.Wallet.Keys), 10) + `

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(commentSettings(content)), 0644)
}

// commentSettings comments out every key = value line so a fresh file does
// not pin one network's defaults.
func commentSettings(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if line != "" && !strings.HasPrefix(line, "#") {
			lines[i] = "# " + line
		}
	}
	return strings.Join(lines, "\n")
}
