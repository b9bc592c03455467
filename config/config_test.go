package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

func TestDefaults_Validate(t *testing.T) {
	for _, network := range []NetworkType{Mainnet, Testnet, Devnet} {
		t.Run(string(network), func(t *testing.T) {
			cfg := Default(network)
			require.NoError(t, Validate(cfg))
			assert.Equal(t, network, cfg.Network)
			assert.Equal(t, DefaultLeafWidth, cfg.Unwind.LeafWidth)
		})
	}

	dev := Default(Devnet)
	assert.True(t, dev.RPC.Faucet)
	assert.Equal(t, "memory", dev.Ledger.Backend)
	assert.False(t, Default(Mainnet).RPC.Faucet)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad network", func(c *Config) { c.Network = "moon" }},
		{"bad backend", func(c *Config) { c.Ledger.Backend = "sqlite" }},
		{"bad port", func(c *Config) { c.RPC.Port = 70000 }},
		{"faucet on mainnet", func(c *Config) { c.RPC.Faucet = true }},
		{"zero leaf width", func(c *Config) { c.Unwind.LeafWidth = 0 }},
		{"zero batch size", func(c *Config) { c.Unwind.BatchSize = 0 }},
		{"zero poll", func(c *Config) { c.Unwind.PollInterval = 0 }},
		{"negative retries", func(c *Config) { c.Unwind.MaxRetries = -1 }},
		{"bad genesis", func(c *Config) { c.Unwind.Genesis = "abcd" }},
		{"zero block interval", func(c *Config) { c.Node.BlockInterval = 0 }},
		{"zero wallet keys", func(c *Config) { c.Wallet.Keys = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultMainnet()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
	assert.Error(t, Validate(nil))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klingbag.conf")
	content := `# comment
network = testnet
ledger.backend = bolt
rpc.port = 9000
rpc.allowed = 127.0.0.1, 10.0.0.0/8
unwind.leafwidth = 5
unwind.fee = 42
unwind.poll = 250ms
wallet.name = "funding"
log.json = yes
unknown.key = ignored
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	values, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "funding", values["wallet.name"])
	assert.NotContains(t, values, "unknown.key")

	cfg := DefaultMainnet()
	require.NoError(t, ApplyFileConfig(cfg, values))
	assert.Equal(t, Testnet, cfg.Network)
	assert.Equal(t, "bolt", cfg.Ledger.Backend)
	assert.Equal(t, 9000, cfg.RPC.Port)
	assert.Equal(t, []string{"127.0.0.1", "10.0.0.0/8"}, cfg.RPC.AllowedIPs)
	assert.Equal(t, 5, cfg.Unwind.LeafWidth)
	assert.Equal(t, uint64(42), cfg.Unwind.FeePerSpend)
	assert.Equal(t, 250*time.Millisecond, cfg.Unwind.PollInterval)
	assert.Equal(t, "funding", cfg.Wallet.Name)
	assert.True(t, cfg.Log.JSON)
}

func TestLoadFile_Missing(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "absent.conf"))
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestLoadFile_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klingbag.conf")
	require.NoError(t, os.WriteFile(path, []byte("unwind.batchsize = 3\n"), 0644))
	t.Setenv("KLINGBAG_UNWIND_BATCHSIZE", "7")
	t.Setenv("KLINGBAG_RPC_FAUCET", "true")

	values, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "7", values["unwind.batchsize"])
	assert.Equal(t, "true", values["rpc.faucet"])
}

func TestApplyFileConfig_BadValue(t *testing.T) {
	cfg := DefaultMainnet()
	err := ApplyFileConfig(cfg, map[string]string{"unwind.poll": "soon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unwind.poll")
}

func TestWriteDefaultConfig_LoadsAsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klingbag.conf")
	require.NoError(t, WriteDefaultConfig(path, Devnet))

	values, err := LoadFile(path)
	require.NoError(t, err)
	assert.Empty(t, values, "fresh config file must not pin values")
}

func TestEnsureDataDirs_FirstRunLoads(t *testing.T) {
	cfg := Default(Devnet)
	cfg.DataDir = t.TempDir()
	require.NoError(t, EnsureDataDirs(cfg))
	require.FileExists(t, cfg.ConfigFile())

	require.NoError(t, LoadInto(cfg, cfg.ConfigFile()))
	require.NoError(t, Validate(cfg))
	assert.Equal(t, Default(Devnet).Unwind, cfg.Unwind)
}

// settingLine matches a commented-out "key = value" line of the template.
var settingLine = regexp.MustCompile(`^# ([a-z]+(\.[a-z]+)?) =`)

func TestWriteDefaultConfig_UncommentedParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "klingbag.conf")
	require.NoError(t, WriteDefaultConfig(path, Devnet))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		if m := settingLine.FindStringSubmatch(line); m != nil && m[1] != "datadir" {
			lines[i] = strings.TrimPrefix(line, "# ")
		}
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0644))

	values, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "devnet", values["network"])
	assert.Equal(t, "http://127.0.0.1:8765", values["unwind.endpoint"])

	cfg := Default(Devnet)
	require.NoError(t, ApplyFileConfig(cfg, values))
	require.NoError(t, Validate(cfg))
	d := Default(Devnet)
	assert.Equal(t, d.Unwind.LeafWidth, cfg.Unwind.LeafWidth)
	assert.Equal(t, d.Unwind.PollInterval, cfg.Unwind.PollInterval)
	assert.Equal(t, d.Node.BlockInterval, cfg.Node.BlockInterval)
	assert.Equal(t, d.RPC.Port, cfg.RPC.Port)
	assert.Equal(t, []string{"127.0.0.1"}, cfg.RPC.AllowedIPs)
	assert.True(t, cfg.RPC.Faucet)
	assert.Equal(t, 10*time.Minute, cfg.Unwind.ConfirmTimeout)
}

func runLoad(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var (
		cfg     *Config
		loadErr error
	)
	app := cli.NewApp()
	app.Flags = Flags()
	app.Action = func(c *cli.Context) error {
		cfg, loadErr = Load(c)
		return nil
	}
	require.NoError(t, app.Run(append([]string{"klingbag"}, args...)))
	return cfg, loadErr
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "custom.conf")
	require.NoError(t, os.WriteFile(conf, []byte("unwind.batchsize = 4\nunwind.leafwidth = 6\n"), 0644))

	cfg, err := runLoad(t,
		"--network", "devnet",
		"--datadir", dir,
		"--config", conf,
		"--leaf-width", "9",
		"--fee", "7",
		"--confirm-timeout", "1m",
	)
	require.NoError(t, err)

	assert.Equal(t, Devnet, cfg.Network)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 4, cfg.Unwind.BatchSize, "file overrides defaults")
	assert.Equal(t, 9, cfg.Unwind.LeafWidth, "flags override file")
	assert.Equal(t, uint64(7), cfg.Unwind.FeePerSpend)
	assert.Equal(t, time.Minute, cfg.Unwind.ConfirmTimeout)
	assert.True(t, cfg.RPC.Faucet, "devnet default kept")

	assert.DirExists(t, cfg.KeystoreDir())
	assert.FileExists(t, cfg.ConfigFile())
}

func TestLoad_Invalid(t *testing.T) {
	_, err := runLoad(t, "--datadir", t.TempDir(), "--batch-size", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batchsize")
}

func TestConfig_Paths(t *testing.T) {
	cfg := DefaultTestnet()
	cfg.DataDir = "/data"
	assert.Equal(t, filepath.Join("/data", "testnet", "ledger"), cfg.LedgerDir())
	assert.Equal(t, filepath.Join("/data", "testnet", "keystore"), cfg.KeystoreDir())
	assert.Equal(t, filepath.Join("/data", "klingbag.conf"), cfg.ConfigFile())
	assert.Equal(t, "http://127.0.0.1:8665", cfg.Endpoint())

	cfg.Unwind.Endpoint = "http://ledger:1"
	assert.Equal(t, "http://ledger:1", cfg.Endpoint())
}

func TestGenesis(t *testing.T) {
	cfg := DefaultDevnet()
	g, err := cfg.Genesis()
	require.NoError(t, err)
	assert.Equal(t, NetworkGenesis(Devnet), g)
	assert.NotEqual(t, NetworkGenesis(Mainnet), g)

	cfg.Unwind.Genesis = "0x" + NetworkGenesis(Testnet).String()
	g, err = cfg.Genesis()
	require.NoError(t, err)
	assert.Equal(t, NetworkGenesis(Testnet), g)
}
