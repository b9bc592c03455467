package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Klingon-tech/klingnet-bag/config"
	"github.com/Klingon-tech/klingnet-bag/internal/bag"
	klog "github.com/Klingon-tech/klingnet-bag/internal/log"
	"github.com/Klingon-tech/klingnet-bag/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-bag/internal/wallet"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
	"github.com/urfave/cli"
	"golang.org/x/term"
)

// passphraseEnv supplies the wallet passphrase non-interactively.
const passphraseEnv = "KLINGBAG_PASSPHRASE"

const (
	targetsName = "targets"
	targetName  = "target"
)

var targetsFlag = cli.StringFlag{
	Name:  targetsName + ", t",
	Usage: "JSON file of {puzzle_hash, amount} payout targets",
}

// env is what every command needs after configuration is loaded.
type env struct {
	cfg     *config.Config
	genesis types.Hash
	client  *rpcclient.Client
}

func loadEnv(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c)
	if err != nil {
		return nil, err
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	genesis, err := cfg.Genesis()
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:     cfg,
		genesis: genesis,
		client:  rpcclient.NewWithTimeout(cfg.Endpoint(), 30*time.Second),
	}, nil
}

// loadTree reads the targets file and builds the tree at the configured
// leaf width.
func (e *env) loadTree(c *cli.Context) (*bag.Tree, error) {
	path := c.String(targetsName)
	if path == "" {
		return nil, fmt.Errorf("--%s is required", targetsName)
	}
	targets, err := bag.LoadTargets(path)
	if err != nil {
		return nil, err
	}
	return bag.Build(targets, e.cfg.Unwind.LeafWidth)
}

// targetHash parses the optional --target flag.
func targetHash(c *cli.Context) (types.Hash, bool, error) {
	s := c.String(targetName)
	if s == "" {
		return types.Hash{}, false, nil
	}
	ph, err := types.HexToHash(s)
	if err != nil {
		return types.Hash{}, false, fmt.Errorf("--%s: %w", targetName, err)
	}
	return ph, true, nil
}

func (e *env) keystore() (*wallet.Keystore, error) {
	return wallet.NewKeystore(e.cfg.KeystoreDir())
}

// unlockSeed prompts for the wallet passphrase and decrypts its seed.
func (e *env) unlockSeed(ks *wallet.Keystore) ([]byte, uint32, error) {
	password, err := passphrase("Wallet passphrase: ")
	if err != nil {
		return nil, 0, err
	}
	seed, account, err := ks.Load(e.cfg.Wallet.Name, password)
	if errors.Is(err, wallet.ErrWrongPassword) {
		return nil, 0, fmt.Errorf("wallet %q: %w", e.cfg.Wallet.Name, wallet.ErrWrongPassword)
	}
	return seed, account, err
}

// getContext returns a context cancelled on SIGINT or SIGTERM.
func getContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// passphrase reads a passphrase from the environment or the terminal.
func passphrase(prompt string) ([]byte, error) {
	if p, ok := os.LookupEnv(passphraseEnv); ok {
		return []byte(p), nil
	}
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return password, nil
}

func printJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		fatal(err)
	}
	var out bytes.Buffer
	json.Indent(&out, b, "", "  ")
	out.WriteString("\n")
	out.WriteTo(os.Stdout)
}
