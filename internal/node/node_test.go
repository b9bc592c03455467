package node

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-bag/config"
	"github.com/Klingon-tech/klingnet-bag/internal/ledger"
	"github.com/Klingon-tech/klingnet-bag/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-bag/internal/storage"
	"github.com/Klingon-tech/klingnet-bag/pkg/crypto"
	"github.com/Klingon-tech/klingnet-bag/pkg/predicate"
	"github.com/Klingon-tech/klingnet-bag/pkg/tx"
)

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	tests := []struct {
		input, want string
	}{
		{"~/foo/bar", filepath.Join(home, "foo/bar")},
		{"~/.klingbag/ledger", filepath.Join(home, ".klingbag/ledger")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}
	for _, tt := range tests {
		got := expandHome(tt.input)
		if got != tt.want {
			t.Errorf("expandHome(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestLedgerPath(t *testing.T) {
	cfg := config.DefaultTestnet()
	cfg.DataDir = "/data"

	if got := ledgerPath(cfg); got != cfg.LedgerDir() {
		t.Errorf("badger path = %q, want %q", got, cfg.LedgerDir())
	}
	cfg.Ledger.Backend = storage.BackendBolt
	if got := ledgerPath(cfg); got != filepath.Join(cfg.LedgerDir(), "ledger.db") {
		t.Errorf("bolt path = %q", got)
	}
}

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	cfg := config.DefaultDevnet()
	cfg.DataDir = t.TempDir()
	cfg.Ledger.Backend = backend
	cfg.RPC.Port = 0
	cfg.RPC.AllowedIPs = nil
	cfg.Node.BlockInterval = 10 * time.Millisecond
	cfg.Log.Level = "error"
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestNode_ConfirmsBundlesOverRPC(t *testing.T) {
	n, err := New(testConfig(t, storage.BackendMemory))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer n.Stop()

	ctx := context.Background()
	client := rpcclient.New("http://" + n.RPCAddr() + "/")

	dest := crypto.Hash([]byte("node destination"))
	p := predicate.Quote([]predicate.Condition{predicate.CreateCoin(dest, 900, nil)})
	coin := tx.Coin{ParentID: crypto.Hash([]byte("node parent")), PuzzleHash: p.Hash(), Amount: 1000}
	if _, err := client.Mint(ctx, coin); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := client.Submit(ctx, tx.NewBundle(tx.NewCoinSpend(coin, p, nil))); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		state, err := client.CoinState(ctx, coin.ID())
		if err != nil {
			t.Fatalf("CoinState: %v", err)
		}
		if state == ledger.CoinSpent {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("bundle was never confirmed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n.Height() == 0 {
		t.Error("height did not advance")
	}
}

func TestNode_PersistsAcrossRestart(t *testing.T) {
	cfg := testConfig(t, storage.BackendBolt)
	cfg.RPC.Enabled = false

	coin := tx.Coin{ParentID: crypto.Hash([]byte("persist")), PuzzleHash: crypto.Hash([]byte("ph")), Amount: 5}

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := n.Store().Mint(context.Background(), coin); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	n.Stop()

	n, err = New(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer n.Stop()
	if n.RPCAddr() != "" {
		t.Errorf("rpc disabled but addr = %q", n.RPCAddr())
	}
	state, err := n.Store().CoinState(context.Background(), coin.ID())
	if err != nil {
		t.Fatalf("CoinState: %v", err)
	}
	if state != ledger.CoinUnspent {
		t.Errorf("state after restart = %s, want unspent", state)
	}
}
