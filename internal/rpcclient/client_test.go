package rpcclient

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-bag/config"
	"github.com/Klingon-tech/klingnet-bag/internal/bag"
	"github.com/Klingon-tech/klingnet-bag/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-bag/internal/log"
	"github.com/Klingon-tech/klingnet-bag/internal/rpc"
	"github.com/Klingon-tech/klingnet-bag/internal/storage"
	"github.com/Klingon-tech/klingnet-bag/internal/wallet"
	"github.com/Klingon-tech/klingnet-bag/pkg/crypto"
	"github.com/Klingon-tech/klingnet-bag/pkg/tx"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

type testEnv struct {
	client *Client
	store  *ledger.Store
	pool   *ledger.Mempool
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	store, err := ledger.NewStore(storage.NewMemory())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	pool := ledger.NewMempool(store, 1000)

	// Create and start RPC server on random port.
	srv := rpc.New("127.0.0.1:0", store, pool, config.RPCConfig{Faucet: true})
	srv.SetNetwork("devnet", config.NetworkGenesis(config.Devnet))
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		client: New("http://" + srv.Addr() + "/"),
		store:  store,
		pool:   pool,
	}
}

// runBlocks confirms pending bundles every interval until the test ends.
func (e *testEnv) runBlocks(t *testing.T, interval time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.pool.Run(ctx, interval)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestClient_Info(t *testing.T) {
	env := setupTestEnv(t)

	info, err := env.client.Info(context.Background())
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Network != "devnet" || !info.Faucet {
		t.Errorf("unexpected info %+v", info)
	}
	if info.Genesis != config.NetworkGenesis(config.Devnet) {
		t.Errorf("genesis = %s", info.Genesis)
	}
}

func TestClient_MintAndQuery(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	coin := tx.Coin{ParentID: types.Hash{1}, PuzzleHash: types.Hash{2}, Amount: 20_000_032_100_000_000}
	rec, err := env.client.Mint(ctx, coin)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if rec.Coin != coin {
		t.Errorf("minted %+v, want %+v", rec.Coin, coin)
	}

	state, err := env.client.CoinState(ctx, coin.ID())
	if err != nil {
		t.Fatalf("CoinState: %v", err)
	}
	if state != ledger.CoinUnspent {
		t.Errorf("state = %s, want unspent", state)
	}

	got, err := env.client.Record(ctx, coin.ID())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if got.Coin.Amount != coin.Amount {
		t.Errorf("amount = %d, want %d", got.Coin.Amount, coin.Amount)
	}

	recs, err := env.client.CoinsByPuzzleHash(ctx, coin.PuzzleHash, false)
	if err != nil {
		t.Fatalf("CoinsByPuzzleHash: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != coin.ID() {
		t.Errorf("unexpected records %+v", recs)
	}

	_, err = env.client.Mint(ctx, coin)
	if !errors.Is(err, ledger.ErrCoinExists) {
		t.Errorf("second mint err = %v, want ErrCoinExists", err)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	_, err := env.client.Record(ctx, types.Hash{0x42})
	if !errors.Is(err, ledger.ErrCoinNotFound) {
		t.Errorf("Record err = %v, want ErrCoinNotFound", err)
	}

	key, _ := crypto.GenerateKey()
	funder, _ := wallet.NewFunder(env.store, key)
	ghost := tx.Coin{ParentID: types.Hash{9}, PuzzleHash: funder.PuzzleHash(), Amount: 100}
	spends, err := funder.BuildFeeSpend([]tx.Coin{ghost}, nil, 10, 0)
	if err != nil {
		t.Fatalf("BuildFeeSpend: %v", err)
	}
	err = env.client.Submit(ctx, tx.NewBundle(spends...))
	if !errors.Is(err, ledger.ErrRejected) {
		t.Errorf("Submit err = %v, want ErrRejected", err)
	}
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != rpc.CodeRejected {
		t.Errorf("expected RPCError with code %d, got %v", rpc.CodeRejected, err)
	}
}

func TestClient_Validate(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	key, _ := crypto.GenerateKey()
	funder, _ := wallet.NewFunder(env.store, key)
	coin := tx.Coin{ParentID: types.Hash{3}, PuzzleHash: funder.PuzzleHash(), Amount: 1000}
	if _, err := env.client.Mint(ctx, coin); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	spends, err := funder.BuildFeeSpend([]tx.Coin{coin}, nil, 10, 0)
	if err != nil {
		t.Fatalf("BuildFeeSpend: %v", err)
	}

	res, err := env.client.Validate(ctx, tx.NewBundle(spends...))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Fee != 10 || len(res.Additions) != 1 {
		t.Errorf("unexpected effects %+v", res)
	}
}

func TestClient_Call_InvalidEndpoint(t *testing.T) {
	client := New("http://127.0.0.1:1/") // port 1, should refuse

	var result rpc.InfoResult
	err := client.Call(rpc.MethodNodeGetInfo, nil, &result)
	if err == nil {
		t.Fatal("expected connection error")
	}
}

func TestClient_Call_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)

	var raw json.RawMessage
	err := env.client.Call("nonexistent_method", nil, &raw)
	if err == nil {
		t.Fatal("expected error for unknown method")
	}

	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != rpc.CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", rpcErr.Code, rpc.CodeMethodNotFound)
	}
}

func TestClient_CallContext_Cancelled(t *testing.T) {
	env := setupTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := env.client.Info(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// TestClient_UnwindOverRPC runs a whole unwind against a node that confirms
// bundles in blocks, with the wallet finding its funding over RPC.
func TestClient_UnwindOverRPC(t *testing.T) {
	env := setupTestEnv(t)
	env.runBlocks(t, 10*time.Millisecond)
	ctx := context.Background()

	targets := make([]bag.Target, 6)
	for i := range targets {
		targets[i] = bag.Target{PuzzleHash: crypto.Hash([]byte{byte(i), 'r', 'p', 'c'}), Amount: uint64(i+1) * 1000}
	}
	tree, err := bag.Build(targets, 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	genesis := config.NetworkGenesis(config.Devnet)
	resolver := bag.NewResolver(tree, genesis)
	if _, err := env.client.Mint(ctx, resolver.RootCoin()); err != nil {
		t.Fatalf("mint root: %v", err)
	}

	key, _ := crypto.GenerateKey()
	funder, err := wallet.NewFunder(env.client, key)
	if err != nil {
		t.Fatalf("NewFunder: %v", err)
	}
	if _, err := env.client.Mint(ctx, tx.Coin{ParentID: types.Hash{0xf0}, PuzzleHash: funder.PuzzleHash(), Amount: 1_000_000}); err != nil {
		t.Fatalf("mint funding: %v", err)
	}

	s, err := bag.NewScheduler(bag.SchedulerConfig{
		Tree:          tree,
		Genesis:       genesis,
		Ledger:        env.client,
		Funder:        funder,
		BatchSize:     2,
		FeePerSpend:   5,
		PollInterval:  5 * time.Millisecond,
		RetryInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	report, err := s.Unwind(ctx)
	if err != nil {
		t.Fatalf("Unwind: %v", err)
	}
	if report.Planned != tree.NodeCount() || report.Submitted+report.Skipped != tree.NodeCount() {
		t.Errorf("report %+v, want %d spends", report, tree.NodeCount())
	}

	for _, target := range targets {
		id, err := resolver.CoinID(target.PuzzleHash)
		if err != nil {
			t.Fatalf("CoinID: %v", err)
		}
		state, err := env.client.CoinState(ctx, id)
		if err != nil {
			t.Fatalf("CoinState: %v", err)
		}
		if state != ledger.CoinUnspent {
			t.Errorf("target %s state = %s, want unspent", target.PuzzleHash.Short(), state)
		}
	}
}
