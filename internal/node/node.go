// Package node provides the ledger node that klingbagd runs: a coin store
// on disk, a mempool confirming bundles in blocks, and the RPC server in
// front of them.
package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Klingon-tech/klingnet-bag/config"
	"github.com/Klingon-tech/klingnet-bag/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-bag/internal/log"
	"github.com/Klingon-tech/klingnet-bag/internal/rpc"
	"github.com/Klingon-tech/klingnet-bag/internal/storage"
	"github.com/rs/zerolog"
)

// Node is a fully-initialized ledger node.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	// Core
	db    storage.DB
	store *ledger.Store
	pool  *ledger.Mempool

	// RPC
	rpcServer *rpc.Server

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and initializes a new Node. It opens storage and builds the
// mempool and RPC server but does NOT start the block loop or listen.
// Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := expandHome(cfg.Log.File)
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "klingbagd.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	genesis, err := cfg.Genesis()
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str("network", string(cfg.Network)).
		Str("genesis", genesis.Short()).
		Str("backend", cfg.Ledger.Backend).
		Dur("block_interval", cfg.Node.BlockInterval).
		Msg("Starting Klingbag ledger node")

	// ── 2. Open storage ─────────────────────────────────────────────
	path := ledgerPath(cfg)
	db, err := storage.Open(cfg.Ledger.Backend, path)
	if err != nil {
		return nil, fmt.Errorf("open ledger at %s: %w", path, err)
	}
	store, err := ledger.NewStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	logger.Info().Str("path", path).Uint64("height", store.Height()).Msg("Ledger opened")

	// ── 3. Mempool ──────────────────────────────────────────────────
	pool := ledger.NewMempool(store, cfg.Node.MempoolSize)

	// ── 4. RPC ──────────────────────────────────────────────────────
	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		rpcServer = rpc.New(cfg.ListenAddr(), store, pool, cfg.RPC)
		rpcServer.SetNetwork(string(cfg.Network), genesis)
		if cfg.RPC.Faucet {
			logger.Warn().Msg("Faucet enabled: coin_mint is open to RPC callers")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		store:     store,
		pool:      pool,
		rpcServer: rpcServer,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start binds the RPC listener and starts the block loop.
func (n *Node) Start() error {
	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			return err
		}
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		err := n.pool.Run(n.ctx, n.cfg.Node.BlockInterval)
		if err != nil && !errors.Is(err, context.Canceled) {
			n.logger.Error().Err(err).Msg("Block loop stopped")
		}
	}()

	n.logger.Info().Msg("Node started")
	return nil
}

// Stop shuts down the RPC server and block loop, then closes storage.
func (n *Node) Stop() {
	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}
	n.cancel()
	n.wg.Wait()

	if n.db != nil {
		n.db.Close()
	}

	n.logger.Info().Msg("Goodbye!")
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Height returns the current ledger height.
func (n *Node) Height() uint64 {
	return n.store.Height()
}

// Store returns the node's coin store.
func (n *Node) Store() *ledger.Store {
	return n.store
}

// Pool returns the node's mempool.
func (n *Node) Pool() *ledger.Mempool {
	return n.pool
}
