package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-bag/internal/log"
	"github.com/Klingon-tech/klingnet-bag/pkg/tx"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

// DefaultMempoolSize bounds the number of pending bundles.
const DefaultMempoolSize = 5000

// Mempool holds submitted bundles until the next block. Coin state reads go
// to the store, so a submitted spend only becomes visible once confirmed.
type Mempool struct {
	mu      sync.Mutex
	store   *Store
	pending []*tx.Bundle
	ids     map[types.Hash]bool       // bundle id -> pending
	spends  map[types.Hash]types.Hash // coin id -> bundle id (conflict index)
	maxSize int
}

// NewMempool creates a mempool in front of store.
func NewMempool(store *Store, maxSize int) *Mempool {
	if maxSize <= 0 {
		maxSize = DefaultMempoolSize
	}
	return &Mempool{
		store:   store,
		ids:     make(map[types.Hash]bool),
		spends:  make(map[types.Hash]types.Hash),
		maxSize: maxSize,
	}
}

// CoinState implements StateReader with confirmed state.
func (m *Mempool) CoinState(ctx context.Context, id types.Hash) (CoinState, error) {
	return m.store.CoinState(ctx, id)
}

// CoinsByPuzzleHash implements CoinLister with confirmed state.
func (m *Mempool) CoinsByPuzzleHash(ctx context.Context, ph types.Hash, includeSpent bool) ([]*CoinRecord, error) {
	return m.store.CoinsByPuzzleHash(ctx, ph, includeSpent)
}

// Submit validates b against confirmed state and queues it. A bundle that is
// already pending is accepted again without effect. A bundle spending a coin
// claimed by a different pending bundle is rejected.
func (m *Mempool) Submit(ctx context.Context, b *tx.Bundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := b.ID()
	if m.ids[id] {
		return nil
	}
	if len(m.pending) >= m.maxSize {
		return rejected(ErrPoolFull)
	}
	eff, err := m.store.Check(ctx, b)
	if err != nil {
		return err
	}
	for _, c := range eff.Removals {
		if other, ok := m.spends[c.ID()]; ok {
			return rejected(fmt.Errorf("%w %s: coin %s", ErrConflict, other.Short(), c.ID().Short()))
		}
	}

	for _, c := range eff.Removals {
		m.spends[c.ID()] = id
	}
	m.ids[id] = true
	m.pending = append(m.pending, b)
	log.Ledger.Debug().Str("bundle", id.Short()).Int("spends", len(b.Spends)).
		Uint64("fee", eff.Fee).Msg("Bundle accepted")
	return nil
}

// Pending returns the number of queued bundles.
func (m *Mempool) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Tick confirms every pending bundle in a new block and returns the new
// height. Bundles invalidated since they were queued are dropped.
func (m *Mempool) Tick(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	bundles := m.pending
	m.pending = nil
	m.ids = make(map[types.Hash]bool)
	m.spends = make(map[types.Hash]types.Hash)
	m.mu.Unlock()

	height, skipped, err := m.store.ApplyBlock(ctx, bundles)
	if err != nil {
		return height, fmt.Errorf("apply block: %w", err)
	}
	for i, serr := range skipped {
		log.Ledger.Warn().Err(serr).Str("bundle", bundles[i].ID().Short()).Msg("Dropped pending bundle")
	}
	if len(bundles) > 0 {
		log.Ledger.Info().Uint64("height", height).Int("bundles", len(bundles)-len(skipped)).Msg("Block applied")
	}
	return height, nil
}

// Run calls Tick every interval until ctx is cancelled.
func (m *Mempool) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Tick(ctx); err != nil {
				log.Ledger.Error().Err(err).Msg("Block tick failed")
			}
		}
	}
}
