package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-bag/internal/log"
	"github.com/Klingon-tech/klingnet-bag/internal/storage"
	"github.com/Klingon-tech/klingnet-bag/pkg/tx"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

// Key prefixes for the coin store.
var (
	prefixCoin   = []byte("c/") // c/<coinid> -> CoinRecord JSON
	prefixPuzzle = []byte("p/") // p/<puzzlehash><coinid> -> empty (index)
	keyHeight    = []byte("h")  // h -> height (8 bytes BE)
)

// storeNamespace isolates ledger keys inside a shared database.
var storeNamespace = []byte("ledger/")

// Store is a coin set backed by a storage.DB. Applying a bundle is atomic:
// either every removal and addition is committed or none is.
type Store struct {
	mu     sync.RWMutex
	db     *storage.PrefixDB
	height uint64
}

// NewStore opens the coin store inside db.
func NewStore(db storage.DB) (*Store, error) {
	s := &Store{db: storage.NewPrefixDB(db, storeNamespace)}
	data, err := s.db.Get(keyHeight)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load height: %w", err)
	case len(data) != 8:
		return nil, fmt.Errorf("load height: corrupt value (%d bytes)", len(data))
	default:
		s.height = binary.BigEndian.Uint64(data)
	}
	return s, nil
}

func coinKey(id types.Hash) []byte {
	key := make([]byte, len(prefixCoin)+types.HashSize)
	copy(key, prefixCoin)
	copy(key[len(prefixCoin):], id[:])
	return key
}

func puzzleKey(ph, id types.Hash) []byte {
	key := make([]byte, len(prefixPuzzle)+2*types.HashSize)
	copy(key, prefixPuzzle)
	copy(key[len(prefixPuzzle):], ph[:])
	copy(key[len(prefixPuzzle)+types.HashSize:], id[:])
	return key
}

func heightValue(h uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, h)
	return b
}

// Height returns the height of the last applied block.
func (s *Store) Height() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height
}

// Record returns the stored record for a coin.
func (s *Store) Record(_ context.Context, id types.Hash) (*CoinRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record(id)
}

func (s *Store) record(id types.Hash) (*CoinRecord, error) {
	data, err := s.db.Get(coinKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCoinNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("coin get: %w", err)
	}
	var rec CoinRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("coin unmarshal: %w", err)
	}
	return &rec, nil
}

// CoinState implements StateReader.
func (s *Store) CoinState(_ context.Context, id types.Hash) (CoinState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.record(id)
	if errors.Is(err, ErrCoinNotFound) {
		return CoinUnknown, nil
	}
	if err != nil {
		return CoinUnknown, err
	}
	return rec.State(), nil
}

// CoinsByPuzzleHash implements CoinLister.
func (s *Store) CoinsByPuzzleHash(_ context.Context, ph types.Hash, includeSpent bool) ([]*CoinRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := make([]byte, len(prefixPuzzle)+types.HashSize)
	copy(prefix, prefixPuzzle)
	copy(prefix[len(prefixPuzzle):], ph[:])

	var out []*CoinRecord
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		var id types.Hash
		copy(id[:], key[len(prefix):])
		rec, err := s.record(id)
		if err != nil {
			return err
		}
		if includeSpent || !rec.Spent {
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("puzzle hash index: %w", err)
	}
	return out, nil
}

// Mint creates coin out of nothing. It stands in for the external authority
// that creates a bag's root coin and for the devnet faucet.
func (s *Store) Mint(_ context.Context, coin tx.Coin) (*CoinRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := coin.ID()
	has, err := s.db.Has(coinKey(id))
	if err != nil {
		return nil, fmt.Errorf("coin has: %w", err)
	}
	if has {
		return nil, fmt.Errorf("%w: %s", ErrCoinExists, id)
	}

	rec := &CoinRecord{Coin: coin, ID: id, ConfirmedHeight: s.height}
	batch := s.db.NewBatch()
	if err := putRecord(batch, rec); err != nil {
		return nil, err
	}
	if err := batch.Put(puzzleKey(coin.PuzzleHash, id), []byte{}); err != nil {
		return nil, err
	}
	if err := batch.Commit(); err != nil {
		return nil, fmt.Errorf("mint commit: %w", err)
	}
	log.Ledger.Info().Str("coin", id.Short()).Str("puzzle_hash", coin.PuzzleHash.Short()).
		Uint64("amount", coin.Amount).Msg("Coin minted")
	return rec, nil
}

// Check validates b against the current coin set without applying it.
// Failures wrap ErrRejected.
func (s *Store) Check(_ context.Context, b *tx.Bundle) (*tx.Effects, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.check(b)
}

func (s *Store) check(b *tx.Bundle) (*tx.Effects, error) {
	eff, err := b.Validate()
	if err != nil {
		return nil, rejected(err)
	}
	for i, c := range eff.Removals {
		rec, err := s.record(c.ID())
		if errors.Is(err, ErrCoinNotFound) {
			return nil, rejected(fmt.Errorf("spend %d: %w", i, err))
		}
		if err != nil {
			return nil, err
		}
		if rec.Spent {
			return nil, rejected(fmt.Errorf("spend %d: %w: %s", i, ErrCoinSpent, rec.ID))
		}
	}
	for _, c := range eff.Additions {
		has, err := s.db.Has(coinKey(c.ID()))
		if err != nil {
			return nil, fmt.Errorf("coin has: %w", err)
		}
		if has {
			return nil, rejected(fmt.Errorf("%w: %s", ErrCoinExists, c.ID()))
		}
	}
	return eff, nil
}

// ApplyBlock advances the height by one and applies bundles in order at the
// new height. Bundles that fail validation against the state left by the
// previous ones are skipped and reported in the returned map by index.
func (s *Store) ApplyBlock(_ context.Context, bundles []*tx.Bundle) (uint64, map[int]error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	height := s.height + 1
	skipped := make(map[int]error)
	for i, b := range bundles {
		eff, err := s.check(b)
		if err != nil {
			if errors.Is(err, ErrRejected) {
				skipped[i] = err
				continue
			}
			return s.height, skipped, err
		}
		if err := s.commit(eff, height); err != nil {
			return s.height, skipped, err
		}
	}
	if err := s.db.Put(keyHeight, heightValue(height)); err != nil {
		return s.height, skipped, fmt.Errorf("height put: %w", err)
	}
	s.height = height
	return height, skipped, nil
}

// Submit implements Ledger by confirming b immediately in its own block.
func (s *Store) Submit(ctx context.Context, b *tx.Bundle) error {
	_, skipped, err := s.ApplyBlock(ctx, []*tx.Bundle{b})
	if err != nil {
		return err
	}
	if rerr, ok := skipped[0]; ok {
		return rerr
	}
	return nil
}

func (s *Store) commit(eff *tx.Effects, height uint64) error {
	batch := s.db.NewBatch()
	for _, c := range eff.Removals {
		rec, err := s.record(c.ID())
		if err != nil {
			return err
		}
		rec.Spent = true
		rec.SpentHeight = height
		if err := putRecord(batch, rec); err != nil {
			return err
		}
	}
	for _, c := range eff.Additions {
		rec := &CoinRecord{Coin: c, ID: c.ID(), ConfirmedHeight: height}
		if err := putRecord(batch, rec); err != nil {
			return err
		}
		if err := batch.Put(puzzleKey(c.PuzzleHash, rec.ID), []byte{}); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("bundle commit: %w", err)
	}
	return nil
}

func putRecord(batch storage.Batch, rec *CoinRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("coin marshal: %w", err)
	}
	return batch.Put(coinKey(rec.ID), data)
}

// Reset deletes every coin and the height. Devnet nodes use it to start over.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteAll(); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	s.height = 0
	return nil
}
