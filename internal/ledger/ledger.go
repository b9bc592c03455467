// Package ledger models the coin ledger the bag is unwound against: the
// interfaces the unwind core consumes, a storage-backed coin store that
// validates and applies spend bundles, and a mempool that confirms them in
// blocks.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-bag/pkg/tx"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

// Ledger errors.
var (
	ErrRejected     = errors.New("bundle rejected")
	ErrCoinNotFound = errors.New("coin not found")
	ErrCoinSpent    = errors.New("coin already spent")
	ErrCoinExists   = errors.New("coin already exists")
	ErrConflict     = errors.New("conflicts with pending bundle")
	ErrPoolFull     = errors.New("mempool is full")
)

// CoinState is the ledger's view of a coin identity.
type CoinState uint8

const (
	// CoinUnknown means the coin has not been created (its parent is unspent
	// or was never part of the ledger).
	CoinUnknown CoinState = iota
	// CoinUnspent means the coin exists and can be spent.
	CoinUnspent
	// CoinSpent means the coin was created and then consumed.
	CoinSpent
)

// String returns the lower-case state name.
func (s CoinState) String() string {
	switch s {
	case CoinUnknown:
		return "unknown"
	case CoinUnspent:
		return "unspent"
	case CoinSpent:
		return "spent"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ParseCoinState is the inverse of String.
func ParseCoinState(s string) (CoinState, error) {
	switch s {
	case "unknown":
		return CoinUnknown, nil
	case "unspent":
		return CoinUnspent, nil
	case "spent":
		return CoinSpent, nil
	default:
		return CoinUnknown, fmt.Errorf("invalid coin state %q", s)
	}
}

// MarshalJSON encodes the state as its name.
func (s CoinState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state name.
func (s *CoinState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseCoinState(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// StateReader reports coin states.
type StateReader interface {
	CoinState(ctx context.Context, id types.Hash) (CoinState, error)
}

// Ledger accepts spend bundles. Submit returns an error wrapping ErrRejected
// when the bundle is invalid against current state; any other error is a
// transport or storage failure. Submitting the same bundle twice is safe.
type Ledger interface {
	StateReader
	Submit(ctx context.Context, b *tx.Bundle) error
}

// CoinLister finds coins by puzzle hash. Wallets use it to find funding.
type CoinLister interface {
	CoinsByPuzzleHash(ctx context.Context, puzzleHash types.Hash, includeSpent bool) ([]*CoinRecord, error)
}

// CoinRecord is the stored state of a coin.
type CoinRecord struct {
	Coin            tx.Coin    `json:"coin"`
	ID              types.Hash `json:"id"`
	ConfirmedHeight uint64     `json:"confirmed_height"`
	Spent           bool       `json:"spent"`
	SpentHeight     uint64     `json:"spent_height,omitempty"`
}

// State returns the record's coin state.
func (r *CoinRecord) State() CoinState {
	if r.Spent {
		return CoinSpent
	}
	return CoinUnspent
}

// rejected wraps a validation failure as a rejection.
func rejected(err error) error {
	return fmt.Errorf("%w: %w", ErrRejected, err)
}
