package tx

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-bag/pkg/predicate"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

// Validation errors.
var (
	ErrEmptyBundle         = errors.New("bundle has no spends")
	ErrNilSpend            = errors.New("nil coin spend")
	ErrPuzzleMismatch      = errors.New("revealed predicate does not match coin puzzle hash")
	ErrDuplicateSpend      = errors.New("duplicate coin spend")
	ErrDuplicateAddition   = errors.New("duplicate coin creation")
	ErrMissingAnnouncement = errors.New("asserted announcement not created in bundle")
	ErrValueOverflow       = errors.New("amount overflow")
	ErrOutputsExceedInputs = errors.New("created amount exceeds spent amount")
	ErrInsufficientFee     = errors.New("fee below reserved amount")
)

// Effects is what applying a valid bundle does to the ledger.
type Effects struct {
	Removals  []Coin
	Additions []Coin
	Fee       uint64
}

// Validate checks everything about the bundle that does not depend on ledger
// state and returns its effects. Whether the removed coins exist and are
// unspent is left to the ledger.
func (b *Bundle) Validate() (*Effects, error) {
	if len(b.Spends) == 0 {
		return nil, ErrEmptyBundle
	}

	eff := &Effects{}
	spent := make(map[types.Hash]bool, len(b.Spends))
	created := make(map[types.Hash]bool)
	announced := make(map[types.Hash]bool)
	var asserted []types.Hash
	var totalIn, totalOut, reserved uint64
	var ok bool

	for i, s := range b.Spends {
		if s == nil {
			return nil, fmt.Errorf("spend %d: %w", i, ErrNilSpend)
		}
		if s.Predicate.Hash() != s.Coin.PuzzleHash {
			return nil, fmt.Errorf("spend %d: %w", i, ErrPuzzleMismatch)
		}
		id := s.Coin.ID()
		if spent[id] {
			return nil, fmt.Errorf("spend %d: %w: %s", i, ErrDuplicateSpend, id)
		}
		spent[id] = true
		eff.Removals = append(eff.Removals, s.Coin)
		if totalIn, ok = AddAmount(totalIn, s.Coin.Amount); !ok {
			return nil, fmt.Errorf("spend %d inputs: %w", i, ErrValueOverflow)
		}

		conds, err := s.Predicate.Run(id, s.Solution)
		if err != nil {
			return nil, fmt.Errorf("spend %d: %w", i, err)
		}
		for _, c := range conds {
			switch c.Op {
			case predicate.OpCreateCoin:
				child := Coin{ParentID: id, PuzzleHash: c.PuzzleHash, Amount: c.Amount}
				childID := child.ID()
				if created[childID] {
					return nil, fmt.Errorf("spend %d: %w: %s", i, ErrDuplicateAddition, childID)
				}
				created[childID] = true
				eff.Additions = append(eff.Additions, child)
				if totalOut, ok = AddAmount(totalOut, c.Amount); !ok {
					return nil, fmt.Errorf("spend %d outputs: %w", i, ErrValueOverflow)
				}
			case predicate.OpReserveFee:
				if reserved, ok = AddAmount(reserved, c.Amount); !ok {
					return nil, fmt.Errorf("spend %d fee: %w", i, ErrValueOverflow)
				}
			case predicate.OpCreateAnnouncement:
				announced[predicate.AnnouncementID(id, c.Memo)] = true
			case predicate.OpAssertAnnouncement:
				asserted = append(asserted, c.PuzzleHash)
			}
		}
	}

	for _, a := range asserted {
		if !announced[a] {
			return nil, fmt.Errorf("%w: %s", ErrMissingAnnouncement, a)
		}
	}
	if totalOut > totalIn {
		return nil, fmt.Errorf("%w: in %d, out %d", ErrOutputsExceedInputs, totalIn, totalOut)
	}
	eff.Fee = totalIn - totalOut
	if eff.Fee < reserved {
		return nil, fmt.Errorf("%w: fee %d, reserved %d", ErrInsufficientFee, eff.Fee, reserved)
	}
	return eff, nil
}
