// Package tx defines coins, coin spends and spend bundles.
package tx

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/klingnet-bag/pkg/crypto"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

// Coin is a value-bearing ledger entry. It is identified by its parent
// coin, its puzzle hash and its amount; nothing else.
type Coin struct {
	ParentID   types.Hash `json:"parent_id"`
	PuzzleHash types.Hash `json:"puzzle_hash"`
	Amount     uint64     `json:"amount"`
}

// ID returns the coin identity: Hash(parent_id | puzzle_hash | amount_le64).
func (c Coin) ID() types.Hash {
	var amt [8]byte
	binary.LittleEndian.PutUint64(amt[:], c.Amount)
	return crypto.HashParts(c.ParentID[:], c.PuzzleHash[:], amt[:])
}

// String returns a short description for logs and errors.
func (c Coin) String() string {
	return fmt.Sprintf("coin %s (ph %s, amount %d)", c.ID().Short(), c.PuzzleHash.Short(), c.Amount)
}

// SumAmounts adds up coin amounts. Returns an error on overflow.
func SumAmounts(coins []Coin) (uint64, error) {
	var total uint64
	for _, c := range coins {
		next, ok := AddAmount(total, c.Amount)
		if !ok {
			return 0, ErrValueOverflow
		}
		total = next
	}
	return total, nil
}

// AddAmount returns a+b and false if the sum overflows uint64.
func AddAmount(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum >= a
}
