package tx

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-bag/pkg/crypto"
	"github.com/Klingon-tech/klingnet-bag/pkg/predicate"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

// CoinSpend reveals the predicate of a coin and supplies the solution it is
// run with.
type CoinSpend struct {
	Coin      Coin                `json:"coin"`
	Predicate predicate.Predicate `json:"predicate"`
	Solution  types.HexBytes      `json:"solution"`
}

// NewCoinSpend returns a spend of coin under p with the given solution.
func NewCoinSpend(coin Coin, p predicate.Predicate, solution []byte) *CoinSpend {
	return &CoinSpend{Coin: coin, Predicate: p, Solution: solution}
}

// Bytes returns the canonical encoding of the spend:
// parent_id(32) | puzzle_hash(32) | amount(8) | predicate | solution_len(4) | solution.
func (s *CoinSpend) Bytes() []byte {
	pred := s.Predicate.Bytes()
	buf := make([]byte, 0, 2*types.HashSize+8+len(pred)+4+len(s.Solution))
	buf = append(buf, s.Coin.ParentID[:]...)
	buf = append(buf, s.Coin.PuzzleHash[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, s.Coin.Amount)
	buf = append(buf, pred...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s.Solution)))
	buf = append(buf, s.Solution...)
	return buf
}

// Conditions runs the revealed predicate against the coin and solution.
func (s *CoinSpend) Conditions() ([]predicate.Condition, error) {
	return s.Predicate.Run(s.Coin.ID(), s.Solution)
}

// Additions returns the coins this spend creates.
func (s *CoinSpend) Additions() ([]Coin, error) {
	conds, err := s.Conditions()
	if err != nil {
		return nil, err
	}
	parent := s.Coin.ID()
	var out []Coin
	for _, c := range conds {
		if c.Op == predicate.OpCreateCoin {
			out = append(out, Coin{ParentID: parent, PuzzleHash: c.PuzzleHash, Amount: c.Amount})
		}
	}
	return out, nil
}

// Bundle is a set of coin spends submitted and applied atomically.
type Bundle struct {
	Spends []*CoinSpend `json:"spends"`
}

// NewBundle returns a bundle of spends.
func NewBundle(spends ...*CoinSpend) *Bundle {
	return &Bundle{Spends: spends}
}

// ID returns the hash of all spend encodings in order.
func (b *Bundle) ID() types.Hash {
	parts := make([][]byte, 0, len(b.Spends))
	for _, s := range b.Spends {
		parts = append(parts, s.Bytes())
	}
	return crypto.HashParts(parts...)
}

// CoinIDs returns the IDs of the coins the bundle spends.
func (b *Bundle) CoinIDs() []types.Hash {
	ids := make([]types.Hash, len(b.Spends))
	for i, s := range b.Spends {
		ids[i] = s.Coin.ID()
	}
	return ids
}
