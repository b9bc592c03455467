package bag

import (
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-bag/pkg/tx"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

// Resolver derives coin identities and ancestor spends for one tree and one
// genesis reference. Results are memoized by puzzle hash.
type Resolver struct {
	tree    *Tree
	genesis types.Hash

	mu    sync.Mutex
	coins map[types.Hash]tx.Coin // puzzle hash -> coin carrying it
	depth map[types.Hash]int
}

// NewResolver returns a resolver for tree rooted at a coin whose parent is
// genesis.
func NewResolver(tree *Tree, genesis types.Hash) *Resolver {
	return &Resolver{
		tree:    tree,
		genesis: genesis,
		coins:   make(map[types.Hash]tx.Coin),
		depth:   make(map[types.Hash]int),
	}
}

// Tree returns the resolver's tree.
func (r *Resolver) Tree() *Tree { return r.tree }

// Genesis returns the genesis reference.
func (r *Resolver) Genesis() types.Hash { return r.genesis }

// RootCoin returns the coin the minting authority creates for the root. Its
// parent is the genesis reference, so its amount folds to 0; every other
// coin carries the amount its parent batch creates.
func (r *Resolver) RootCoin() tx.Coin {
	return tx.Coin{ParentID: r.genesis, PuzzleHash: r.tree.Root, Amount: 0}
}

// Coin returns the coin that carries ph.
func (r *Resolver) Coin(ph types.Hash) (tx.Coin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.coin(ph)
}

// coin resolves ph iteratively: walk up to the first memoized ancestor (or
// the root), then derive identities back down. Chains can be as deep as the
// leaf count.
func (r *Resolver) coin(ph types.Hash) (tx.Coin, error) {
	if c, ok := r.coins[ph]; ok {
		return c, nil
	}

	var pending []types.Hash
	cur := ph
	for {
		if _, ok := r.coins[cur]; ok {
			break
		}
		if cur == r.tree.Root {
			root := r.RootCoin()
			r.coins[cur] = root
			r.depth[cur] = 0
			break
		}
		if _, ok := r.tree.Lookup[cur]; !ok {
			return tx.Coin{}, fmt.Errorf("%w: %s", ErrUnknownPuzzleHash, cur)
		}
		pending = append(pending, cur)
		cur = r.tree.Lookup[cur].PuzzleHash
	}

	for i := len(pending) - 1; i >= 0; i-- {
		child := pending[i]
		entry := r.tree.Lookup[child]
		parent := r.coins[entry.PuzzleHash]
		member, ok := entry.Member(child)
		if !ok {
			return tx.Coin{}, fmt.Errorf("%w: %s missing from its parent batch", ErrInconsistentTree, child)
		}
		r.coins[child] = tx.Coin{ParentID: parent.ID(), PuzzleHash: child, Amount: member.Amount}
		r.depth[child] = r.depth[entry.PuzzleHash] + 1
	}
	return r.coins[ph], nil
}

// CoinID returns the identity of the coin carrying ph.
func (r *Resolver) CoinID(ph types.Hash) (types.Hash, error) {
	c, err := r.Coin(ph)
	if err != nil {
		return types.Hash{}, err
	}
	return c.ID(), nil
}

// ParentOf returns the spend of the coin that creates ph and that coin's ID.
// For the root it returns a nil spend and the genesis reference.
func (r *Resolver) ParentOf(ph types.Hash) (*tx.CoinSpend, types.Hash, error) {
	if ph == r.tree.Root {
		return nil, r.genesis, nil
	}
	entry, ok := r.tree.Lookup[ph]
	if !ok {
		return nil, types.Hash{}, fmt.Errorf("%w: %s", ErrUnknownPuzzleHash, ph)
	}
	parent, err := r.Coin(entry.PuzzleHash)
	if err != nil {
		return nil, types.Hash{}, err
	}
	return tx.NewCoinSpend(parent, entry.Predicate, nil), parent.ID(), nil
}

// Chain returns the spends of every ancestor of ph, root first.
func (r *Resolver) Chain(ph types.Hash) ([]*tx.CoinSpend, error) {
	var chain []*tx.CoinSpend
	cur := ph
	for {
		spend, _, err := r.ParentOf(cur)
		if err != nil {
			return nil, err
		}
		if spend == nil {
			break
		}
		chain = append(chain, spend)
		cur = spend.Coin.PuzzleHash
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Depth returns the number of ancestors between the root and ph. The root
// is at depth 0.
func (r *Resolver) Depth(ph types.Hash) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.coin(ph); err != nil {
		return 0, err
	}
	return r.depth[ph], nil
}
