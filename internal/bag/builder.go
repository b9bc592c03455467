// Package bag builds commitment trees over leaf targets and unwinds them
// against a ledger.
//
// A tree is folded bottom-up: consecutive batches of targets become batch
// predicates, whose hashes and summed amounts become the targets of the next
// level, until a single root remains. The root puzzle hash commits to every
// leaf and its position. Unwinding spends the tree top-down, depth by depth,
// until every leaf coin exists.
package bag

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-bag/internal/log"
	"github.com/Klingon-tech/klingnet-bag/pkg/predicate"
	"github.com/Klingon-tech/klingnet-bag/pkg/tx"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

// DefaultLeafWidth is the default number of children per node.
const DefaultLeafWidth = 25

// ParentEntry is the node that creates a set of sibling coins.
type ParentEntry struct {
	Predicate  predicate.Predicate
	PuzzleHash types.Hash
	Amount     uint64
	Siblings   []Target
}

// Member returns the sibling with the given puzzle hash.
func (e *ParentEntry) Member(ph types.Hash) (Target, bool) {
	for _, s := range e.Siblings {
		if s.PuzzleHash == ph {
			return s, true
		}
	}
	return Target{}, false
}

// Tree is an immutable commitment tree.
type Tree struct {
	Root       types.Hash
	RootAmount uint64
	Width      int
	Leaves     []Target
	// Lookup maps every puzzle hash except the root to its parent node.
	Lookup map[types.Hash]*ParentEntry

	depth int
	nodes int
}

// Batch splits items into consecutive batches of width. The last batch may
// be smaller. width must be at least 1.
func Batch[T any](items []T, width int) [][]T {
	if width < 1 {
		width = 1
	}
	out := make([][]T, 0, (len(items)+width-1)/width)
	for start := 0; start < len(items); start += width {
		end := min(start+width, len(items))
		out = append(out, items[start:end])
	}
	return out
}

// Build folds targets into a commitment tree of the given width. A single
// target is its own root. A width of 1 yields a chain in which each node
// creates one leaf and the next node.
func Build(targets []Target, width int) (*Tree, error) {
	if width < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWidth, width)
	}
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	defer log.Benchmark("bag.Build")()

	t := &Tree{
		Width:  width,
		Leaves: append([]Target(nil), targets...),
		Lookup: make(map[types.Hash]*ParentEntry, len(targets)),
	}

	var root Target
	var err error
	if width == 1 {
		root, err = t.foldChain(targets)
	} else {
		root, err = t.foldLevels(targets)
	}
	if err != nil {
		return nil, err
	}
	t.Root = root.PuzzleHash
	t.RootAmount = root.Amount

	log.Tree.Debug().Str("root", t.Root.String()).Uint64("amount", t.RootAmount).
		Int("leaves", len(targets)).Int("nodes", t.nodes).Int("depth", t.depth).
		Msg("Tree built")
	return t, nil
}

func (t *Tree) foldLevels(current []Target) (Target, error) {
	for len(current) > 1 {
		batches := Batch(current, t.Width)
		next := make([]Target, 0, len(batches))
		for _, siblings := range batches {
			node, err := t.addNode(siblings)
			if err != nil {
				return Target{}, err
			}
			next = append(next, node)
		}
		t.depth++
		log.Tree.Debug().Int("level", t.depth).Int("nodes", len(next)).Msg("Folded level")
		current = next
	}
	return current[0], nil
}

func (t *Tree) foldChain(leaves []Target) (Target, error) {
	node := leaves[len(leaves)-1]
	for i := len(leaves) - 2; i >= 0; i-- {
		var err error
		node, err = t.addNode([]Target{leaves[i], node})
		if err != nil {
			return Target{}, err
		}
		t.depth++
	}
	return node, nil
}

// addNode creates the parent of siblings and records it for each member.
func (t *Tree) addNode(siblings []Target) (Target, error) {
	outputs := make([]predicate.Output, len(siblings))
	seen := make(map[types.Hash]bool, len(siblings))
	var amount uint64
	for i, s := range siblings {
		if seen[s.PuzzleHash] {
			return Target{}, fmt.Errorf("%w: puzzle hash %s twice in one batch", ErrInconsistentTree, s.PuzzleHash)
		}
		seen[s.PuzzleHash] = true
		var ok bool
		if amount, ok = tx.AddAmount(amount, s.Amount); !ok {
			return Target{}, ErrAmountOverflow
		}
		outputs[i] = s.Output()
	}

	pred := predicate.Batch(outputs)
	entry := &ParentEntry{
		Predicate:  pred,
		PuzzleHash: pred.Hash(),
		Amount:     amount,
		Siblings:   append([]Target(nil), siblings...),
	}
	created := false
	for _, s := range siblings {
		if existing, ok := t.Lookup[s.PuzzleHash]; ok {
			if existing.PuzzleHash != entry.PuzzleHash {
				return Target{}, fmt.Errorf("%w: %s has parents %s and %s",
					ErrInconsistentTree, s.PuzzleHash, existing.PuzzleHash.Short(), entry.PuzzleHash.Short())
			}
			// A structurally identical batch has the same predicate hash, so
			// the lookup entry is shared. The two resulting node targets are
			// themselves duplicates, which the next level rejects.
			continue
		}
		t.Lookup[s.PuzzleHash] = entry
		created = true
	}
	if created {
		t.nodes++
	}
	return Target{PuzzleHash: entry.PuzzleHash, Amount: amount}, nil
}

// Depth returns the number of levels between the root and the leaves.
func (t *Tree) Depth() int { return t.depth }

// NodeCount returns the number of distinct internal nodes, root included.
func (t *Tree) NodeCount() int { return t.nodes }

// Parent returns the node that creates ph.
func (t *Tree) Parent(ph types.Hash) (*ParentEntry, bool) {
	e, ok := t.Lookup[ph]
	return e, ok
}

// Contains reports whether ph is the root or has a parent in the tree.
func (t *Tree) Contains(ph types.Hash) bool {
	if ph == t.Root {
		return true
	}
	_, ok := t.Lookup[ph]
	return ok
}

// Representatives returns the first leaf of every distinct parent, in leaf
// order. Siblings share their whole ancestor chain, so unwinding to each
// representative materializes every leaf.
func (t *Tree) Representatives() []Target {
	var reps []Target
	seen := make(map[types.Hash]bool)
	for _, leaf := range t.Leaves {
		e, ok := t.Lookup[leaf.PuzzleHash]
		if !ok || seen[e.PuzzleHash] {
			continue
		}
		seen[e.PuzzleHash] = true
		reps = append(reps, leaf)
	}
	return reps
}

// RootCondition is the condition the minting authority emits to create the
// root coin. The root coin carries no value of its own; the unwind funds
// the difference when the root is spent.
func (t *Tree) RootCondition() predicate.Condition {
	return predicate.CreateCoin(t.Root, 0, t.Root.Bytes())
}
