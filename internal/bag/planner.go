package bag

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/klingnet-bag/internal/ledger"
	"github.com/Klingon-tech/klingnet-bag/internal/log"
	"github.com/Klingon-tech/klingnet-bag/pkg/tx"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

// PlannedSpend is a required spend and the tree depth of the coin it spends.
type PlannedSpend struct {
	Spend *tx.CoinSpend
	Depth int
}

// Plan is the remaining work to materialize one target.
type Plan struct {
	Target types.Hash
	// Spends are ordered root first.
	Spends []PlannedSpend
	// Complete is set when the target's own parent is already spent.
	Complete bool
	// Warning is ErrAlreadySpentAncestor when the walk stopped at a spent
	// ancestor above the target's parent.
	Warning error
}

// Planner computes unwind plans against live ledger state.
type Planner struct {
	resolver *Resolver
	state    ledger.StateReader
}

// NewPlanner returns a planner reading coin state from state.
func NewPlanner(resolver *Resolver, state ledger.StateReader) *Planner {
	return &Planner{resolver: resolver, state: state}
}

// Plan walks from ph toward the root and returns the spends still needed to
// create the coin carrying ph.
//
// For each ancestor coin: unknown means it must be spent and its own parent
// examined; unspent means it must be spent and the walk stops there (the
// frontier); spent means the walk stops without it.
func (p *Planner) Plan(ctx context.Context, ph types.Hash) (*Plan, error) {
	plan := &Plan{Target: ph}
	var found []PlannedSpend

	cur := ph
	for first := true; ; first = false {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spend, parentID, err := p.resolver.ParentOf(cur)
		if err != nil {
			return nil, err
		}
		if spend == nil {
			// cur is the root. Its coin comes from the minting authority.
			break
		}
		state, err := p.state.CoinState(ctx, parentID)
		if err != nil {
			return nil, fmt.Errorf("coin state %s: %w", parentID.Short(), err)
		}
		depth, err := p.resolver.Depth(spend.Coin.PuzzleHash)
		if err != nil {
			return nil, err
		}

		if state == ledger.CoinSpent {
			if first {
				plan.Complete = true
			} else {
				plan.Warning = ErrAlreadySpentAncestor
				log.Unwind.Warn().Str("target", ph.Short()).Str("coin", parentID.Short()).
					Int("depth", depth).Msg("Ancestor already spent, tree unwound past this point")
			}
			break
		}
		found = append(found, PlannedSpend{Spend: spend, Depth: depth})
		if state == ledger.CoinUnspent {
			break
		}
		cur = spend.Coin.PuzzleHash
	}

	plan.Spends = make([]PlannedSpend, len(found))
	for i, s := range found {
		plan.Spends[len(found)-1-i] = s
	}
	log.Unwind.Debug().Str("target", ph.Short()).Int("spends", len(plan.Spends)).
		Bool("complete", plan.Complete).Msg("Planned")
	return plan, nil
}
