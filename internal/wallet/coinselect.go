package wallet

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Klingon-tech/klingnet-bag/pkg/tx"
)

// Coin selection errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoCoins           = errors.New("no coins available")
)

// CoinSelection holds the result of coin selection.
type CoinSelection struct {
	Coins  []tx.Coin // Selected coins to spend.
	Total  uint64    // Sum of selected coin amounts.
	Change uint64    // Change = Total - target.
}

// SelectCoins chooses coins to cover target. It tries two strategies:
//  1. Single coin: the smallest coin that covers the target.
//  2. Largest-first accumulation: greedily adds the largest coins until the target is met.
//
// Returns the strategy that produces the least change.
func SelectCoins(coins []tx.Coin, target uint64) (*CoinSelection, error) {
	if target == 0 {
		return nil, fmt.Errorf("target must be positive")
	}

	candidates := make([]tx.Coin, 0, len(coins))
	for _, c := range coins {
		if c.Amount > 0 {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %w (need %d)", ErrInsufficientFunds, ErrNoCoins, target)
	}

	// Ties broken by coin ID so selection is deterministic.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Amount != candidates[j].Amount {
			return candidates[i].Amount < candidates[j].Amount
		}
		a, b := candidates[i].ID(), candidates[j].ID()
		return string(a[:]) < string(b[:])
	})

	var single *CoinSelection
	for _, c := range candidates {
		if c.Amount >= target {
			single = &CoinSelection{
				Coins:  []tx.Coin{c},
				Total:  c.Amount,
				Change: c.Amount - target,
			}
			break // Sorted ascending, first match is smallest.
		}
	}

	var accum *CoinSelection
	var selected []tx.Coin
	var total uint64
	for i := len(candidates) - 1; i >= 0; i-- {
		next, ok := tx.AddAmount(total, candidates[i].Amount)
		if !ok {
			break
		}
		selected = append(selected, candidates[i])
		total = next
		if total >= target {
			accum = &CoinSelection{
				Coins:  selected,
				Total:  total,
				Change: total - target,
			}
			break
		}
	}

	switch {
	case single != nil && accum != nil:
		if single.Change <= accum.Change {
			return single, nil
		}
		return accum, nil
	case single != nil:
		return single, nil
	case accum != nil:
		return accum, nil
	default:
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, total, target)
	}
}
