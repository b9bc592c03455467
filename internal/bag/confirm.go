package bag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/klingnet-bag/internal/ledger"
	"github.com/Klingon-tech/klingnet-bag/internal/log"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

// confirmer polls coin state at a fixed interval.
type confirmer struct {
	state    ledger.StateReader
	interval time.Duration
	timeout  time.Duration // 0 waits until ctx is done
}

// waitFor blocks until done(state of id) holds and returns that state.
func (c *confirmer) waitFor(ctx context.Context, id types.Hash, done func(ledger.CoinState) bool) (ledger.CoinState, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, c.timeout, ErrConfirmTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		st, err := c.state.CoinState(ctx, id)
		switch {
		case err == nil && done(st):
			return st, nil
		case err != nil && ctx.Err() == nil:
			log.Unwind.Debug().Err(err).Str("coin", id.Short()).Msg("Coin state poll failed")
		}
		select {
		case <-ctx.Done():
			if errors.Is(context.Cause(ctx), ErrConfirmTimeout) {
				return st, fmt.Errorf("%w: coin %s", ErrConfirmTimeout, id.Short())
			}
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitSpent blocks until every coin in ids is spent. Coins are polled in
// parallel.
func (c *confirmer) waitSpent(ctx context.Context, ids []types.Hash) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			_, err := c.waitFor(gctx, id, func(st ledger.CoinState) bool {
				return st == ledger.CoinSpent
			})
			return err
		})
	}
	return g.Wait()
}

// waitKnown blocks until id exists on the ledger, spent or not.
func (c *confirmer) waitKnown(ctx context.Context, id types.Hash) (ledger.CoinState, error) {
	return c.waitFor(ctx, id, func(st ledger.CoinState) bool {
		return st != ledger.CoinUnknown
	})
}
