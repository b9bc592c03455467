package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-bag/internal/ledger"
	"github.com/Klingon-tech/klingnet-bag/internal/log"
	"github.com/Klingon-tech/klingnet-bag/pkg/crypto"
	"github.com/Klingon-tech/klingnet-bag/pkg/predicate"
	"github.com/Klingon-tech/klingnet-bag/pkg/tx"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

type fundingKey struct {
	signer    *crypto.PrivateKey
	predicate predicate.Predicate
}

// Funder pays fees and value shortfalls from pay-to-pubkey coins held by a
// set of keys. Coins handed out by SelectFunding stay reserved until
// Release, so concurrent sub-batches never pick the same coin.
type Funder struct {
	lister ledger.CoinLister
	log    zerolog.Logger

	mu       sync.Mutex
	keys     map[types.Hash]fundingKey
	order    []types.Hash
	change   types.Hash
	reserved map[types.Hash]struct{}
}

// NewFunder returns a Funder spending coins locked to keys. Change goes
// back to the first key.
func NewFunder(lister ledger.CoinLister, keys ...*crypto.PrivateKey) (*Funder, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("funder needs at least one key")
	}
	f := &Funder{
		lister:   lister,
		log:      log.Wallet,
		keys:     make(map[types.Hash]fundingKey, len(keys)),
		reserved: make(map[types.Hash]struct{}),
	}
	for _, k := range keys {
		p := predicate.PayToPubKey(k.PublicKey())
		ph := p.Hash()
		if _, dup := f.keys[ph]; dup {
			continue
		}
		f.keys[ph] = fundingKey{signer: k, predicate: p}
		f.order = append(f.order, ph)
	}
	f.change = f.order[0]
	return f, nil
}

// NewFunderFromSeed derives count external keys of account, plus the first
// internal key, which receives change.
func NewFunderFromSeed(lister ledger.CoinLister, seed []byte, account, count uint32) (*Funder, error) {
	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	keys := make([]*crypto.PrivateKey, 0, count+1)
	changeKey, err := master.DeriveFunding(account, ChangeInternal, 0)
	if err != nil {
		return nil, err
	}
	signer, err := changeKey.Signer()
	if err != nil {
		return nil, err
	}
	keys = append(keys, signer)
	for i := uint32(0); i < count; i++ {
		k, err := master.DeriveFunding(account, ChangeExternal, i)
		if err != nil {
			return nil, err
		}
		s, err := k.Signer()
		if err != nil {
			return nil, err
		}
		keys = append(keys, s)
	}
	return NewFunder(lister, keys...)
}

// PuzzleHash returns the puzzle hash change is paid to.
func (f *Funder) PuzzleHash() types.Hash {
	return f.change
}

// PuzzleHashes returns every puzzle hash the funder can spend.
func (f *Funder) PuzzleHashes() []types.Hash {
	out := make([]types.Hash, len(f.order))
	copy(out, f.order)
	return out
}

// available lists unspent, unreserved coins. Caller holds f.mu.
func (f *Funder) available(ctx context.Context) ([]tx.Coin, error) {
	var coins []tx.Coin
	for _, ph := range f.order {
		recs, err := f.lister.CoinsByPuzzleHash(ctx, ph, false)
		if err != nil {
			return nil, fmt.Errorf("list coins %s: %w", ph.Short(), err)
		}
		for _, r := range recs {
			if r.Spent {
				continue
			}
			if _, taken := f.reserved[r.ID]; taken {
				continue
			}
			coins = append(coins, r.Coin)
		}
	}
	return coins, nil
}

// Balance returns the total of unspent coins the funder holds, reserved
// coins included.
func (f *Funder) Balance(ctx context.Context) (uint64, error) {
	var coins []tx.Coin
	for _, ph := range f.PuzzleHashes() {
		recs, err := f.lister.CoinsByPuzzleHash(ctx, ph, false)
		if err != nil {
			return 0, fmt.Errorf("list coins %s: %w", ph.Short(), err)
		}
		for _, r := range recs {
			if !r.Spent {
				coins = append(coins, r.Coin)
			}
		}
	}
	return tx.SumAmounts(coins)
}

// SelectFunding reserves coins worth at least amount.
func (f *Funder) SelectFunding(ctx context.Context, amount uint64) ([]tx.Coin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	coins, err := f.available(ctx)
	if err != nil {
		return nil, err
	}
	sel, err := SelectCoins(coins, amount)
	if err != nil {
		return nil, err
	}
	for _, c := range sel.Coins {
		f.reserved[c.ID()] = struct{}{}
	}
	f.log.Debug().Uint64("amount", amount).Int("coins", len(sel.Coins)).
		Uint64("change", sel.Change).Msg("Funding selected")
	return sel.Coins, nil
}

// BuildFeeSpend spends coins so that fee goes to the ledger and shortfall
// is left for the rest of the bundle. Every spend asserts all
// announcements. The first spend reserves the fee and returns any change.
func (f *Funder) BuildFeeSpend(coins []tx.Coin, announcements []types.Hash, fee, shortfall uint64) ([]*tx.CoinSpend, error) {
	if len(coins) == 0 {
		return nil, fmt.Errorf("no funding coins")
	}
	total, err := tx.SumAmounts(coins)
	if err != nil {
		return nil, err
	}
	need, ok := tx.AddAmount(fee, shortfall)
	if !ok {
		return nil, tx.ErrValueOverflow
	}
	if total < need {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, total, need)
	}
	change := total - need

	asserts := make([]predicate.Condition, len(announcements))
	for i, a := range announcements {
		asserts[i] = predicate.AssertAnnouncement(a)
	}

	spends := make([]*tx.CoinSpend, 0, len(coins))
	for i, c := range coins {
		key, ok := f.keys[c.PuzzleHash]
		if !ok {
			return nil, fmt.Errorf("coin %s: puzzle hash %s not owned", c.ID().Short(), c.PuzzleHash.Short())
		}
		conds := make([]predicate.Condition, 0, len(asserts)+2)
		conds = append(conds, asserts...)
		if i == 0 {
			if fee > 0 {
				conds = append(conds, predicate.ReserveFee(fee))
			}
			if change > 0 {
				conds = append(conds, predicate.CreateCoin(f.change, change, nil))
			}
		}
		solution, err := predicate.Sign(key.signer, c.ID(), conds)
		if err != nil {
			return nil, err
		}
		spends = append(spends, tx.NewCoinSpend(c, key.predicate, solution))
	}
	return spends, nil
}

// Release returns coins to the selectable pool.
func (f *Funder) Release(coins []tx.Coin) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range coins {
		delete(f.reserved, c.ID())
	}
}
