package bag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-bag/internal/ledger"
	"github.com/Klingon-tech/klingnet-bag/internal/log"
	"github.com/Klingon-tech/klingnet-bag/internal/wallet"
	"github.com/Klingon-tech/klingnet-bag/pkg/predicate"
	"github.com/Klingon-tech/klingnet-bag/pkg/tx"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
)

// Scheduler defaults.
const (
	DefaultBatchSize     = 10
	DefaultPollInterval  = 3 * time.Second
	DefaultMaxRetries    = 5
	DefaultRetryInterval = time.Second
)

// Funder pays the fee and value shortfall of a sub-batch.
type Funder interface {
	// SelectFunding reserves coins worth at least amount. It returns an
	// error wrapping wallet.ErrInsufficientFunds when funds are short.
	SelectFunding(ctx context.Context, amount uint64) ([]tx.Coin, error)
	// BuildFeeSpend spends coins, leaving fee to the ledger and shortfall
	// to the bundle, and asserts every announcement.
	BuildFeeSpend(coins []tx.Coin, announcements []types.Hash, fee, shortfall uint64) ([]*tx.CoinSpend, error)
	// Release returns reserved coins to the selectable pool.
	Release(coins []tx.Coin)
}

// SchedulerConfig configures a Scheduler. Zero durations and counts select
// the defaults.
type SchedulerConfig struct {
	Tree    *Tree
	Genesis types.Hash
	Ledger  ledger.Ledger
	// Funder may be nil when FeePerSpend is zero and no spend needs value
	// beyond its own coin. The root coin always does.
	Funder Funder

	BatchSize     int
	FeePerSpend   uint64
	PollInterval  time.Duration
	MaxRetries    int
	RetryInterval time.Duration
	// ConfirmTimeout bounds each wait for a coin state change. After it
	// expires the sub-batch is re-resolved and resubmitted. Zero waits
	// indefinitely.
	ConfirmTimeout time.Duration
}

// Report summarizes an unwind run.
type Report struct {
	Planned   int     `json:"planned"`
	Submitted int     `json:"submitted"`
	Skipped   int     `json:"skipped"`
	Bundles   int     `json:"bundles"`
	Fees      uint64  `json:"fees"`
	Depths    int     `json:"depths"`
	Warnings  []error `json:"-"`
}

// Level is the set of spends at one tree depth, in first-planned order.
type Level struct {
	Depth  int
	Spends []*tx.CoinSpend
}

// Scheduler unwinds a tree against a ledger, depth by depth.
type Scheduler struct {
	cfg      SchedulerConfig
	resolver *Resolver
	confirm  *confirmer
	log      zerolog.Logger
}

// NewScheduler validates cfg and returns a scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Tree == nil {
		return nil, errors.New("scheduler: nil tree")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("scheduler: nil ledger")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	return &Scheduler{
		cfg:      cfg,
		resolver: NewResolver(cfg.Tree, cfg.Genesis),
		confirm: &confirmer{
			state:    cfg.Ledger,
			interval: cfg.PollInterval,
			timeout:  cfg.ConfirmTimeout,
		},
		log: log.WithRoot(cfg.Tree.Root.Short()),
	}, nil
}

// Resolver returns the scheduler's resolver.
func (s *Scheduler) Resolver() *Resolver { return s.resolver }

// PlanTree plans every leaf representative once and groups the required
// spends by depth, deduplicated by coin puzzle hash. Levels are returned
// root first. Warnings from individual plans are returned alongside.
func (s *Scheduler) PlanTree(ctx context.Context) ([]Level, []error, error) {
	planner := NewPlanner(s.resolver, newStateCache(s.cfg.Ledger))

	type levelSet struct {
		seen   map[types.Hash]bool
		spends []*tx.CoinSpend
	}
	byDepth := make(map[int]*levelSet)
	var warnings []error

	for _, rep := range s.cfg.Tree.Representatives() {
		plan, err := planner.Plan(ctx, rep.PuzzleHash)
		if err != nil {
			return nil, nil, fmt.Errorf("plan %s: %w", rep.PuzzleHash.Short(), err)
		}
		if plan.Warning != nil {
			warnings = append(warnings, fmt.Errorf("target %s: %w", rep.PuzzleHash.Short(), plan.Warning))
		}
		for _, ps := range plan.Spends {
			lvl, ok := byDepth[ps.Depth]
			if !ok {
				lvl = &levelSet{seen: make(map[types.Hash]bool)}
				byDepth[ps.Depth] = lvl
			}
			ph := ps.Spend.Coin.PuzzleHash
			if lvl.seen[ph] {
				continue
			}
			lvl.seen[ph] = true
			lvl.spends = append(lvl.spends, ps.Spend)
		}
	}

	depths := make([]int, 0, len(byDepth))
	for d := range byDepth {
		depths = append(depths, d)
	}
	sort.Ints(depths)
	levels := make([]Level, len(depths))
	for i, d := range depths {
		levels[i] = Level{Depth: d, Spends: byDepth[d].spends}
	}
	return levels, warnings, nil
}

// Unwind spends the whole tree. Each depth is split into sub-batches of
// BatchSize; each sub-batch is submitted with its fee spend and confirmed
// before the next. Re-running after an interruption resumes from ledger
// state.
func (s *Scheduler) Unwind(ctx context.Context) (*Report, error) {
	levels, warnings, err := s.PlanTree(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{Warnings: warnings}
	for _, lvl := range levels {
		report.Planned += len(lvl.Spends)
	}
	for _, w := range warnings {
		s.log.Warn().Err(w).Msg("Plan warning")
	}
	s.log.Info().Int("spends", report.Planned).Int("levels", len(levels)).Msg("Unwind planned")

	for _, lvl := range levels {
		for i, sub := range Batch(lvl.Spends, s.cfg.BatchSize) {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if err := s.execute(ctx, sub, report); err != nil {
				return report, fmt.Errorf("depth %d sub-batch %d: %w", lvl.Depth, i, err)
			}
		}
		report.Depths++
		s.log.Info().Int("depth", lvl.Depth).Int("spends", len(lvl.Spends)).Msg("Depth confirmed")
	}
	return report, nil
}

// UnwindTarget materializes a single target, submitting its remaining
// ancestor spends one at a time.
func (s *Scheduler) UnwindTarget(ctx context.Context, ph types.Hash) (*Report, error) {
	if !s.cfg.Tree.Contains(ph) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPuzzleHash, ph)
	}
	plan, err := NewPlanner(s.resolver, s.cfg.Ledger).Plan(ctx, ph)
	if err != nil {
		return nil, err
	}
	report := &Report{Planned: len(plan.Spends)}
	if plan.Warning != nil {
		report.Warnings = append(report.Warnings, fmt.Errorf("target %s: %w", ph.Short(), plan.Warning))
	}
	for _, ps := range plan.Spends {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.execute(ctx, []*tx.CoinSpend{ps.Spend}, report); err != nil {
			return report, fmt.Errorf("depth %d: %w", ps.Depth, err)
		}
		report.Depths++
	}
	return report, nil
}

// batchResult is the outcome of one successful sub-batch attempt.
type batchResult struct {
	submitted int
	skipped   int
	bundles   int
	fee       uint64
}

// execute runs a sub-batch with retry. Each attempt re-resolves ledger
// state, so a retry after a lost acknowledgement or a concurrent spend only
// resubmits what is still unspent.
func (s *Scheduler) execute(ctx context.Context, spends []*tx.CoinSpend, report *Report) error {
	var result batchResult
	op := func() error {
		res, err := s.attempt(ctx, spends)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrMissingFunding) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}
	notify := func(err error, next time.Duration) {
		s.log.Warn().Err(err).Dur("retry_in", next).Int("spends", len(spends)).Msg("Sub-batch failed, retrying")
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.cfg.RetryInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.cfg.MaxRetries)), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return err
	}

	report.Submitted += result.submitted
	report.Skipped += result.skipped
	report.Bundles += result.bundles
	report.Fees += result.fee
	return nil
}

func (s *Scheduler) attempt(ctx context.Context, spends []*tx.CoinSpend) (batchResult, error) {
	live, skipped, err := s.liveSpends(ctx, spends)
	if err != nil {
		return batchResult{}, err
	}
	res := batchResult{skipped: skipped}
	if len(live) == 0 {
		return res, nil
	}

	bundle, funding, fee, err := s.assemble(ctx, live)
	if err != nil {
		return res, err
	}
	if len(funding) > 0 {
		defer s.cfg.Funder.Release(funding)
	}

	if err := s.cfg.Ledger.Submit(ctx, bundle); err != nil {
		return res, fmt.Errorf("submit bundle %s: %w", bundle.ID().Short(), err)
	}
	s.log.Info().Str("bundle", bundle.ID().Short()).Int("spends", len(live)).
		Uint64("fee", fee).Msg("Sub-batch submitted")

	ids := make([]types.Hash, len(live))
	for i, sp := range live {
		ids[i] = sp.Coin.ID()
	}
	if err := s.confirm.waitSpent(ctx, ids); err != nil {
		return res, err
	}
	res.submitted = len(live)
	res.bundles = 1
	res.fee = fee
	return res, nil
}

// liveSpends drops spends whose coins are already spent. A coin that does
// not exist yet is waited for: its parent was confirmed at the previous
// depth, so it is about to appear.
func (s *Scheduler) liveSpends(ctx context.Context, spends []*tx.CoinSpend) ([]*tx.CoinSpend, int, error) {
	var live []*tx.CoinSpend
	skipped := 0
	for _, sp := range spends {
		id := sp.Coin.ID()
		st, err := s.cfg.Ledger.CoinState(ctx, id)
		if err != nil {
			return nil, 0, fmt.Errorf("coin state %s: %w", id.Short(), err)
		}
		if st == ledger.CoinUnknown {
			if st, err = s.confirm.waitKnown(ctx, id); err != nil {
				return nil, 0, err
			}
		}
		if st == ledger.CoinSpent {
			skipped++
			continue
		}
		live = append(live, sp)
	}
	if skipped > 0 {
		s.log.Info().Int("skipped", skipped).Msg("Coins already spent, skipping")
	}
	return live, skipped, nil
}

// assemble builds the bundle for live spends, adding a fee spend when a fee
// is configured or the spends create more than they consume. The fee spend
// asserts every spend's batch announcement, so it is only valid alongside
// exactly these spends.
func (s *Scheduler) assemble(ctx context.Context, live []*tx.CoinSpend) (*tx.Bundle, []tx.Coin, uint64, error) {
	var in, out uint64
	var ok bool
	for _, sp := range live {
		if in, ok = tx.AddAmount(in, sp.Coin.Amount); !ok {
			return nil, nil, 0, tx.ErrValueOverflow
		}
		adds, err := sp.Additions()
		if err != nil {
			return nil, nil, 0, fmt.Errorf("%w: %w", ErrInconsistentTree, err)
		}
		for _, a := range adds {
			if out, ok = tx.AddAmount(out, a.Amount); !ok {
				return nil, nil, 0, tx.ErrValueOverflow
			}
		}
	}
	var shortfall uint64
	if out > in {
		shortfall = out - in
	}
	fee := s.cfg.FeePerSpend * uint64(len(live))
	if s.cfg.FeePerSpend != 0 && fee/uint64(len(live)) != s.cfg.FeePerSpend {
		return nil, nil, 0, tx.ErrValueOverflow
	}
	if fee == 0 && shortfall == 0 {
		return tx.NewBundle(live...), nil, 0, nil
	}

	if s.cfg.Funder == nil {
		return nil, nil, 0, fmt.Errorf("%w: no funder configured (need %d fee, %d shortfall)", ErrMissingFunding, fee, shortfall)
	}
	total, ok := tx.AddAmount(fee, shortfall)
	if !ok {
		return nil, nil, 0, tx.ErrValueOverflow
	}
	coins, err := s.cfg.Funder.SelectFunding(ctx, total)
	if err != nil {
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			return nil, nil, 0, fmt.Errorf("%w: %w", ErrMissingFunding, err)
		}
		return nil, nil, 0, fmt.Errorf("select funding: %w", err)
	}

	announcements := make([]types.Hash, len(live))
	for i, sp := range live {
		announcements[i] = predicate.AnnouncementID(sp.Coin.ID(), predicate.BatchAnnouncement)
	}
	feeSpends, err := s.cfg.Funder.BuildFeeSpend(coins, announcements, fee, shortfall)
	if err != nil {
		s.cfg.Funder.Release(coins)
		return nil, nil, 0, fmt.Errorf("build fee spend: %w", err)
	}

	spends := make([]*tx.CoinSpend, 0, len(live)+len(feeSpends))
	spends = append(spends, live...)
	spends = append(spends, feeSpends...)
	return tx.NewBundle(spends...), coins, fee, nil
}

// stateCache memoizes coin states for one planning pass, so siblings'
// shared ancestors are queried once.
type stateCache struct {
	inner ledger.StateReader
	mu    sync.Mutex
	seen  map[types.Hash]ledger.CoinState
}

func newStateCache(inner ledger.StateReader) *stateCache {
	return &stateCache{inner: inner, seen: make(map[types.Hash]ledger.CoinState)}
}

func (c *stateCache) CoinState(ctx context.Context, id types.Hash) (ledger.CoinState, error) {
	c.mu.Lock()
	st, ok := c.seen[id]
	c.mu.Unlock()
	if ok {
		return st, nil
	}
	st, err := c.inner.CoinState(ctx, id)
	if err != nil {
		return st, err
	}
	c.mu.Lock()
	c.seen[id] = st
	c.mu.Unlock()
	return st, nil
}
