package main

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-bag/internal/bag"
	"github.com/Klingon-tech/klingnet-bag/internal/ledger"
	"github.com/Klingon-tech/klingnet-bag/internal/wallet"
	"github.com/Klingon-tech/klingnet-bag/pkg/crypto"
	"github.com/Klingon-tech/klingnet-bag/pkg/tx"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
	"github.com/urfave/cli"
)

var treeCommands = []cli.Command{
	rootCommand,
	planCommand,
	unwindCommand,
	launchCommand,
}

var rootCommand = cli.Command{
	Name:        "root",
	Usage:       "Build the tree and print its root",
	Description: "Fold the targets into a commitment tree and print the root puzzle hash and amount the root coin must carry.",
	Flags:       []cli.Flag{targetsFlag},
	Action:      showRoot,
}

type rootResult struct {
	Root       types.Hash `json:"root"`
	Amount     uint64     `json:"amount"`
	RootCoinID types.Hash `json:"root_coin_id"`
	Genesis    types.Hash `json:"genesis"`
	Leaves     int        `json:"leaves"`
	Nodes      int        `json:"nodes"`
	Depth      int        `json:"depth"`
	Width      int        `json:"width"`
}

func showRoot(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	tree, err := e.loadTree(c)
	if err != nil {
		return err
	}
	printJSON(rootResult{
		Root:       tree.Root,
		Amount:     tree.RootAmount,
		RootCoinID: bag.NewResolver(tree, e.genesis).RootCoin().ID(),
		Genesis:    e.genesis,
		Leaves:     len(tree.Leaves),
		Nodes:      tree.NodeCount(),
		Depth:      tree.Depth(),
		Width:      tree.Width,
	})
	return nil
}

var planCommand = cli.Command{
	Name:  "plan",
	Usage: "Show the spends still needed against the ledger",
	Flags: []cli.Flag{
		targetsFlag,
		cli.StringFlag{Name: targetName, Usage: "plan a single target puzzle hash"},
	},
	Action: showPlan,
}

type levelResult struct {
	Depth int          `json:"depth"`
	Coins []types.Hash `json:"coins"`
}

type planResult struct {
	Root     types.Hash    `json:"root"`
	Spends   int           `json:"spends"`
	Complete bool          `json:"complete"`
	Levels   []levelResult `json:"levels"`
	Warnings []string      `json:"warnings,omitempty"`
}

func showPlan(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	tree, err := e.loadTree(c)
	if err != nil {
		return err
	}
	ph, single, err := targetHash(c)
	if err != nil {
		return err
	}
	ctx, cancel := getContext()
	defer cancel()

	res := planResult{Root: tree.Root}
	if single {
		plan, err := bag.NewPlanner(bag.NewResolver(tree, e.genesis), e.client).Plan(ctx, ph)
		if err != nil {
			return err
		}
		res.Complete = plan.Complete
		for _, ps := range plan.Spends {
			res.Levels = append(res.Levels, levelResult{Depth: ps.Depth, Coins: []types.Hash{ps.Spend.Coin.ID()}})
		}
		res.Spends = len(plan.Spends)
		if plan.Warning != nil {
			res.Warnings = append(res.Warnings, plan.Warning.Error())
		}
		printJSON(res)
		return nil
	}

	s, err := bag.NewScheduler(bag.SchedulerConfig{Tree: tree, Genesis: e.genesis, Ledger: e.client})
	if err != nil {
		return err
	}
	levels, warnings, err := s.PlanTree(ctx)
	if err != nil {
		return err
	}
	for _, lvl := range levels {
		lr := levelResult{Depth: lvl.Depth}
		for _, sp := range lvl.Spends {
			lr.Coins = append(lr.Coins, sp.Coin.ID())
		}
		res.Levels = append(res.Levels, lr)
		res.Spends += len(lvl.Spends)
	}
	res.Complete = res.Spends == 0
	for _, w := range warnings {
		res.Warnings = append(res.Warnings, w.Error())
	}
	printJSON(res)
	return nil
}

var unwindCommand = cli.Command{
	Name:  "unwind",
	Usage: "Spend the tree down to its targets",
	Description: "Submit every remaining spend depth by depth, paying fees from the " +
		"configured wallet. Interrupted runs resume from ledger state.",
	Flags: []cli.Flag{
		targetsFlag,
		cli.StringFlag{Name: targetName, Usage: "unwind only the ancestors of one target puzzle hash"},
	},
	Action: unwind,
}

type unwindResult struct {
	*bag.Report
	Warnings []string `json:"warnings,omitempty"`
}

func unwind(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	tree, err := e.loadTree(c)
	if err != nil {
		return err
	}
	ph, single, err := targetHash(c)
	if err != nil {
		return err
	}

	ks, err := e.keystore()
	if err != nil {
		return err
	}
	seed, account, err := e.unlockSeed(ks)
	if err != nil {
		return err
	}
	funder, err := wallet.NewFunderFromSeed(e.client, seed, account, e.cfg.Wallet.Keys)
	for i := range seed {
		seed[i] = 0
	}
	if err != nil {
		return err
	}

	u := e.cfg.Unwind
	s, err := bag.NewScheduler(bag.SchedulerConfig{
		Tree:           tree,
		Genesis:        e.genesis,
		Ledger:         e.client,
		Funder:         funder,
		BatchSize:      u.BatchSize,
		FeePerSpend:    u.FeePerSpend,
		PollInterval:   u.PollInterval,
		MaxRetries:     u.MaxRetries,
		RetryInterval:  u.RetryInterval,
		ConfirmTimeout: u.ConfirmTimeout,
	})
	if err != nil {
		return err
	}

	ctx, cancel := getContext()
	defer cancel()

	var report *bag.Report
	if single {
		report, err = s.UnwindTarget(ctx, ph)
	} else {
		report, err = s.Unwind(ctx)
	}
	if report != nil {
		res := unwindResult{Report: report}
		for _, w := range report.Warnings {
			res.Warnings = append(res.Warnings, w.Error())
		}
		printJSON(res)
	}
	if errors.Is(err, wallet.ErrInsufficientFunds) {
		return fmt.Errorf("%w: fund one of the wallet addresses and re-run", err)
	}
	return err
}

var launchCommand = cli.Command{
	Name:  "launch",
	Usage: "Mint the root coin on a faucet-enabled node",
	Description: "Development helper: ask the node's faucet to create the tree's root " +
		"coin, and optionally a funding coin for the wallet's first address.",
	Flags: []cli.Flag{
		targetsFlag,
		cli.Uint64Flag{Name: "fund", Usage: "also mint a funding coin of this amount"},
	},
	Action: launch,
}

type launchResult struct {
	Root    *ledger.CoinRecord `json:"root"`
	Funding *ledger.CoinRecord `json:"funding,omitempty"`
}

func launch(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	tree, err := e.loadTree(c)
	if err != nil {
		return err
	}
	ctx, cancel := getContext()
	defer cancel()

	var res launchResult
	root := bag.NewResolver(tree, e.genesis).RootCoin()
	res.Root, err = e.client.Mint(ctx, root)
	if errors.Is(err, ledger.ErrCoinExists) {
		res.Root, err = e.client.Record(ctx, root.ID())
	}
	if err != nil {
		return fmt.Errorf("mint root coin: %w", err)
	}

	if amount := c.Uint64("fund"); amount > 0 {
		ks, err := e.keystore()
		if err != nil {
			return err
		}
		keys, err := ks.Keys(e.cfg.Wallet.Name)
		if err != nil {
			return err
		}
		var ph types.Hash
		for _, k := range keys {
			if k.Change == wallet.ChangeExternal {
				ph = k.PuzzleHash
				break
			}
		}
		if ph.IsZero() {
			return fmt.Errorf("wallet %q has no address; run `klingbag wallet address` first", e.cfg.Wallet.Name)
		}
		rootID := root.ID()
		coin := tx.Coin{ParentID: crypto.HashParts([]byte("faucet"), rootID[:]), PuzzleHash: ph, Amount: amount}
		res.Funding, err = e.client.Mint(ctx, coin)
		if err != nil {
			return fmt.Errorf("mint funding coin: %w", err)
		}
	}

	printJSON(res)
	return nil
}
