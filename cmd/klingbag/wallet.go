package main

import (
	"bytes"
	"fmt"

	"github.com/Klingon-tech/klingnet-bag/internal/wallet"
	"github.com/Klingon-tech/klingnet-bag/pkg/types"
	"github.com/urfave/cli"
)

var walletCommands = []cli.Command{
	{
		Name:     "wallet",
		Usage:    "Manage the funding wallet.",
		Category: "Wallet",
		Subcommands: []cli.Command{
			walletCreateCommand,
			walletAddressCommand,
			walletListCommand,
			walletBalanceCommand,
		},
	},
}

var walletCreateCommand = cli.Command{
	Name:  "create",
	Usage: "Create (or restore) the encrypted funding wallet",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "mnemonic", Usage: "restore from an existing BIP-39 mnemonic"},
	},
	Action: walletCreate,
}

func walletCreate(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	ks, err := e.keystore()
	if err != nil {
		return err
	}

	mnemonic := c.String("mnemonic")
	generated := mnemonic == ""
	if generated {
		if mnemonic, err = wallet.GenerateMnemonic(); err != nil {
			return err
		}
	}
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return err
	}
	defer func() {
		for i := range seed {
			seed[i] = 0
		}
	}()

	password, err := passphrase("Enter passphrase: ")
	if err != nil {
		return err
	}
	confirm, err := passphrase("Confirm passphrase: ")
	if err != nil {
		return err
	}
	if !bytes.Equal(password, confirm) {
		return fmt.Errorf("passphrases do not match")
	}

	name, account := e.cfg.Wallet.Name, e.cfg.Wallet.Account
	if err := ks.Create(name, seed, password, account, wallet.DefaultParams()); err != nil {
		return err
	}

	// Record the change key and the first funding address.
	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		return err
	}
	var first types.Hash
	for _, change := range []uint32{wallet.ChangeInternal, wallet.ChangeExternal} {
		k, err := master.DeriveFunding(account, change, 0)
		if err != nil {
			return err
		}
		if err := ks.AddKey(name, wallet.KeyEntry{Change: change, Index: 0, PuzzleHash: k.PuzzleHash()}); err != nil {
			return err
		}
		first = k.PuzzleHash()
	}

	if generated {
		fmt.Println("Mnemonic (write this down!):")
		fmt.Printf("  %s\n\n", mnemonic)
	}
	printJSON(map[string]interface{}{
		"wallet":      name,
		"account":     account,
		"puzzle_hash": first,
	})
	return nil
}

var walletAddressCommand = cli.Command{
	Name:   "address",
	Usage:  "Derive the next funding puzzle hash",
	Flags:  []cli.Flag{cli.StringFlag{Name: "label", Usage: "optional label for the address"}},
	Action: walletAddress,
}

func walletAddress(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	ks, err := e.keystore()
	if err != nil {
		return err
	}
	name := e.cfg.Wallet.Name
	index, err := ks.NextIndex(name, wallet.ChangeExternal)
	if err != nil {
		return err
	}
	if index >= e.cfg.Wallet.Keys {
		return fmt.Errorf("index %d is beyond wallet.keys=%d; funds sent there would not be scanned", index, e.cfg.Wallet.Keys)
	}

	seed, account, err := e.unlockSeed(ks)
	if err != nil {
		return err
	}
	master, err := wallet.NewMasterKey(seed)
	for i := range seed {
		seed[i] = 0
	}
	if err != nil {
		return err
	}
	k, err := master.DeriveFunding(account, wallet.ChangeExternal, index)
	if err != nil {
		return err
	}
	entry := wallet.KeyEntry{Change: wallet.ChangeExternal, Index: index, Name: c.String("label"), PuzzleHash: k.PuzzleHash()}
	if err := ks.AddKey(name, entry); err != nil {
		return err
	}
	printJSON(entry)
	return nil
}

var walletListCommand = cli.Command{
	Name:   "list",
	Usage:  "List wallets and their recorded puzzle hashes",
	Action: walletList,
}

func walletList(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	ks, err := e.keystore()
	if err != nil {
		return err
	}
	names, err := ks.List()
	if err != nil {
		return err
	}
	out := make(map[string][]wallet.KeyEntry, len(names))
	for _, name := range names {
		keys, err := ks.Keys(name)
		if err != nil {
			return err
		}
		out[name] = keys
	}
	printJSON(out)
	return nil
}

var walletBalanceCommand = cli.Command{
	Name:   "balance",
	Usage:  "Sum unspent coins at the wallet's recorded puzzle hashes",
	Action: walletBalance,
}

type balanceResult struct {
	Wallet  string `json:"wallet"`
	Balance uint64 `json:"balance"`
	Coins   int    `json:"coins"`
}

func walletBalance(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	ks, err := e.keystore()
	if err != nil {
		return err
	}
	keys, err := ks.Keys(e.cfg.Wallet.Name)
	if err != nil {
		return err
	}
	ctx, cancel := getContext()
	defer cancel()

	res := balanceResult{Wallet: e.cfg.Wallet.Name}
	for _, k := range keys {
		recs, err := e.client.CoinsByPuzzleHash(ctx, k.PuzzleHash, false)
		if err != nil {
			return err
		}
		for _, r := range recs {
			res.Balance += r.Coin.Amount
			res.Coins++
		}
	}
	printJSON(res)
	return nil
}
