// klingbag builds commitment trees over payout targets and unwinds them
// against a klingbagd ledger node.
//
// Usage:
//
//	klingbag [global flags] root   --targets payouts.json
//	klingbag [global flags] plan   --targets payouts.json [--target <ph>]
//	klingbag [global flags] unwind --targets payouts.json [--target <ph>]
//	klingbag [global flags] launch --targets payouts.json [--fund <amount>]
//	klingbag [global flags] wallet <create|address|list|balance>
package main

import (
	"fmt"
	"os"

	"github.com/Klingon-tech/klingnet-bag/config"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "klingbag"
	app.Usage = "build and unwind payout commitment trees"
	app.Version = "0.1.0"
	app.Flags = config.Flags()
	app.Commands = append(treeCommands, walletCommands...)

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[klingbag] %v\n", err)
	os.Exit(1)
}
