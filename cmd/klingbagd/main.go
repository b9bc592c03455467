// Klingbag ledger node daemon.
//
// Usage:
//
//	klingbagd [--network devnet --backend memory ...]  Run node
//	klingbagd --help                                   Show help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Klingon-tech/klingnet-bag/config"
	"github.com/Klingon-tech/klingnet-bag/internal/node"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "klingbagd"
	app.Usage = "coin ledger node for unwinding payout trees"
	app.Version = "0.1.0"
	app.Flags = config.Flags()
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c)
	if err != nil {
		return err
	}

	n, err := node.New(cfg)
	if err != nil {
		return err
	}

	if err := n.Start(); err != nil {
		n.Stop()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	n.Stop()
	return nil
}
