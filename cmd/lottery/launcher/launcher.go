package launcher

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-lottery/deploy"
	"github.com/rony4d/go-lottery/flags"
	"github.com/rony4d/go-lottery/integration"
	"github.com/rony4d/go-lottery/network"
)

func newApp() *cli.App {
	app := flags.NewApp()
	app.Flags = flags.AllFlags()
	app.Action = runNode
	app.Commands = []cli.Command{
		{
			Name:   "dumpconfig",
			Usage:  "Print the merged configuration as TOML",
			Action: dumpConfigAction,
		},
		{
			Name:   "publish",
			Usage:  "Write the lottery ABI and address book for the web front end",
			Flags:  flags.FrontendFlags(),
			Action: publishAction,
		},
	}
	return app
}

// Launch parses args and runs the selected command. Without a command it
// starts a node and blocks until SIGINT or SIGTERM.
func Launch(args []string) error {
	return newApp().Run(args)
}

func runNode(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	logger, err := SetupLogger(cfg.Node.Logging, nil)
	if err != nil {
		return err
	}
	if cfg.Node.DataDir != "" {
		if err := ensureDir(cfg.Node.DataDir); err != nil {
			return err
		}
	}
	nodeCfg, err := cfg.NodeConfig(logger.WithField("node", cfg.Node.Name))
	if err != nil {
		return err
	}

	node, err := integration.NewNode(nodeCfg)
	if err != nil {
		return err
	}
	if err := node.Start(context.Background()); err != nil {
		node.Close()
		return err
	}
	logger.WithField("node", node.String()).Info("Lottery node started")

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)
	sig := <-sigc
	logger.WithField("signal", sig.String()).Info("Shutting down")

	return node.Close()
}

func dumpConfigAction(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	return dumpConfig(ctx.App.Writer, cfg)
}

func publishAction(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	dir := ctx.String("frontend.dir")
	if dir == "" {
		return fmt.Errorf("--frontend.dir is required")
	}
	net, err := network.ByName(cfg.Node.Network)
	if err != nil {
		return err
	}
	if !common.IsHexAddress(cfg.Lottery.Address) {
		return fmt.Errorf("invalid lottery address %q", cfg.Lottery.Address)
	}
	addr := common.HexToAddress(cfg.Lottery.Address)
	if err := deploy.PublishFrontend(resolvePath(dir), net.ChainID, addr); err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "Published %s on chain %d to %s\n", addr.Hex(), net.ChainID, dir)
	return nil
}
