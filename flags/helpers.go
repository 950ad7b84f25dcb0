package flags

import (
	"os"

	cli "gopkg.in/urfave/cli.v1"
)

// NewApp creates an app with the shared name, usage and version. The caller
// adds flags, commands and the action.
func NewApp() *cli.App {

	app := cli.NewApp()
	app.Name = "lottery"
	app.Usage = "Verifiable-randomness lottery node"
	app.Version = "0.1.0"
	app.Writer = os.Stdout
	return app

}

// AllFlags is every flag the node command understands.
func AllFlags() []cli.Flag {
	var all []cli.Flag
	all = append(all, CommonFlags()...)
	all = append(all, NodeFlags()...)
	all = append(all, LotteryFlags()...)
	all = append(all, KeeperFlags()...)
	all = append(all, VRFFlags()...)
	return all
}
