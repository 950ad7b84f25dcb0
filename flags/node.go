package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// NodeFlags holds knobs specific to the local node instance (identity,
// network preset, runtime profile).

func NodeFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "identity",
			Usage: "Custom node name used in logs",
		},
		cli.StringFlag{
			Name:  "network",
			Usage: "Network preset to deploy on (hardhat|localhost|rinkeby)",
			Value: "hardhat",
		},
		cli.StringFlag{
			Name:  "preset",
			Usage: "Runtime profile (dev|staging|default)",
		},
	}
}

// LotteryFlags configure the lottery deployment itself. Fee, gas lane and
// callback gas come from the network preset.
func LotteryFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "lottery.address",
			Usage: "Ledger account of the lottery",
		},
		cli.DurationFlag{
			Name:  "lottery.interval",
			Usage: "Override the network's round interval",
		},
		cli.DurationFlag{
			Name:  "lottery.requesttimeout",
			Usage: "Re-request randomness when a request stays unanswered this long (0 = never)",
		},
		cli.StringFlag{
			Name:  "alloc",
			Usage: "Comma-separated address=wei pairs to prefund on first start",
		},
	}
}

// FrontendFlags are used by the publish command.
func FrontendFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "frontend.dir",
			Usage: "Constants directory of the web front end (abi.json, contractAddresses.json)",
		},
	}
}
