package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// KeeperFlags covers the in-process upkeep trigger.

func KeeperFlags() []cli.Flag {
	return []cli.Flag{
		cli.BoolFlag{
			Name:  "keeper.disable",
			Usage: "Do not run the in-process keeper (upkeep must be triggered over RPC)",
		},
		cli.DurationFlag{
			Name:  "keeper.interval",
			Usage: "How often the keeper evaluates checkUpkeep",
		},
	}
}

// VRFFlags isolate the mock oracle knobs. They only matter on development
// networks.
func VRFFlags() []cli.Flag {
	return []cli.Flag{
		cli.BoolFlag{
			Name:  "vrf.manual",
			Usage: "Do not answer randomness requests automatically (use vrf_fulfillRandomWords)",
		},
		cli.DurationFlag{
			Name:  "vrf.blocktime",
			Usage: "Simulated block time; requests are answered after confirmations x blocktime",
		},
	}
}
