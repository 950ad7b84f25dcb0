package launcher

// Defaults bundles the baseline configuration values the launcher uses
// before config files and flags override them.

type Defaults struct {
	Node    NodeDefaults
	RPC     RPCDefaults
	Metrics MetricsDefaults
	Keeper  KeeperDefaults
	VRF     VRFDefaults
	Logging LoggingDefaults
}

// NodeDefaults captures top-level node settings (datadir, identity, network).
type NodeDefaults struct {
	DataDir string //	Directory holding lottery.db (snapshot + event log). Empty keeps the node in memory only.
	Name    string //	Human-readable node identity used in logs.
	Network string //	Network preset the lottery is deployed on; selects fee, gas lane, interval and coordinator.
}

// RPCDefaults captures HTTP/WS options.
type RPCDefaults struct {
	EnableHTTP bool   //	Toggle for the JSON-RPC HTTP server serving the lottery, bank and vrf namespaces.
	HTTPAddr   string //	IP/interface the HTTP server binds to (127.0.0.1 for local-only).
	HTTPPort   int    //	TCP port clients connect to for HTTP RPC; 18545 avoids colliding with a local dev chain on 8545.

	EnableWS bool   //	Toggle for the JSON-RPC WebSocket server; required for lottery_subscribe over the network.
	WSAddr   string //	IP/interface the WebSocket server binds to.
	WSPort   int    //	TCP port clients connect to for WebSocket RPC.
}

type MetricsDefaults struct {
	Enable   bool   //	Toggle for the Prometheus endpoint (/metrics).
	HTTPAddr string //	IP/interface the metrics server binds to.
	HTTPPort int    //	TCP port of the metrics server.
}

// KeeperDefaults configure the in-process upkeep trigger.
type KeeperDefaults struct {
	Enabled      bool   //	Whether the node polls checkUpkeep itself. Disable when an external keeper network drives settlement.
	PollInterval string //	How often checkUpkeep is evaluated, as a duration string.
}

// VRFDefaults configure the in-process oracle of development networks.
type VRFDefaults struct {
	AutoFulfill bool   //	Whether mock requests are answered automatically.
	BlockTime   string //	Simulated block time; a request waits confirmations x BlockTime.
}

// LoggingDefaults controls log verbosity/format.
type LoggingDefaults struct {
	Verbosity int    //	Log level numeric (0=fatal, 1=error, 2=warn, 3=info, 4=debug, 5=trace).
	Format    string //	Log output format (text vs json).
	Color     bool   //	Whether to use ANSI color codes in logs (helpful on terminals, best disabled when piping to files).
}

// DefaultConfig returns a fully populated Defaults instance.

func DefaultConfig() Defaults {
	return Defaults{
		Node: NodeDefaults{
			DataDir: "~/.lottery",
			Name:    "go-lottery",
			Network: "hardhat",
		},
		RPC: RPCDefaults{
			EnableHTTP: true,
			HTTPAddr:   "127.0.0.1",
			HTTPPort:   18545,
			EnableWS:   false,
			WSAddr:     "127.0.0.1",
			WSPort:     18546,
		},
		Metrics: MetricsDefaults{
			Enable:   false,
			HTTPAddr: "127.0.0.1",
			HTTPPort: 6060,
		},
		Keeper: KeeperDefaults{
			Enabled:      true,
			PollInterval: "1s",
		},
		VRF: VRFDefaults{
			AutoFulfill: true,
			BlockTime:   "1s",
		},
		Logging: LoggingDefaults{
			Verbosity: 3,
			Format:    "text",
			Color:     true,
		},
	}
}
