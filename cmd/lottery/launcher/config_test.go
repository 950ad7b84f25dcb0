package launcher

import (
	"bytes"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-lottery/deploy"
	"github.com/rony4d/go-lottery/flags"
	"github.com/rony4d/go-lottery/integration"
)

// helper to run MakeAllConfigs with a synthetic CLI context.
func runConfigFromArgs(t *testing.T, args []string) (Config, error) {
	t.Helper()

	app := cli.NewApp()
	app.HideHelp = true
	app.HideVersion = true
	app.Flags = flags.AllFlags()

	var (
		got    Config
		cfgErr error
	)
	app.Action = func(c *cli.Context) error {
		got, cfgErr = MakeAllConfigs(c)
		return nil
	}

	if err := app.Run(append([]string{"lottery"}, args...)); err != nil {
		t.Fatalf("app.Run failed: %v", err)
	}
	return got, cfgErr
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lottery.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// TestMakeAllConfigs_flagOverrides verifies that every flag the launcher
// declares lands in the matching field of the merged Config.
func TestMakeAllConfigs_flagOverrides(t *testing.T) {
	dataDir := t.TempDir()
	player := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	tests := []struct {
		name string
		args []string
		want func(t *testing.T, cfg Config)
	}{
		{
			name: "defaults",
			args: nil,
			want: func(t *testing.T, cfg Config) {
				require.Equal(t, "hardhat", cfg.Node.Network)
				require.Equal(t, "go-lottery", cfg.Node.Name)
				require.Equal(t, filepath.Join(GuessHomeDir(), ".lottery"), cfg.Node.DataDir)
				require.True(t, cfg.Node.RPC.HTTPEnabled)
				require.Equal(t, 18545, cfg.Node.RPC.HTTPPort)
				require.False(t, cfg.Node.RPC.EnableWS)
				require.True(t, cfg.Keeper.Enabled)
				require.Equal(t, "1s", cfg.Keeper.PollInterval)
				require.True(t, cfg.VRF.AutoFulfill)
				require.Equal(t, integration.DefaultLotteryAddress.Hex(), cfg.Lottery.Address)
				require.Empty(t, cfg.Node.Preset)
			},
		},
		{
			name: "datadir and identity",
			args: []string{"--datadir", dataDir, "--identity", "ugo-node"},
			want: func(t *testing.T, cfg Config) {
				require.Equal(t, dataDir, cfg.Node.DataDir)
				require.Equal(t, "ugo-node", cfg.Node.Name)
			},
		},
		{
			name: "rpc endpoints",
			args: []string{"--ws", "--ws.port", "9546", "--http.addr", "0.0.0.0", "--http.port", "9545"},
			want: func(t *testing.T, cfg Config) {
				require.True(t, cfg.Node.RPC.EnableWS)
				require.Equal(t, 9546, cfg.Node.RPC.WSPort)
				require.Equal(t, "0.0.0.0", cfg.Node.RPC.HTTPAddr)
				require.Equal(t, 9545, cfg.Node.RPC.HTTPPort)
			},
		},
		{
			name: "logging and metrics",
			args: []string{"--log.format", "json", "--log.verbosity", "5", "--metrics", "--metrics.port", "7070"},
			want: func(t *testing.T, cfg Config) {
				require.Equal(t, "json", cfg.Node.Logging.Format)
				require.Equal(t, 5, cfg.Node.Logging.Verbosity)
				require.True(t, cfg.Metrics.Enabled)
				require.Equal(t, 7070, cfg.Metrics.HTTPPort)
			},
		},
		{
			name: "keeper and vrf switches",
			args: []string{"--keeper.disable", "--keeper.interval", "3s", "--vrf.manual", "--vrf.blocktime", "250ms"},
			want: func(t *testing.T, cfg Config) {
				require.False(t, cfg.Keeper.Enabled)
				require.Equal(t, "3s", cfg.Keeper.PollInterval)
				require.False(t, cfg.VRF.AutoFulfill)
				require.Equal(t, "250ms", cfg.VRF.BlockTime)
			},
		},
		{
			name: "lottery settings",
			args: []string{
				"--network", "rinkeby",
				"--lottery.interval", "45s",
				"--lottery.requesttimeout", "2m",
				"--alloc", player.Hex() + "=1000000000000000000",
			},
			want: func(t *testing.T, cfg Config) {
				require.Equal(t, "rinkeby", cfg.Node.Network)
				require.Equal(t, "45s", cfg.Lottery.Interval)
				require.Equal(t, "2m0s", cfg.Lottery.RequestTimeout)
				require.Equal(t, map[string]string{player.Hex(): "1000000000000000000"}, cfg.Lottery.Alloc)
			},
		},
		{
			name: "dev preset",
			args: []string{"--preset", "dev"},
			want: func(t *testing.T, cfg Config) {
				require.Equal(t, "dev", cfg.Node.Preset)
				require.Equal(t, "200ms", cfg.Keeper.PollInterval)
				require.Equal(t, "100ms", cfg.VRF.BlockTime)
				require.Empty(t, cfg.Node.DataDir, "dev preset keeps state in memory")
			},
		},
		{
			name: "flags beat the preset",
			args: []string{"--preset", "dev", "--datadir", dataDir, "--keeper.interval", "2s"},
			want: func(t *testing.T, cfg Config) {
				require.Equal(t, dataDir, cfg.Node.DataDir)
				require.Equal(t, "2s", cfg.Keeper.PollInterval)
				require.Equal(t, "100ms", cfg.VRF.BlockTime)
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg, err := runConfigFromArgs(t, test.args)
			require.NoError(t, err)
			test.want(t, cfg)
			t.Logf("args = %#v", test.args)
		})
	}
}

func TestMakeAllConfigs_configFile(t *testing.T) {
	player := common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")

	tests := []struct {
		name string
		file string
		args []string
		want func(t *testing.T, cfg Config, err error)
	}{
		{
			name: "file values",
			file: `
[Node]
Name = "from-file"
Network = "localhost"

[Keeper]
PollInterval = "3s"

[Lottery]
Interval = "1m0s"

[Lottery.Alloc]
"` + player.Hex() + `" = "500"
`,
			want: func(t *testing.T, cfg Config, err error) {
				require.NoError(t, err)
				require.Equal(t, "from-file", cfg.Node.Name)
				require.Equal(t, "localhost", cfg.Node.Network)
				require.Equal(t, "3s", cfg.Keeper.PollInterval)
				require.Equal(t, "1m0s", cfg.Lottery.Interval)
				require.Equal(t, "500", cfg.Lottery.Alloc[player.Hex()])
				// Untouched sections keep their defaults.
				require.True(t, cfg.VRF.AutoFulfill)
			},
		},
		{
			name: "flags beat the file",
			file: "[Node]\nName = \"from-file\"\n",
			args: []string{"--identity", "from-flag"},
			want: func(t *testing.T, cfg Config, err error) {
				require.NoError(t, err)
				require.Equal(t, "from-flag", cfg.Node.Name)
			},
		},
		{
			name: "file beats its own preset",
			file: "[Node]\nPreset = \"dev\"\n\n[Keeper]\nPollInterval = \"3s\"\n",
			want: func(t *testing.T, cfg Config, err error) {
				require.NoError(t, err)
				require.Equal(t, "dev", cfg.Node.Preset)
				require.Equal(t, "3s", cfg.Keeper.PollInterval)
				require.Equal(t, "100ms", cfg.VRF.BlockTime)
			},
		},
		{
			name: "unknown key",
			file: "[Node]\nColour = \"blue\"\n",
			want: func(t *testing.T, cfg Config, err error) {
				require.Error(t, err)
				require.Contains(t, err.Error(), "Node.Colour")
			},
		},
		{
			name: "unknown preset",
			file: "[Node]\nPreset = \"turbo\"\n",
			want: func(t *testing.T, cfg Config, err error) {
				require.Error(t, err)
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := writeConfigFile(t, test.file)
			cfg, err := runConfigFromArgs(t, append([]string{"--config", path}, test.args...))
			test.want(t, cfg, err)
		})
	}
}

func TestConfig_NodeConfig(t *testing.T) {
	player := common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")

	tests := []struct {
		name   string
		modify func(cfg *Config)
		want   func(t *testing.T, out integration.Config, err error)
	}{
		{
			name:   "defaults",
			modify: func(cfg *Config) {},
			want: func(t *testing.T, out integration.Config, err error) {
				require.NoError(t, err)
				require.Equal(t, "hardhat", out.Network)
				require.Equal(t, integration.DefaultLotteryAddress, out.LotteryAddress)
				require.Equal(t, time.Second, out.Keeper.PollInterval)
				require.Equal(t, time.Second, out.VRF.BlockTime)
				require.Zero(t, out.Interval)
				require.Zero(t, out.RequestTimeout)
				require.Equal(t, "127.0.0.1:6060", out.Metrics.Addr)
				require.Nil(t, out.Alloc)
			},
		},
		{
			name: "durations and alloc",
			modify: func(cfg *Config) {
				cfg.Lottery.Interval = "45s"
				cfg.Lottery.RequestTimeout = "2m"
				cfg.Lottery.Alloc = map[string]string{player.Hex(): "42"}
			},
			want: func(t *testing.T, out integration.Config, err error) {
				require.NoError(t, err)
				require.Equal(t, 45*time.Second, out.Interval)
				require.Equal(t, 2*time.Minute, out.RequestTimeout)
				require.Equal(t, 0, out.Alloc[player].Cmp(big.NewInt(42)))
			},
		},
		{
			name:   "bad duration",
			modify: func(cfg *Config) { cfg.VRF.BlockTime = "soon" },
			want: func(t *testing.T, out integration.Config, err error) {
				require.Error(t, err)
				require.Contains(t, err.Error(), "vrf block time")
			},
		},
		{
			name:   "bad address",
			modify: func(cfg *Config) { cfg.Lottery.Address = "0x1234" },
			want: func(t *testing.T, out integration.Config, err error) {
				require.Error(t, err)
			},
		},
		{
			name:   "bad alloc amount",
			modify: func(cfg *Config) { cfg.Lottery.Alloc = map[string]string{player.Hex(): "-1"} },
			want: func(t *testing.T, out integration.Config, err error) {
				require.Error(t, err)
			},
		},
		{
			name:   "malformed alloc entry",
			modify: func(cfg *Config) { cfg.Lottery.Alloc = map[string]string{"nonsense": ""} },
			want: func(t *testing.T, out integration.Config, err error) {
				require.Error(t, err)
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := defaultConfig()
			test.modify(&cfg)
			out, err := cfg.NodeConfig(logrus.New())
			test.want(t, out, err)
		})
	}
}

func TestDumpConfig(t *testing.T) {
	app := newApp()
	var buf bytes.Buffer
	app.Writer = &buf

	require.NoError(t, app.Run([]string{"lottery", "--network", "rinkeby", "--keeper.disable", "dumpconfig"}))

	var dumped Config
	_, err := toml.Decode(buf.String(), &dumped)
	require.NoError(t, err)
	require.Equal(t, "rinkeby", dumped.Node.Network)
	require.False(t, dumped.Keeper.Enabled)
	require.Equal(t, "1s", dumped.VRF.BlockTime)
}

func TestPublishCommand(t *testing.T) {
	dir := t.TempDir()
	addr := common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")

	publish := func() error {
		app := newApp()
		app.Writer = new(bytes.Buffer)
		return app.Run([]string{"lottery", "--lottery.address", addr.Hex(), "publish", "--frontend.dir", dir})
	}
	require.NoError(t, publish())
	// Publishing twice does not duplicate the address.
	require.NoError(t, publish())

	book, err := deploy.ReadAddresses(dir)
	require.NoError(t, err)
	require.Equal(t, map[string][]string{"31337": {addr.Hex()}}, book)

	_, err = os.Stat(filepath.Join(dir, deploy.ABIFile))
	require.NoError(t, err)

	require.Error(t, newApp().Run([]string{"lottery", "publish"}), "frontend dir is required")
}
