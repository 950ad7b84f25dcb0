// This file maps CLI context and TOML files to the launcher config, and the
// launcher config to the node config.

package launcher

import (
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-lottery/integration"
)

// Config aggregates every subsystem's configuration the launcher needs. It is
// what --config files contain and what dumpconfig prints.
type Config struct {
	Node    NodeConfig
	Lottery LotteryConfig
	Keeper  KeeperConfig
	VRF     VRFConfig
	Metrics MetricsConfig
}

type NodeConfig struct {
	DataDir string
	Name    string
	Network string
	Preset  string
	RPC     RPCConfig
	Logging LoggingConfig
}

type RPCConfig struct {
	HTTPEnabled bool
	HTTPAddr    string
	HTTPPort    int

	EnableWS bool
	WSAddr   string
	WSPort   int
}

type LoggingConfig struct {
	Verbosity int
	Format    string
	Color     bool
	SentryDSN string
}

type LotteryConfig struct {
	Address        string
	Interval       string // duration string, empty keeps the network's interval
	RequestTimeout string // duration string, empty or "0s" disables
	Alloc          map[string]string
}

type KeeperConfig struct {
	Enabled      bool
	PollInterval string
}

type VRFConfig struct {
	AutoFulfill bool
	BlockTime   string
}

type MetricsConfig struct {
	Enabled  bool
	HTTPAddr string
	HTTPPort int
}

// -----------------------------------------------------------------------------
// Default config + builders
// -----------------------------------------------------------------------------

//	Default config function creates a default config object using the DefaultConfig function from defaults.go file in launcher package
//	This keeps this main config file clean and in sync with the defaults.go file

func defaultConfig() Config {
	d := DefaultConfig()
	return Config{
		Node: NodeConfig{
			DataDir: resolvePath(d.Node.DataDir),
			Name:    d.Node.Name,
			Network: d.Node.Network,
			RPC: RPCConfig{
				HTTPEnabled: d.RPC.EnableHTTP,
				HTTPAddr:    d.RPC.HTTPAddr,
				HTTPPort:    d.RPC.HTTPPort,
				EnableWS:    d.RPC.EnableWS,
				WSAddr:      d.RPC.WSAddr,
				WSPort:      d.RPC.WSPort,
			},
			Logging: LoggingConfig{
				Verbosity: d.Logging.Verbosity,
				Format:    d.Logging.Format,
				Color:     d.Logging.Color,
			},
		},
		Lottery: LotteryConfig{
			Address: integration.DefaultLotteryAddress.Hex(),
		},
		Keeper: KeeperConfig{
			Enabled:      d.Keeper.Enabled,
			PollInterval: d.Keeper.PollInterval,
		},
		VRF: VRFConfig{
			AutoFulfill: d.VRF.AutoFulfill,
			BlockTime:   d.VRF.BlockTime,
		},
		Metrics: MetricsConfig{
			Enabled:  d.Metrics.Enable,
			HTTPAddr: d.Metrics.HTTPAddr,
			HTTPPort: d.Metrics.HTTPPort,
		},
	}
}

// MakeAllConfigs merges defaults, the runtime preset, the optional config
// file and CLI overrides into a single config struct, in that order of
// increasing precedence.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	cfg := defaultConfig()

	file := ctx.GlobalString("config")
	if file == "" {
		file = ctx.String("config")
	}
	if file != "" {
		if err := loadConfigFile(file, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", file, err)
		}
	}

	// The preset sits below the file, so when one is chosen the file is
	// applied again on top of it.
	preset := cfg.Node.Preset
	if isSet(ctx, "preset") {
		preset = stringFlag(ctx, "preset")
	}
	if preset != "" {
		p, err := integration.GetPresetByName(preset)
		if err != nil {
			return Config{}, err
		}
		cfg = defaultConfig()
		applyPreset(&cfg, p)
		if file != "" {
			if err := loadConfigFile(file, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to load config file %s: %w", file, err)
			}
		}
		cfg.Node.Preset = preset
	}

	applyCLIOverrides(ctx, &cfg)
	return cfg, nil
}

func applyPreset(cfg *Config, p integration.PresetConfig) {
	cfg.Keeper.PollInterval = p.KeeperPollInterval.String()
	cfg.VRF.BlockTime = p.ResponderBlockTime.String()
	cfg.VRF.AutoFulfill = p.AutoFulfill
	cfg.Metrics.Enabled = p.EnableMetrics
	if !p.Persist {
		cfg.Node.DataDir = ""
	}
}

// NodeConfig converts the launcher config into what integration.NewNode
// takes.
func (c Config) NodeConfig(logger logrus.FieldLogger) (integration.Config, error) {
	out := integration.Config{
		Network: c.Node.Network,
		DataDir: c.Node.DataDir,
		Keeper:  integration.KeeperConfig{Enabled: c.Keeper.Enabled},
		VRF:     integration.VRFConfig{AutoFulfill: c.VRF.AutoFulfill},
		RPC: integration.RPCConfig{
			HTTPEnabled: c.Node.RPC.HTTPEnabled,
			HTTPAddr:    c.Node.RPC.HTTPAddr,
			HTTPPort:    c.Node.RPC.HTTPPort,
			WSEnabled:   c.Node.RPC.EnableWS,
			WSAddr:      c.Node.RPC.WSAddr,
			WSPort:      c.Node.RPC.WSPort,
		},
		Metrics: integration.MetricsConfig{
			Enabled:   c.Metrics.Enabled,
			Addr:      fmt.Sprintf("%s:%d", c.Metrics.HTTPAddr, c.Metrics.HTTPPort),
			Namespace: "lotteryd",
		},
		Logger: logger,
	}

	if c.Lottery.Address != "" {
		if !common.IsHexAddress(c.Lottery.Address) {
			return out, fmt.Errorf("invalid lottery address %q", c.Lottery.Address)
		}
		out.LotteryAddress = common.HexToAddress(c.Lottery.Address)
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"lottery interval", c.Lottery.Interval, &out.Interval},
		{"request timeout", c.Lottery.RequestTimeout, &out.RequestTimeout},
		{"keeper poll interval", c.Keeper.PollInterval, &out.Keeper.PollInterval},
		{"vrf block time", c.VRF.BlockTime, &out.VRF.BlockTime},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return out, fmt.Errorf("invalid %s %q: %w", d.name, d.raw, err)
		}
		*d.dst = v
	}

	alloc, err := parseAlloc(c.Lottery.Alloc)
	if err != nil {
		return out, err
	}
	out.Alloc = alloc
	return out, nil
}

// -----------------------------------------------------------------------------
// Config-file / CLI wiring
// -----------------------------------------------------------------------------

func loadConfigFile(path string, cfg *Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown fields: %s", strings.Join(keys, ", "))
	}
	return nil
}

// dumpConfig writes cfg as TOML.
func dumpConfig(w io.Writer, cfg Config) error {
	return toml.NewEncoder(w).Encode(&cfg)
}

// isSet and the typed getters below look at both the command's own flags and
// the global ones, so subcommands see flags given before the command name.
func isSet(ctx *cli.Context, name string) bool {
	return ctx.IsSet(name) || ctx.GlobalIsSet(name)
}

func stringFlag(ctx *cli.Context, name string) string {
	if ctx.IsSet(name) {
		return ctx.String(name)
	}
	return ctx.GlobalString(name)
}

func intFlag(ctx *cli.Context, name string) int {
	if ctx.IsSet(name) {
		return ctx.Int(name)
	}
	return ctx.GlobalInt(name)
}

func boolFlag(ctx *cli.Context, name string) bool {
	if ctx.IsSet(name) {
		return ctx.Bool(name)
	}
	return ctx.GlobalBool(name)
}

func durationFlag(ctx *cli.Context, name string) time.Duration {
	if ctx.IsSet(name) {
		return ctx.Duration(name)
	}
	return ctx.GlobalDuration(name)
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) {
	if isSet(ctx, "datadir") {
		cfg.Node.DataDir = resolvePath(stringFlag(ctx, "datadir"))
	}
	if isSet(ctx, "identity") {
		cfg.Node.Name = stringFlag(ctx, "identity")
	}
	if isSet(ctx, "network") {
		cfg.Node.Network = stringFlag(ctx, "network")
	}

	if boolFlag(ctx, "http") {
		cfg.Node.RPC.HTTPEnabled = true
	}
	if isSet(ctx, "http.addr") {
		cfg.Node.RPC.HTTPAddr = stringFlag(ctx, "http.addr")
	}
	if isSet(ctx, "http.port") {
		cfg.Node.RPC.HTTPPort = intFlag(ctx, "http.port")
	}
	if boolFlag(ctx, "ws") {
		cfg.Node.RPC.EnableWS = true
	}
	if isSet(ctx, "ws.addr") {
		cfg.Node.RPC.WSAddr = stringFlag(ctx, "ws.addr")
	}
	if isSet(ctx, "ws.port") {
		cfg.Node.RPC.WSPort = intFlag(ctx, "ws.port")
	}

	if isSet(ctx, "log.format") {
		cfg.Node.Logging.Format = stringFlag(ctx, "log.format")
	}
	if isSet(ctx, "log.verbosity") {
		cfg.Node.Logging.Verbosity = intFlag(ctx, "log.verbosity")
	}
	if isSet(ctx, "log.color") {
		cfg.Node.Logging.Color = boolFlag(ctx, "log.color")
	}
	if isSet(ctx, "sentry.dsn") {
		cfg.Node.Logging.SentryDSN = stringFlag(ctx, "sentry.dsn")
	}

	if boolFlag(ctx, "metrics") {
		cfg.Metrics.Enabled = true
	}
	if isSet(ctx, "metrics.addr") {
		cfg.Metrics.HTTPAddr = stringFlag(ctx, "metrics.addr")
	}
	if isSet(ctx, "metrics.port") {
		cfg.Metrics.HTTPPort = intFlag(ctx, "metrics.port")
	}

	if isSet(ctx, "lottery.address") {
		cfg.Lottery.Address = stringFlag(ctx, "lottery.address")
	}
	if isSet(ctx, "lottery.interval") {
		cfg.Lottery.Interval = durationFlag(ctx, "lottery.interval").String()
	}
	if isSet(ctx, "lottery.requesttimeout") {
		cfg.Lottery.RequestTimeout = durationFlag(ctx, "lottery.requesttimeout").String()
	}
	if isSet(ctx, "alloc") {
		if cfg.Lottery.Alloc == nil {
			cfg.Lottery.Alloc = make(map[string]string)
		}
		for _, pair := range splitCSV(stringFlag(ctx, "alloc")) {
			kv := strings.SplitN(pair, "=", 2)
			if len(kv) != 2 {
				// Kept as is; parseAlloc reports it with the offending entry.
				cfg.Lottery.Alloc[pair] = ""
				continue
			}
			cfg.Lottery.Alloc[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}

	if boolFlag(ctx, "keeper.disable") {
		cfg.Keeper.Enabled = false
	}
	if isSet(ctx, "keeper.interval") {
		cfg.Keeper.PollInterval = durationFlag(ctx, "keeper.interval").String()
	}
	if boolFlag(ctx, "vrf.manual") {
		cfg.VRF.AutoFulfill = false
	}
	if isSet(ctx, "vrf.blocktime") {
		cfg.VRF.BlockTime = durationFlag(ctx, "vrf.blocktime").String()
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func parseAlloc(raw map[string]string) (map[common.Address]*big.Int, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	alloc := make(map[common.Address]*big.Int, len(raw))
	for _, k := range keys {
		if !common.IsHexAddress(k) {
			return nil, fmt.Errorf("alloc: invalid address %q", k)
		}
		amount, ok := new(big.Int).SetString(raw[k], 10)
		if !ok || amount.Sign() < 0 {
			return nil, fmt.Errorf("alloc: invalid amount %q for %s", raw[k], k)
		}
		alloc[common.HexToAddress(k)] = amount
	}
	return alloc, nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create datadir %s: %w", dir, err)
	}
	return nil
}

func resolvePath(p string) string {
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, "~") {
		return filepath.Join(GuessHomeDir(), strings.TrimPrefix(p, "~"))
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GuessWorkDir(), p)
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func GuessWorkDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func GuessHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}
