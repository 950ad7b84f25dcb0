package integration

import (
	"fmt"
	"time"
)

// Presets bundle the runtime knobs that differ between a throwaway
// development node and one that settles real rounds: how often the keeper
// polls, how fast the in-process oracle answers, and whether state and
// metrics are kept.
//
// Usage:
//
//	cfg := integration.DefaultConfig()
//	integration.ApplyPreset(&cfg, integration.DevPreset())

// PresetConfig captures the tunable parameters that vary across preset
// profiles. Network choice and listen addresses are left out on purpose:
// presets are about pacing and observability.
type PresetConfig struct {
	Name               string        // identifier used by --preset and config dumps
	KeeperPollInterval time.Duration // how often the keeper evaluates checkUpkeep
	ResponderBlockTime time.Duration // simulated block time of the in-process oracle
	AutoFulfill        bool          // whether the mock oracle answers by itself
	Persist            bool          // whether snapshots and events are written to disk
	EnableMetrics      bool          // whether the Prometheus endpoint is exposed
}

// DefaultPreset is a balanced profile for a local node.
func DefaultPreset() PresetConfig {
	return PresetConfig{
		Name:               "default",
		KeeperPollInterval: time.Second,
		ResponderBlockTime: time.Second,
		AutoFulfill:        true,
		Persist:            true,
		EnableMetrics:      false,
	}
}

// DevPreset settles rounds as fast as possible and keeps nothing on disk.
//
// Use cases:
//   - Local development against the mock coordinator
//   - CI runs that drive full rounds through the RPC surface
func DevPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "dev"
	cfg.KeeperPollInterval = 200 * time.Millisecond
	cfg.ResponderBlockTime = 100 * time.Millisecond
	cfg.Persist = false
	return cfg
}

// StagingPreset mirrors a public test network: blocks arrive at test-net
// pace, state survives restarts and metrics are on.
func StagingPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "staging"
	cfg.KeeperPollInterval = 5 * time.Second
	cfg.ResponderBlockTime = 15 * time.Second
	cfg.EnableMetrics = true
	return cfg
}

// GetPresetByName looks up a preset by its string identifier.
func GetPresetByName(name string) (PresetConfig, error) {
	switch name {
	case "dev":
		return DevPreset(), nil
	case "staging":
		return StagingPreset(), nil
	case "default":
		return DefaultPreset(), nil
	default:
		return PresetConfig{}, fmt.Errorf("unknown preset: %q (valid: dev, staging, default)", name)
	}
}

// ApplyPreset merges a preset into a node config. Durations are only applied
// when set; booleans always are.
func ApplyPreset(target *Config, preset PresetConfig) {
	if preset.KeeperPollInterval > 0 {
		target.Keeper.PollInterval = preset.KeeperPollInterval
	}
	if preset.ResponderBlockTime > 0 {
		target.VRF.BlockTime = preset.ResponderBlockTime
	}
	target.VRF.AutoFulfill = preset.AutoFulfill
	target.Metrics.Enabled = preset.EnableMetrics
	if !preset.Persist {
		target.DataDir = ""
	}
}
