package integration

import (
	"testing"
	"time"
)

// These tests pin the preset profiles: each one is internally consistent,
// overrides the defaults it claims to, and merges into a node config without
// touching unrelated fields.

// TestDefaultPreset_hasReasonableDefaults acts as a regression guard on the
// baseline profile.
func TestDefaultPreset_hasReasonableDefaults(t *testing.T) {
	cfg := DefaultPreset()

	if cfg.Name != "default" {
		t.Fatalf("Name = %q, want 'default'", cfg.Name)
	}

	// The keeper must poll well within a 30s round.
	if cfg.KeeperPollInterval <= 0 || cfg.KeeperPollInterval > 10*time.Second {
		t.Fatalf("KeeperPollInterval = %v, want between 0 and 10s", cfg.KeeperPollInterval)
	}
	if cfg.ResponderBlockTime <= 0 {
		t.Fatalf("ResponderBlockTime = %v, want > 0", cfg.ResponderBlockTime)
	}

	if !cfg.AutoFulfill {
		t.Fatal("AutoFulfill should be true by default so rounds settle on development chains")
	}
	if !cfg.Persist {
		t.Fatal("Persist should be true by default")
	}
	if cfg.EnableMetrics {
		t.Fatal("EnableMetrics should be false by default")
	}
}

// TestDevPreset_overridesDefaults verifies the dev profile is faster than the
// default and keeps nothing on disk.
func TestDevPreset_overridesDefaults(t *testing.T) {
	defaultCfg := DefaultPreset()
	devCfg := DevPreset()

	if devCfg.Name != "dev" {
		t.Fatalf("Name = %q, want 'dev'", devCfg.Name)
	}
	if devCfg.KeeperPollInterval >= defaultCfg.KeeperPollInterval {
		t.Fatalf("dev KeeperPollInterval (%v) should be shorter than default (%v)", devCfg.KeeperPollInterval, defaultCfg.KeeperPollInterval)
	}
	if devCfg.ResponderBlockTime >= defaultCfg.ResponderBlockTime {
		t.Fatalf("dev ResponderBlockTime (%v) should be shorter than default (%v)", devCfg.ResponderBlockTime, defaultCfg.ResponderBlockTime)
	}
	if devCfg.Persist {
		t.Fatal("Persist should be false for dev preset")
	}
}

// TestStagingPreset_overridesDefaults verifies the staging profile paces
// like a public test network and exposes metrics.
func TestStagingPreset_overridesDefaults(t *testing.T) {
	defaultCfg := DefaultPreset()
	stagingCfg := StagingPreset()

	if stagingCfg.Name != "staging" {
		t.Fatalf("Name = %q, want 'staging'", stagingCfg.Name)
	}
	if stagingCfg.ResponderBlockTime <= defaultCfg.ResponderBlockTime {
		t.Fatalf("staging ResponderBlockTime (%v) should be longer than default (%v)", stagingCfg.ResponderBlockTime, defaultCfg.ResponderBlockTime)
	}
	if !stagingCfg.EnableMetrics {
		t.Fatal("EnableMetrics should be true for staging preset")
	}
	if !stagingCfg.Persist {
		t.Fatal("Persist should be true for staging preset")
	}
}

// TestGetPresetByName_validNames verifies every documented name resolves.
func TestGetPresetByName_validNames(t *testing.T) {
	tests := []struct {
		name     string
		wantName string
	}{
		{"default", "default"},
		{"dev", "dev"},
		{"staging", "staging"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			preset, err := GetPresetByName(test.name)
			if err != nil {
				t.Fatalf("GetPresetByName(%q) error = %v", test.name, err)
			}
			if preset.Name != test.wantName {
				t.Fatalf("preset.Name = %q, want %q", preset.Name, test.wantName)
			}
		})
	}
}

// TestGetPresetByName_invalidName verifies unknown names are rejected.
func TestGetPresetByName_invalidName(t *testing.T) {
	for _, name := range []string{"", "Dev", "turbo"} {
		if _, err := GetPresetByName(name); err == nil {
			t.Fatalf("GetPresetByName(%q) should fail", name)
		}
	}
}

// TestApplyPreset_mergesIntoConfig verifies ApplyPreset only touches the
// fields a preset owns.
func TestApplyPreset_mergesIntoConfig(t *testing.T) {
	tests := []struct {
		name   string
		preset PresetConfig
		want   func(t *testing.T, cfg Config)
	}{
		{
			name:   "dev drops the data dir",
			preset: DevPreset(),
			want: func(t *testing.T, cfg Config) {
				if cfg.DataDir != "" {
					t.Fatalf("DataDir = %q, want empty", cfg.DataDir)
				}
				if cfg.Keeper.PollInterval != 200*time.Millisecond {
					t.Fatalf("Keeper.PollInterval = %v, want 200ms", cfg.Keeper.PollInterval)
				}
				if cfg.VRF.BlockTime != 100*time.Millisecond {
					t.Fatalf("VRF.BlockTime = %v, want 100ms", cfg.VRF.BlockTime)
				}
			},
		},
		{
			name:   "staging keeps the data dir and enables metrics",
			preset: StagingPreset(),
			want: func(t *testing.T, cfg Config) {
				if cfg.DataDir != "/var/lib/lottery" {
					t.Fatalf("DataDir = %q, want /var/lib/lottery", cfg.DataDir)
				}
				if !cfg.Metrics.Enabled {
					t.Fatal("Metrics.Enabled should be true")
				}
			},
		},
		{
			name:   "zero durations leave the config alone",
			preset: PresetConfig{Name: "partial", AutoFulfill: false, Persist: true},
			want: func(t *testing.T, cfg Config) {
				if cfg.Keeper.PollInterval != 7*time.Second {
					t.Fatalf("Keeper.PollInterval = %v, want 7s", cfg.Keeper.PollInterval)
				}
				if cfg.VRF.AutoFulfill {
					t.Fatal("VRF.AutoFulfill should follow the preset")
				}
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.DataDir = "/var/lib/lottery"
			cfg.Keeper.PollInterval = 7 * time.Second
			cfg.RPC.HTTPPort = 9999

			ApplyPreset(&cfg, test.preset)
			test.want(t, cfg)

			if cfg.RPC.HTTPPort != 9999 || cfg.Network != "hardhat" {
				t.Fatalf("preset touched unrelated fields: %+v", cfg.RPC)
			}
		})
	}
}
