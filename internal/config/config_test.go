package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with no config file must fall back to defaults: %v", err)
	}

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "paper", cfg.Execution.Mode)
	assert.False(t, cfg.Execution.LiveConfirm)

	assert.Equal(t, 30, cfg.Detector.DebounceSeconds)
	assert.Equal(t, 0.05, cfg.Detector.MinEdge)
	assert.Equal(t, 10, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 10, cfg.Shard.HeartbeatIntervalSec)
	assert.Equal(t, 3, cfg.Shard.MissThreshold)
	assert.Equal(t, 1000.0, cfg.Risk.InitialBankroll)
	assert.Equal(t, 0.25, cfg.Risk.KellyFraction)
}

func TestLoadReadsEnvOverrides(t *testing.T) {
	t.Setenv("EDGEWATCH_EXECUTION_MODE", "live")
	t.Setenv("EDGEWATCH_SERVER_PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "live", cfg.Execution.Mode)
	assert.Equal(t, "9090", cfg.Server.Port)
}

func TestVenueByNameFallsBackToDetectorDefaults(t *testing.T) {
	cfg := &Config{
		Venues: []VenueConfig{
			{Name: "alpha", FeeBps: 200, MinDepth: 25},
		},
	}
	cfg.Detector.DefaultFeeBps = 100
	cfg.Detector.DefaultMinDepth = 50

	alpha := cfg.VenueByName("alpha")
	assert.Equal(t, 200, alpha.FeeBps)
	assert.Equal(t, 25.0, alpha.MinDepth)

	other := cfg.VenueByName("beta")
	assert.Equal(t, "beta", other.Name)
	assert.Equal(t, 100, other.FeeBps)
	assert.Equal(t, 50.0, other.MinDepth)
}
