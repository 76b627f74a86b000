package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "1h", cfg.Engine.PrimaryTimeframe)
	assert.Equal(t, 200, cfg.Engine.CandleLimit)
	assert.Contains(t, cfg.Engine.Symbols, "BTC/USDT")
	assert.Equal(t, 2.0, cfg.Fusion.DecisionMargin)
	assert.Equal(t, 1.2, cfg.Validation.VolumeFactor)
	assert.Equal(t, 4.0, cfg.Validation.MinScore)
	assert.Equal(t, 0.05, cfg.Risk.MaxPositionFraction)
	assert.Equal(t, "4h", cfg.Lifecycle.TTL)
	assert.Equal(t, 2, cfg.Adaptive.ConfirmationThreshold)
}

func TestLoadRejectsBadCycleInterval(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setDefaults()
	viper.Set("engine.cycle_interval", "not-a-duration")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cycle_interval")
}

func TestLoadRejectsBadPositionFraction(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setDefaults()
	viper.Set("risk.max_position_fraction", 1.5)

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_position_fraction")
}

func TestLoadEnvironmentNormalized(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setDefaults()
	viper.Set("environment", "Production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
}
