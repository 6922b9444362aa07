package observability

import (
	"testing"

	"github.com/smallbiznis/memberbill/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{Environment: "production", AppVersion: "1.2.0"})

	require.Equal(t, "memberbill", cfg.ServiceName)
	require.Equal(t, "production", cfg.Environment)
	require.Equal(t, "1.2.0", cfg.Version)
	require.Equal(t, "info", cfg.LogLevel)
	require.True(t, cfg.LogSampling)
	require.True(t, cfg.OtelEnabled)
	require.Equal(t, 1.0, cfg.OtelSamplingRatio)
	require.False(t, cfg.Debug())
}

func TestLoadConfigPrefersMemberbillKeys(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("MEMBERBILL_LOG_LEVEL", "DEBUG")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.2")
	t.Setenv("MEMBERBILL_OTEL_SAMPLING_RATIO", "0.5")
	t.Setenv("MEMBERBILL_LOG_SAMPLING", "off")
	t.Setenv("MEMBERBILL_ENV", "Staging")

	cfg := LoadConfig(config.Config{AppName: "gym-billing", Environment: "production"})

	require.Equal(t, "gym-billing", cfg.ServiceName)
	require.Equal(t, "staging", cfg.Environment)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 0.5, cfg.OtelSamplingRatio)
	require.False(t, cfg.LogSampling)
	require.True(t, cfg.Debug())
}

func TestLoadConfigFallsBackOnBadValues(t *testing.T) {
	t.Setenv("OTEL_SAMPLING_RATIO", "1.7")
	t.Setenv("OTEL_ENABLED", "maybe")

	cfg := LoadConfig(config.Config{Environment: "test"})

	require.Equal(t, 1.0, cfg.OtelSamplingRatio)
	require.False(t, cfg.OtelEnabled)
	require.False(t, cfg.LogSampling)
}
