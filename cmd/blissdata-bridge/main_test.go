package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/udaisingh93/bluesky-blissdata/config"
)

func TestApplyOverrides(t *testing.T) {
	cfg := config.Default()
	cli := &CLIConfig{
		Store:       config.StoreInflux,
		NATSURL:     "nats://other:4222",
		Subject:     "docs.>",
		MetricsPort: 9191,
		LogLevel:    "debug",
	}
	applyOverrides(cfg, cli)

	assert.Equal(t, config.StoreInflux, cfg.Store)
	assert.Equal(t, "nats://other:4222", cfg.NATS.URL)
	assert.Equal(t, "docs.>", cfg.Bridge.Subject)
	assert.Equal(t, 9191, cfg.Metrics.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched fields stay at their defaults.
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestApplyOverridesEmptyIsNoop(t *testing.T) {
	cfg := config.Default()
	// MetricsPort -1 is the parsed default for "flag not given".
	applyOverrides(cfg, &CLIConfig{MetricsPort: -1})
	assert.Equal(t, config.Default(), cfg)
}

func TestApplyOverridesMetricsPortZeroDisables(t *testing.T) {
	cfg := config.Default()
	applyOverrides(cfg, &CLIConfig{MetricsPort: 0})
	assert.False(t, cfg.Metrics.Enabled)
}

func TestApplyOverridesVerbosity(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "warn"
	applyOverrides(cfg, &CLIConfig{VeryVerbose: true, MetricsPort: -1})
	assert.Equal(t, "debug", cfg.Logging.Level)

	cfg = config.Default()
	cfg.Logging.Level = "warn"
	applyOverrides(cfg, &CLIConfig{Verbose: true, MetricsPort: -1})
	assert.Equal(t, "info", cfg.Logging.Level)

	// Explicit log level wins over the shorthands.
	cfg = config.Default()
	applyOverrides(cfg, &CLIConfig{Verbose: true, LogLevel: "error", MetricsPort: -1})
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestApplyOverridesInflux(t *testing.T) {
	cfg := config.Default()
	applyOverrides(cfg, &CLIConfig{
		Store:        config.StoreInflux,
		InfluxURL:    "http://influx:8086",
		InfluxToken:  "tok",
		InfluxOrg:    "beamline",
		InfluxBucket: "scans",
		MetricsPort:  -1,
	})
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "http://influx:8086", cfg.Influx.URL)
	assert.Equal(t, "scans", cfg.Influx.Bucket)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("BLISSDATA_TEST_STR", "value")
	assert.Equal(t, "value", getEnv("BLISSDATA_TEST_STR", "fallback"))
	assert.Equal(t, "fallback", getEnv("BLISSDATA_TEST_ABSENT", "fallback"))

	t.Setenv("BLISSDATA_TEST_INT", "42")
	assert.Equal(t, 42, getEnvInt("BLISSDATA_TEST_INT", 7))
	t.Setenv("BLISSDATA_TEST_INT", "not-a-number")
	assert.Equal(t, 7, getEnvInt("BLISSDATA_TEST_INT", 7))
}

func TestSetupLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		logger := setupLogger(level, "text")
		assert.NotNil(t, logger)
	}
	assert.NotNil(t, setupLogger("info", "json"))
}
