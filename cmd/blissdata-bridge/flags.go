package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/udaisingh93/bluesky-blissdata/config"
)

// CLIConfig holds command-line configuration. Every flag falls back to an
// environment variable, and only explicitly provided values override the
// config file.
type CLIConfig struct {
	ConfigPath   string
	Store        string
	NATSURL      string
	Subject      string
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
	MetricsPort  int
	LogLevel     string
	LogFormat    string
	Verbose      bool
	VeryVerbose  bool
	ShowVersion  bool
	Validate     bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("BLISSDATA_CONFIG", ""),
		"Path to YAML configuration file (env: BLISSDATA_CONFIG)")

	flag.StringVar(&cfg.Store, "store",
		getEnv("BLISSDATA_STORE", ""),
		"Store backend: nats or influx (env: BLISSDATA_STORE)")

	flag.StringVar(&cfg.NATSURL, "nats-url",
		getEnv("BLISSDATA_NATS_URL", ""),
		"NATS server URL (env: BLISSDATA_NATS_URL)")

	flag.StringVar(&cfg.Subject, "subject",
		getEnv("BLISSDATA_SUBJECT", ""),
		"Subject documents arrive on (env: BLISSDATA_SUBJECT)")

	flag.StringVar(&cfg.InfluxURL, "influx-url",
		getEnv("BLISSDATA_INFLUX_URL", ""),
		"InfluxDB server URL (env: BLISSDATA_INFLUX_URL)")

	flag.StringVar(&cfg.InfluxToken, "influx-token",
		getEnv("BLISSDATA_INFLUX_TOKEN", ""),
		"InfluxDB API token (env: BLISSDATA_INFLUX_TOKEN)")

	flag.StringVar(&cfg.InfluxOrg, "influx-org",
		getEnv("BLISSDATA_INFLUX_ORG", ""),
		"InfluxDB organization (env: BLISSDATA_INFLUX_ORG)")

	flag.StringVar(&cfg.InfluxBucket, "influx-bucket",
		getEnv("BLISSDATA_INFLUX_BUCKET", ""),
		"InfluxDB bucket (env: BLISSDATA_INFLUX_BUCKET)")

	flag.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("BLISSDATA_METRICS_PORT", -1),
		"Metrics server port, 0 disables the endpoint (env: BLISSDATA_METRICS_PORT)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("BLISSDATA_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (env: BLISSDATA_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("BLISSDATA_LOG_FORMAT", ""),
		"Log format: text, json (env: BLISSDATA_LOG_FORMAT)")

	flag.BoolVar(&cfg.Verbose, "v", false, "Log at info level")
	flag.BoolVar(&cfg.VeryVerbose, "vv", false, "Log at debug level")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - republishes bluesky scan documents into a time-series store\n\n", appName)
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\nFlags:\n", appName)
		flag.PrintDefaults()
	}

	flag.Parse()
	return cfg
}

// applyOverrides layers explicitly provided CLI/env values over the loaded
// configuration.
func applyOverrides(cfg *config.Config, cli *CLIConfig) {
	if cli.Store != "" {
		cfg.Store = cli.Store
	}
	if cli.NATSURL != "" {
		cfg.NATS.URL = cli.NATSURL
	}
	if cli.Subject != "" {
		cfg.Bridge.Subject = cli.Subject
	}
	if cli.InfluxURL != "" {
		cfg.Influx.URL = cli.InfluxURL
	}
	if cli.InfluxToken != "" {
		cfg.Influx.Token = cli.InfluxToken
	}
	if cli.InfluxOrg != "" {
		cfg.Influx.Org = cli.InfluxOrg
	}
	if cli.InfluxBucket != "" {
		cfg.Influx.Bucket = cli.InfluxBucket
	}
	switch {
	case cli.MetricsPort == 0:
		cfg.Metrics.Enabled = false
	case cli.MetricsPort > 0:
		cfg.Metrics.Port = cli.MetricsPort
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}
	// Verbosity shorthands beat the configured level but lose to an
	// explicit -log-level.
	if cli.LogLevel == "" {
		if cli.VeryVerbose {
			cfg.Logging.Level = "debug"
		} else if cli.Verbose {
			cfg.Logging.Level = "info"
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
