// Package config defines the bridge configuration and its YAML file loader.
// Settings resolve in precedence order: command-line flags, then environment
// variables, then the config file, then built-in defaults. The flag and
// environment layers live in the command package; this package owns the file
// format, defaults, and validation.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/udaisingh93/bluesky-blissdata/blissdata/influxstore"
	"github.com/udaisingh93/bluesky-blissdata/errors"
)

// Store backend names accepted by Config.Store
const (
	StoreNATS   = "nats"
	StoreInflux = "influx"
)

// Config is the complete bridge configuration
type Config struct {
	// Store selects the backend the bridge publishes into
	Store string `yaml:"store"`

	NATS    NATSConfig         `yaml:"nats"`
	Influx  influxstore.Config `yaml:"influx"`
	Bridge  BridgeConfig       `yaml:"bridge"`
	Metrics MetricsConfig      `yaml:"metrics"`
	Logging LoggingConfig      `yaml:"logging"`
}

// NATSConfig holds the NATS connection settings. The same connection serves
// document intake and, when the NATS store is selected, scan publication.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	ClientName    string        `yaml:"client_name"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	Token         string        `yaml:"token"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	Timeout       time.Duration `yaml:"timeout"`
}

// BridgeConfig holds the document intake settings
type BridgeConfig struct {
	// Subject is the NATS subject documents arrive on; the last token
	// names the document kind
	Subject string `yaml:"subject"`

	// InfoBucket is the key-value bucket for scan info records when the
	// NATS store is selected
	InfoBucket string `yaml:"info_bucket"`

	// StreamPrefix prefixes per-scan JetStream stream names
	StreamPrefix string `yaml:"stream_prefix"`
}

// MetricsConfig holds the metrics endpoint settings
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LoggingConfig holds the log output settings
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
	// Format is "text" or "json"
	Format string `yaml:"format"`
}

// Default returns the configuration the bridge runs with when nothing is
// overridden.
func Default() *Config {
	return &Config{
		Store: StoreNATS,
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			ClientName:    "blissdata-bridge",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			Timeout:       5 * time.Second,
		},
		Bridge: BridgeConfig{
			Subject:      "bluesky.documents.>",
			InfoBucket:   "scan-info",
			StreamPrefix: "SCAN",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults untouched.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "read config file")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "parse config file")
	}
	return cfg, nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	switch c.Store {
	case StoreNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("%w: nats.url", errors.ErrMissingConfig)
		}
	case StoreInflux:
		if err := c.Influx.Validate(); err != nil {
			return err
		}
		// Document intake still rides on NATS regardless of the store.
		if c.NATS.URL == "" {
			return fmt.Errorf("%w: nats.url", errors.ErrMissingConfig)
		}
	default:
		return fmt.Errorf("%w: store must be %q or %q, got %q",
			errors.ErrInvalidConfig, StoreNATS, StoreInflux, c.Store)
	}

	if c.Bridge.Subject == "" {
		return fmt.Errorf("%w: bridge.subject", errors.ErrMissingConfig)
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("%w: metrics.port %d", errors.ErrInvalidConfig, c.Metrics.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level %q", errors.ErrInvalidConfig, c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: logging.format %q", errors.ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}
