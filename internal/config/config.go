// Package config provides configuration management for the settlement service.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// defaultQuoteTimeout is used when settlement.quote_timeout is unset
	defaultQuoteTimeout = 10 * time.Second
	// defaultMaxConcurrentQuotes bounds the quote prefetch worker pool
	defaultMaxConcurrentQuotes = 4
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Settlement  SettlementConfig  `yaml:"settlement"`
	Storage     StorageConfig     `yaml:"storage"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines market-data API settings.
type BrokerConfig struct {
	Provider    string `yaml:"provider"`
	APIKey      string `yaml:"api_key"`
	APIEndpoint string `yaml:"api_endpoint"`
	Sandbox     bool   `yaml:"sandbox"`
}

// SettlementConfig defines how and when expiration runs happen.
type SettlementConfig struct {
	Timezone            string `yaml:"timezone"` // e.g., "America/New_York"
	Schedule            string `yaml:"schedule"` // cron expression for daemon mode
	QuoteTimeout        string `yaml:"quote_timeout"`
	MaxConcurrentQuotes int    `yaml:"max_concurrent_quotes"`
}

// StorageConfig defines storage settings for account data.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks the configuration for consistency and fills defaults.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Environment.Mode) {
	case "", "paper":
		c.Environment.Mode = "paper"
	case "live":
		c.Environment.Mode = "live"
	default:
		return fmt.Errorf("environment.mode must be paper or live, got %q", c.Environment.Mode)
	}

	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}

	if !c.IsPaperTrading() && c.Broker.APIKey == "" {
		return fmt.Errorf("broker.api_key is required in live mode")
	}

	if c.Settlement.Timezone != "" {
		if _, err := time.LoadLocation(c.Settlement.Timezone); err != nil {
			return fmt.Errorf("settlement.timezone: %w", err)
		}
	}

	if c.Settlement.QuoteTimeout != "" {
		if _, err := time.ParseDuration(c.Settlement.QuoteTimeout); err != nil {
			return fmt.Errorf("settlement.quote_timeout: %w", err)
		}
	}

	if c.Settlement.MaxConcurrentQuotes < 0 {
		return fmt.Errorf("settlement.max_concurrent_quotes must be >= 0, got %d", c.Settlement.MaxConcurrentQuotes)
	}
	if c.Settlement.MaxConcurrentQuotes == 0 {
		c.Settlement.MaxConcurrentQuotes = defaultMaxConcurrentQuotes
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "data/account.json"
	}

	return nil
}

// IsPaperTrading returns true when running against synthetic data.
func (c *Config) IsPaperTrading() bool {
	return strings.EqualFold(c.Environment.Mode, "paper")
}

// QuoteTimeoutDuration returns the parsed quote timeout, or the default.
func (c *Config) QuoteTimeoutDuration() time.Duration {
	if c.Settlement.QuoteTimeout == "" {
		return defaultQuoteTimeout
	}
	d, err := time.ParseDuration(c.Settlement.QuoteTimeout)
	if err != nil || d <= 0 {
		return defaultQuoteTimeout
	}
	return d
}

// Location returns the configured timezone, defaulting to UTC.
func (c *Config) Location() *time.Location {
	if c.Settlement.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Settlement.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
