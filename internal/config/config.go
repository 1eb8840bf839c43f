// Package config loads the service configuration: defaults, then YAML
// files, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/syntrixbase/concierge/internal/cluster"
	"github.com/syntrixbase/concierge/internal/gateway"
	"github.com/syntrixbase/concierge/internal/realtime"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Gateway gateway.Config  `yaml:"gateway"`
	Limits  realtime.Limits `yaml:"limits"`
	Cluster cluster.Config  `yaml:"cluster"`
	Logging LoggingConfig   `yaml:"logging"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Gateway: gateway.DefaultConfig(),
		Cluster: cluster.DefaultConfig(),
		Logging: DefaultLoggingConfig(),
	}
}

// Load builds the configuration.
// Order: defaults -> config.yml -> config.local.yml -> env overrides -> Validate.
func Load(dir string) (*Config, error) {
	cfg := Default()

	for _, name := range []string{"config.yml", "config.local.yml"} {
		if err := loadFile(dir+"/"+name, cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()
	cfg.Gateway.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the assembled configuration.
func (c *Config) Validate() error {
	if err := c.Gateway.Validate(); err != nil {
		return err
	}
	if c.Limits.SubscriptionMinterms < 0 {
		return fmt.Errorf("limits.subscription_minterms must not be negative")
	}
	if c.Limits.SubscriptionRooms < 0 {
		return fmt.Errorf("limits.subscription_rooms must not be negative")
	}
	if c.Cluster.Enabled && c.Cluster.URL == "" {
		return fmt.Errorf("cluster.url is required when the cluster is enabled")
	}
	return nil
}

func loadFile(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, skip
		}
		return fmt.Errorf("error reading %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("error parsing %s: %w", filename, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CONCIERGE_GATEWAY_HOST"); v != "" {
		c.Gateway.Host = v
	}
	if v := os.Getenv("CONCIERGE_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Gateway.Port = port
		}
	}
	if v := os.Getenv("CONCIERGE_CLUSTER_ENABLED"); v != "" {
		c.Cluster.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CONCIERGE_CLUSTER_URL"); v != "" {
		c.Cluster.URL = v
	}
	if v := os.Getenv("CONCIERGE_CLUSTER_NODE_ID"); v != "" {
		c.Cluster.NodeID = v
	}
	if v := os.Getenv("CONCIERGE_LIMITS_SUBSCRIPTION_MINTERMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Limits.SubscriptionMinterms = n
		}
	}
	if v := os.Getenv("CONCIERGE_LIMITS_SUBSCRIPTION_ROOMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Limits.SubscriptionRooms = n
		}
	}
	if v := os.Getenv("CONCIERGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}
