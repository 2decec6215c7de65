package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/gaia/host"
)

// Config is the service configuration file. Flags override file values;
// missing fields fall back to defaults.
type Config struct {
	Addr     string `yaml:"addr"`
	LogLevel string `yaml:"log_level"`

	EventsDB           string `yaml:"events_db"`
	PlansDB            string `yaml:"plans_db"`
	EventRetentionDays int    `yaml:"event_retention_days"`

	// APIKeyHashes are bcrypt hashes of accepted bearer keys. Empty
	// disables auth.
	APIKeyHashes []string `yaml:"api_key_hashes"`

	// RateLimit caps requests per IP per minute. 0 disables.
	RateLimit int `yaml:"rate_limit"`

	MCP MCPConfig `yaml:"mcp"`

	Host host.Config `yaml:"host"`
}

// MCPConfig selects the optional MCP transport.
type MCPConfig struct {
	// Transport is "stdio", "quic", or empty for HTTP only.
	Transport string `yaml:"transport"`
	QUICAddr  string `yaml:"quic_addr"`
	TLSCert   string `yaml:"tls_cert"`
	TLSKey    string `yaml:"tls_key"`
}

// LoadFile reads a YAML config. A missing path returns zero config so the
// binary runs on defaults alone.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		cfg.applyDefaults()
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8090"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.EventsDB == "" {
		c.EventsDB = "db/events.db"
	}
	if c.PlansDB == "" {
		c.PlansDB = "db/plans.db"
	}
	if c.MCP.QUICAddr == "" {
		c.MCP.QUICAddr = ":9444"
	}
}
