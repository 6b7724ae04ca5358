package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full exporter configuration. All fields have working
// defaults so the exporter can start without a config file.
type Config struct {
	Server struct {
		Host    string        `yaml:"host"`
		Port    int           `yaml:"port"`
		Path    string        `yaml:"path"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"server"`

	Collector struct {
		// Interval between collection cycles.
		Interval time.Duration `yaml:"interval"`
		// CommandTimeout bounds each collector's work within a cycle.
		CommandTimeout time.Duration `yaml:"command_timeout"`
	} `yaml:"collector"`

	Features struct {
		// ProbeTimeout bounds each capability probe at startup.
		ProbeTimeout time.Duration `yaml:"probe_timeout"`
		// Overrides forces a capability on or off, bypassing its probe.
		// Keys are capability names, e.g. "gpu-nvidia": false.
		Overrides map[string]bool `yaml:"overrides"`
	} `yaml:"features"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file. A missing file is not
// an error; defaults apply.
func LoadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Run on defaults.
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	config.setDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// ListenAddr returns the host:port the HTTP server should bind.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 9101
	}
	if c.Server.Path == "" {
		c.Server.Path = "/metrics"
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = 30 * time.Second
	}

	if c.Collector.Interval == 0 {
		c.Collector.Interval = 15 * time.Second
	}
	if c.Collector.CommandTimeout == 0 {
		c.Collector.CommandTimeout = 5 * time.Second
	}

	if c.Features.ProbeTimeout == 0 {
		c.Features.ProbeTimeout = 2 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}

	if c.Collector.Interval < time.Second {
		return fmt.Errorf("collection interval %v too short, minimum 1s", c.Collector.Interval)
	}

	if c.Collector.CommandTimeout >= c.Collector.Interval {
		return fmt.Errorf("command timeout %v must be shorter than the collection interval %v",
			c.Collector.CommandTimeout, c.Collector.Interval)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}

	return nil
}
