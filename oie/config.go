package oie

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all server configuration.
type Config struct {
	RoutesDBPath string        `yaml:"routes_db_path"`
	EventsDBPath string        `yaml:"events_db_path"`
	Dataset      DatasetConfig `yaml:"dataset"`
	Fetch        FetchConfig   `yaml:"fetch"`
}

// DatasetConfig controls the in-memory dataset cache.
type DatasetConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// FetchConfig controls upstream connector fetching.
type FetchConfig struct {
	PageSize      int           `yaml:"page_size"`
	MaxPages      int           `yaml:"max_pages"`
	Timeout       time.Duration `yaml:"timeout"`
	WatchInterval time.Duration `yaml:"watch_interval"`
}

func (c *Config) defaults() {
	if c.RoutesDBPath == "" {
		c.RoutesDBPath = "routes.db"
	}
	if c.EventsDBPath == "" {
		c.EventsDBPath = "events.db"
	}
	if c.Dataset.TTL <= 0 {
		c.Dataset.TTL = 30 * time.Minute
	}
	if c.Dataset.SweepInterval <= 0 {
		c.Dataset.SweepInterval = 5 * time.Minute
	}
	if c.Fetch.PageSize <= 0 {
		c.Fetch.PageSize = 200
	}
	if c.Fetch.MaxPages <= 0 {
		c.Fetch.MaxPages = 50
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.WatchInterval <= 0 {
		c.Fetch.WatchInterval = 200 * time.Millisecond
	}
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

// LoadConfigFile reads a YAML config file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.defaults()
	return cfg, nil
}
