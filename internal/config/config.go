// Package config loads the YAML configuration of the widescan binary.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/eigerco/widescan/internal/store"
	"github.com/eigerco/widescan/pkg/db"
	"github.com/eigerco/widescan/pkg/db/badger"
	"github.com/eigerco/widescan/pkg/db/memory"
	"github.com/eigerco/widescan/pkg/db/pebble"
	"github.com/eigerco/widescan/pkg/log"
)

const (
	BackendPebble = "pebble"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Keyspace string       `yaml:"keyspace"`
	Store    StoreConfig  `yaml:"store"`
	Server   ServerConfig `yaml:"server"`
	Log      LogConfig    `yaml:"log"`
	Scan     ScanConfig   `yaml:"scan"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"` // pebble, badger or memory
	Path    string `yaml:"path"`
}

type ServerConfig struct {
	Listen  string `yaml:"listen"`
	Metrics string `yaml:"metrics"` // empty disables the metrics endpoint
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

type ScanConfig struct {
	PageSize int `yaml:"page_size"`
}

func Default() *Config {
	return &Config{
		Keyspace: "demo",
		Store: StoreConfig{
			Backend: BackendPebble,
			Path:    "./data",
		},
		Server: ServerConfig{
			Listen:  "127.0.0.1:7400",
			Metrics: "127.0.0.1:9400",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Scan: ScanConfig{
			PageSize: 100,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Keyspace == "" {
		return fmt.Errorf("%w: keyspace is required", ErrInvalidConfig)
	}
	switch c.Store.Backend {
	case BackendPebble, BackendBadger:
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store.path is required for %s", ErrInvalidConfig, c.Store.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown store.backend %q", ErrInvalidConfig, c.Store.Backend)
	}
	if c.Scan.PageSize < 1 {
		return fmt.Errorf("%w: scan.page_size must be positive, got %d", ErrInvalidConfig, c.Scan.PageSize)
	}
	if _, err := log.ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	if _, err := log.ParseLoggerType(c.Log.Format); err != nil {
		return fmt.Errorf("%w: log.format: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LogOptions converts the log section for log.Init.
func (c *Config) LogOptions() (log.Options, error) {
	level, err := log.ParseLogLevel(c.Log.Level)
	if err != nil {
		return log.Options{}, err
	}
	typ, err := log.ParseLoggerType(c.Log.Format)
	if err != nil {
		return log.Options{}, err
	}
	return log.Options{LogLevel: level, Type: typ}, nil
}

// OpenStore opens the configured backend as the configured keyspace.
// Closing the keyspace closes the backend.
func (c *Config) OpenStore() (*store.Keyspace, error) {
	var (
		kv  db.KVStore
		err error
	)
	switch c.Store.Backend {
	case BackendPebble:
		kv, err = pebble.Open(c.Store.Path)
	case BackendBadger:
		kv, err = badger.Open(c.Store.Path)
	case BackendMemory:
		kv = memory.NewKVStore()
	default:
		err = fmt.Errorf("%w: unknown store.backend %q", ErrInvalidConfig, c.Store.Backend)
	}
	if err != nil {
		return nil, err
	}
	log.Store.Debug().Str("backend", c.Store.Backend).Str("path", c.Store.Path).Msg("store opened")
	return store.NewKeyspace(c.Keyspace, kv), nil
}
