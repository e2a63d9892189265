package runtimeconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vbook-dev/vbook/internal/paths"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTimeoutSeconds = 60
	DefaultLogLevel       = "info"
	DefaultPrefixOctets   = 2
	DefaultPrivateWeight  = 10
	DefaultPrefixWeight   = 5
	DefaultBridgeMaxConns = 32
)

type Config struct {
	AppURL         string         `yaml:"app_url"`
	TimeoutSeconds int64          `yaml:"timeout_seconds"`
	LogLevel       string         `yaml:"log_level"`
	StateDB        string         `yaml:"state_db,omitempty"`
	Resolver       ResolverConfig `yaml:"resolver"`
	Bridge         BridgeConfig   `yaml:"bridge"`
}

// ResolverConfig tunes callback address scoring.
type ResolverConfig struct {
	PrefixOctets  int `yaml:"prefix_octets"`
	PrivateWeight int `yaml:"private_weight"`
	PrefixWeight  int `yaml:"prefix_weight"`
}

type BridgeConfig struct {
	MaxConns int `yaml:"max_conns"`
}

// Default is the configuration written by `vbook config init`.
func Default() Config {
	return Config{
		TimeoutSeconds: DefaultTimeoutSeconds,
		LogLevel:       DefaultLogLevel,
		Resolver: ResolverConfig{
			PrefixOctets:  DefaultPrefixOctets,
			PrivateWeight: DefaultPrivateWeight,
			PrefixWeight:  DefaultPrefixWeight,
		},
		Bridge: BridgeConfig{MaxConns: DefaultBridgeMaxConns},
	}
}

// WithDefaults fills zero values. Weights are only defaulted together so an
// explicit zero weight survives when the other one is set.
func (c Config) WithDefaults() Config {
	d := Default()
	c.AppURL = strings.TrimSpace(c.AppURL)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.StateDB = strings.TrimSpace(c.StateDB)
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = d.TimeoutSeconds
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Resolver.PrefixOctets == 0 {
		c.Resolver.PrefixOctets = d.Resolver.PrefixOctets
	}
	if c.Resolver.PrivateWeight == 0 && c.Resolver.PrefixWeight == 0 {
		c.Resolver.PrivateWeight = d.Resolver.PrivateWeight
		c.Resolver.PrefixWeight = d.Resolver.PrefixWeight
	}
	if c.Bridge.MaxConns <= 0 {
		c.Bridge.MaxConns = d.Bridge.MaxConns
	}
	return c
}

func (c Config) Validate() error {
	if c.Resolver.PrefixOctets < 1 || c.Resolver.PrefixOctets > 3 {
		return fmt.Errorf("resolver.prefix_octets must be between 1 and 3, got %d", c.Resolver.PrefixOctets)
	}
	if c.Resolver.PrivateWeight < 0 || c.Resolver.PrefixWeight < 0 {
		return errors.New("resolver weights must not be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	return nil
}

// Timeout is the deadline for one exchange with the runtime app.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func Path() (string, error) {
	return paths.ConfigPath()
}

// Load reads the config file. A missing file yields the defaults.
func Load() (Config, string, error) {
	path, err := Path()
	if err != nil {
		return Config{}, "", err
	}
	cfg, err := LoadFile(path)
	return cfg, path, err
}

func LoadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	cfg := Config{}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", path, err)
	}
	return cfg, nil
}

// Write stores cfg at path. An existing file is only replaced when force is
// set.
func Write(path string, cfg Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
