// Package config loads the seqlogic TOML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds seqlogic configuration.
type Config struct {
	Log        LogConfig        `toml:"log"`
	Simulation SimulationConfig `toml:"simulation"`
	Recent     RecentConfig     `toml:"recent"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Tracing    TracingConfig    `toml:"tracing"`
	UI         UIConfig         `toml:"ui"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// SimulationConfig holds defaults for the run command.
type SimulationConfig struct {
	Ticks    int      `toml:"ticks"`
	Interval Duration `toml:"interval"`
	Seed     uint64   `toml:"seed"` // 0 draws a random seed
	RealTime bool     `toml:"realtime"`
}

// RecentConfig locates the recent-files store.
type RecentConfig struct {
	Path     string `toml:"path"`
	Capacity int    `toml:"capacity"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `toml:"addr"` // empty disables the endpoint
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool    `toml:"enabled"`
	Exporter    string  `toml:"exporter"` // stdout or otlp
	Endpoint    string  `toml:"endpoint"`
	SampleRatio float64 `toml:"sample_ratio"`
}

// UIConfig controls terminal output.
type UIConfig struct {
	Color bool `toml:"color"`
}

// Duration is a time.Duration written as a Go duration string.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Log:        LogConfig{Level: "info", Format: "text"},
		Simulation: SimulationConfig{Ticks: 100, Interval: Duration{16 * time.Millisecond}},
		Recent:     RecentConfig{Path: filepath.Join(DataDir(), "recent"), Capacity: 20},
		Tracing:    TracingConfig{Exporter: "stdout", SampleRatio: 1},
		UI:         UIConfig{Color: true},
	}
}

// ConfigDir returns the seqlogic config directory path.
func ConfigDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "seqlogic")
}

// DataDir returns the seqlogic data directory path.
func DataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "seqlogic")
}

// DefaultPath returns the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file at path, or DefaultPath when path is empty.
// A missing file yields the defaults; a malformed one is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Recent.Capacity <= 0 {
		cfg.Recent.Capacity = Default().Recent.Capacity
	}
	return cfg, nil
}

// Save writes the config to path, or DefaultPath when path is empty.
func Save(path string, cfg *Config) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
