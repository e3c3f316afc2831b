package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/Swind/go-task-engine/core"
)

// Pool backends
const (
	BackendGoroutine = "goroutine"
	BackendAnts      = "ants"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TASKENGINE_"

// Config represents the engine configuration
type Config struct {
	Pool    PoolConfig    `yaml:"pool"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// PoolConfig configures the thread pool the CLI builds
type PoolConfig struct {
	ID              string        `yaml:"id"`               // Empty means a generated ID
	Workers         int           `yaml:"workers"`          // 0 means runtime.NumCPU()
	Backend         string        `yaml:"backend"`          // "goroutine" or "ants"
	HistoryCapacity int           `yaml:"history_capacity"` // Execution records kept per pool
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // Graceful stop budget
}

// MetricsConfig configures the Prometheus exporter
type MetricsConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Namespace    string        `yaml:"namespace"`
	ListenAddr   string        `yaml:"listen_addr"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			Workers:         runtime.NumCPU(),
			Backend:         BackendGoroutine,
			HistoryCapacity: 100,
			ShutdownTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:      false,
			Namespace:    "taskengine",
			ListenAddr:   ":9090",
			PollInterval: time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from path over the defaults, then applies environment
// overrides. An empty path, or a path that does not exist, yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from TASKENGINE_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
		return nil
	}

	str("POOL_ID", &c.Pool.ID)
	str("POOL_BACKEND", &c.Pool.Backend)
	str("METRICS_NAMESPACE", &c.Metrics.Namespace)
	str("METRICS_LISTEN_ADDR", &c.Metrics.ListenAddr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup(EnvPrefix + "METRICS_ENABLED"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %sMETRICS_ENABLED: %w", EnvPrefix, err)
		}
		c.Metrics.Enabled = b
	}

	return multierr.Combine(
		num("POOL_WORKERS", &c.Pool.Workers),
		num("POOL_HISTORY_CAPACITY", &c.Pool.HistoryCapacity),
		dur("POOL_SHUTDOWN_TIMEOUT", &c.Pool.ShutdownTimeout),
		dur("METRICS_POLL_INTERVAL", &c.Metrics.PollInterval),
	)
}

// Validate reports every invalid field at once. A zero worker count is replaced
// by runtime.NumCPU().
func (c *Config) Validate() error {
	var errs []error

	if c.Pool.Workers == 0 {
		c.Pool.Workers = runtime.NumCPU()
	}
	if c.Pool.Workers < 0 {
		errs = append(errs, fmt.Errorf("pool.workers must be positive, got %d", c.Pool.Workers))
	}
	switch c.Pool.Backend {
	case BackendGoroutine, BackendAnts:
	default:
		errs = append(errs, fmt.Errorf("pool.backend must be %q or %q, got %q", BackendGoroutine, BackendAnts, c.Pool.Backend))
	}
	if c.Pool.HistoryCapacity < 0 {
		errs = append(errs, fmt.Errorf("pool.history_capacity must not be negative, got %d", c.Pool.HistoryCapacity))
	}
	if c.Pool.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pool.shutdown_timeout must be positive, got %v", c.Pool.ShutdownTimeout))
	}
	if c.Metrics.Enabled {
		if c.Metrics.ListenAddr == "" {
			errs = append(errs, errors.New("metrics.listen_addr is required when metrics are enabled"))
		}
		if c.Metrics.PollInterval <= 0 {
			errs = append(errs, fmt.Errorf("metrics.poll_interval must be positive, got %v", c.Metrics.PollInterval))
		}
	}
	if _, err := core.ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format))
	}

	return multierr.Combine(errs...)
}

// LogLevel returns the parsed log level; Validate has already rejected bad values.
func (c *Config) LogLevel() core.LogLevel {
	level, _ := core.ParseLogLevel(c.Log.Level)
	return level
}
