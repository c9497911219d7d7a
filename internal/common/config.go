package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment" validate:"oneof=development production"`
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Logging     LoggingConfig     `toml:"logging"`
	Monitor     MonitorConfig     `toml:"monitor"`
	Fetch       FetchConfig       `toml:"fetch"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
	Host string `toml:"host" validate:"required"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

// MonitorConfig tunes the live-status monitor combinators.
type MonitorConfig struct {
	// SpinUpDelay is the grace period before a cache-backed monitor issues
	// its network fetch, giving a near-simultaneous cache write a chance to
	// win the race without a redundant request.
	SpinUpDelay time.Duration `toml:"spin_up_delay" validate:"gte=0"`
	// PollInterval is the fixed wait between invocation step re-fetches.
	PollInterval time.Duration `toml:"poll_interval" validate:"gt=0"`
}

// FetchConfig configures the upstream API client.
type FetchConfig struct {
	BaseURL string        `toml:"base_url" validate:"required,url"`
	APIKey  string        `toml:"api_key"`
	Timeout time.Duration `toml:"timeout" validate:"gt=0"`
	// RateLimit caps fetches per second against the upstream; 0 disables
	// limiting.
	RateLimit float64 `toml:"rate_limit" validate:"gte=0"`
}

// MaintenanceConfig configures scheduled store maintenance.
type MaintenanceConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron schedule format
}

// NewDefaultConfig returns the baseline configuration before file and env
// overrides are applied.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Monitor: MonitorConfig{
			SpinUpDelay:  250 * time.Millisecond,
			PollInterval: 3 * time.Second,
		},
		Fetch: FetchConfig{
			BaseURL:   "http://localhost:8081",
			Timeout:   30 * time.Second,
			RateLimit: 10,
		},
		Maintenance: MaintenanceConfig{
			Enabled:  true,
			Schedule: "0 */30 * * * *", // Every 30 minutes
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 ->
// file2 -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VIGIL_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("VIGIL_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("VIGIL_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if path := os.Getenv("VIGIL_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	if level := os.Getenv("VIGIL_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if baseURL := os.Getenv("VIGIL_FETCH_BASE_URL"); baseURL != "" {
		config.Fetch.BaseURL = baseURL
	}
	if apiKey := os.Getenv("VIGIL_FETCH_API_KEY"); apiKey != "" {
		config.Fetch.APIKey = apiKey
	}

	if delay := os.Getenv("VIGIL_MONITOR_SPIN_UP_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			config.Monitor.SpinUpDelay = d
		}
	}
	if interval := os.Getenv("VIGIL_MONITOR_POLL_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Monitor.PollInterval = d
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
