package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"

	"task-sync/internal/encryption"
)

// Config holds all configuration options for the task sync client
type Config struct {
	Storage     StorageConfig     `yaml:"storage"`
	Crypto      CryptoConfig      `yaml:"crypto"`
	Remote      RemoteConfig      `yaml:"remote"`
	Sync        SyncConfig        `yaml:"sync"`
	Logging     LoggingConfig     `yaml:"logging"`
	Application ApplicationConfig `yaml:"application"`
}

// StorageConfig holds local store configuration
type StorageConfig struct {
	Dir            string `yaml:"dir" env:"TASKS_DB_DIR"`
	Filename       string `yaml:"filename" env:"TASKS_DB_FILENAME"`
	FallbackDir    string `yaml:"fallback_dir" env:"TASKS_FALLBACK_DIR"`
	RedisURL       string `yaml:"redis_url" env:"TASKS_REDIS_URL"`
	ForceDegraded  bool   `yaml:"force_degraded" env:"TASKS_FORCE_DEGRADED"`
	DirPermissions uint32 `yaml:"dir_permissions" env:"TASKS_DB_DIR_PERMISSIONS"`
}

// CryptoConfig holds key derivation configuration
type CryptoConfig struct {
	Iterations int `yaml:"iterations" env:"TASKS_CRYPTO_ITERATIONS"`
}

// RemoteConfig holds the task server connection
type RemoteConfig struct {
	BaseURL        string        `yaml:"base_url" env:"TASKS_REMOTE_URL"`
	Token          string        `yaml:"token" env:"TASKS_TOKEN"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"TASKS_REQUEST_TIMEOUT"`
}

// SyncConfig holds retry pacing and background sync behavior
type SyncConfig struct {
	BackoffInitial    time.Duration `yaml:"backoff_initial" env:"TASKS_BACKOFF_INITIAL"`
	BackoffMax        time.Duration `yaml:"backoff_max" env:"TASKS_BACKOFF_MAX"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" env:"TASKS_BACKOFF_MULTIPLIER"`
	AutoSync          bool          `yaml:"auto_sync" env:"TASKS_AUTO_SYNC"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string `yaml:"level" env:"TASKS_LOG_LEVEL"`
	Format string `yaml:"format" env:"TASKS_LOG_FORMAT"`
}

// ApplicationConfig holds application-level configuration
type ApplicationConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"TASKS_APP_TIMEOUT"`
	Verbose bool          `yaml:"verbose" env:"TASKS_APP_VERBOSE"`
}

// NewConfig creates a new configuration with sensible defaults
func NewConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultDir := filepath.Join(homeDir, ".tasks")

	return &Config{
		Storage: StorageConfig{
			Dir:            defaultDir,
			Filename:       "tasks.db",
			FallbackDir:    filepath.Join(defaultDir, "fallback"),
			DirPermissions: 0700,
		},
		Crypto: CryptoConfig{
			Iterations: encryption.DefaultIterations,
		},
		Remote: RemoteConfig{
			RequestTimeout: 10 * time.Second,
		},
		Sync: SyncConfig{
			BackoffInitial:    time.Second,
			BackoffMax:        5 * time.Minute,
			BackoffMultiplier: 2,
			AutoSync:          true,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Application: ApplicationConfig{
			Timeout: 60 * time.Second,
		},
	}
}

// GetDatabasePath returns the full path to the database file
func (c *Config) GetDatabasePath() string {
	return filepath.Join(c.Storage.Dir, c.Storage.Filename)
}

// RemoteEnabled reports whether a server is configured.
func (c *Config) RemoteEnabled() bool {
	return c.Remote.BaseURL != ""
}

// NewBackoff builds the retry policy for the sync loop.
func (c *Config) NewBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.Sync.BackoffInitial
	b.MaxInterval = c.Sync.BackoffMax
	b.Multiplier = c.Sync.BackoffMultiplier
	return b
}

// LoadFromEnvironment loads configuration from environment variables.
// Unparseable values are ignored.
func (c *Config) LoadFromEnvironment() error {
	// Storage configuration
	if dir := os.Getenv("TASKS_DB_DIR"); dir != "" {
		c.Storage.Dir = dir
	}
	if filename := os.Getenv("TASKS_DB_FILENAME"); filename != "" {
		c.Storage.Filename = filename
	}
	if dir := os.Getenv("TASKS_FALLBACK_DIR"); dir != "" {
		c.Storage.FallbackDir = dir
	}
	if url := os.Getenv("TASKS_REDIS_URL"); url != "" {
		c.Storage.RedisURL = url
	}
	if degraded := os.Getenv("TASKS_FORCE_DEGRADED"); degraded != "" {
		c.Storage.ForceDegraded = ParseBoolWithFallback(degraded, c.Storage.ForceDegraded)
	}
	if perms := os.Getenv("TASKS_DB_DIR_PERMISSIONS"); perms != "" {
		c.Storage.DirPermissions = ParseUint32WithFallback(perms, 8, c.Storage.DirPermissions)
	}

	// Crypto configuration
	if iterations := os.Getenv("TASKS_CRYPTO_ITERATIONS"); iterations != "" {
		c.Crypto.Iterations = ParseIntWithFallback(iterations, c.Crypto.Iterations)
	}

	// Remote configuration
	if url := os.Getenv("TASKS_REMOTE_URL"); url != "" {
		c.Remote.BaseURL = url
	}
	if token := os.Getenv("TASKS_TOKEN"); token != "" {
		c.Remote.Token = token
	}
	if timeout := os.Getenv("TASKS_REQUEST_TIMEOUT"); timeout != "" {
		c.Remote.RequestTimeout = ParseDurationWithFallback(timeout, c.Remote.RequestTimeout)
	}

	// Sync configuration
	if initial := os.Getenv("TASKS_BACKOFF_INITIAL"); initial != "" {
		c.Sync.BackoffInitial = ParseDurationWithFallback(initial, c.Sync.BackoffInitial)
	}
	if maxWait := os.Getenv("TASKS_BACKOFF_MAX"); maxWait != "" {
		c.Sync.BackoffMax = ParseDurationWithFallback(maxWait, c.Sync.BackoffMax)
	}
	if multiplier := os.Getenv("TASKS_BACKOFF_MULTIPLIER"); multiplier != "" {
		c.Sync.BackoffMultiplier = ParseFloatWithFallback(multiplier, c.Sync.BackoffMultiplier)
	}
	if auto := os.Getenv("TASKS_AUTO_SYNC"); auto != "" {
		c.Sync.AutoSync = ParseBoolWithFallback(auto, c.Sync.AutoSync)
	}

	// Logging configuration
	if level := os.Getenv("TASKS_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("TASKS_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}

	// Application configuration
	if timeout := os.Getenv("TASKS_APP_TIMEOUT"); timeout != "" {
		c.Application.Timeout = ParseDurationWithFallback(timeout, c.Application.Timeout)
	}
	if verbose := os.Getenv("TASKS_APP_VERBOSE"); verbose != "" {
		c.Application.Verbose = ParseBoolWithFallback(verbose, c.Application.Verbose)
	}

	return nil
}

// Validate validates the configuration and returns the first problem found
func (c *Config) Validate() error {
	// Validate storage configuration
	if c.Storage.Dir == "" {
		return &ConfigError{Field: "storage.dir", Message: "storage directory cannot be empty"}
	}
	if c.Storage.Filename == "" {
		return &ConfigError{Field: "storage.filename", Message: "database filename cannot be empty"}
	}
	if c.Storage.FallbackDir == "" && c.Storage.RedisURL == "" {
		return &ConfigError{Field: "storage.fallback_dir", Message: "a fallback directory or redis url is required"}
	}

	// Validate crypto configuration
	if c.Crypto.Iterations < encryption.DefaultIterations {
		return &ConfigError{Field: "crypto.iterations", Message: "iterations must be at least 100000"}
	}

	// Validate remote configuration
	if c.Remote.RequestTimeout <= 0 {
		return &ConfigError{Field: "remote.request_timeout", Message: "request timeout must be positive"}
	}

	// Validate sync configuration
	if c.Sync.BackoffInitial <= 0 {
		return &ConfigError{Field: "sync.backoff_initial", Message: "initial backoff must be positive"}
	}
	if c.Sync.BackoffMax < c.Sync.BackoffInitial {
		return &ConfigError{Field: "sync.backoff_max", Message: "maximum backoff must not be less than the initial backoff"}
	}
	if c.Sync.BackoffMultiplier < 1 {
		return &ConfigError{Field: "sync.backoff_multiplier", Message: "backoff multiplier must be at least 1"}
	}

	// Validate logging configuration
	switch c.Logging.Format {
	case "text", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: "log format must be text or json"}
	}

	// Validate application configuration
	if c.Application.Timeout <= 0 {
		return &ConfigError{Field: "application.timeout", Message: "application timeout must be positive"}
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
