package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "tasks.db", cfg.Storage.Filename)
	assert.Equal(t, filepath.Join(cfg.Storage.Dir, "tasks.db"), cfg.GetDatabasePath())
	assert.Equal(t, 100_000, cfg.Crypto.Iterations)
	assert.Equal(t, 10*time.Second, cfg.Remote.RequestTimeout)
	assert.True(t, cfg.Sync.AutoSync)
	assert.False(t, cfg.RemoteEnabled())
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TASKS_DB_DIR", "/tmp/tasks-test")
	t.Setenv("TASKS_REMOTE_URL", "https://tasks.example.com")
	t.Setenv("TASKS_TOKEN", "secret")
	t.Setenv("TASKS_REQUEST_TIMEOUT", "3s")
	t.Setenv("TASKS_BACKOFF_MULTIPLIER", "1.5")
	t.Setenv("TASKS_AUTO_SYNC", "false")
	t.Setenv("TASKS_CRYPTO_ITERATIONS", "not-a-number")
	t.Setenv("TASKS_DB_DIR_PERMISSIONS", "750")

	cfg := NewConfig()
	require.NoError(t, cfg.LoadFromEnvironment())

	assert.Equal(t, "/tmp/tasks-test", cfg.Storage.Dir)
	assert.Equal(t, "https://tasks.example.com", cfg.Remote.BaseURL)
	assert.True(t, cfg.RemoteEnabled())
	assert.Equal(t, "secret", cfg.Remote.Token)
	assert.Equal(t, 3*time.Second, cfg.Remote.RequestTimeout)
	assert.Equal(t, 1.5, cfg.Sync.BackoffMultiplier)
	assert.False(t, cfg.Sync.AutoSync)
	assert.Equal(t, 100_000, cfg.Crypto.Iterations, "unparseable values keep the previous setting")
	assert.Equal(t, uint32(0750), cfg.Storage.DirPermissions)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"empty dir", func(c *Config) { c.Storage.Dir = "" }, "storage.dir"},
		{"empty filename", func(c *Config) { c.Storage.Filename = "" }, "storage.filename"},
		{"no fallback", func(c *Config) { c.Storage.FallbackDir = "" }, "storage.fallback_dir"},
		{"weak kdf", func(c *Config) { c.Crypto.Iterations = 1000 }, "crypto.iterations"},
		{"zero request timeout", func(c *Config) { c.Remote.RequestTimeout = 0 }, "remote.request_timeout"},
		{"zero backoff", func(c *Config) { c.Sync.BackoffInitial = 0 }, "sync.backoff_initial"},
		{"max below initial", func(c *Config) { c.Sync.BackoffMax = time.Millisecond }, "sync.backoff_max"},
		{"shrinking backoff", func(c *Config) { c.Sync.BackoffMultiplier = 0.5 }, "sync.backoff_multiplier"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"app timeout", func(c *Config) { c.Application.Timeout = 0 }, "application.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	t.Run("redis replaces fallback dir", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Storage.FallbackDir = ""
		cfg.Storage.RedisURL = "redis://localhost:6379/0"
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoader_YAMLFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
storage:
  dir: /var/lib/tasks
  redis_url: redis://cache:6379/1
remote:
  base_url: https://from-file.example.com
  request_timeout: 4s
sync:
  backoff_initial: 2s
  auto_sync: false
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	t.Setenv("TASKS_REMOTE_URL", "https://from-env.example.com")

	cfg, err := NewLoaderWithFile(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/tasks", cfg.Storage.Dir)
	assert.Equal(t, "tasks.db", cfg.Storage.Filename, "unset keys keep their defaults")
	assert.Equal(t, "redis://cache:6379/1", cfg.Storage.RedisURL)
	assert.Equal(t, "https://from-env.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, 4*time.Second, cfg.Remote.RequestTimeout)
	assert.Equal(t, 2*time.Second, cfg.Sync.BackoffInitial)
	assert.False(t, cfg.Sync.AutoSync)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoader_MissingFileIsIgnored(t *testing.T) {
	cfg, err := NewLoaderWithFile(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, "tasks.db", cfg.Storage.Filename)
}

func TestLoader_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [unclosed"), 0o600))

	_, err := NewLoaderWithFile(path).Load()
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, path, cfgErr.Field)
}

func TestLoader_TasksConfigEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	t.Setenv(ConfigFileEnv, path)
	assert.Equal(t, path, NewLoader().Path())
}

func TestLoadWithOverrides(t *testing.T) {
	url := "http://localhost:8080"
	autoSync := false
	timeout := 5 * time.Second
	format := "yaml"

	cfg, err := NewLoaderWithFile("").LoadWithOverrides(&ConfigOverrides{
		RemoteURL: &url,
		AutoSync:  &autoSync,
		Timeout:   &timeout,
	})
	require.NoError(t, err)
	assert.Equal(t, url, cfg.Remote.BaseURL)
	assert.False(t, cfg.Sync.AutoSync)
	assert.Equal(t, timeout, cfg.Application.Timeout)

	_, err = NewLoaderWithFile("").LoadWithOverrides(&ConfigOverrides{LogFormat: &format})
	assert.Error(t, err)
}

func TestNewBackoff(t *testing.T) {
	cfg := NewConfig()
	cfg.Sync.BackoffInitial = 100 * time.Millisecond
	cfg.Sync.BackoffMax = 400 * time.Millisecond
	cfg.Sync.BackoffMultiplier = 2

	b, ok := cfg.NewBackoff().(*backoff.ExponentialBackOff)
	require.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, b.InitialInterval)
	assert.Equal(t, 400*time.Millisecond, b.MaxInterval)

	for i := 0; i < 10; i++ {
		wait := b.NextBackOff()
		assert.LessOrEqual(t, wait, 600*time.Millisecond, "jitter stays within the randomization factor of the cap")
	}
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, time.Minute, ParseDurationWithFallback("1m", time.Second))
	assert.Equal(t, time.Second, ParseDurationWithFallback("soon", time.Second))
	assert.Equal(t, 7, ParseIntWithFallback("7", 1))
	assert.Equal(t, 1, ParseIntWithFallback("seven", 1))
	assert.Equal(t, 2.5, ParseFloatWithFallback("2.5", 1))
	assert.True(t, ParseBoolWithFallback("yes", true))
	assert.Equal(t, uint32(0700), ParseUint32WithFallback("700", 8, 0))
}
