package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigFromBytes(t *testing.T) {
	t.Parallel()

	tomlData := `
listen = ":9090"
log_level = "debug"
db_path = "/var/lib/gridhost/gridhost.db"

[sandbox]
timeout_seconds = 15
grace_millis = 250
cache_dirs = ["/tmp/gridhost-cache"]

[refresh]
webhook_url = "https://hooks.example.com/refresh"
timeout_seconds = 3
pending_window_seconds = 120
`

	cfg, err := NewConfigFromBytes([]byte(tomlData))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 15*time.Second, cfg.SandboxTimeout())
	assert.Equal(t, 250*time.Millisecond, cfg.SandboxGrace())
	assert.Equal(t, []string{"/tmp/gridhost-cache"}, cfg.Sandbox.CacheDirs)
	assert.Equal(t, 3*time.Second, cfg.WebhookTimeout())
	assert.Equal(t, 2*time.Minute, cfg.PendingWindow())
}

func TestNewConfigFromBytes_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := NewConfigFromBytes([]byte(`db_path = "gridhost.db"`))
	require.NoError(t, err)

	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.SandboxTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.SandboxGrace())
	assert.Equal(t, 5*time.Minute, cfg.PendingWindow())
	assert.NotEmpty(t, cfg.Sandbox.CacheDirs)
}

func TestNewConfigFromBytes_InvalidTOML(t *testing.T) {
	t.Parallel()

	_, err := NewConfigFromBytes([]byte(`listen = [broken`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFailedToLoadConfig)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "missing db path",
			mutate:  func(c *Config) { c.DBPath = "" },
			wantErr: ErrMissingDatabasePath,
		},
		{
			name:    "missing listen",
			mutate:  func(c *Config) { c.Listen = "" },
			wantErr: ErrMissingListenAddr,
		},
		{
			name:    "negative sandbox timeout",
			mutate:  func(c *Config) { c.Sandbox.TimeoutSeconds = -1 },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "relative cache dir",
			mutate:  func(c *Config) { c.Sandbox.CacheDirs = []string{"relative/dir"} },
			wantErr: ErrInvalidCacheDir,
		},
		{
			name:    "webhook url without scheme",
			mutate:  func(c *Config) { c.Refresh.WebhookURL = "hooks.example.com/x" },
			wantErr: ErrInvalidWebhookURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewConfigFromBytes([]byte(`db_path = "gridhost.db"`))
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrFailedToValidateConfig)
		})
	}
}

func TestNewConfig_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gridhost.toml")
	require.NoError(t, os.WriteFile(path, []byte(`db_path = "gridhost.db"`), 0o644))

	cfg, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "gridhost.db", cfg.DBPath)

	_, err = NewConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFailedToLoadConfig)
}
