package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("PORT", "")
		t.Setenv("STORE_BACKEND", "")
		t.Setenv("REDIS_ADDR", "")
		t.Setenv("SEED_DEMO", "")

		cfg := Load()
		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, BackendMemory, cfg.StoreBackend)
		assert.Empty(t, cfg.RedisAddr)
		assert.True(t, cfg.SeedDemo)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("PORT", "3000")
		t.Setenv("STORE_BACKEND", BackendPostgres)
		t.Setenv("REDIS_ADDR", "localhost:6379")
		t.Setenv("SEED_DEMO", "false")

		cfg := Load()
		assert.Equal(t, "3000", cfg.Port)
		assert.Equal(t, BackendPostgres, cfg.StoreBackend)
		assert.Equal(t, "localhost:6379", cfg.RedisAddr)
		assert.False(t, cfg.SeedDemo)
	})
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadClient(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
		wantErr bool
		check   func(*testing.T, ClientConfig)
	}{
		{
			name: "missing file uses defaults",
			check: func(t *testing.T, cfg ClientConfig) {
				assert.Equal(t, "http://localhost:8080", cfg.ServerURL)
				assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
				assert.Equal(t, "@every 30s", cfg.SyncSchedule)
				assert.True(t, cfg.WatchEvents)
				assert.Equal(t, "none", cfg.Metrics)
				assert.Equal(t, time.Minute, cfg.MetricsInterval)
			},
		},
		{
			name: "file values",
			content: `
server_url: https://tasks.example.com/
data_dir: /tmp/tasksync
request_timeout: 3s
sync_schedule: "*/5 * * * *"
watch_events: false
log_level: debug
metrics: stdout
metrics_interval: 15s
`,
			check: func(t *testing.T, cfg ClientConfig) {
				assert.Equal(t, "https://tasks.example.com", cfg.ServerURL)
				assert.Equal(t, "/tmp/tasksync/tasks.db", cfg.StorePath())
				assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
				assert.Equal(t, "*/5 * * * *", cfg.SyncSchedule)
				assert.False(t, cfg.WatchEvents)
				assert.Equal(t, "wss://tasks.example.com/api/events", cfg.EventsURL())
				assert.Equal(t, "stdout", cfg.Metrics)
				assert.Equal(t, 15*time.Second, cfg.MetricsInterval)
			},
		},
		{
			name:    "environment overrides file",
			content: "server_url: http://file:8080\n",
			env: map[string]string{
				"TASKSYNC_SERVER_URL": "http://env:9090",
				"TASKSYNC_DATA_DIR":   "/data",
			},
			check: func(t *testing.T, cfg ClientConfig) {
				assert.Equal(t, "http://env:9090", cfg.ServerURL)
				assert.Equal(t, "/data", cfg.DataDir)
				assert.Equal(t, "ws://env:9090/api/events", cfg.EventsURL())
			},
		},
		{
			name:    "empty schedule disables background sync",
			content: "sync_schedule: \"\"\n",
			check: func(t *testing.T, cfg ClientConfig) {
				assert.Empty(t, cfg.SyncSchedule)
			},
		},
		{name: "invalid yaml", content: "server_url: [", wantErr: true},
		{name: "invalid url", content: "server_url: ftp://x\n", wantErr: true},
		{name: "invalid schedule", content: "sync_schedule: sometimes\n", wantErr: true},
		{name: "invalid log level", content: "log_level: loud\n", wantErr: true},
		{name: "invalid metrics exporter", content: "metrics: prometheus\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TASKSYNC_SERVER_URL", "")
			t.Setenv("TASKSYNC_DATA_DIR", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := filepath.Join(t.TempDir(), "absent.yaml")
			if tt.content != "" {
				path = writeConfig(t, tt.content)
			}

			cfg, err := LoadClient(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
