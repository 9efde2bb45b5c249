package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("MONITOR_INTERVAL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 10*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, time.Duration(0), cfg.Monitor.StaleAfter)
	assert.Equal(t, 3, cfg.Dispatch.Attempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Dispatch.InitialDelay)
	assert.Equal(t, "your_turn_has_come", cfg.WhatsApp.TemplateTurn)
	assert.Equal(t, "client_queue", cfg.WhatsApp.TemplateJoined)
	assert.Empty(t, cfg.WhatsApp.TemplateRemoved)
	assert.Equal(t, "0 0 3 * * *", cfg.Retention.Cron)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_NAME", "queue.db")
	t.Setenv("MONITOR_INTERVAL", "5s")
	t.Setenv("MONITOR_STALE_AFTER", "2h")
	t.Setenv("DISPATCH_WORKERS", "8")
	t.Setenv("GIZMO_API_BASE_URL", "http://gizmo.local/api")
	t.Setenv("WHATSAPP_RATE_LIMIT", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "queue.db", cfg.Database.Name)
	assert.Equal(t, 5*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 2*time.Hour, cfg.Monitor.StaleAfter)
	assert.Equal(t, 8, cfg.Dispatch.Workers)
	assert.Equal(t, "http://gizmo.local/api", cfg.Gizmo.BaseURL)
	assert.Equal(t, 30, cfg.WhatsApp.RateLimit)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Monitor:  Monitor{Interval: time.Second},
			Dispatch: Dispatch{Attempts: 1, Workers: 1},
		}
	}
	c := valid()
	require.NoError(t, c.Validate())

	c = valid()
	c.Monitor.Interval = 0
	assert.Error(t, c.Validate())

	c = valid()
	c.Dispatch.Attempts = 0
	assert.Error(t, c.Validate())

	c = valid()
	c.Dispatch.Workers = 0
	assert.Error(t, c.Validate())

	c = valid()
	c.Monitor.StaleAfter = -time.Second
	assert.Error(t, c.Validate())
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("GAMING_QUEUE_TEST_KEY=from-file\n"), 0o600))
	t.Setenv("GAMING_QUEUE_TEST_KEY", "")
	os.Unsetenv("GAMING_QUEUE_TEST_KEY")

	t.Setenv("ENV_CHEK", "1")
	require.NoError(t, LoadEnv(path))
	assert.Empty(t, os.Getenv("GAMING_QUEUE_TEST_KEY"), "при ENV_CHEK файл не читается")

	t.Setenv("ENV_CHEK", "")
	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "from-file", os.Getenv("GAMING_QUEUE_TEST_KEY"))

	assert.Error(t, LoadEnv(filepath.Join(dir, "missing.env")))
}
