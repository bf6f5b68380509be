package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 60*time.Second, cfg.PongWait)
	assert.Equal(t, 10, cfg.RateLimit.Messages)
	assert.Equal(t, 5*time.Second, cfg.RateLimit.Interval)
	assert.Equal(t, 1024, cfg.Store.Queue)
	assert.NotEmpty(t, cfg.ICEServers)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	path := writeConfig(t, `
mode: debug
port: 9000
log_level: debug
send_buffer: 8
rate_limit:
  messages: 3
  interval: 1s
store:
  path: /tmp/x.db
ice_servers:
  - stun:example.org:3478
`)
	t.Setenv("PARLEY_STORE_QUEUE", "7")

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 8, cfg.SendBuffer)
	assert.Equal(t, 3, cfg.RateLimit.Messages)
	assert.Equal(t, time.Second, cfg.RateLimit.Interval)
	assert.Equal(t, "/tmp/x.db", cfg.Store.Path)
	assert.Equal(t, 7, cfg.Store.Queue)
	assert.Equal(t, []string{"stun:example.org:3478"}, cfg.ICEServers)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())

	cfg, err = Load([]string{"--config", path, "--port", "9100"})
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, "ping_period: 90s\npong_wait: 60s\n")
	_, err := Load([]string{"--config", path})
	assert.Error(t, err)

	_, err = Load([]string{"--bogus"})
	assert.Error(t, err)
}

func TestWatchReloads(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")
	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)

	changed := make(chan *Config, 4)
	cfg.Watch(func(c *Config) { changed <- c })
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o644))

	select {
	case next := <-changed:
		assert.Equal(t, zerolog.WarnLevel, next.Level())
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}
