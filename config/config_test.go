package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "chat", cfg.Server.SubjectPrefix)
	assert.Equal(t, 100, cfg.Server.HistoryLimit)
	assert.Less(t, PingPeriod, PongWait)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matchchat.yaml")
	body := []byte(`
log_level: debug
server:
  addr: ":9000"
  stream_name: ROOMS
  history_limit: 25
  max_clock_skew: 30s
client:
  server_url: http://chat.local:9000
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	t.Setenv("MATCHCHAT_HISTORY_LIMIT", "40")
	t.Setenv("MATCHCHAT_NATS_URL", "nats://broker:4222")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "ROOMS", cfg.Server.StreamName)
	assert.Equal(t, 40, cfg.Server.HistoryLimit)
	assert.Equal(t, 30*time.Second, cfg.Server.MaxClockSkew)
	assert.Equal(t, "nats://broker:4222", cfg.Server.NatsURL)
	assert.Equal(t, "http://chat.local:9000", cfg.Client.ServerURL)
	// untouched fields keep defaults
	assert.Equal(t, defaultSubjectPrefix, cfg.Server.SubjectPrefix)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("MATCHCHAT_REQUEST_TIMEOUT", "soon")
	_, err := Load("")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Server.SubjectPrefix = "chat.*"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.SendBurst = 0
	require.Error(t, cfg.Validate())
}
