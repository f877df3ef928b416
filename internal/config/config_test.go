package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  name: facematch
  user: fm
  password: secret
nats:
  url: nats://localhost:4222
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.Equal(t, 60*time.Second, cfg.NATS.AckWait)
	assert.Equal(t, 0.5, cfg.Vision.DetectionThreshold)
	assert.Equal(t, 0.4, cfg.Vision.MatchThreshold)
	assert.Equal(t, 4, cfg.Vision.WorkerCount)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  api_key: from-file
`)

	t.Setenv("FM_API_KEY", "from-env")
	t.Setenv("FM_MATCH_THRESHOLD", "0.55")
	t.Setenv("FM_NATS_ACK_WAIT", "90s")
	t.Setenv("FM_WORKER_COUNT", "8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Server.APIKey)
	assert.Equal(t, 0.55, cfg.Vision.MatchThreshold)
	assert.Equal(t, 90*time.Second, cfg.NATS.AckWait)
	assert.Equal(t, 8, cfg.Vision.WorkerCount)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, Name: "fm", User: "u", Password: "p"}
	assert.Equal(t, "postgres://u:p@db:5433/fm?sslmode=disable", d.DSN())
}
