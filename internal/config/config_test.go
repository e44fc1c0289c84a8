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

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "substring", cfg.Matcher.Mode)
	assert.Equal(t, 5*time.Second, cfg.Backoff())
	assert.Equal(t, time.Minute, cfg.ResultTTL())
	assert.Equal(t, 5*time.Minute, cfg.RefreshInterval())
	assert.Equal(t, "postgres://:@localhost:5432/campaigns?sslmode=disable", cfg.DSN())
}

func TestLoadFrom_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
server:
  addr: ":9090"
postgres:
  host: db
  user: app
  password: secret
  db_name: cards
matcher:
  mode: Similarity
  threshold: 0.9
redis:
  ttl_seconds: 30
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "application.yaml"), yaml, 0o600))
	t.Setenv("APP_POSTGRES_PORT", "6543")
	t.Setenv("APP_LISTENER_CHANNEL", "custom_channel")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "similarity", cfg.Matcher.Mode)
	assert.Equal(t, 0.9, cfg.Matcher.Threshold)
	assert.Equal(t, 30*time.Second, cfg.ResultTTL())
	assert.Equal(t, "custom_channel", cfg.Listener.Channel)
	assert.Equal(t, "postgres://app:secret@db:6543/cards?sslmode=disable", cfg.DSN())
}

func TestSetupLogging(t *testing.T) {
	SetupLogging("debug", true)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	SetupLogging("nonsense", false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
