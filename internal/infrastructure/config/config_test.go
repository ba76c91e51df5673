package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromYAML(t *testing.T) {
	yaml := `
storage:
  database_path: test-passtrack.db
http:
  port: 9090
  allowed_origins:
    - http://localhost:4000
smtp:
  host: smtp.example.com
  port: 465
  from_address: noreply@example.com
observability:
  logging:
    level: debug
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-passtrack.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, []string{"http://localhost:4000"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, 465, cfg.SMTP.Port)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)

	// Defaults fill in what the file omits
	assert.Equal(t, 5, cfg.Reconcile.PollIntervalMinutes)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_SMTP_HOST", "mail.expanded.example")

	yaml := "smtp:\n  host: ${TEST_SMTP_HOST}\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mail.expanded.example", cfg.SMTP.Host)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PASSTRACK_DB_PATH", "env.db")
	t.Setenv("PASSTRACK_HTTP_PORT", "8181")
	t.Setenv("MAIL_SERVER", "smtp.env.example")

	cfg := LoadFromEnv()

	assert.Equal(t, "env.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 8181, cfg.HTTP.Port)
	assert.Equal(t, "smtp.env.example", cfg.SMTP.Host)
	assert.Equal(t, 587, cfg.SMTP.Port)
}

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	assert.Equal(t, "passtrack.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.NotEmpty(t, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 5, cfg.Reconcile.PollIntervalMinutes)
	assert.Equal(t, 720, cfg.Reconcile.ReminderIntervalMinutes)
	assert.Equal(t, "info", cfg.Observability.Logging.Level)
}
