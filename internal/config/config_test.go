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

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aquadeck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8000", cfg.ServerURL)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.ScanTimeout)
	assert.Equal(t, "aquadeck.db", cfg.JournalPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, zerolog.InfoLevel, cfg.ZerologLevel())
	assert.False(t, cfg.Datadog.Enabled)
	assert.Equal(t, "https://ntfy.sh", cfg.Ntfy.BaseURL)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server_url: http://aquarium.local:8000
poll_interval: 45s
scan_timeout: 10s
log_level: debug
journal_path: /var/lib/aquadeck/journal.db
ntfy:
  topic: aquadeck-alerts
datadog:
  enabled: true
  agent_addr: 127.0.0.1:8125
  tags:
    - env:home
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://aquarium.local:8000", cfg.ServerURL)
	assert.Equal(t, 45*time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, zerolog.DebugLevel, cfg.ZerologLevel())
	assert.Equal(t, "/var/lib/aquadeck/journal.db", cfg.JournalPath)
	assert.Equal(t, "aquadeck-alerts", cfg.Ntfy.Topic)
	assert.True(t, cfg.Datadog.Enabled)
	assert.Equal(t, []string{"env:home"}, cfg.Datadog.Tags)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "server_url: http://from-file:8000\n")
	t.Setenv("AQUADECK_SERVER_URL", "http://from-env:8000")
	t.Setenv("AQUADECK_NTFY_TOPIC", "env-topic")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:8000", cfg.ServerURL)
	assert.Equal(t, "env-topic", cfg.Ntfy.Topic)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := &Config{
		ServerURL:      "not a url",
		RequestTimeout: 0,
		PollInterval:   100 * time.Millisecond,
		ScanTimeout:    2 * time.Minute,
		JournalPath:    "",
		LogLevel:       "loud",
	}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "server_url")
	assert.Contains(t, msg, "request_timeout")
	assert.Contains(t, msg, "poll_interval")
	assert.Contains(t, msg, "scan_timeout")
	assert.Contains(t, msg, "journal_path")
	assert.Contains(t, msg, "log_level")
}

func TestValidateDatadogNeedsAddr(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.Datadog.Enabled = true
	cfg.Datadog.AgentAddr = ""
	assert.Error(t, cfg.Validate())
}
