package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef-config-test"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pulse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	cfgPath := writeConfig(t, `
server:
  port: 9090
  host: "127.0.0.1"
  mode: "debug"
database:
  type: "memory"
identity:
  secret: "`+testSecret+`"
ingestion:
  max_batch_size: 50
realtime:
  session_timeout: "15m"
alerts:
  interval: "30s"
stream:
  kafka:
    enabled: true
    brokers: ["localhost:9092"]
    topic: "events"
`)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "memory", cfg.Database.Type)
	require.Equal(t, 50, cfg.Ingestion.MaxBatchSize)
	require.Equal(t, 15*time.Minute, cfg.Realtime.SessionTimeoutDuration())
	require.Equal(t, 30*time.Second, cfg.Alerts.IntervalDuration())
	require.Equal(t, time.Hour, cfg.Ingestion.ClockSkewDuration())
	require.Equal(t, []string{"localhost:9092"}, cfg.Stream.Kafka.Brokers)

	// Defaults survive partial files.
	require.Equal(t, 100, cfg.Query.DefaultLimit)
	require.Equal(t, 90, cfg.Query.MaxSpanDays)
	require.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	cfgPath := writeConfig(t, `
database:
  type: "memory"
identity:
  secret: "`+testSecret+`"
`)
	t.Setenv("PULSE_SERVER__PORT", "7000")
	t.Setenv("PULSE_QUERY__MAX_SPAN_DAYS", "30")

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, 7000, cfg.Server.Port)
	require.Equal(t, 30, cfg.Query.MaxSpanDays)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing secret",
			body:    "database:\n  type: memory\n",
			wantErr: "identity.secret",
		},
		{
			name:    "invalid port",
			body:    "server:\n  port: -1\ndatabase:\n  type: memory\nidentity:\n  secret: " + testSecret + "\n",
			wantErr: "invalid server.port",
		},
		{
			name:    "unknown database type",
			body:    "database:\n  type: sqlite\nidentity:\n  secret: " + testSecret + "\n",
			wantErr: "unsupported database.type",
		},
		{
			name:    "bad alert interval",
			body:    "database:\n  type: memory\nidentity:\n  secret: " + testSecret + "\nalerts:\n  interval: nope\n",
			wantErr: "invalid alerts.interval",
		},
		{
			name:    "redis without stream name",
			body:    "database:\n  type: memory\nidentity:\n  secret: " + testSecret + "\nstream:\n  redis:\n    enabled: true\n    stream: \"\"\n",
			wantErr: "stream.redis.stream",
		},
		{
			name:    "default limit above max",
			body:    "database:\n  type: memory\nidentity:\n  secret: " + testSecret + "\nquery:\n  default_limit: 2000\n",
			wantErr: "query.default_limit",
		},
		{
			name:    "bad log format",
			body:    "database:\n  type: memory\nidentity:\n  secret: " + testSecret + "\nlog:\n  format: xml\n",
			wantErr: "invalid log.format",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "failed to load config file")
}
