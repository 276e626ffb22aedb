package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stridelabs/trainpulse/internal/persistence"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Empty(t, cfg.Database.DSN, "in-memory store by default")
	assert.Empty(t, cfg.Redis.Addr, "cache disabled by default")
	assert.Equal(t, 14, cfg.Snapshot.LookbackDays)
	assert.InDelta(t, 0.3, cfg.Guardrails.DefaultCompletenessFloor, 1e-9)
	assert.Zero(t, cfg.Guardrails.CompletenessFloors[persistence.ActionFlagPain],
		"pain flags are actionable on thin data")
	assert.Equal(t, 7*24*time.Hour, cfg.Stats.DefaultSLAWindow)
	assert.Equal(t, 48*time.Hour, cfg.Stats.SLAWindows[persistence.ActionFlagPain])
	assert.Equal(t, 96*time.Hour, cfg.Stats.SLAWindows[persistence.ActionMissedCheckin])
	assert.Equal(t, 8, cfg.TrendWindow)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9999
database:
  dsn: postgres://localhost/trainpulse
redis:
  addr: 127.0.0.1:6379
snapshot:
  lookback_days: 21
trend_window: 12
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/trainpulse", cfg.Database.DSN)
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
	assert.Equal(t, 21, cfg.Snapshot.LookbackDays)
	assert.Equal(t, 12, cfg.TrendWindow)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "unset fields keep their defaults")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidPort(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 70000\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "port")
}

func TestLoad_InvalidRisk(t *testing.T) {
	path := writeConfig(t, "stats:\n  high_priority_risk: 1.5\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "risk")
}

func TestLoad_UnknownSLAAction(t *testing.T) {
	// Durations come through YAML as integer nanoseconds.
	path := writeConfig(t, "stats:\n  sla_windows:\n    massage: 86400000000000\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "unknown action")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
