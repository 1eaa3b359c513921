package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	// 默认配置应已落盘
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLoadPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	doc := `
[general]
log_directory = "/var/log/usbtracker"

[alerts]
alert_threshold_mb = 10

[alerts.time_based_alerts]
start = "22:00"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/log/usbtracker", cfg.General.LogDirectory)
	assert.Equal(t, 10, cfg.Alerts.AlertThresholdMB)
	assert.Equal(t, "22:00", cfg.Alerts.TimeBasedAlerts.Start)

	// 未给出的键保留默认值
	assert.Equal(t, "07:00", cfg.Alerts.TimeBasedAlerts.End)
	assert.Equal(t, []string{"*"}, cfg.Monitoring.IncludeFileExtensions)
	assert.Equal(t, 90, cfg.Security.LogRetentionDays)
}

func TestLoadIgnoresUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	doc := `
some_future_key = "whatever"

[general]
log_directory = "logs2"
another_unknown = 42
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "logs2", cfg.General.LogDirectory)
}

func TestLoadBadFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("не toml {{{"), 0o644))

	cfg, err := Load(path)
	assert.Error(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	want := Default()
	want.Monitoring.MinFileSizeBytes = 1234
	want.Alerts.SuspiciousExtensions = []string{".key", ".pem"}
	want.Security.HashAlgorithm = "sha1"
	require.NoError(t, want.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
