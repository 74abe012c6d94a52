package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, ErrConfigMissing)
}

func TestLoadRequiresVideoSource(t *testing.T) {
	path := writeSettings(t, "log_level: info\n")

	_, err := Load(path)
	assert.ErrorContains(t, err, "video_source")
}

func TestLoadDefaults(t *testing.T) {
	path := writeSettings(t, `
engine:
  video_source: "rtsp://camera.local/stream"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "config/zones.json", cfg.Engine.ZoneFile)
	assert.Equal(t, "output", cfg.Engine.OutputDir)
	assert.Equal(t, []string{"motorcycle"}, cfg.Engine.ViolationClasses)
	assert.Equal(t, 10*time.Second, cfg.Engine.ViolationThresholdDuration())
	assert.Equal(t, 3*time.Second, cfg.Engine.GracePeriodDuration())
	assert.Equal(t, 640, cfg.Engine.Model.InputSize)
	assert.Equal(t, ":8080", cfg.Dashboard.ListenAddr)
	assert.Equal(t, "parkwatch/violations", cfg.MQTT.Topic)
}

func TestLoadOverrides(t *testing.T) {
	path := writeSettings(t, `
log_level: debug
engine:
  video_source: "0"
  violation_threshold_seconds: 2.5
  grace_period_seconds: 1
  violation_classes: ["motorcycle", "bicycle"]
dashboard:
  listen_addr: ":9090"
  allow_origins: ["http://dashboard.local"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "0", cfg.Engine.VideoSource)
	assert.Equal(t, 2500*time.Millisecond, cfg.Engine.ViolationThresholdDuration())
	assert.Equal(t, time.Second, cfg.Engine.GracePeriodDuration())
	assert.Equal(t, []string{"motorcycle", "bicycle"}, cfg.Engine.ViolationClasses)
	assert.Equal(t, ":9090", cfg.Dashboard.ListenAddr)
	assert.Equal(t, []string{"http://dashboard.local"}, cfg.Dashboard.AllowOrigins)
}
