package evidence

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	stamp := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, stamp, stamp))
}

func TestSweepRemovesOnlyExpiredArtifacts(t *testing.T) {
	dir := t.TempDir()
	snapDir := filepath.Join(dir, "snapshots")
	logDir := filepath.Join(dir, "logs")
	require.NoError(t, os.MkdirAll(snapDir, 0o755))
	require.NoError(t, os.MkdirAll(logDir, 0o755))

	writeAged(t, filepath.Join(snapDir, "old.jpg"), 48*time.Hour)
	writeAged(t, filepath.Join(logDir, "old.json"), 48*time.Hour)
	writeAged(t, filepath.Join(snapDir, "recent.jpg"), time.Hour)
	writeAged(t, filepath.Join(logDir, "recent.json"), time.Hour)

	removed, err := Sweep(dir, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	assert.NoFileExists(t, filepath.Join(snapDir, "old.jpg"))
	assert.NoFileExists(t, filepath.Join(logDir, "old.json"))
	assert.FileExists(t, filepath.Join(snapDir, "recent.jpg"))
	assert.FileExists(t, filepath.Join(logDir, "recent.json"))
}

func TestSweepToleratesMissingDirectories(t *testing.T) {
	removed, err := Sweep(filepath.Join(t.TempDir(), "never-created"), time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)
}
