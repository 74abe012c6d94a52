package evidence

import (
	"os"
	"path/filepath"
	"time"
)

// Sweep removes snapshot and record files last modified before the
// cutoff. Missing artifact directories are not an error: a fresh
// deployment has nothing to sweep yet. Returns the number of files
// removed.
func Sweep(outputDir string, cutoff time.Time) (int, error) {
	removed := 0
	for _, dir := range []string{
		filepath.Join(outputDir, "snapshots"),
		filepath.Join(outputDir, "logs"),
	} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
					removed++
				}
			}
		}
	}
	return removed, nil
}
