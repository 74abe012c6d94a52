// Package evidence persists the durable artifacts of a confirmed
// violation: an annotated snapshot and a structured JSON record sharing a
// timestamp-and-track-id key.
package evidence

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"parkwatch-service/internal/domain/violation"
	"parkwatch-service/internal/zones"
)

// ErrPersistence marks a failed artifact write. Never fatal: the violation
// stands in memory and the notification still goes out, the artifact is
// simply missing.
var ErrPersistence = errors.New("evidence persistence failed")

var annotationColor = color.RGBA{R: 255, A: 255}

// Writer renders and stores evidence under outputDir/snapshots and
// outputDir/logs.
type Writer struct {
	outputDir   string
	snapshotDir string
	recordDir   string
	log         zerolog.Logger
}

func NewWriter(outputDir string, log zerolog.Logger) (*Writer, error) {
	w := &Writer{
		outputDir:   outputDir,
		snapshotDir: filepath.Join(outputDir, "snapshots"),
		recordDir:   filepath.Join(outputDir, "logs"),
		log:         log.With().Str("component", "evidence").Logger(),
	}
	for _, dir := range []string{w.snapshotDir, w.recordDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create evidence dir %s: %w", dir, err)
		}
	}
	return w, nil
}

// artifactKey is unique per (timestamp, track_id). A same-second collision
// would imply a duplicate violation decision, which the tracker's
// idempotence rule prevents; overwriting is acceptable in that case.
func artifactKey(rec violation.Record) string {
	return fmt.Sprintf("violation_%s_id%d", rec.Timestamp.Format("20060102-150405"), rec.TrackID)
}

// Capture writes both artifacts and returns the completed record with its
// snapshot path filled in. A failed snapshot write clears the path but the
// record file is still attempted, so the textual evidence survives alone.
func (w *Writer) Capture(frame gocv.Mat, rec violation.Record, zone zones.Zone) (violation.Record, error) {
	key := artifactKey(rec)
	rec.SnapshotPath = filepath.ToSlash(filepath.Join("output", "snapshots", key+".jpg"))

	var errs []error
	if err := w.writeSnapshot(frame, rec, zone, filepath.Join(w.snapshotDir, key+".jpg")); err != nil {
		rec.SnapshotPath = ""
		errs = append(errs, err)
	}

	if err := w.writeRecord(rec, filepath.Join(w.recordDir, key+".json")); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return rec, fmt.Errorf("%w: %w", ErrPersistence, errors.Join(errs...))
	}

	w.log.Info().
		Int("track_id", rec.TrackID).
		Str("zone", rec.ZoneName).
		Str("key", key).
		Msg("evidence written")
	return rec, nil
}

// writeSnapshot renders the zone polygon, bounding box and label onto a
// copy of the frame and stores it as JPEG.
func (w *Writer) writeSnapshot(frame gocv.Mat, rec violation.Record, zone zones.Zone, path string) error {
	snap := frame.Clone()
	defer snap.Close()

	if len(zone.Points) >= 3 {
		pv := gocv.NewPointsVectorFromPoints([][]image.Point{zone.Points})
		gocv.Polylines(&snap, pv, true, annotationColor, 2)
		pv.Close()
	}
	gocv.Rectangle(&snap, rec.BoundingBox.Rect(), annotationColor, 2)

	label := fmt.Sprintf("ID: %d (%.2f)", rec.TrackID, rec.Confidence)
	gocv.PutText(&snap, label, image.Pt(rec.BoundingBox.X1, rec.BoundingBox.Y1-10),
		gocv.FontHersheySimplex, 0.7, annotationColor, 2)

	if ok := gocv.IMWrite(path, snap); !ok {
		return fmt.Errorf("write snapshot %s", path)
	}
	return nil
}

func (w *Writer) writeRecord(rec violation.Record, path string) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write record %s: %w", path, err)
	}
	return nil
}
