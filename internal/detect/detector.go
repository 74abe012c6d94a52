// Package detect is the engine's boundary to the object detector/tracker.
// The engine only depends on the Detector interface; the bundled
// implementation runs a YOLO network through the gocv DNN module and
// assigns track identities with a greedy IoU matcher.
package detect

import (
	"gocv.io/x/gocv"

	"parkwatch-service/internal/domain/violation"
)

// Detector consumes a raw frame and returns the objects found in it.
// Detections are synchronous relative to the frame they were given; track
// identifiers are stable across consecutive frames only for the lifetime
// of the detector instance.
type Detector interface {
	Detect(frame gocv.Mat) ([]violation.Detection, error)
	Close() error
}
