package violation

import (
	"encoding/json"
	"fmt"
	"image"
	"time"
)

// EventType discriminates the notifications the engine sends to the
// dashboard ingress.
type EventType string

const (
	EventViolation EventType = "violation"
	EventCleared   EventType = "violation_cleared"
)

// BoundingBox is an axis-aligned box in frame pixel coordinates with
// X1 < X2 and Y1 < Y2. It marshals as the [x1, y1, x2, y2] array the
// dashboard and the on-disk records use.
type BoundingBox struct {
	X1, Y1, X2, Y2 int
}

func (b BoundingBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{b.X1, b.Y1, b.X2, b.Y2})
}

func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	var coords []int
	if err := json.Unmarshal(data, &coords); err != nil {
		return err
	}
	if len(coords) != 4 {
		return fmt.Errorf("bounding_box must have 4 elements, got %d", len(coords))
	}
	b.X1, b.Y1, b.X2, b.Y2 = coords[0], coords[1], coords[2], coords[3]
	return nil
}

// Center returns the box midpoint, the point evaluated against zones.
func (b BoundingBox) Center() image.Point {
	return image.Pt((b.X1+b.X2)/2, (b.Y1+b.Y2)/2)
}

func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Detection is a single tracked object reported by the detector for one
// frame. TrackID is nil when the tracker could not assign an identity;
// such detections are drawn but never enter the occupancy state machine.
type Detection struct {
	TrackID    *int
	ClassLabel string
	Confidence float64
	Box        BoundingBox
}

// Record is the immutable evidence record produced exactly once per
// violation episode. The engine hands copies to the evidence writer and
// the notifier; neither mutates it.
type Record struct {
	TrackID      int         `json:"track_id"`
	Timestamp    time.Time   `json:"timestamp"`
	ZoneName     string      `json:"zone_name"`
	ClassLabel   string      `json:"class_label"`
	Confidence   float64     `json:"confidence"`
	BoundingBox  BoundingBox `json:"bounding_box"`
	SnapshotPath string      `json:"snapshot_path,omitempty"`
}

// ClearedEvent notifies that a violating track left the area (or was lost
// past the grace period). The persisted record is unaffected.
type ClearedEvent struct {
	TrackID   int       `json:"track_id"`
	ZoneName  string    `json:"zone_name"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPayload is the wire format of the dashboard ingress. A missing
// event field is treated as a violation, which keeps older engine builds
// compatible.
type EventPayload struct {
	Event        EventType              `json:"event,omitempty"`
	TrackID      int                    `json:"track_id"`
	Timestamp    time.Time              `json:"timestamp"`
	ZoneName     string                 `json:"zone_name"`
	ClassLabel   string                 `json:"class_label,omitempty"`
	Confidence   float64                `json:"confidence,omitempty"`
	BoundingBox  *BoundingBox           `json:"bounding_box,omitempty"`
	SnapshotPath string                 `json:"snapshot_path,omitempty"`
	RawPayload   map[string]interface{} `json:"raw_payload,omitempty"`
}

// Type returns the effective event type.
func (p EventPayload) Type() EventType {
	if p.Event == "" {
		return EventViolation
	}
	return p.Event
}

// PayloadFromRecord builds the ingress payload for a confirmed violation.
func PayloadFromRecord(r Record) EventPayload {
	box := r.BoundingBox
	return EventPayload{
		Event:        EventViolation,
		TrackID:      r.TrackID,
		Timestamp:    r.Timestamp,
		ZoneName:     r.ZoneName,
		ClassLabel:   r.ClassLabel,
		Confidence:   r.Confidence,
		BoundingBox:  &box,
		SnapshotPath: r.SnapshotPath,
	}
}

// PayloadFromCleared builds the ingress payload for a cleared violation.
func PayloadFromCleared(c ClearedEvent) EventPayload {
	return EventPayload{
		Event:     EventCleared,
		TrackID:   c.TrackID,
		Timestamp: c.Timestamp,
		ZoneName:  c.ZoneName,
	}
}

// Event is a stored violation event.
type Event struct {
	ID int64
	EventPayload
}

// ProcessResult is returned by the dashboard service after an incoming
// event has been handled.
type ProcessResult struct {
	EventID     int64     `json:"event_id,omitempty"`
	Event       EventType `json:"event"`
	TrackID     int       `json:"track_id"`
	ZoneName    string    `json:"zone_name"`
	Broadcast   int       `json:"broadcast"`
	Persisted   bool      `json:"persisted"`
}
