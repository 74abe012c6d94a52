package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkwatch-service/internal/domain/violation"
)

func det(class string, x1, y1, x2, y2 int) violation.Detection {
	return violation.Detection{
		ClassLabel: class,
		Confidence: 0.9,
		Box:        violation.BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2},
	}
}

func TestAssignKeepsIdentityAcrossFrames(t *testing.T) {
	a := newTrackAssigner()

	frame1 := []violation.Detection{det("motorcycle", 100, 100, 200, 200)}
	a.assign(frame1)
	require.NotNil(t, frame1[0].TrackID)
	id := *frame1[0].TrackID

	// Slightly moved box keeps its identifier.
	frame2 := []violation.Detection{det("motorcycle", 110, 105, 210, 205)}
	a.assign(frame2)
	require.NotNil(t, frame2[0].TrackID)
	assert.Equal(t, id, *frame2[0].TrackID)
}

func TestAssignNewTrackForDistantDetection(t *testing.T) {
	a := newTrackAssigner()

	frame1 := []violation.Detection{det("motorcycle", 100, 100, 200, 200)}
	a.assign(frame1)

	frame2 := []violation.Detection{det("motorcycle", 400, 400, 500, 500)}
	a.assign(frame2)
	require.NotNil(t, frame2[0].TrackID)
	assert.NotEqual(t, *frame1[0].TrackID, *frame2[0].TrackID)
}

func TestAssignClassMismatchNeverMatches(t *testing.T) {
	a := newTrackAssigner()

	frame1 := []violation.Detection{det("motorcycle", 100, 100, 200, 200)}
	a.assign(frame1)

	// Same position, different class: a fresh identifier.
	frame2 := []violation.Detection{det("car", 100, 100, 200, 200)}
	a.assign(frame2)
	require.NotNil(t, frame2[0].TrackID)
	assert.NotEqual(t, *frame1[0].TrackID, *frame2[0].TrackID)
}

func TestAssignGreedyPrefersBestOverlap(t *testing.T) {
	a := newTrackAssigner()

	frame1 := []violation.Detection{det("motorcycle", 100, 100, 200, 200)}
	a.assign(frame1)
	id := *frame1[0].TrackID

	// Two candidates overlap the track; the closer one inherits the
	// identifier, the other starts a new track.
	frame2 := []violation.Detection{
		det("motorcycle", 150, 150, 250, 250),
		det("motorcycle", 102, 101, 202, 201),
	}
	a.assign(frame2)
	require.NotNil(t, frame2[0].TrackID)
	require.NotNil(t, frame2[1].TrackID)
	assert.Equal(t, id, *frame2[1].TrackID)
	assert.NotEqual(t, id, *frame2[0].TrackID)
}

func TestStaleTracksRetired(t *testing.T) {
	a := newTrackAssigner()

	frame := []violation.Detection{det("motorcycle", 100, 100, 200, 200)}
	a.assign(frame)
	id := *frame[0].TrackID

	for i := 0; i <= maxMissedFrames; i++ {
		a.assign(nil)
	}

	// The identifier is gone; the same box starts over.
	again := []violation.Detection{det("motorcycle", 100, 100, 200, 200)}
	a.assign(again)
	require.NotNil(t, again[0].TrackID)
	assert.NotEqual(t, id, *again[0].TrackID)
}

func TestIOU(t *testing.T) {
	a := violation.BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100}

	assert.InDelta(t, 1.0, iou(a, a), 1e-9)
	assert.Zero(t, iou(a, violation.BoundingBox{X1: 200, Y1: 200, X2: 300, Y2: 300}))

	b := violation.BoundingBox{X1: 50, Y1: 0, X2: 150, Y2: 100}
	assert.InDelta(t, 5000.0/15000.0, iou(a, b), 1e-9)
}
