package violation

import (
	"encoding/json"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundingBoxWireFormat(t *testing.T) {
	box := BoundingBox{X1: 10, Y1: 20, X2: 30, Y2: 40}

	data, err := json.Marshal(box)
	require.NoError(t, err)
	assert.JSONEq(t, "[10,20,30,40]", string(data))

	var parsed BoundingBox
	require.NoError(t, json.Unmarshal([]byte("[1,2,3,4]"), &parsed))
	assert.Equal(t, BoundingBox{X1: 1, Y1: 2, X2: 3, Y2: 4}, parsed)

	assert.Error(t, json.Unmarshal([]byte("[1,2,3]"), &parsed))
	assert.Error(t, json.Unmarshal([]byte(`{"x1":1}`), &parsed))
}

func TestBoundingBoxCenter(t *testing.T) {
	box := BoundingBox{X1: 100, Y1: 100, X2: 300, Y2: 200}
	assert.Equal(t, image.Pt(200, 150), box.Center())
}

func TestEventPayloadTypeDefaultsToViolation(t *testing.T) {
	assert.Equal(t, EventViolation, EventPayload{}.Type())
	assert.Equal(t, EventCleared, EventPayload{Event: EventCleared}.Type())
}

func TestPayloadFromRecord(t *testing.T) {
	rec := Record{
		TrackID:      7,
		Timestamp:    time.Date(2026, 8, 30, 14, 5, 9, 0, time.UTC),
		ZoneName:     "lot-A",
		ClassLabel:   "motorcycle",
		Confidence:   0.91,
		BoundingBox:  BoundingBox{X1: 180, Y1: 180, X2: 220, Y2: 220},
		SnapshotPath: "output/snapshots/violation_20260830-140509_id7.jpg",
	}

	p := PayloadFromRecord(rec)
	assert.Equal(t, EventViolation, p.Type())
	assert.Equal(t, rec.TrackID, p.TrackID)
	assert.Equal(t, rec.ZoneName, p.ZoneName)
	require.NotNil(t, p.BoundingBox)
	assert.Equal(t, rec.BoundingBox, *p.BoundingBox)
	assert.Equal(t, rec.SnapshotPath, p.SnapshotPath)
}

func TestPayloadFromCleared(t *testing.T) {
	ev := ClearedEvent{TrackID: 7, ZoneName: "lot-A", Timestamp: time.Now()}

	p := PayloadFromCleared(ev)
	assert.Equal(t, EventCleared, p.Type())
	assert.Equal(t, 7, p.TrackID)
	assert.Equal(t, "lot-A", p.ZoneName)
	assert.Nil(t, p.BoundingBox)
}
