package engine

import (
	"time"

	"parkwatch-service/internal/domain/violation"
	"parkwatch-service/internal/zones"
)

// Status classifies a detection for this frame, and doubles as the overlay
// color hint (outside: green, timed: yellow, violating: red).
type Status int

const (
	StatusOutside Status = iota
	StatusTimed
	StatusViolating
)

// Observation is the tracker's verdict for one detection on one frame.
// NewRecord is non-nil exactly once per unbroken occupancy episode, on the
// frame the track crosses the violation threshold.
type Observation struct {
	Status    Status
	Zone      string
	Elapsed   time.Duration
	NewRecord *violation.Record
}

// trackTimer is the per-track occupancy state. Created on the first
// in-zone sighting, refreshed on every later one, and deleted by Prune
// once the track has not been seen inside a zone for the grace period.
type trackTimer struct {
	enterTime      time.Time
	lastSeenInZone time.Time
	zone           string
}

// OccupancyTracker is the per-track zone-occupancy state machine. It is
// owned exclusively by the processing loop; no locking, all methods take
// an explicit now so transitions are testable against synthetic clocks.
type OccupancyTracker struct {
	zoneMap   *zones.Map
	classes   map[string]bool
	threshold time.Duration
	grace     time.Duration

	timers map[int]*trackTimer
	active map[int]violation.Record
}

func NewOccupancyTracker(zoneMap *zones.Map, violationClasses []string, threshold, grace time.Duration) *OccupancyTracker {
	classes := make(map[string]bool, len(violationClasses))
	for _, c := range violationClasses {
		classes[c] = true
	}
	return &OccupancyTracker{
		zoneMap:   zoneMap,
		classes:   classes,
		threshold: threshold,
		grace:     grace,
		timers:    make(map[int]*trackTimer),
		active:    make(map[int]violation.Record),
	}
}

// Observe evaluates one detection. Containment is computed fresh per
// frame, never cached. Detections without a track identity never enter
// the state machine.
func (t *OccupancyTracker) Observe(det violation.Detection, now time.Time) Observation {
	if det.TrackID == nil {
		return Observation{Status: StatusOutside}
	}
	id := *det.TrackID

	zone, inZone := t.zoneMap.Contain(det.Box.Center())
	if !inZone || !t.classes[det.ClassLabel] {
		// Not refreshing lastSeenInZone is the whole policy here: expiry
		// is governed solely by the grace-period check in Prune, which
		// tolerates detector flicker and bounding-box noise.
		return Observation{Status: StatusOutside}
	}

	tm, ok := t.timers[id]
	if !ok {
		// The entry frame still reaches the threshold comparison below
		// with elapsed zero, so a zero threshold fires immediately.
		tm = &trackTimer{enterTime: now, zone: zone}
		t.timers[id] = tm
	}

	tm.lastSeenInZone = now
	tm.zone = zone
	elapsed := now.Sub(tm.enterTime)

	if elapsed < t.threshold {
		return Observation{Status: StatusTimed, Zone: zone, Elapsed: elapsed}
	}

	if _, exists := t.active[id]; exists {
		// Already violating; later frames of the same episode are no-ops.
		return Observation{Status: StatusViolating, Zone: zone, Elapsed: elapsed}
	}

	rec := violation.Record{
		TrackID:     id,
		Timestamp:   now,
		ZoneName:    zone,
		ClassLabel:  det.ClassLabel,
		Confidence:  det.Confidence,
		BoundingBox: det.Box,
	}
	t.active[id] = rec

	return Observation{Status: StatusViolating, Zone: zone, Elapsed: elapsed, NewRecord: &rec}
}

// Prune runs once per frame after all detections were observed. Every
// track whose last in-zone sighting is older than the grace period loses
// its timer; if it was violating, the active entry is cleared and a
// cleared event is emitted. Persisted records are unaffected.
func (t *OccupancyTracker) Prune(now time.Time) []violation.ClearedEvent {
	var cleared []violation.ClearedEvent
	for id, tm := range t.timers {
		if now.Sub(tm.lastSeenInZone) <= t.grace {
			continue
		}
		if rec, ok := t.active[id]; ok {
			cleared = append(cleared, violation.ClearedEvent{
				TrackID:   id,
				ZoneName:  rec.ZoneName,
				Timestamp: now,
			})
			delete(t.active, id)
		}
		delete(t.timers, id)
	}
	return cleared
}

// ActiveViolations returns a copy of the active violation set.
func (t *OccupancyTracker) ActiveViolations() []violation.Record {
	out := make([]violation.Record, 0, len(t.active))
	for _, rec := range t.active {
		out = append(out, rec)
	}
	return out
}

// TrackedCount reports how many tracks currently hold a timer.
func (t *OccupancyTracker) TrackedCount() int {
	return len(t.timers)
}
