package detect

import (
	"sort"

	"parkwatch-service/internal/domain/violation"
)

const (
	// matchIOU is the minimum overlap for a detection to continue an
	// existing track.
	matchIOU = 0.3
	// maxMissedFrames is how many frames a track may go unmatched before
	// its identifier is retired.
	maxMissedFrames = 30
)

type trackState struct {
	box    violation.BoundingBox
	class  string
	missed int
}

// trackAssigner stitches per-frame detections into tracks by greedy IoU
// matching against the previous frame's boxes. Identifiers are stable for
// as long as the object keeps overlapping its last position; a detection
// that matches nothing starts a new track.
type trackAssigner struct {
	nextID int
	tracks map[int]*trackState
}

func newTrackAssigner() *trackAssigner {
	return &trackAssigner{nextID: 1, tracks: make(map[int]*trackState)}
}

// assign sets TrackID on each detection in place.
func (a *trackAssigner) assign(dets []violation.Detection) {
	type candidate struct {
		detIdx  int
		trackID int
		iou     float64
	}

	var candidates []candidate
	for i, det := range dets {
		for id, tr := range a.tracks {
			if tr.class != det.ClassLabel {
				continue
			}
			if v := iou(det.Box, tr.box); v >= matchIOU {
				candidates = append(candidates, candidate{detIdx: i, trackID: id, iou: v})
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].iou > candidates[j].iou })

	usedDet := make(map[int]bool)
	usedTrack := make(map[int]bool)
	for _, c := range candidates {
		if usedDet[c.detIdx] || usedTrack[c.trackID] {
			continue
		}
		usedDet[c.detIdx] = true
		usedTrack[c.trackID] = true

		id := c.trackID
		dets[c.detIdx].TrackID = &id
		a.tracks[id].box = dets[c.detIdx].Box
		a.tracks[id].missed = 0
	}

	for i := range dets {
		if usedDet[i] {
			continue
		}
		id := a.nextID
		a.nextID++
		dets[i].TrackID = &id
		a.tracks[id] = &trackState{box: dets[i].Box, class: dets[i].ClassLabel}
	}

	for id, tr := range a.tracks {
		if usedTrack[id] {
			continue
		}
		matchedThisFrame := false
		for i := range dets {
			if dets[i].TrackID != nil && *dets[i].TrackID == id {
				matchedThisFrame = true
				break
			}
		}
		if matchedThisFrame {
			continue
		}
		tr.missed++
		if tr.missed > maxMissedFrames {
			delete(a.tracks, id)
		}
	}
}

func iou(a, b violation.BoundingBox) float64 {
	ix1 := max(a.X1, b.X1)
	iy1 := max(a.Y1, b.Y1)
	ix2 := min(a.X2, b.X2)
	iy2 := min(a.Y2, b.Y2)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	inter := float64((ix2 - ix1) * (iy2 - iy1))
	areaA := float64((a.X2 - a.X1) * (a.Y2 - a.Y1))
	areaB := float64((b.X2 - b.X1) * (b.Y2 - b.Y1))
	return inter / (areaA + areaB - inter)
}
