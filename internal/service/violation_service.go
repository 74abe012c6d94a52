package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"parkwatch-service/internal/domain/violation"
	"parkwatch-service/internal/repository"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// Broadcaster fans an event out to connected dashboard observers and
// reports how many received it.
type Broadcaster interface {
	Broadcast(payload interface{}) int
}

type ViolationService struct {
	repo *repository.ViolationRepository
	hub  Broadcaster
	log  zerolog.Logger
}

func NewViolationService(repo *repository.ViolationRepository, hub Broadcaster, log zerolog.Logger) *ViolationService {
	return &ViolationService{
		repo: repo,
		hub:  hub,
		log:  log,
	}
}

// ProcessIncomingEvent validates an engine notification, persists it when
// it is a violation, and fans it out to connected observers. Cleared
// events are broadcast only.
func (s *ViolationService) ProcessIncomingEvent(ctx context.Context, payload violation.EventPayload) (*violation.ProcessResult, error) {
	if payload.ZoneName == "" {
		return nil, fmt.Errorf("%w: zone_name is required", ErrInvalidInput)
	}
	if payload.Timestamp.IsZero() {
		return nil, fmt.Errorf("%w: timestamp is required", ErrInvalidInput)
	}
	if payload.Type() == violation.EventViolation && payload.TrackID <= 0 {
		return nil, fmt.Errorf("%w: track_id is required", ErrInvalidInput)
	}

	result := &violation.ProcessResult{
		Event:    payload.Type(),
		TrackID:  payload.TrackID,
		ZoneName: payload.ZoneName,
	}

	if payload.Type() == violation.EventViolation {
		event := &violation.Event{EventPayload: payload}
		if err := s.repo.CreateViolation(ctx, event); err != nil {
			s.log.Error().
				Err(err).
				Int("track_id", payload.TrackID).
				Str("zone_name", payload.ZoneName).
				Msg("failed to create violation event")
			return nil, fmt.Errorf("failed to create violation event: %w", err)
		}
		result.EventID = event.ID
		result.Persisted = true

		s.log.Info().
			Int64("event_id", event.ID).
			Int("track_id", payload.TrackID).
			Str("zone_name", payload.ZoneName).
			Str("class_label", payload.ClassLabel).
			Time("timestamp", payload.Timestamp).
			Msg("saved violation event to database")
	}

	result.Broadcast = s.hub.Broadcast(payload)

	s.log.Debug().
		Str("event", string(payload.Type())).
		Int("track_id", payload.TrackID).
		Str("zone_name", payload.ZoneName).
		Int("observers", result.Broadcast).
		Msg("event broadcast to observers")

	return result, nil
}

// FindViolations lists stored violations filtered by zone and time range.
func (s *ViolationService) FindViolations(ctx context.Context, zoneName *string, from, to *string, limit, offset int) ([]EventInfo, error) {
	var fromTime, toTime *time.Time
	if from != nil && *from != "" {
		t, err := time.Parse(time.RFC3339, *from)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid from time format", ErrInvalidInput)
		}
		fromTime = &t
	}
	if to != nil && *to != "" {
		t, err := time.Parse(time.RFC3339, *to)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid to time format", ErrInvalidInput)
		}
		toTime = &t
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	if zoneName != nil && *zoneName == "" {
		zoneName = nil
	}

	events, err := s.repo.FindViolations(ctx, zoneName, fromTime, toTime, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find violations: %w", err)
	}

	result := make([]EventInfo, 0, len(events))
	for _, e := range events {
		info := EventInfo{
			ID:           e.ID,
			TrackID:      e.TrackID,
			ZoneName:     e.ZoneName,
			ClassLabel:   e.ClassLabel,
			Confidence:   e.Confidence,
			SnapshotPath: e.SnapshotPath,
			EventTime:    e.EventTime,
		}
		if len(e.BoundingBox) > 0 {
			var box violation.BoundingBox
			if err := json.Unmarshal(e.BoundingBox, &box); err == nil {
				info.BoundingBox = &box
			}
		}
		result = append(result, info)
	}

	return result, nil
}

// CountViolationsSince reports how many violations were recorded at or
// after the given time.
func (s *ViolationService) CountViolationsSince(ctx context.Context, since time.Time) (int64, error) {
	return s.repo.CountSince(ctx, since)
}

// CleanupOldViolations deletes violations older than the given number of
// days. Snapshot files on disk are left for the filesystem cleanup job.
func (s *ViolationService) CleanupOldViolations(ctx context.Context, days int) (int64, error) {
	deleted, err := s.repo.DeleteOldViolations(ctx, days)
	if err != nil {
		s.log.Error().Err(err).Int("days", days).Msg("failed to cleanup old violations")
		return 0, err
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted_count", deleted).Int("days", days).Msg("cleaned up old violations")
	}
	return deleted, nil
}

type EventInfo struct {
	ID           int64                  `json:"id"`
	TrackID      int                    `json:"track_id"`
	ZoneName     string                 `json:"zone_name"`
	ClassLabel   *string                `json:"class_label,omitempty"`
	Confidence   *float64               `json:"confidence,omitempty"`
	BoundingBox  *violation.BoundingBox `json:"bounding_box,omitempty"`
	SnapshotPath *string                `json:"snapshot_path,omitempty"`
	EventTime    time.Time              `json:"event_time"`
}
