package repository

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"parkwatch-service/internal/domain/violation"
)

type ViolationRepository struct {
	db *gorm.DB
}

func NewViolationRepository(db *gorm.DB) *ViolationRepository {
	return &ViolationRepository{db: db}
}

// ViolationEvent is the stored form of a confirmed violation.
type ViolationEvent struct {
	ID           int64     `gorm:"primaryKey"`
	TrackID      int       `gorm:"not null"`
	EventTime    time.Time `gorm:"not null"`
	ZoneName     string    `gorm:"not null"`
	ClassLabel   *string
	Confidence   *float64
	BoundingBox  datatypes.JSON
	SnapshotPath *string
	RawPayload   datatypes.JSON
	CreatedAt    time.Time
}

func (ViolationEvent) TableName() string { return "violations" }

// CreateViolation stores an incoming violation event and backfills the
// generated row ID into the domain event.
func (r *ViolationRepository) CreateViolation(ctx context.Context, event *violation.Event) error {
	dbEvent := ViolationEvent{
		TrackID:   event.TrackID,
		EventTime: event.Timestamp,
		ZoneName:  event.ZoneName,
		CreatedAt: time.Now(),
	}

	if event.ClassLabel != "" {
		dbEvent.ClassLabel = &event.ClassLabel
	}
	if event.Confidence != 0 {
		dbEvent.Confidence = &event.Confidence
	}
	if event.SnapshotPath != "" {
		dbEvent.SnapshotPath = &event.SnapshotPath
	}
	if event.BoundingBox != nil {
		if data, err := json.Marshal(event.BoundingBox); err == nil {
			dbEvent.BoundingBox = data
		}
	}
	if len(event.RawPayload) > 0 {
		if data, err := json.Marshal(event.RawPayload); err == nil {
			dbEvent.RawPayload = data
		}
	}

	if err := r.db.WithContext(ctx).Create(&dbEvent).Error; err != nil {
		return err
	}

	event.ID = dbEvent.ID
	return nil
}

// FindViolations lists stored violations, newest first.
func (r *ViolationRepository) FindViolations(ctx context.Context, zoneName *string, from, to *time.Time, limit, offset int) ([]ViolationEvent, error) {
	query := r.db.WithContext(ctx).Model(&ViolationEvent{})

	if zoneName != nil {
		query = query.Where("zone_name = ?", *zoneName)
	}
	if from != nil {
		query = query.Where("event_time >= ?", *from)
	}
	if to != nil {
		query = query.Where("event_time <= ?", *to)
	}

	query = query.Order("event_time DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var events []ViolationEvent
	err := query.Find(&events).Error
	return events, err
}

// CountSince reports how many violations were recorded at or after the
// given time, for the dashboard status line.
func (r *ViolationRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ViolationEvent{}).
		Where("event_time >= ?", since).
		Count(&count).Error
	return count, err
}

// DeleteOldViolations removes rows older than the given number of days,
// mirroring the evidence cleanup utility.
func (r *ViolationRepository) DeleteOldViolations(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	result := r.db.WithContext(ctx).
		Where("event_time < ?", cutoff).
		Delete(&ViolationEvent{})
	return result.RowsAffected, result.Error
}
