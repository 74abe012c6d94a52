package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS violations (
		id              BIGSERIAL PRIMARY KEY,
		track_id        BIGINT NOT NULL,
		event_time      TIMESTAMPTZ NOT NULL,
		zone_name       TEXT NOT NULL,
		class_label     TEXT,
		confidence      NUMERIC(5,2),
		bounding_box    JSONB,
		snapshot_path   TEXT,
		raw_payload     JSONB,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_violations_zone_name ON violations(zone_name);`,
	`CREATE INDEX IF NOT EXISTS idx_violations_event_time ON violations(event_time);`,
	`CREATE INDEX IF NOT EXISTS idx_violations_track_id ON violations(track_id);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
