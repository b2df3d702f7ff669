// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package feed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CheckpointStore persists feed positions in DuckDB.
type CheckpointStore struct {
	db *sql.DB
}

// NewCheckpointStore wraps a DuckDB connection.
func NewCheckpointStore(db *sql.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// InitSchema creates the feed_checkpoints table.
func (s *CheckpointStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS feed_checkpoints (
			source     TEXT PRIMARY KEY,
			time_ms    BIGINT NOT NULL,
			device_id  TEXT NOT NULL,
			lat        DOUBLE NOT NULL,
			lon        DOUBLE NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create feed_checkpoints: %w", err)
	}
	return nil
}

// Load returns the checkpoint for source, or the zero checkpoint.
func (s *CheckpointStore) Load(ctx context.Context, source string) (Checkpoint, error) {
	var cp Checkpoint
	err := s.db.QueryRowContext(ctx,
		`SELECT time_ms, device_id, lat, lon FROM feed_checkpoints WHERE source = ?`, source).
		Scan(&cp.TimeMs, &cp.DeviceID, &cp.Lat, &cp.Lon)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, nil
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint %s: %w", source, err)
	}
	return cp, nil
}

// Save upserts the checkpoint for source.
func (s *CheckpointStore) Save(ctx context.Context, source string, cp Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feed_checkpoints (source, time_ms, device_id, lat, lon, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (source) DO UPDATE SET
			time_ms = excluded.time_ms,
			device_id = excluded.device_id,
			lat = excluded.lat,
			lon = excluded.lon,
			updated_at = excluded.updated_at`,
		source, cp.TimeMs, cp.DeviceID, cp.Lat, cp.Lon, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", source, err)
	}
	return nil
}
