// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package tuning

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tomtom215/shadowcheck/internal/database"
	"github.com/tomtom215/shadowcheck/internal/detection"
)

// DuckDBStore keeps the threshold_adjustments history.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a history store.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// InitSchema creates the threshold_adjustments table.
func (s *DuckDBStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS threshold_adjustments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		anomaly_type TEXT NOT NULL,
		old_value DOUBLE NOT NULL,
		new_value DOUBLE NOT NULL,
		reason TEXT NOT NULL,
		false_positive_rate DOUBLE NOT NULL,
		samples INTEGER NOT NULL,
		applied_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create threshold_adjustments: %w", err)
	}
	return nil
}

// InsertAdjustments implements HistoryStore.
func (s *DuckDBStore) InsertAdjustments(ctx context.Context, adj []Adjustment) error {
	if len(adj) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO threshold_adjustments
		(id, user_id, anomaly_type, old_value, new_value, reason, false_positive_rate, samples, applied_at)
		VALUES (`+database.Placeholders(9)+`)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer database.CloseQuietly(stmt)

	for _, a := range adj {
		if _, err := stmt.ExecContext(ctx, a.ID, a.UserID, string(a.Type), a.Old, a.New, a.Reason,
			a.FalsePositiveRate, a.Samples, a.AppliedAt.UTC()); err != nil {
			return fmt.Errorf("insert adjustment: %w", err)
		}
	}
	return tx.Commit()
}

// ListAdjustments returns a user's adjustments, newest first. An empty
// userID lists everyone's.
func (s *DuckDBStore) ListAdjustments(ctx context.Context, userID string, limit int) ([]Adjustment, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, user_id, anomaly_type, old_value, new_value, reason, false_positive_rate, samples, applied_at
		FROM threshold_adjustments`
	var args []interface{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY applied_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	defer database.CloseQuietly(rows)

	var out []Adjustment
	for rows.Next() {
		var (
			a           Adjustment
			anomalyType string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &anomalyType, &a.Old, &a.New, &a.Reason,
			&a.FalsePositiveRate, &a.Samples, &a.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan adjustment: %w", err)
		}
		a.Type = detection.AnomalyType(anomalyType)
		a.AppliedAt = a.AppliedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
