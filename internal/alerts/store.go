// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package alerts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/shadowcheck/internal/database"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/faults"
	"github.com/tomtom215/shadowcheck/internal/scoring"
)

// DuckDBStore persists alerts and feedback.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a store. Call InitSchema before use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// InitSchema creates the alerts and alert_feedback tables.
func (s *DuckDBStore) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			anomaly_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			anomaly_type TEXT NOT NULL,
			level TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			requires_immediate_attention BOOLEAN NOT NULL DEFAULT false,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			recommended_actions TEXT NOT NULL,
			final_score DOUBLE NOT NULL,
			urgency DOUBLE NOT NULL,
			assessment TEXT NOT NULL,
			threat_level TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			acknowledged_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_user_status ON alerts(user_id, status)`,
		`CREATE TABLE IF NOT EXISTS alert_feedback (
			id TEXT PRIMARY KEY,
			alert_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			anomaly_type TEXT NOT NULL,
			rating TEXT NOT NULL,
			notes TEXT,
			whitelist BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_feedback_window ON alert_feedback(created_at, user_id, anomaly_type)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_feedback_alert ON alert_feedback(alert_id)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}
	return nil
}

const alertColumns = `id, anomaly_id, user_id, anomaly_type, level, status,
	requires_immediate_attention, title, description, recommended_actions,
	final_score, urgency, assessment, threat_level, created_at, acknowledged_at`

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// InsertAlert stores a new alert. A second alert for the same anomaly
// returns faults.ErrConflict.
func (s *DuckDBStore) InsertAlert(ctx context.Context, a *Alert) error {
	return insertAlert(ctx, s.db, a)
}

// InsertAlertTx is InsertAlert inside the caller's transaction.
func (s *DuckDBStore) InsertAlertTx(ctx context.Context, tx *sql.Tx, a *Alert) error {
	return insertAlert(ctx, tx, a)
}

func insertAlert(ctx context.Context, db execer, a *Alert) error {
	actions, err := json.Marshal(a.RecommendedActions)
	if err != nil {
		return fmt.Errorf("marshal recommended actions: %w", err)
	}
	_, err = db.ExecContext(ctx, `INSERT INTO alerts (`+alertColumns+`)
		VALUES (`+database.Placeholders(16)+`)`,
		a.ID, a.AnomalyID, a.UserID, string(a.AnomalyType), string(a.Level), string(a.Status),
		a.RequiresImmediateAttention, a.Title, a.Description, string(actions),
		a.FinalScore, a.Urgency, string(a.Assessment), string(a.ThreatLevel),
		a.CreatedAt.UTC(), nullTime(a.AcknowledgedAt))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("alert for anomaly %s: %w", a.AnomalyID, faults.ErrConflict)
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*Alert, error) {
	var (
		a                                Alert
		anomalyType, level, status       string
		actions, assessment, threatLevel string
		acknowledgedAt                   sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.AnomalyID, &a.UserID, &anomalyType, &level, &status,
		&a.RequiresImmediateAttention, &a.Title, &a.Description, &actions,
		&a.FinalScore, &a.Urgency, &assessment, &threatLevel, &a.CreatedAt, &acknowledgedAt); err != nil {
		return nil, err
	}
	a.AnomalyType = detection.AnomalyType(anomalyType)
	a.Level = Level(level)
	a.Status = Status(status)
	a.Assessment = scoring.Assessment(assessment)
	a.ThreatLevel = scoring.ThreatLevel(threatLevel)
	a.CreatedAt = a.CreatedAt.UTC()
	if acknowledgedAt.Valid {
		t := acknowledgedAt.Time.UTC()
		a.AcknowledgedAt = &t
	}
	if err := json.Unmarshal([]byte(actions), &a.RecommendedActions); err != nil {
		return nil, fmt.Errorf("decode recommended actions: %w", err)
	}
	return &a, nil
}

// GetAlert returns one alert or a *faults.NotFoundError.
func (s *DuckDBStore) GetAlert(ctx context.Context, id string) (*Alert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.NotFound("alert", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get alert %s: %w", id, err)
	}
	return a, nil
}

// ListAlerts returns alerts matching f, newest first.
func (s *DuckDBStore) ListAlerts(ctx context.Context, f Filter) ([]*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	var args []interface{}
	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer database.CloseQuietly(rows)

	var out []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Transition moves an active alert to status `to`, recording fb in the same
// transaction when it is non-nil. It returns false without error when the
// alert exists but is no longer active, and a *faults.NotFoundError when it
// does not exist.
func (s *DuckDBStore) Transition(ctx context.Context, id string, to Status, at time.Time, fb *Feedback) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ok, err := s.TransitionTx(ctx, tx, id, to, at, fb)
	if err != nil || !ok {
		return ok, err
	}
	if err := tx.Commit(); err != nil {
		if database.IsTransactionConflict(err) {
			return false, nil
		}
		return false, fmt.Errorf("commit transition of alert %s: %w", id, err)
	}
	return true, nil
}

// TransitionTx is Transition inside the caller's transaction; the caller
// commits. A false result means nothing was written and the transaction
// should be rolled back.
func (s *DuckDBStore) TransitionTx(ctx context.Context, tx *sql.Tx, id string, to Status, at time.Time, fb *Feedback) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE alerts SET status = ?, acknowledged_at = ?
		WHERE id = ? AND status = 'active'`, string(to), at.UTC(), id)
	if err != nil {
		if database.IsTransactionConflict(err) {
			// A concurrent transition won the race.
			return false, nil
		}
		return false, fmt.Errorf("transition alert %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition alert %s: %w", id, err)
	}
	if n == 0 {
		return false, s.ensureExists(ctx, tx, id)
	}

	if fb != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO alert_feedback (id, alert_id, user_id, anomaly_type, rating, notes, whitelist, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			fb.ID, fb.AlertID, fb.UserID, string(fb.AnomalyType), string(fb.Rating),
			fb.Notes, fb.Whitelist, fb.CreatedAt.UTC()); err != nil {
			return false, fmt.Errorf("insert feedback for alert %s: %w", id, err)
		}
	}
	return true, nil
}

func (s *DuckDBStore) ensureExists(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM alerts WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return faults.NotFound("alert", id)
	}
	if err != nil {
		return fmt.Errorf("check alert %s: %w", id, err)
	}
	return nil
}

// ListFeedback returns the feedback rows of one alert, oldest first.
func (s *DuckDBStore) ListFeedback(ctx context.Context, alertID string) ([]Feedback, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, alert_id, user_id, anomaly_type, rating, COALESCE(notes, ''), whitelist, created_at
		FROM alert_feedback WHERE alert_id = ? ORDER BY created_at, id`, alertID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer database.CloseQuietly(rows)

	var out []Feedback
	for rows.Next() {
		var (
			fb                  Feedback
			anomalyType, rating string
		)
		if err := rows.Scan(&fb.ID, &fb.AlertID, &fb.UserID, &anomalyType, &rating,
			&fb.Notes, &fb.Whitelist, &fb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		fb.AnomalyType = detection.AnomalyType(anomalyType)
		fb.Rating = Rating(rating)
		fb.CreatedAt = fb.CreatedAt.UTC()
		out = append(out, fb)
	}
	return out, rows.Err()
}

// FeedbackCount aggregates ratings for one user and anomaly type.
type FeedbackCount struct {
	UserID        string
	AnomalyType   detection.AnomalyType
	Total         int
	FalsePositive int
}

// FeedbackCounts aggregates feedback created at or after since, ordered by
// user and type.
func (s *DuckDBStore) FeedbackCounts(ctx context.Context, since time.Time) ([]FeedbackCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, anomaly_type, COUNT(*),
			COUNT(*) FILTER (WHERE rating = 'false_positive')
		FROM alert_feedback
		WHERE created_at >= ?
		GROUP BY user_id, anomaly_type
		ORDER BY user_id, anomaly_type`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("aggregate feedback: %w", err)
	}
	defer database.CloseQuietly(rows)

	var out []FeedbackCount
	for rows.Next() {
		var (
			fc          FeedbackCount
			anomalyType string
		)
		if err := rows.Scan(&fc.UserID, &anomalyType, &fc.Total, &fc.FalsePositive); err != nil {
			return nil, fmt.Errorf("scan feedback count: %w", err)
		}
		fc.AnomalyType = detection.AnomalyType(anomalyType)
		out = append(out, fc)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
