// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/shadowcheck/internal/database"
	"github.com/tomtom215/shadowcheck/internal/faults"
	"github.com/tomtom215/shadowcheck/internal/logging"
)

// DuckDBStore persists sightings, anomalies, per-user configs and the device
// whitelist.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a store over an open DuckDB handle.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// InitSchema creates the detection tables if they don't exist.
func (s *DuckDBStore) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sightings (
			device_id TEXT NOT NULL,
			observed_at TIMESTAMP NOT NULL,
			lat DOUBLE NOT NULL,
			lon DOUBLE NOT NULL,
			altitude DOUBLE,
			signal_strength INTEGER NOT NULL DEFAULT 0,
			accuracy DOUBLE NOT NULL DEFAULT 0,
			source TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (device_id, observed_at, lat, lon)
		)`,
		`CREATE TABLE IF NOT EXISTS anomalies (
			id TEXT PRIMARY KEY,
			pass_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			anomaly_type TEXT NOT NULL,
			confidence DOUBLE NOT NULL,
			primary_device TEXT NOT NULL,
			related_devices TEXT NOT NULL,
			geometry TEXT NOT NULL,
			evidence TEXT NOT NULL,
			first_seen TIMESTAMP NOT NULL,
			last_seen TIMESTAMP NOT NULL,
			detected_at TIMESTAMP NOT NULL,
			origin_key TEXT NOT NULL UNIQUE,
			investigation_priority INTEGER NOT NULL DEFAULT 0,
			significance TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS detection_configs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE,
			version INTEGER NOT NULL,
			payload TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS device_whitelist (
			user_id TEXT NOT NULL,
			device_id TEXT NOT NULL,
			added_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, device_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sightings_observed_at ON sightings(observed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_user_device ON anomalies(user_id, primary_device)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_detected_at ON anomalies(detected_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}
	return nil
}

// InsertSightings stores sightings under their normalized device ids,
// ignoring exact duplicates and sightings without a device id. It returns
// the number of new rows.
func (s *DuckDBStore) InsertSightings(ctx context.Context, sightings []Sighting) (int, error) {
	if len(sightings) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin sighting insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sightings (device_id, observed_at, lat, lon, altitude, signal_strength, accuracy, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare sighting insert: %w", err)
	}
	defer database.CloseQuietly(stmt)

	inserted := 0
	for i := range sightings {
		sg := &sightings[i]
		deviceID := NormalizeDeviceID(sg.DeviceID)
		if deviceID == "" {
			logging.Debug().Time("observed_at", sg.Timestamp).Str("source", sg.Source).
				Msg("Skipping sighting without device id")
			continue
		}
		var altitude sql.NullFloat64
		if sg.HasAltitude {
			altitude = sql.NullFloat64{Float64: sg.Altitude, Valid: true}
		}
		res, err := stmt.ExecContext(ctx, deviceID, sg.Timestamp.UTC(), sg.Lat, sg.Lon,
			altitude, sg.SignalStrength, sg.Accuracy, sg.Source)
		if err != nil {
			return 0, fmt.Errorf("insert sighting for %s: %w", deviceID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit sightings: %w", err)
	}
	return inserted, nil
}

// SightingsBetween returns every sighting observed in [from, to], ordered by
// device and time.
func (s *DuckDBStore) SightingsBetween(ctx context.Context, from, to time.Time) ([]Sighting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, observed_at, lat, lon, altitude, signal_strength, accuracy, source
		FROM sightings
		WHERE observed_at >= ? AND observed_at <= ?
		ORDER BY device_id, observed_at`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query sightings: %w", err)
	}
	defer database.CloseQuietly(rows)

	var out []Sighting
	for rows.Next() {
		var (
			sg       Sighting
			altitude sql.NullFloat64
		)
		if err := rows.Scan(&sg.DeviceID, &sg.Timestamp, &sg.Lat, &sg.Lon, &altitude,
			&sg.SignalStrength, &sg.Accuracy, &sg.Source); err != nil {
			return nil, fmt.Errorf("scan sighting: %w", err)
		}
		sg.Timestamp = sg.Timestamp.UTC()
		if altitude.Valid {
			sg.Altitude, sg.HasAltitude = altitude.Float64, true
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

const anomalyColumns = `id, pass_id, user_id, anomaly_type, confidence, primary_device,
	related_devices, geometry, evidence, first_seen, last_seen, detected_at, origin_key,
	investigation_priority, significance`

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// InsertAnomaly stores a outside any custody transaction. A duplicate origin
// key returns faults.ErrConflict.
func (s *DuckDBStore) InsertAnomaly(ctx context.Context, a *Anomaly) error {
	return insertAnomaly(ctx, s.db, a)
}

// InsertAnomalyTx implements AnomalyStore.
func (s *DuckDBStore) InsertAnomalyTx(ctx context.Context, tx *sql.Tx, a *Anomaly) error {
	return insertAnomaly(ctx, tx, a)
}

func insertAnomaly(ctx context.Context, db execer, a *Anomaly) error {
	related, err := json.Marshal(a.RelatedDevices)
	if err != nil {
		return fmt.Errorf("marshal related devices: %w", err)
	}
	geometry, err := json.Marshal(a.Geometry)
	if err != nil {
		return fmt.Errorf("marshal geometry: %w", err)
	}
	evidence := a.Evidence
	if len(evidence) == 0 {
		evidence = json.RawMessage("null")
	}

	_, err = db.ExecContext(ctx, `INSERT INTO anomalies (`+anomalyColumns+`)
		VALUES (`+database.Placeholders(15)+`)`,
		a.ID, a.PassID, a.UserID, string(a.Type), a.Confidence, a.PrimaryDevice,
		string(related), string(geometry), string(evidence),
		a.FirstSeen.UTC(), a.LastSeen.UTC(), a.DetectedAt.UTC(), a.OriginKey,
		a.InvestigationPriority, a.Significance)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("anomaly %s: %w", a.OriginKey, faults.ErrConflict)
		}
		return fmt.Errorf("insert anomaly: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAnomaly(row rowScanner) (*Anomaly, error) {
	var (
		a                           Anomaly
		anomalyType                 string
		related, geometry, evidence string
	)
	if err := row.Scan(&a.ID, &a.PassID, &a.UserID, &anomalyType, &a.Confidence, &a.PrimaryDevice,
		&related, &geometry, &evidence, &a.FirstSeen, &a.LastSeen, &a.DetectedAt, &a.OriginKey,
		&a.InvestigationPriority, &a.Significance); err != nil {
		return nil, err
	}
	a.Type = AnomalyType(anomalyType)
	a.FirstSeen, a.LastSeen, a.DetectedAt = a.FirstSeen.UTC(), a.LastSeen.UTC(), a.DetectedAt.UTC()
	if err := json.Unmarshal([]byte(related), &a.RelatedDevices); err != nil {
		return nil, fmt.Errorf("decode related devices: %w", err)
	}
	if err := json.Unmarshal([]byte(geometry), &a.Geometry); err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	a.Evidence = json.RawMessage(evidence)
	return &a, nil
}

// GetAnomaly returns one anomaly or a *faults.NotFoundError.
func (s *DuckDBStore) GetAnomaly(ctx context.Context, id string) (*Anomaly, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+anomalyColumns+` FROM anomalies WHERE id = ?`, id)
	a, err := scanAnomaly(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.NotFound("anomaly", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get anomaly %s: %w", id, err)
	}
	return a, nil
}

// ListAnomalies returns a user's anomalies, newest first.
func (s *DuckDBStore) ListAnomalies(ctx context.Context, userID string, limit int) ([]*Anomaly, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+anomalyColumns+` FROM anomalies
		WHERE user_id = ? ORDER BY detected_at DESC, id LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	defer database.CloseQuietly(rows)

	var out []*Anomaly
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountPriorAnomalies counts a user's anomalies whose primary device is
// deviceID detected since the given time, excluding excludeID.
func (s *DuckDBStore) CountPriorAnomalies(ctx context.Context, userID, deviceID string, since time.Time, excludeID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM anomalies
		WHERE user_id = ? AND primary_device = ? AND detected_at >= ? AND id <> ?`,
		userID, deviceID, since.UTC(), excludeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count prior anomalies: %w", err)
	}
	return n, nil
}

// UpdateInvestigation sets the analyst-editable fields. Nothing else about an
// anomaly ever changes after creation.
func (s *DuckDBStore) UpdateInvestigation(ctx context.Context, id string, inv Investigation) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE anomalies SET investigation_priority = ?, significance = ? WHERE id = ?`,
		inv.Priority, inv.Significance, id)
	if err != nil {
		return fmt.Errorf("update investigation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return faults.NotFound("anomaly", id)
	}
	return nil
}

// GetConfig implements ConfigStore.
func (s *DuckDBStore) GetConfig(ctx context.Context, userID string) (*DetectionConfig, error) {
	var payload string
	var version int
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, version FROM detection_configs WHERE user_id = ?`, userID).Scan(&payload, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.NotFound("config", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get config for %s: %w", userID, err)
	}
	return decodeConfig(payload, version)
}

// ListConfigs implements ConfigStore.
func (s *DuckDBStore) ListConfigs(ctx context.Context) ([]*DetectionConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload, version FROM detection_configs ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	defer database.CloseQuietly(rows)

	var out []*DetectionConfig
	for rows.Next() {
		var payload string
		var version int
		if err := rows.Scan(&payload, &version); err != nil {
			return nil, fmt.Errorf("scan config: %w", err)
		}
		cfg, err := decodeConfig(payload, version)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func decodeConfig(payload string, version int) (*DetectionConfig, error) {
	var cfg DetectionConfig
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Version = version
	return &cfg, nil
}

// SaveConfig implements ConfigStore. A config with Version 0 is inserted;
// otherwise the stored row must still be at cfg.Version. On success
// cfg.Version and cfg.UpdatedAt hold the stored values.
func (s *DuckDBStore) SaveConfig(ctx context.Context, cfg *DetectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	next := *cfg
	next.Version = cfg.Version + 1
	next.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if cfg.Version == 0 {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO detection_configs (id, user_id, version, payload, updated_at)
			VALUES (?, ?, ?, ?, ?)`, next.ID, next.UserID, next.Version, string(payload), next.UpdatedAt)
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("config for %s already exists: %w", cfg.UserID, faults.ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("insert config: %w", err)
		}
	} else {
		res, err := s.db.ExecContext(ctx, `
			UPDATE detection_configs SET version = ?, payload = ?, updated_at = ?
			WHERE user_id = ? AND version = ?`,
			next.Version, string(payload), next.UpdatedAt, cfg.UserID, cfg.Version)
		if err != nil {
			if database.IsTransactionConflict(err) {
				return fmt.Errorf("config for %s: %w", cfg.UserID, faults.ErrConflict)
			}
			return fmt.Errorf("update config: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("config for %s changed since version %d: %w", cfg.UserID, cfg.Version, faults.ErrConflict)
		}
	}

	cfg.Version, cfg.UpdatedAt = next.Version, next.UpdatedAt
	return nil
}

// AddToWhitelist whitelists a device for a user. Re-adding is a no-op.
func (s *DuckDBStore) AddToWhitelist(ctx context.Context, userID, deviceID string) error {
	deviceID = NormalizeDeviceID(deviceID)
	if deviceID == "" {
		return faults.Invalid("device_id", "is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_whitelist (user_id, device_id, added_at) VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING`, userID, deviceID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("whitelist %s: %w", deviceID, err)
	}
	return nil
}

// Whitelist implements AnomalyStore.
func (s *DuckDBStore) Whitelist(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT device_id FROM device_whitelist WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query whitelist: %w", err)
	}
	defer database.CloseQuietly(rows)

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan whitelist: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}
