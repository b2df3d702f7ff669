// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package feed

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/shadowcheck/internal/database"
	"github.com/tomtom215/shadowcheck/internal/detection"
)

// SourceName labels sightings ingested from Postgres.
const SourceName = "postgres"

// Checkpoint is the keyset position of the last ingested location row.
type Checkpoint struct {
	TimeMs   int64
	DeviceID string
	Lat      float64
	Lon      float64
}

// PostgresSource pages through the import layer's location table.
type PostgresSource struct {
	db    *sql.DB
	query string
}

// NewPostgresSource creates a source over locationTable.
func NewPostgresSource(db *sql.DB, locationTable string) (*PostgresSource, error) {
	table, err := quoteTable(locationTable)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT bssid, COALESCE(level, 0), lat, lon, altitude, COALESCE(accuracy, 0), time
		FROM %s
		WHERE (time, bssid, lat, lon) > ($1, $2, $3, $4)
		ORDER BY time, bssid, lat, lon
		LIMIT $5`, table)
	return &PostgresSource{db: db, query: query}, nil
}

// Fetch returns up to limit sightings after cp and the checkpoint of the
// last row returned. With no new rows the checkpoint is unchanged.
func (s *PostgresSource) Fetch(ctx context.Context, cp Checkpoint, limit int) ([]detection.Sighting, Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, s.query, cp.TimeMs, cp.DeviceID, cp.Lat, cp.Lon, limit)
	if err != nil {
		return nil, cp, fmt.Errorf("query locations: %w", err)
	}
	defer database.CloseQuietly(rows)

	var out []detection.Sighting
	next := cp
	for rows.Next() {
		var (
			bssid    string
			level    int
			lat, lon float64
			altitude sql.NullFloat64
			accuracy float64
			timeMs   int64
		)
		if err := rows.Scan(&bssid, &level, &lat, &lon, &altitude, &accuracy, &timeMs); err != nil {
			return nil, cp, fmt.Errorf("scan location: %w", err)
		}
		next = Checkpoint{TimeMs: timeMs, DeviceID: bssid, Lat: lat, Lon: lon}

		sg := detection.Sighting{
			DeviceID:       detection.NormalizeDeviceID(bssid),
			Lat:            lat,
			Lon:            lon,
			Timestamp:      time.UnixMilli(timeMs).UTC(),
			SignalStrength: level,
			Accuracy:       accuracy,
			Source:         SourceName,
		}
		// The import layer writes 0 for unknown altitude.
		if altitude.Valid && altitude.Float64 != 0 {
			sg.Altitude, sg.HasAltitude = altitude.Float64, true
		}
		out = append(out, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, cp, fmt.Errorf("iterate locations: %w", err)
	}
	return out, next, nil
}
