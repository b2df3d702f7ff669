// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package feed reads sightings and device classification from the
// PostgreSQL import layer.
//
// The import layer appends rows to a location table (bssid, level, lat,
// lon, altitude, accuracy, time in epoch milliseconds) and keeps one row
// per device in a network table (bssid, ssid, type). PostgresSource pages
// through new locations by keyset on (time, bssid, lat, lon); Sync persists
// the last key it ingested so restarts resume where they stopped.
package feed

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/tomtom215/shadowcheck/internal/faults"
	"github.com/tomtom215/shadowcheck/internal/logging"
)

// Config configures the Postgres import-layer connection.
type Config struct {
	Enabled       bool          `koanf:"enabled"`
	DSN           string        `koanf:"dsn"`
	LocationTable string        `koanf:"location_table"`
	NetworkTable  string        `koanf:"network_table"`
	PollInterval  time.Duration `koanf:"poll_interval"`
	BatchSize     int           `koanf:"batch_size" validate:"gte=0"`
}

// DefaultConfig returns the import layer's default table names.
func DefaultConfig() Config {
	return Config{
		LocationTable: "app.locations_legacy",
		NetworkTable:  "app.networks_legacy",
		PollInterval:  time.Minute,
		BatchSize:     5000,
	}
}

var identPart = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// quoteTable quotes a possibly schema-qualified table name.
func quoteTable(name string) (string, error) {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", faults.Invalid("table", "%q has too many qualifiers", name)
	}
	for i, p := range parts {
		if !identPart.MatchString(p) {
			return "", faults.Invalid("table", "%q is not a valid identifier", name)
		}
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, "."), nil
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, faults.Invalid("postgres.dsn", "is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, faults.Unavailable("postgres", err)
	}
	logging.Info().Msg("Connected to import-layer PostgreSQL")
	return db, nil
}
