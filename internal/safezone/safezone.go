// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package safezone stores per-user geofences (home, work) in which selected
// anomaly types are suppressed, and answers "does this point fall in an
// active zone flagged for this type".
package safezone

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/shadowcheck/internal/database"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/faults"
)

// Point is one polygon vertex.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Zone is a geofence with per-type suppression flags.
type Zone struct {
	ID            string                  `json:"id"`
	UserID        string                  `json:"user_id"`
	Name          string                  `json:"name"`
	Polygon       []Point                 `json:"polygon"`
	SuppressTypes []detection.AnomalyType `json:"suppress_types"`
	Active        bool                    `json:"active"`
	CreatedAt     time.Time               `json:"created_at"`
}

// Suppresses reports whether the zone is flagged for t.
func (z *Zone) Suppresses(t detection.AnomalyType) bool {
	for _, s := range z.SuppressTypes {
		if s == t {
			return true
		}
	}
	return false
}

// Contains reports whether (lat, lon) lies inside the polygon, using the
// even-odd rule. Points exactly on an edge may fall either way.
func (z *Zone) Contains(lat, lon float64) bool {
	inside := false
	n := len(z.Polygon)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := z.Polygon[i], z.Polygon[j]
		if (a.Lat > lat) != (b.Lat > lat) &&
			lon < (b.Lon-a.Lon)*(lat-a.Lat)/(b.Lat-a.Lat)+a.Lon {
			inside = !inside
		}
	}
	return inside
}

// Validate rejects degenerate polygons, bad coordinates and unknown types.
func (z *Zone) Validate() error {
	if strings.TrimSpace(z.UserID) == "" {
		return faults.Invalid("user_id", "is required")
	}
	if strings.TrimSpace(z.Name) == "" {
		return faults.Invalid("name", "is required")
	}
	if len(z.Polygon) < 3 {
		return faults.Invalid("polygon", "needs at least 3 vertices, got %d", len(z.Polygon))
	}
	for i, p := range z.Polygon {
		if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
			return faults.Invalid("polygon", "vertex %d (%g, %g) is not a valid coordinate", i, p.Lat, p.Lon)
		}
	}
	if len(z.SuppressTypes) == 0 {
		return faults.Invalid("suppress_types", "at least one anomaly type is required")
	}
	for _, t := range z.SuppressTypes {
		if !t.Valid() {
			return faults.Invalid("suppress_types", "unknown anomaly type %q", t)
		}
	}
	return nil
}

// Registry is the DuckDB-backed safe zone store.
type Registry struct {
	db  *sql.DB
	now func() time.Time
}

// NewRegistry creates a registry.
func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db, now: time.Now}
}

// InitSchema creates the safe_zones table.
func (r *Registry) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS safe_zones (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			polygon TEXT NOT NULL,
			suppress_types TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_safe_zones_user ON safe_zones(user_id)`,
	}
	for _, q := range queries {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}
	return nil
}

// Create validates and stores a new active zone.
func (r *Registry) Create(ctx context.Context, z *Zone) error {
	if err := z.Validate(); err != nil {
		return err
	}
	polygon, err := json.Marshal(z.Polygon)
	if err != nil {
		return fmt.Errorf("encode polygon: %w", err)
	}
	types := append([]detection.AnomalyType(nil), z.SuppressTypes...)
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	encodedTypes, err := json.Marshal(types)
	if err != nil {
		return fmt.Errorf("encode suppress types: %w", err)
	}

	z.ID = uuid.New().String()
	z.Active = true
	z.SuppressTypes = types
	z.CreatedAt = r.now().UTC()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO safe_zones (id, user_id, name, polygon, suppress_types, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		z.ID, z.UserID, z.Name, string(polygon), string(encodedTypes), z.Active, z.CreatedAt); err != nil {
		return fmt.Errorf("insert safe zone: %w", err)
	}
	return nil
}

// List returns a user's zones. Inactive zones are included only when asked.
func (r *Registry) List(ctx context.Context, userID string, includeInactive bool) ([]*Zone, error) {
	query := `SELECT id, user_id, name, polygon, suppress_types, active, created_at
		FROM safe_zones WHERE user_id = ?`
	if !includeInactive {
		query += ` AND active`
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list safe zones: %w", err)
	}
	defer database.CloseQuietly(rows)

	var out []*Zone
	for rows.Next() {
		var (
			z              Zone
			polygon, types string
		)
		if err := rows.Scan(&z.ID, &z.UserID, &z.Name, &polygon, &types, &z.Active, &z.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan safe zone: %w", err)
		}
		if err := json.Unmarshal([]byte(polygon), &z.Polygon); err != nil {
			return nil, fmt.Errorf("decode polygon of zone %s: %w", z.ID, err)
		}
		if err := json.Unmarshal([]byte(types), &z.SuppressTypes); err != nil {
			return nil, fmt.Errorf("decode types of zone %s: %w", z.ID, err)
		}
		z.CreatedAt = z.CreatedAt.UTC()
		out = append(out, &z)
	}
	return out, rows.Err()
}

// Deactivate turns a zone off. Zones are kept for the audit trail.
func (r *Registry) Deactivate(ctx context.Context, userID, zoneID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE safe_zones SET active = false WHERE id = ? AND user_id = ?`, zoneID, userID)
	if err != nil {
		return fmt.Errorf("deactivate safe zone: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return faults.NotFound("safe zone", zoneID)
	}
	return nil
}

// Covering returns the first active zone of userID that contains the point
// and is flagged for t, or nil.
func (r *Registry) Covering(ctx context.Context, userID string, lat, lon float64, t detection.AnomalyType) (*Zone, error) {
	zones, err := r.List(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	return Covering(zones, lat, lon, t), nil
}

// Covering is the in-memory form of Registry.Covering.
func Covering(zones []*Zone, lat, lon float64, t detection.AnomalyType) *Zone {
	for _, z := range zones {
		if z.Active && z.Suppresses(t) && z.Contains(lat, lon) {
			return z
		}
	}
	return nil
}
