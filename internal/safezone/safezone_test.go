// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package safezone

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/faults"
)

func setupTestRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("failed to open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	r := NewRegistry(db)
	if err := r.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return r
}

// square around (43, -83), roughly 2 km on a side.
func homeZone() *Zone {
	return &Zone{
		UserID: "u1",
		Name:   "home",
		Polygon: []Point{
			{Lat: 42.99, Lon: -83.01},
			{Lat: 42.99, Lon: -82.99},
			{Lat: 43.01, Lon: -82.99},
			{Lat: 43.01, Lon: -83.01},
		},
		SuppressTypes: []detection.AnomalyType{detection.TypeRouteCorrelation, detection.TypeCoordinatedMovement},
	}
}

func TestContains(t *testing.T) {
	z := homeZone()
	tests := []struct {
		name     string
		lat, lon float64
		want     bool
	}{
		{"center", 43.0, -83.0, true},
		{"near corner inside", 43.009, -82.991, true},
		{"north of zone", 43.02, -83.0, false},
		{"east of zone", 43.0, -82.98, false},
		{"far away", 45.0, -85.0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := z.Contains(tt.lat, tt.lon); got != tt.want {
				t.Errorf("Contains(%g, %g) = %v, want %v", tt.lat, tt.lon, got, tt.want)
			}
		})
	}
}

func TestContainsConcave(t *testing.T) {
	// L-shape: the notch at the upper right is outside.
	z := &Zone{Polygon: []Point{
		{Lat: 0, Lon: 0}, {Lat: 0, Lon: 2}, {Lat: 1, Lon: 2},
		{Lat: 1, Lon: 1}, {Lat: 2, Lon: 1}, {Lat: 2, Lon: 0},
	}}
	if !z.Contains(0.5, 1.5) {
		t.Error("lower right arm should be inside")
	}
	if z.Contains(1.5, 1.5) {
		t.Error("notch should be outside")
	}
	if !z.Contains(1.5, 0.5) {
		t.Error("upper left arm should be inside")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(z *Zone)
		field  string
	}{
		{"valid", func(z *Zone) {}, ""},
		{"missing user", func(z *Zone) { z.UserID = "" }, "user_id"},
		{"missing name", func(z *Zone) { z.Name = " " }, "name"},
		{"two vertices", func(z *Zone) { z.Polygon = z.Polygon[:2] }, "polygon"},
		{"bad latitude", func(z *Zone) { z.Polygon[0].Lat = 91 }, "polygon"},
		{"no types", func(z *Zone) { z.SuppressTypes = nil }, "suppress_types"},
		{"unknown type", func(z *Zone) { z.SuppressTypes = []detection.AnomalyType{"loitering"} }, "suppress_types"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z := homeZone()
			tt.mutate(z)
			err := z.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var ve *faults.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() = %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestRegistryLifecycle(t *testing.T) {
	r := setupTestRegistry(t)
	ctx := context.Background()

	z := homeZone()
	if err := r.Create(ctx, z); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if z.ID == "" || !z.Active {
		t.Fatalf("Create did not assign id/active: %+v", z)
	}

	zones, err := r.List(ctx, "u1", false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(zones) != 1 || len(zones[0].Polygon) != 4 {
		t.Fatalf("List = %+v, want one zone with 4 vertices", zones)
	}

	got, err := r.Covering(ctx, "u1", 43.0, -83.0, detection.TypeRouteCorrelation)
	if err != nil {
		t.Fatalf("Covering: %v", err)
	}
	if got == nil || got.ID != z.ID {
		t.Fatalf("Covering = %v, want zone %s", got, z.ID)
	}

	got, _ = r.Covering(ctx, "u1", 43.0, -83.0, detection.TypeImpossibleDistance)
	if got != nil {
		t.Error("zone is not flagged for impossible_distance")
	}
	got, _ = r.Covering(ctx, "u2", 43.0, -83.0, detection.TypeRouteCorrelation)
	if got != nil {
		t.Error("zones are per user")
	}

	if err := r.Deactivate(ctx, "u1", z.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	got, _ = r.Covering(ctx, "u1", 43.0, -83.0, detection.TypeRouteCorrelation)
	if got != nil {
		t.Error("deactivated zone still suppresses")
	}

	all, _ := r.List(ctx, "u1", true)
	if len(all) != 1 || all[0].Active {
		t.Errorf("List(includeInactive) = %+v, want one inactive zone", all)
	}

	if err := r.Deactivate(ctx, "u1", "missing"); !errors.Is(err, faults.ErrNotFound) {
		t.Errorf("Deactivate(missing) = %v, want ErrNotFound", err)
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	r := setupTestRegistry(t)
	z := homeZone()
	z.Polygon = z.Polygon[:2]
	if err := r.Create(context.Background(), z); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("Create = %v, want ErrValidation", err)
	}
	zones, _ := r.List(context.Background(), "u1", true)
	if len(zones) != 0 {
		t.Errorf("invalid zone was persisted")
	}
}
