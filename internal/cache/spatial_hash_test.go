// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package cache

import (
	"math"
	"testing"
	"time"
)

func TestSpatialHashGridQueryNearby(t *testing.T) {
	t.Parallel()

	g := NewSpatialHashGrid(0.05)
	now := time.Now()

	// b is ~22.2 m north.
	g.Insert("a", 43.0000, -83.0000, now, nil)
	g.Insert("b", 43.0002, -83.0000, now, nil)
	g.Insert("c", 43.0000, -83.0003, now, nil)
	g.Insert("far", 43.0100, -83.0000, now, nil)

	got := g.QueryNearby(43.0, -83.0, 0.023)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		ids := make([]string, len(got))
		for i, e := range got {
			ids[i] = e.ID
		}
		t.Fatalf("QueryNearby(23m) = %v, want [a b]", ids)
	}

	// c is ~24.4 m east at this latitude.
	if got := g.QueryNearby(43.0, -83.0, 0.05); len(got) != 3 {
		t.Errorf("QueryNearby(50m) returned %d entries, want 3", len(got))
	}
}

func TestSpatialHashGridReplaceAndTimeFilter(t *testing.T) {
	t.Parallel()

	g := NewSpatialHashGrid(1)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	g.Insert("dev", 40.0, -74.0, t0, "first")
	g.Insert("dev", 41.0, -74.0, t0.Add(time.Minute), "second")
	if g.Size() != 1 || g.NumCells() != 1 {
		t.Fatalf("Size=%d NumCells=%d, want 1/1", g.Size(), g.NumCells())
	}
	if got := g.QueryNearby(40.0, -74.0, 5); len(got) != 0 {
		t.Errorf("old position should be gone, got %d", len(got))
	}

	g.Insert("other", 41.0, -74.001, t0.Add(time.Hour), nil)
	got := g.QueryNearbyWithin(41.0, -74.0, 1, t0, t0.Add(30*time.Minute))
	if len(got) != 1 || got[0].ID != "dev" {
		t.Errorf("QueryNearbyWithin = %v", got)
	}
}

func TestHaversineDistance(t *testing.T) {
	t.Parallel()

	// Detroit area to ~1 degree northeast.
	d := haversineDistance(43.0, -83.0, 43.9, -82.0)
	if math.Abs(d-128.6) > 1 {
		t.Errorf("haversineDistance = %.1f km, want ~128.6", d)
	}
	if haversineDistance(10, 10, 10, 10) != 0 {
		t.Error("distance to self should be 0")
	}
}
