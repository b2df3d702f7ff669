// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package tuning

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/shadowcheck/internal/alerts"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/faults"
	"github.com/tomtom215/shadowcheck/internal/lease"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type staticFeedback struct {
	counts []alerts.FeedbackCount
	since  time.Time
}

func (s *staticFeedback) FeedbackCounts(_ context.Context, since time.Time) ([]alerts.FeedbackCount, error) {
	s.since = since
	return s.counts, nil
}

type tunerFixture struct {
	tuner   *Tuner
	configs *detection.DuckDBStore
	history *DuckDBStore
	locker  *lease.BadgerLocker
	fb      *staticFeedback
}

func newTunerFixture(t *testing.T, counts ...alerts.FeedbackCount) *tunerFixture {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("failed to open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	configs := detection.NewDuckDBStore(db)
	if err := configs.InitSchema(ctx); err != nil {
		t.Fatal(err)
	}
	history := NewDuckDBStore(db)
	if err := history.InitSchema(ctx); err != nil {
		t.Fatal(err)
	}
	locker, err := lease.OpenBadger("", "test:1")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { locker.Close() })

	fb := &staticFeedback{counts: counts}
	tuner := NewTuner(DefaultConfig(), fb, configs, history, locker, detection.DefaultDefaults())
	tuner.now = func() time.Time { return testNow }
	return &tunerFixture{tuner: tuner, configs: configs, history: history, locker: locker, fb: fb}
}

func TestRunRaisesThresholdOnFalsePositives(t *testing.T) {
	f := newTunerFixture(t, alerts.FeedbackCount{
		UserID: "u1", AnomalyType: detection.TypeImpossibleDistance, Total: 10, FalsePositive: 8,
	})
	ctx := context.Background()

	adj, err := f.tuner.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(adj) != 1 {
		t.Fatalf("adjustments = %+v, want 1", adj)
	}
	a := adj[0]
	if a.Type != detection.TypeImpossibleDistance || a.Old != 0.7 || a.New != 0.75 {
		t.Errorf("adjustment = %+v, want impossible_distance 0.7 -> 0.75", a)
	}
	if !strings.Contains(a.Reason, "80.0%") {
		t.Errorf("reason %q does not cite the observed rate", a.Reason)
	}
	if a.FalsePositiveRate != 0.8 || a.Samples != 10 {
		t.Errorf("rate/samples = %g/%d", a.FalsePositiveRate, a.Samples)
	}
	if want := testNow.Add(-30 * 24 * time.Hour); !f.fb.since.Equal(want) {
		t.Errorf("feedback window starts %v, want %v", f.fb.since, want)
	}

	cfg, err := f.configs.GetConfig(ctx, "u1")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if got := cfg.Threshold(detection.TypeImpossibleDistance); got != 0.75 {
		t.Errorf("stored threshold = %g, want 0.75", got)
	}
	if got := cfg.Threshold(detection.TypeAerialPattern); got != 0.6 {
		t.Errorf("untouched threshold = %g, want 0.6", got)
	}

	history, err := f.history.ListAdjustments(ctx, "u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Reason != a.Reason {
		t.Errorf("history = %+v", history)
	}

	// The lease was released: a second run proceeds and steps once more.
	adj, err = f.tuner.Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(adj) != 1 || adj[0].Old != 0.75 || adj[0].New != 0.8 {
		t.Errorf("second run = %+v, want 0.75 -> 0.8", adj)
	}
}

func TestRunSkipsSmallSamples(t *testing.T) {
	f := newTunerFixture(t, alerts.FeedbackCount{
		UserID: "u1", AnomalyType: detection.TypeImpossibleDistance, Total: 4, FalsePositive: 4,
	})
	adj, err := f.tuner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(adj) != 0 {
		t.Errorf("adjustments = %+v, want none", adj)
	}
	if _, err := f.configs.GetConfig(context.Background(), "u1"); !errors.Is(err, faults.ErrNotFound) {
		t.Errorf("config was written without an adjustment: %v", err)
	}
}

func TestRunLeaseHeld(t *testing.T) {
	f := newTunerFixture(t, alerts.FeedbackCount{
		UserID: "u1", AnomalyType: detection.TypeImpossibleDistance, Total: 10, FalsePositive: 8,
	})
	ctx := context.Background()

	held, err := f.locker.Acquire(ctx, "tuning", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	adj, err := f.tuner.Run(ctx)
	if !errors.Is(err, faults.ErrConflict) {
		t.Fatalf("Run with lease held = %v, want ErrConflict", err)
	}
	if len(adj) != 0 {
		t.Errorf("adjustments = %+v, want none", adj)
	}
	_ = f.locker.Release(ctx, held)
}

func TestRunMultipleUsersAndTypes(t *testing.T) {
	f := newTunerFixture(t,
		alerts.FeedbackCount{UserID: "u1", AnomalyType: detection.TypeCoordinatedMovement, Total: 10, FalsePositive: 0},
		alerts.FeedbackCount{UserID: "u1", AnomalyType: detection.TypeRouteCorrelation, Total: 6, FalsePositive: 5},
		alerts.FeedbackCount{UserID: "u2", AnomalyType: detection.TypeAerialPattern, Total: 9, FalsePositive: 9},
	)
	ctx := context.Background()

	existing := detection.NewDetectionConfig("u2", detection.DefaultDefaults())
	existing.FeedbackWeight = 0.5
	if err := f.configs.SaveConfig(ctx, existing); err != nil {
		t.Fatal(err)
	}

	adj, err := f.tuner.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(adj) != 3 {
		t.Fatalf("adjustments = %+v, want 3", adj)
	}

	u1, _ := f.configs.GetConfig(ctx, "u1")
	if got := u1.Threshold(detection.TypeCoordinatedMovement); got != 0.55 {
		t.Errorf("u1 coordinated = %g, want 0.55", got)
	}
	if got := u1.Threshold(detection.TypeRouteCorrelation); got != 0.65 {
		t.Errorf("u1 route = %g, want 0.65", got)
	}
	u2, _ := f.configs.GetConfig(ctx, "u2")
	if got := u2.Threshold(detection.TypeAerialPattern); got != 0.625 {
		t.Errorf("u2 aerial = %g, want 0.625 (half step)", got)
	}
	if u2.Version != 2 {
		t.Errorf("u2 version = %d, want 2", u2.Version)
	}
}
