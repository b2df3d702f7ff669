// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package alerts

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/faults"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("failed to open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func setupTestStore(t *testing.T, db *sql.DB) *DuckDBStore {
	t.Helper()
	store := NewDuckDBStore(db)
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return store
}

func storedAlert(id, anomalyID string) *Alert {
	return &Alert{
		ID:                 id,
		AnomalyID:          anomalyID,
		UserID:             "u1",
		AnomalyType:        detection.TypeImpossibleDistance,
		Level:              LevelCritical,
		Status:             StatusActive,
		Title:              "Impossible distance: AA:BB:CC:00:00:01",
		Description:        "test",
		RecommendedActions: []string{"look"},
		FinalScore:         0.8,
		Urgency:            0.72,
		Assessment:         "professional",
		ThreatLevel:        "elevated",
		CreatedAt:          testNow,
	}
}

func TestStoreInsertUnique(t *testing.T) {
	store := setupTestStore(t, openTestDB(t))
	ctx := context.Background()

	if err := store.InsertAlert(ctx, storedAlert("a1", "anomaly-1")); err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}
	err := store.InsertAlert(ctx, storedAlert("a2", "anomaly-1"))
	if !errors.Is(err, faults.ErrConflict) {
		t.Fatalf("second alert for same anomaly = %v, want ErrConflict", err)
	}

	got, err := store.GetAlert(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAlert: %v", err)
	}
	if got.AnomalyID != "anomaly-1" || got.Level != LevelCritical || len(got.RecommendedActions) != 1 {
		t.Errorf("GetAlert = %+v", got)
	}
	if got.AcknowledgedAt != nil {
		t.Error("new alert has acknowledged_at")
	}

	if _, err := store.GetAlert(ctx, "missing"); !errors.Is(err, faults.ErrNotFound) {
		t.Errorf("GetAlert(missing) = %v, want ErrNotFound", err)
	}
}

func TestStoreTransitionCAS(t *testing.T) {
	store := setupTestStore(t, openTestDB(t))
	ctx := context.Background()
	if err := store.InsertAlert(ctx, storedAlert("a1", "anomaly-1")); err != nil {
		t.Fatal(err)
	}

	fb := &Feedback{ID: "f1", AlertID: "a1", UserID: "u1", AnomalyType: detection.TypeImpossibleDistance,
		Rating: RatingFalsePositive, CreatedAt: testNow}
	ok, err := store.Transition(ctx, "a1", StatusDismissed, testNow, fb)
	if err != nil || !ok {
		t.Fatalf("first Transition = %v, %v; want true", ok, err)
	}

	fb2 := *fb
	fb2.ID = "f2"
	ok, err = store.Transition(ctx, "a1", StatusAcknowledged, testNow, &fb2)
	if err != nil || ok {
		t.Fatalf("second Transition = %v, %v; want false, nil", ok, err)
	}

	got, _ := store.GetAlert(ctx, "a1")
	if got.Status != StatusDismissed || got.AcknowledgedAt == nil {
		t.Errorf("alert after transition = %+v", got)
	}
	feedback, err := store.ListFeedback(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if len(feedback) != 1 || feedback[0].ID != "f1" {
		t.Errorf("feedback = %+v, want only f1", feedback)
	}

	if _, err := store.Transition(ctx, "missing", StatusAcknowledged, testNow, nil); !errors.Is(err, faults.ErrNotFound) {
		t.Errorf("Transition(missing) = %v, want ErrNotFound", err)
	}
}

func TestStoreFeedbackCounts(t *testing.T) {
	store := setupTestStore(t, openTestDB(t))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		if err := store.InsertAlert(ctx, storedAlert(id, "anomaly-"+id)); err != nil {
			t.Fatal(err)
		}
		rating := RatingRealThreat
		if i < 8 {
			rating = RatingFalsePositive
		}
		fb := &Feedback{ID: "f-" + id, AlertID: id, UserID: "u1", AnomalyType: detection.TypeImpossibleDistance,
			Rating: rating, CreatedAt: testNow.Add(-time.Duration(i) * time.Hour)}
		if ok, err := store.Transition(ctx, id, rating.TargetStatus(), testNow, fb); err != nil || !ok {
			t.Fatalf("Transition %s = %v, %v", id, ok, err)
		}
	}

	counts, err := store.FeedbackCounts(ctx, testNow.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("FeedbackCounts: %v", err)
	}
	if len(counts) != 1 {
		t.Fatalf("counts = %+v, want one group", counts)
	}
	if c := counts[0]; c.Total != 10 || c.FalsePositive != 8 || c.AnomalyType != detection.TypeImpossibleDistance {
		t.Errorf("count = %+v, want 8/10 impossible_distance", c)
	}

	recent, err := store.FeedbackCounts(ctx, testNow.Add(-90*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].Total != 2 {
		t.Errorf("recent counts = %+v, want 2 rows in window", recent)
	}
}

func TestStoreListAlerts(t *testing.T) {
	store := setupTestStore(t, openTestDB(t))
	ctx := context.Background()
	for _, id := range []string{"a1", "a2", "a3"} {
		if err := store.InsertAlert(ctx, storedAlert(id, "anomaly-"+id)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.Transition(ctx, "a2", StatusAcknowledged, testNow, nil); err != nil {
		t.Fatal(err)
	}

	active, err := store.ListAlerts(ctx, Filter{UserID: "u1", Status: StatusActive})
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 {
		t.Errorf("active alerts = %d, want 2", len(active))
	}
	other, _ := store.ListAlerts(ctx, Filter{UserID: "u2"})
	if len(other) != 0 {
		t.Errorf("u2 alerts = %d, want 0", len(other))
	}
}
