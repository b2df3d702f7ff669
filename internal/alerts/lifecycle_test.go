// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/shadowcheck/internal/custody"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/faults"
)

type anomalyMap map[string]*detection.Anomaly

func (m anomalyMap) GetAnomaly(_ context.Context, id string) (*detection.Anomaly, error) {
	if a, ok := m[id]; ok {
		return a, nil
	}
	return nil, faults.NotFound("anomaly", id)
}

type recordingWhitelist struct{ devices []string }

func (r *recordingWhitelist) AddToWhitelist(_ context.Context, userID, deviceID string) error {
	r.devices = append(r.devices, userID+"/"+deviceID)
	return nil
}

type lifecycleFixture struct {
	lc        *Lifecycle
	store     *DuckDBStore
	ledger    *custody.Ledger
	whitelist *recordingWhitelist
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	db := openTestDB(t)
	store := setupTestStore(t, db)
	ledger := custody.NewLedger(db)
	if err := ledger.InitSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertAlert(context.Background(), storedAlert("a1", "anomaly-1")); err != nil {
		t.Fatal(err)
	}
	wl := &recordingWhitelist{}
	anomalies := anomalyMap{"anomaly-1": {ID: "anomaly-1", UserID: "u1", PrimaryDevice: "AA:BB:CC:00:00:01"}}
	lc := NewLifecycle(store, anomalies, wl, ledger)
	lc.now = func() time.Time { return testNow }
	return &lifecycleFixture{lc: lc, store: store, ledger: ledger, whitelist: wl}
}

func (f *lifecycleFixture) trail(t *testing.T) []custody.Event {
	t.Helper()
	events, err := f.ledger.VerifiedTrail(context.Background(), []string{"a1"})
	if err != nil {
		t.Fatalf("VerifiedTrail: %v", err)
	}
	return events
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	ok, err := f.lc.Acknowledge(ctx, "a1", "real_threat", "seen it twice", "user:alice")
	if err != nil || !ok {
		t.Fatalf("first Acknowledge = %v, %v; want true", ok, err)
	}
	ok, err = f.lc.Acknowledge(ctx, "a1", "real_threat", "again", "user:alice")
	if err != nil {
		t.Fatalf("second Acknowledge error: %v", err)
	}
	if ok {
		t.Error("second Acknowledge returned true")
	}

	events := f.trail(t)
	if len(events) != 1 {
		t.Fatalf("custody events = %d, want 1", len(events))
	}
	if ev := events[0]; ev.EventType != custody.EventAcknowledged || ev.Actor != "user:alice" ||
		ev.Description != "rated real_threat: seen it twice" {
		t.Errorf("custody event = %+v", ev)
	}

	got, _ := f.store.GetAlert(ctx, "a1")
	if got.Status != StatusAcknowledged {
		t.Errorf("status = %s, want acknowledged", got.Status)
	}
}

func TestSubmitFeedbackFalsePositive(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	ok, err := f.lc.SubmitFeedback(ctx, FeedbackRequest{AlertID: "a1", Rating: "false_positive", Notes: "my car", Whitelist: true})
	if err != nil || !ok {
		t.Fatalf("SubmitFeedback = %v, %v; want true", ok, err)
	}

	got, _ := f.store.GetAlert(ctx, "a1")
	if got.Status != StatusDismissed {
		t.Errorf("status = %s, want dismissed", got.Status)
	}
	feedback, _ := f.store.ListFeedback(ctx, "a1")
	if len(feedback) != 1 || feedback[0].Rating != RatingFalsePositive || !feedback[0].Whitelist {
		t.Errorf("feedback = %+v", feedback)
	}
	if len(f.whitelist.devices) != 1 || f.whitelist.devices[0] != "u1/AA:BB:CC:00:00:01" {
		t.Errorf("whitelist = %v", f.whitelist.devices)
	}
	events := f.trail(t)
	if len(events) != 1 || events[0].EventType != custody.EventDismissed || events[0].Actor != "user:u1" {
		t.Errorf("custody = %+v", events)
	}

	// Repeat submission writes nothing.
	ok, err = f.lc.SubmitFeedback(ctx, FeedbackRequest{AlertID: "a1", Rating: "real_threat", Whitelist: true})
	if err != nil || ok {
		t.Fatalf("repeat SubmitFeedback = %v, %v; want false, nil", ok, err)
	}
	feedback, _ = f.store.ListFeedback(ctx, "a1")
	if len(feedback) != 1 {
		t.Errorf("feedback rows = %d, want 1", len(feedback))
	}
	if len(f.whitelist.devices) != 1 {
		t.Errorf("whitelist grew on repeat submission")
	}
	if len(f.trail(t)) != 1 {
		t.Errorf("custody grew on repeat submission")
	}
}

func TestSubmitFeedbackErrors(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	if _, err := f.lc.SubmitFeedback(ctx, FeedbackRequest{AlertID: "a1", Rating: "bogus"}); !errors.Is(err, faults.ErrValidation) {
		t.Errorf("bad rating = %v, want ErrValidation", err)
	}
	if _, err := f.lc.SubmitFeedback(ctx, FeedbackRequest{AlertID: "nope", Rating: "uncertain"}); !errors.Is(err, faults.ErrNotFound) {
		t.Errorf("unknown alert = %v, want ErrNotFound", err)
	}
	if _, err := f.lc.Acknowledge(ctx, "nope", "uncertain", "", ""); !errors.Is(err, faults.ErrNotFound) {
		t.Errorf("Acknowledge unknown = %v, want ErrNotFound", err)
	}

	got, _ := f.store.GetAlert(ctx, "a1")
	if got.Status != StatusActive {
		t.Errorf("failed calls changed status to %s", got.Status)
	}
	if len(f.trail(t)) != 0 {
		t.Error("failed calls appended custody")
	}
}

func TestSubmitFeedbackRollsBackWhenCustodyFails(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	flaky := &flakyLedger{Ledger: f.ledger, failures: 1}
	f.lc.ledger = flaky

	req := FeedbackRequest{AlertID: "a1", Rating: "real_threat", Notes: "parked outside"}
	if ok, err := f.lc.SubmitFeedback(ctx, req); err == nil || ok {
		t.Fatalf("SubmitFeedback = %v, %v; want false and an error", ok, err)
	}
	got, _ := f.store.GetAlert(ctx, "a1")
	if got.Status != StatusActive {
		t.Errorf("status = %s after failed custody, want active", got.Status)
	}
	if feedback, _ := f.store.ListFeedback(ctx, "a1"); len(feedback) != 0 {
		t.Errorf("feedback rows = %d after failed custody, want 0", len(feedback))
	}

	ok, err := f.lc.SubmitFeedback(ctx, req)
	if err != nil || !ok {
		t.Fatalf("retry SubmitFeedback = %v, %v; want true", ok, err)
	}
	events := f.trail(t)
	if len(events) != 1 || events[0].EventType != custody.EventAcknowledged {
		t.Errorf("custody = %+v, want one acknowledged event", events)
	}
	if n, err := f.ledger.VerifyChain(ctx); err != nil || n != 1 {
		t.Errorf("VerifyChain = %d, %v; want 1, nil", n, err)
	}
}
