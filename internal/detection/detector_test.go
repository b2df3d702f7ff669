// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/shadowcheck/internal/custody"
	"github.com/tomtom215/shadowcheck/internal/faults"
)

type memoryAnomalyStore struct {
	mu        sync.Mutex
	byOrigin  map[string]*Anomaly
	whitelist map[string]bool
}

func newMemoryAnomalyStore() *memoryAnomalyStore {
	return &memoryAnomalyStore{byOrigin: map[string]*Anomaly{}, whitelist: map[string]bool{}}
}

func (m *memoryAnomalyStore) InsertAnomalyTx(_ context.Context, _ *sql.Tx, a *Anomaly) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byOrigin[a.OriginKey]; ok {
		return faults.ErrConflict
	}
	m.byOrigin[a.OriginKey] = a
	return nil
}

func (m *memoryAnomalyStore) Whitelist(context.Context, string) (map[string]bool, error) {
	return m.whitelist, nil
}

// memoryLedger records custody events without a database.
type memoryLedger struct {
	mu     sync.Mutex
	events []custody.Event
}

func (m *memoryLedger) InTx(_ context.Context, fn func(tx *sql.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(nil)
}

func (m *memoryLedger) AppendTx(_ context.Context, _ *sql.Tx, ev *custody.Event) error {
	m.events = append(m.events, *ev)
	return nil
}

// failingLedger wraps a real ledger and fails every append.
type failingLedger struct{ *custody.Ledger }

func (failingLedger) AppendTx(context.Context, *sql.Tx, *custody.Event) error {
	return errors.New("disk full")
}

func TestDetectorRun(t *testing.T) {
	store := newMemoryAnomalyStore()
	ledger := &memoryLedger{}
	d := NewDetector(DefaultEngine(2, nil), store, ledger)
	cfg := testConfig(t)

	pass := Pass{ID: "pass-1", Sightings: mixedSightings(), Config: cfg}
	got, err := d.Run(context.Background(), pass)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("anomalies = %d, want 3", len(got))
	}
	for _, a := range got {
		if a.PassID != "pass-1" || a.UserID != "analyst" || a.ID == "" || len(a.OriginKey) != 64 {
			t.Errorf("anomaly identity not populated: %+v", a)
		}
		if len(a.Evidence) == 0 || a.DetectedAt.IsZero() {
			t.Errorf("anomaly %s missing evidence or detection time", a.Type)
		}
	}
	if len(ledger.events) != 3 {
		t.Errorf("custody events = %d, want one per anomaly", len(ledger.events))
	}
	for _, ev := range ledger.events {
		if ev.RefType != custody.RefAnomaly || ev.EventType != custody.EventCreated || ev.Actor != custody.ActorDetector {
			t.Errorf("custody event = %+v", ev)
		}
	}

	// Re-running the same pass hits the origin uniqueness and records nothing.
	again, err := d.Run(context.Background(), pass)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second run persisted %d anomalies, want 0", len(again))
	}

	// A new pass is independent.
	pass.ID = "pass-2"
	fresh, err := d.Run(context.Background(), pass)
	if err != nil {
		t.Fatalf("third Run: %v", err)
	}
	if len(fresh) != 3 {
		t.Errorf("new pass persisted %d anomalies, want 3", len(fresh))
	}
}

func TestDetectorSkipsWhitelistedDevices(t *testing.T) {
	store := newMemoryAnomalyStore()
	store.whitelist["DE:AD:BE:EF:00:01"] = true
	d := NewDetector(DefaultEngine(2, nil), store, &memoryLedger{})

	got, err := d.Run(context.Background(), Pass{ID: "p", Sightings: mixedSightings(), Config: testConfig(t)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, a := range got {
		if a.PrimaryDevice == "DE:AD:BE:EF:00:01" {
			t.Errorf("whitelisted device produced %s anomaly", a.Type)
		}
	}
}

func TestDetectorRespectsWindowBounds(t *testing.T) {
	d := NewDetector(DefaultEngine(1, nil), newMemoryAnomalyStore(), &memoryLedger{})
	pass := Pass{
		ID:        "p",
		Start:     testBase.Add(2 * time.Hour),
		End:       testBase.Add(3 * time.Hour),
		Sightings: mixedSightings(),
		Config:    testConfig(t),
	}
	got, err := d.Run(context.Background(), pass)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("anomalies = %d, want 0 outside the window", len(got))
	}
}

func TestOriginKeyIgnoresDeviceOrder(t *testing.T) {
	a := Candidate{Type: TypeCoordinatedMovement, PrimaryDevice: "a", RelatedDevices: []string{"b", "c"}, FirstSeen: testBase}
	b := Candidate{Type: TypeCoordinatedMovement, PrimaryDevice: "a", RelatedDevices: []string{"c", "b"}, FirstSeen: testBase}
	if OriginKey("p", "u", &a) != OriginKey("p", "u", &b) {
		t.Error("origin key depends on related device order")
	}
	if OriginKey("p", "u", &a) == OriginKey("p2", "u", &a) {
		t.Error("origin key does not include the pass")
	}
}

func TestDetectorKeepsAnomalyAndCustodyTogether(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	ledger := custody.NewLedger(store.db)
	if err := ledger.InitSchema(ctx); err != nil {
		t.Fatal(err)
	}
	pass := Pass{ID: "pass-1", Sightings: mixedSightings(), Config: testConfig(t)}

	got, err := NewDetector(DefaultEngine(1, nil), store, failingLedger{ledger}).Run(ctx, pass)
	if err == nil {
		t.Fatal("Run succeeded with a failing ledger")
	}
	if len(got) != 0 {
		t.Errorf("returned %d anomalies, want none", len(got))
	}
	stored, err := store.ListAnomalies(ctx, "analyst", 100)
	if err != nil {
		t.Fatalf("ListAnomalies: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("stored %d anomalies without custody, want 0", len(stored))
	}

	// The same pass can be retried once the ledger works.
	got, err = NewDetector(DefaultEngine(1, nil), store, ledger).Run(ctx, pass)
	if err != nil {
		t.Fatalf("retry Run: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("retry anomalies = %d, want 3", len(got))
	}
	for _, a := range got {
		trail, err := ledger.VerifiedTrail(ctx, []string{a.ID})
		if err != nil {
			t.Fatalf("VerifiedTrail: %v", err)
		}
		if len(trail) != 1 || trail[0].EventType != custody.EventCreated {
			t.Errorf("anomaly %s custody = %+v, want one created event", a.ID, trail)
		}
	}
}
