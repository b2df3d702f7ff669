// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package custody

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/shadowcheck/internal/faults"
)

func setupTestLedger(t *testing.T) (*Ledger, *sql.DB) {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("failed to open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	l := NewLedger(db)
	if err := l.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return l, db
}

func appendEvent(t *testing.T, l *Ledger, ref string, rt RefType, et EventType) *Event {
	t.Helper()
	ev := &Event{RefID: ref, RefType: rt, EventType: et, Actor: "user:alice", Description: string(et)}
	if err := l.Append(context.Background(), ev); err != nil {
		t.Fatalf("Append: %v", err)
	}
	return ev
}

func TestAppendChains(t *testing.T) {
	l, _ := setupTestLedger(t)

	first := appendEvent(t, l, "anomaly-1", RefAnomaly, EventCreated)
	second := appendEvent(t, l, "alert-1", RefAlert, EventCreated)

	if first.Sequence != 1 || second.Sequence != 2 {
		t.Fatalf("sequences = %d, %d; want 1, 2", first.Sequence, second.Sequence)
	}
	if first.PrevHash != "" {
		t.Errorf("genesis PrevHash = %q, want empty", first.PrevHash)
	}
	if second.PrevHash != first.EntryHash {
		t.Errorf("second.PrevHash = %q, want %q", second.PrevHash, first.EntryHash)
	}
	if len(first.EntryHash) != 64 {
		t.Errorf("EntryHash length = %d, want 64", len(first.EntryHash))
	}

	n, err := l.VerifyChain(context.Background())
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if n != 2 {
		t.Errorf("verified = %d, want 2", n)
	}
}

func TestAppendValidates(t *testing.T) {
	l, _ := setupTestLedger(t)
	err := l.Append(context.Background(), &Event{RefID: "x", RefType: RefAlert, EventType: EventCreated})
	if !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("Append without actor = %v, want ErrValidation", err)
	}
}

func TestInTxCommitsEntityAndEventTogether(t *testing.T) {
	l, db := setupTestLedger(t)
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `CREATE TABLE widgets (id TEXT PRIMARY KEY)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	insert := func(id string, fail error) error {
		return l.InTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `INSERT INTO widgets VALUES (?)`, id); err != nil {
				return err
			}
			if err := l.AppendTx(ctx, tx, &Event{RefID: id, RefType: RefAlert, EventType: EventCreated, Actor: "user:alice"}); err != nil {
				return err
			}
			return fail
		})
	}

	boom := errors.New("disk full")
	if err := insert("w1", boom); !errors.Is(err, boom) {
		t.Fatalf("InTx = %v, want %v", err, boom)
	}
	if err := insert("w2", nil); err != nil {
		t.Fatalf("InTx: %v", err)
	}

	var widgets int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM widgets`).Scan(&widgets); err != nil {
		t.Fatalf("count widgets: %v", err)
	}
	if widgets != 1 {
		t.Errorf("widgets = %d, want only the committed one", widgets)
	}
	trail, err := l.VerifiedTrail(ctx, []string{"w1", "w2"})
	if err != nil {
		t.Fatalf("VerifiedTrail: %v", err)
	}
	if len(trail) != 1 || trail[0].RefID != "w2" || trail[0].Sequence != 1 {
		t.Errorf("trail = %+v, want one event for w2 at sequence 1", trail)
	}
	if n, err := l.VerifyChain(ctx); err != nil || n != 1 {
		t.Errorf("VerifyChain = %d, %v; want 1, nil", n, err)
	}
}

func TestTrailOrderAndFilter(t *testing.T) {
	l, _ := setupTestLedger(t)
	appendEvent(t, l, "anomaly-1", RefAnomaly, EventCreated)
	appendEvent(t, l, "alert-1", RefAlert, EventCreated)
	appendEvent(t, l, "alert-2", RefAlert, EventCreated)
	appendEvent(t, l, "alert-1", RefAlert, EventAcknowledged)

	trail, err := l.VerifiedTrail(context.Background(), []string{"alert-1", "anomaly-1"})
	if err != nil {
		t.Fatalf("VerifiedTrail: %v", err)
	}
	var seqs []int64
	for _, ev := range trail {
		seqs = append(seqs, ev.Sequence)
	}
	want := []int64{1, 2, 4}
	if len(seqs) != len(want) {
		t.Fatalf("trail sequences = %v, want %v", seqs, want)
	}
	for i := range want {
		if seqs[i] != want[i] {
			t.Fatalf("trail sequences = %v, want %v", seqs, want)
		}
	}

	empty, err := l.Trail(context.Background(), nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("Trail(nil) = %v, %v; want empty", empty, err)
	}
}

func TestTamperDetected(t *testing.T) {
	tests := []struct {
		name   string
		tamper string
	}{
		{"edited description", `UPDATE custody_events SET description = 'forged' WHERE sequence = 2`},
		{"edited actor", `UPDATE custody_events SET actor = 'user:mallory' WHERE sequence = 2`},
		{"broken link", `UPDATE custody_events SET prev_hash = 'deadbeef' WHERE sequence = 3`},
		{"removed entry", `DELETE FROM custody_events WHERE sequence = 2`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, db := setupTestLedger(t)
			appendEvent(t, l, "alert-1", RefAlert, EventCreated)
			appendEvent(t, l, "alert-1", RefAlert, EventAcknowledged)
			appendEvent(t, l, "alert-1", RefAlert, EventExported)

			if _, err := db.Exec(tt.tamper); err != nil {
				t.Fatalf("tamper: %v", err)
			}

			if _, err := l.VerifyChain(context.Background()); !errors.Is(err, faults.ErrIntegrityViolation) {
				t.Errorf("VerifyChain = %v, want ErrIntegrityViolation", err)
			}
			if _, err := l.VerifiedTrail(context.Background(), []string{"alert-1"}); !errors.Is(err, faults.ErrIntegrityViolation) {
				t.Errorf("VerifiedTrail = %v, want ErrIntegrityViolation", err)
			}
			var ie *IntegrityError
			_, err := l.VerifyChain(context.Background())
			if !errors.As(err, &ie) || ie.Sequence < 2 {
				t.Errorf("IntegrityError = %+v, want sequence >= 2", ie)
			}
		})
	}
}

func TestComputeHashStable(t *testing.T) {
	ev := Event{
		Sequence:  7,
		ID:        "e7",
		RefID:     "alert-1",
		RefType:   RefAlert,
		EventType: EventCreated,
		Actor:     ActorDetector,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		PrevHash:  "abc",
	}
	h1, err := ev.ComputeHash()
	if err != nil {
		t.Fatal(err)
	}
	h2, _ := ev.ComputeHash()
	if h1 != h2 {
		t.Fatal("hash is not deterministic")
	}
	ev.PrevHash = "abd"
	if h3, _ := ev.ComputeHash(); h3 == h1 {
		t.Error("hash does not cover PrevHash")
	}
}
