// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

type recordingSchema struct {
	calls *[]string
	name  string
	err   error
}

func (r recordingSchema) InitSchema(context.Context) error {
	*r.calls = append(*r.calls, r.name)
	return r.err
}

func TestNewFileDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := New(Config{Path: filepath.Join(dir, "nested", "shadowcheck.duckdb"), MaxMemory: "256MB", Threads: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if _, err := db.Conn().ExecContext(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.Conn().ExecContext(ctx, "INSERT INTO t VALUES (1)"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err = db.Conn().ExecContext(ctx, "INSERT INTO t VALUES (1)")
	if !IsUniqueViolation(err) {
		t.Errorf("IsUniqueViolation(%v) = false, want true", err)
	}
}

func TestInitSchemasOrderAndError(t *testing.T) {
	db, err := New(Config{MaxMemory: "256MB", Threads: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer db.Close()

	var calls []string
	boom := errors.New("boom")
	err = db.InitSchemas(context.Background(),
		recordingSchema{calls: &calls, name: "sightings"},
		recordingSchema{calls: &calls, name: "alerts", err: boom},
		recordingSchema{calls: &calls, name: "never"},
	)
	if !errors.Is(err, boom) {
		t.Fatalf("InitSchemas() error = %v, want boom", err)
	}
	if len(calls) != 2 || calls[0] != "sightings" || calls[1] != "alerts" {
		t.Errorf("calls = %v", calls)
	}
}

func TestHelpers(t *testing.T) {
	t.Parallel()

	if got := Placeholders(3); got != "?, ?, ?" {
		t.Errorf("Placeholders(3) = %q", got)
	}
	if Placeholders(0) != "" {
		t.Error("Placeholders(0) should be empty")
	}
	if IsUniqueViolation(nil) || IsTransactionConflict(nil) {
		t.Error("nil is neither a violation nor a conflict")
	}
	if !IsTransactionConflict(errors.New("TransactionContext Error: Transaction conflict: cannot update")) {
		t.Error("expected transaction conflict to be recognized")
	}
	CloseQuietly(nil)
}
