// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package custody

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/shadowcheck/internal/database"
	"github.com/tomtom215/shadowcheck/internal/faults"
	"github.com/tomtom215/shadowcheck/internal/logging"
)

// RefType is the kind of entity an event refers to.
type RefType string

const (
	RefAnomaly  RefType = "anomaly"
	RefAlert    RefType = "alert"
	RefEvidence RefType = "evidence"
)

// EventType is what happened.
type EventType string

const (
	EventCreated      EventType = "created"
	EventAcknowledged EventType = "acknowledged"
	EventDismissed    EventType = "dismissed"
	EventExported     EventType = "exported"
)

// Well-known system actors.
const (
	ActorDetector = "system:detector"
	ActorTuner    = "system:tuner"
)

// Event is one ledger entry.
type Event struct {
	Sequence      int64     `json:"sequence"`
	ID            string    `json:"id"`
	RefID         string    `json:"ref_id"`
	RefType       RefType   `json:"ref_type"`
	EventType     EventType `json:"event_type"`
	Actor         string    `json:"actor"`
	Timestamp     time.Time `json:"timestamp"`
	Description   string    `json:"description"`
	IntegrityHash string    `json:"integrity_hash,omitempty"`
	PrevHash      string    `json:"prev_hash"`
	EntryHash     string    `json:"entry_hash"`
}

// hashedFields is the canonical form of an event. Field order is fixed by
// the struct, so the encoding is stable.
type hashedFields struct {
	Sequence      int64     `json:"sequence"`
	ID            string    `json:"id"`
	RefID         string    `json:"ref_id"`
	RefType       RefType   `json:"ref_type"`
	EventType     EventType `json:"event_type"`
	Actor         string    `json:"actor"`
	Timestamp     string    `json:"timestamp"`
	Description   string    `json:"description"`
	IntegrityHash string    `json:"integrity_hash"`
}

// ComputeHash returns the entry hash for e given its PrevHash.
func (e *Event) ComputeHash() (string, error) {
	payload, err := json.Marshal(hashedFields{
		Sequence:      e.Sequence,
		ID:            e.ID,
		RefID:         e.RefID,
		RefType:       e.RefType,
		EventType:     e.EventType,
		Actor:         e.Actor,
		Timestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
		Description:   e.Description,
		IntegrityHash: e.IntegrityHash,
	})
	if err != nil {
		return "", fmt.Errorf("encode custody event: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(e.PrevHash))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IntegrityError reports a ledger entry that failed re-verification.
type IntegrityError struct {
	Sequence int64
	Reason   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("custody integrity violation at sequence %d: %s", e.Sequence, e.Reason)
}

// Is makes errors.Is(err, faults.ErrIntegrityViolation) hold.
func (e *IntegrityError) Is(target error) bool { return target == faults.ErrIntegrityViolation }

// Ledger is the DuckDB-backed custody ledger.
type Ledger struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewLedger creates a ledger. Call InitSchema before use.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// InitSchema creates the custody_events table.
func (l *Ledger) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS custody_events (
			sequence BIGINT PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			ref_id TEXT NOT NULL,
			ref_type TEXT NOT NULL,
			event_type TEXT NOT NULL,
			actor TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			description TEXT NOT NULL,
			integrity_hash TEXT,
			prev_hash TEXT NOT NULL,
			entry_hash TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_custody_ref ON custody_events(ref_id)`,
	}
	for _, q := range queries {
		if _, err := l.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}
	return nil
}

// TxLedger is the transactional side of the ledger. Entity writes and the
// custody events that describe them go through the same transaction, so an
// alert, anomaly or transition is never stored without its event.
type TxLedger interface {
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error
	AppendTx(ctx context.Context, tx *sql.Tx, ev *Event) error
}

var _ TxLedger = (*Ledger)(nil)

// Append records ev in its own transaction.
func (l *Ledger) Append(ctx context.Context, ev *Event) error {
	return l.InTx(ctx, func(tx *sql.Tx) error {
		return l.AppendTx(ctx, tx, ev)
	})
}

// InTx runs fn in one transaction on the ledger's database while holding the
// ledger head. fn writes its entity rows through tx and calls AppendTx for
// each custody event. Everything commits together, or nothing does when fn
// or the commit fails.
//
// fn must not call Append, InTx or VerifyChain on the same ledger.
func (l *Ledger) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin custody transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit custody transaction: %w", err)
	}
	return nil
}

// AppendTx fills in the chain fields of ev and inserts it through tx. It
// must run inside InTx, which owns the ledger head for the transaction.
func (l *Ledger) AppendTx(ctx context.Context, tx *sql.Tx, ev *Event) error {
	if ev.RefID == "" || ev.RefType == "" || ev.EventType == "" {
		return faults.Invalid("custody_event", "ref_id, ref_type and event_type are required")
	}
	if strings.TrimSpace(ev.Actor) == "" {
		return faults.Invalid("actor", "is required")
	}

	var (
		lastSeq  int64
		lastHash string
	)
	err := tx.QueryRowContext(ctx,
		`SELECT sequence, entry_hash FROM custody_events ORDER BY sequence DESC LIMIT 1`,
	).Scan(&lastSeq, &lastHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read ledger head: %w", err)
	}

	ev.Sequence = lastSeq + 1
	ev.PrevHash = lastHash
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	// Stored at microsecond precision.
	ev.Timestamp = l.now().UTC().Truncate(time.Microsecond)
	if ev.EntryHash, err = ev.ComputeHash(); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO custody_events (sequence, id, ref_id, ref_type, event_type, actor,
			timestamp, description, integrity_hash, prev_hash, entry_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Sequence, ev.ID, ev.RefID, string(ev.RefType), string(ev.EventType), ev.Actor,
		ev.Timestamp, ev.Description, nullString(ev.IntegrityHash), ev.PrevHash, ev.EntryHash)
	if err != nil {
		return fmt.Errorf("append custody event: %w", err)
	}

	logging.Debug().
		Int64("sequence", ev.Sequence).
		Str("ref_id", ev.RefID).
		Str("event_type", string(ev.EventType)).
		Msg("Custody event appended")
	return nil
}

// linkedEvent is an event plus the stored entry hash of its predecessor.
type linkedEvent struct {
	Event
	predecessor sql.NullString
}

const selectLinked = `
	SELECT e.sequence, e.id, e.ref_id, e.ref_type, e.event_type, e.actor, e.timestamp,
		e.description, COALESCE(e.integrity_hash, ''), e.prev_hash, e.entry_hash, p.entry_hash
	FROM custody_events e
	LEFT JOIN custody_events p ON p.sequence = e.sequence - 1`

func (l *Ledger) queryLinked(ctx context.Context, where string, args ...interface{}) ([]linkedEvent, error) {
	rows, err := l.db.QueryContext(ctx, selectLinked+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query custody events: %w", err)
	}
	defer database.CloseQuietly(rows)

	var out []linkedEvent
	for rows.Next() {
		var (
			le               linkedEvent
			refType, evtType string
		)
		if err := rows.Scan(&le.Sequence, &le.ID, &le.RefID, &refType, &evtType, &le.Actor,
			&le.Timestamp, &le.Description, &le.IntegrityHash, &le.PrevHash, &le.EntryHash,
			&le.predecessor); err != nil {
			return nil, fmt.Errorf("scan custody event: %w", err)
		}
		le.RefType = RefType(refType)
		le.EventType = EventType(evtType)
		le.Timestamp = le.Timestamp.UTC()
		out = append(out, le)
	}
	return out, rows.Err()
}

// verify recomputes the entry hash and checks the predecessor link.
func (le *linkedEvent) verify() error {
	if le.Sequence == 1 {
		if le.PrevHash != "" {
			return &IntegrityError{Sequence: le.Sequence, Reason: "genesis entry has a predecessor hash"}
		}
	} else {
		if !le.predecessor.Valid {
			return &IntegrityError{Sequence: le.Sequence, Reason: "predecessor entry is missing"}
		}
		if le.predecessor.String != le.PrevHash {
			return &IntegrityError{Sequence: le.Sequence, Reason: "predecessor hash does not match"}
		}
	}
	want, err := le.ComputeHash()
	if err != nil {
		return err
	}
	if want != le.EntryHash {
		return &IntegrityError{Sequence: le.Sequence, Reason: "entry hash does not match contents"}
	}
	return nil
}

// Trail returns every event referring to one of refIDs, ordered by
// (timestamp, sequence). Events are not verified.
func (l *Ledger) Trail(ctx context.Context, refIDs []string) ([]Event, error) {
	linked, err := l.trail(ctx, refIDs)
	if err != nil {
		return nil, err
	}
	out := make([]Event, len(linked))
	for i := range linked {
		out[i] = linked[i].Event
	}
	return out, nil
}

// VerifiedTrail is Trail with every returned event re-verified. Any
// mismatch returns an *IntegrityError.
func (l *Ledger) VerifiedTrail(ctx context.Context, refIDs []string) ([]Event, error) {
	linked, err := l.trail(ctx, refIDs)
	if err != nil {
		return nil, err
	}
	out := make([]Event, len(linked))
	for i := range linked {
		if err := linked[i].verify(); err != nil {
			logging.Error().Err(err).Int64("sequence", linked[i].Sequence).
				Str("ref_id", linked[i].RefID).Msg("Custody ledger failed verification")
			return nil, err
		}
		out[i] = linked[i].Event
	}
	return out, nil
}

func (l *Ledger) trail(ctx context.Context, refIDs []string) ([]linkedEvent, error) {
	if len(refIDs) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(refIDs))
	for i, id := range refIDs {
		args[i] = id
	}
	where := fmt.Sprintf(" WHERE e.ref_id IN (%s) ORDER BY e.timestamp, e.sequence",
		database.Placeholders(len(refIDs)))
	return l.queryLinked(ctx, where, args...)
}

// VerifyChain walks the whole ledger in sequence order and returns the
// number of verified entries. Gaps in the sequence are violations.
func (l *Ledger) VerifyChain(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	linked, err := l.queryLinked(ctx, " ORDER BY e.sequence")
	if err != nil {
		return 0, err
	}
	for i := range linked {
		if want := int64(i + 1); linked[i].Sequence != want {
			err := &IntegrityError{Sequence: want, Reason: "sequence gap"}
			logging.Error().Err(err).Msg("Custody ledger failed verification")
			return i, err
		}
		if err := linked[i].verify(); err != nil {
			logging.Error().Err(err).Int64("sequence", linked[i].Sequence).Msg("Custody ledger failed verification")
			return i, err
		}
	}
	return len(linked), nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
