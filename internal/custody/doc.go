// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package custody implements the append-only chain-of-custody ledger.
//
// Every event records who acted on which anomaly, alert or evidence package
// and when. Events are hash-chained:
//
//	EntryHash = sha256(PrevHash || canonical JSON of the event)
//
// so that re-verification detects both edited rows and removed or
// reordered links. There is no update or delete path; the ledger only grows.
//
// # Usage
//
//	ledger := custody.NewLedger(db)
//	if err := ledger.InitSchema(ctx); err != nil { ... }
//
//	ev := &custody.Event{
//	    RefID:     alert.ID,
//	    RefType:   custody.RefAlert,
//	    EventType: custody.EventCreated,
//	    Actor:     custody.ActorDetector,
//	}
//	if err := ledger.Append(ctx, ev); err != nil { ... }
//
// An entity write and its event commit together through InTx:
//
//	err := ledger.InTx(ctx, func(tx *sql.Tx) error {
//	    if err := store.InsertAlertTx(ctx, tx, alert); err != nil {
//	        return err
//	    }
//	    return ledger.AppendTx(ctx, tx, ev)
//	})
//
//	trail, err := ledger.VerifiedTrail(ctx, []string{alert.ID, alert.AnomalyID})
//	if errors.Is(err, faults.ErrIntegrityViolation) { ... }
//
// Appends are serialized by a mutex inside the Ledger that is held for the
// whole InTx transaction; a process must use a single Ledger per database.
package custody
