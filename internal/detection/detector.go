// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/shadowcheck/internal/custody"
	"github.com/tomtom215/shadowcheck/internal/faults"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

// AnomalyStore is the persistence the detector needs.
type AnomalyStore interface {
	// InsertAnomalyTx returns faults.ErrConflict when an anomaly with the
	// same origin key already exists.
	InsertAnomalyTx(ctx context.Context, tx *sql.Tx, a *Anomaly) error
	Whitelist(ctx context.Context, userID string) (map[string]bool, error)
}

// Pass is one detection run for one user.
type Pass struct {
	ID        string
	Start     time.Time
	End       time.Time
	Sightings []Sighting
	Config    *DetectionConfig
}

// Detector turns rule candidates into persisted anomalies.
type Detector struct {
	engine *Engine
	store  AnomalyStore
	ledger custody.TxLedger
	now    func() time.Time
}

// NewDetector creates a detector. Each anomaly is stored together with its
// "created" custody event.
func NewDetector(engine *Engine, store AnomalyStore, ledger custody.TxLedger) *Detector {
	return &Detector{engine: engine, store: store, ledger: ledger, now: time.Now}
}

// Run evaluates the pass and persists one anomaly per detection origin.
//
// If ctx is cancelled mid-pass, the anomalies from the device windows that
// finished are still persisted and returned together with ctx.Err().
func (d *Detector) Run(ctx context.Context, pass Pass) ([]*Anomaly, error) {
	cfg := pass.Config
	if cfg == nil {
		return nil, faults.Invalid("config", "is required")
	}
	if pass.ID == "" {
		pass.ID = uuid.New().String()
	}

	whitelist, err := d.store.Whitelist(ctx, cfg.UserID)
	if err != nil {
		return nil, fmt.Errorf("load whitelist: %w", err)
	}

	w := NewWindow(pass.Sightings, pass.Start, pass.End, cfg.SubjectDeviceIDs)
	candidates, evalErr := d.engine.Evaluate(ctx, w, cfg)
	candidates = FilterWhitelisted(candidates, whitelist)

	// Finished work is kept even when the pass was cancelled.
	persistCtx := context.WithoutCancel(ctx)
	detectedAt := d.now().UTC()

	anomalies := make([]*Anomaly, 0, len(candidates))
	for i := range candidates {
		a, err := NewAnomaly(pass.ID, cfg.UserID, &candidates[i], detectedAt)
		if err != nil {
			logging.Error().Err(err).Str("type", string(candidates[i].Type)).
				Str("device_id", candidates[i].PrimaryDevice).Msg("Failed to build anomaly")
			continue
		}
		if err := d.persist(persistCtx, a); err != nil {
			if errors.Is(err, faults.ErrConflict) {
				logging.Debug().Str("origin_key", a.OriginKey).Msg("Anomaly already recorded")
				continue
			}
			return anomalies, fmt.Errorf("persist anomaly: %w", err)
		}
		metrics.RecordAnomaly(string(a.Type))
		anomalies = append(anomalies, a)
	}

	logging.Info().
		Str("pass_id", pass.ID).
		Str("user_id", cfg.UserID).
		Int("devices", len(w.Devices)).
		Int("sightings", w.SightingCount()).
		Int("anomalies", len(anomalies)).
		Msg("Detection pass evaluated")

	return anomalies, evalErr
}

// persist stores a and its custody event in one transaction.
func (d *Detector) persist(ctx context.Context, a *Anomaly) error {
	return d.ledger.InTx(ctx, func(tx *sql.Tx) error {
		if err := d.store.InsertAnomalyTx(ctx, tx, a); err != nil {
			return err
		}
		return d.ledger.AppendTx(ctx, tx, &custody.Event{
			RefID:       a.ID,
			RefType:     custody.RefAnomaly,
			EventType:   custody.EventCreated,
			Actor:       custody.ActorDetector,
			Description: fmt.Sprintf("%s detected on %s with confidence %.2f", a.Type, a.PrimaryDevice, a.Confidence),
		})
	})
}

// NewAnomaly builds an unsaved anomaly from a candidate.
func NewAnomaly(passID, userID string, c *Candidate, detectedAt time.Time) (*Anomaly, error) {
	evidence, err := json.Marshal(c.Evidence)
	if err != nil {
		return nil, fmt.Errorf("marshal evidence: %w", err)
	}
	related := append([]string{}, c.RelatedDevices...)
	return &Anomaly{
		ID:             uuid.New().String(),
		PassID:         passID,
		UserID:         userID,
		Type:           c.Type,
		Confidence:     round(clamp(c.Confidence, 0, 1), 4),
		PrimaryDevice:  c.PrimaryDevice,
		RelatedDevices: related,
		Geometry:       c.Geometry,
		Evidence:       evidence,
		FirstSeen:      c.FirstSeen.UTC(),
		LastSeen:       c.LastSeen.UTC(),
		DetectedAt:     detectedAt,
		OriginKey:      OriginKey(passID, userID, c),
	}, nil
}

// OriginKey identifies a detection origin: the same rule firing for the same
// devices over the same span in the same pass.
func OriginKey(passID, userID string, c *Candidate) string {
	devices := c.Devices()
	sort.Strings(devices)
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%d|%d",
		passID, userID, c.Type, strings.Join(devices, ","),
		c.FirstSeen.UnixNano(), c.LastSeen.UnixNano())
	return hex.EncodeToString(h.Sum(nil))
}
