// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package evidence assembles hash-sealed evidence packages from alerts.
//
// The integrity hash is SHA-256 over a stable snapshot of the package
// (purpose, case reference, alerts, technical analysis and custody trail).
// Per-export values such as the export id, time and actor sit in the
// metadata outside the snapshot, so exporting the same alerts twice with no
// intervening change yields the same hash. The "exported" custody event
// refers to the package id, never to the alerts, which keeps the alerts'
// own trail unchanged by the export.
package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/shadowcheck/internal/alerts"
	"github.com/tomtom215/shadowcheck/internal/custody"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/faults"
	"github.com/tomtom215/shadowcheck/internal/feed"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

// HashAlgorithm names the integrity hash.
const HashAlgorithm = "SHA-256"

// Request is one export call.
type Request struct {
	AlertIDs      []string `json:"alert_ids" validate:"required,min=1,dive,required"`
	Purpose       string   `json:"purpose" validate:"required"`
	CaseReference string   `json:"case_reference,omitempty"`
	Actor         string   `json:"actor,omitempty"`
}

// Metadata describes one export.
type Metadata struct {
	ExportID      string    `json:"export_id"`
	ExportedAt    time.Time `json:"exported_at"`
	ExportedBy    string    `json:"exported_by"`
	Purpose       string    `json:"purpose"`
	CaseReference string    `json:"case_reference,omitempty"`
	AlertCount    int       `json:"alert_count"`
}

// Analysis is the technical detail behind one alert.
type Analysis struct {
	AlertID string             `json:"alert_id"`
	Anomaly *detection.Anomaly `json:"anomaly"`
	Device  *feed.DeviceInfo   `json:"device,omitempty"`
}

// Package is the exported document.
type Package struct {
	ExportMetadata     Metadata        `json:"export_metadata"`
	SurveillanceAlerts []*alerts.Alert `json:"surveillance_alerts"`
	TechnicalAnalysis  []Analysis      `json:"technical_analysis"`
	ChainOfCustody     []custody.Event `json:"chain_of_custody"`
	IntegrityHash      string          `json:"integrity_hash"`
	HashAlgorithm      string          `json:"hash_algorithm"`
}

// snapshot is the hashed part of a package. Field order is fixed.
type snapshot struct {
	Purpose            string          `json:"purpose"`
	CaseReference      string          `json:"case_reference"`
	SurveillanceAlerts []*alerts.Alert `json:"surveillance_alerts"`
	TechnicalAnalysis  []Analysis      `json:"technical_analysis"`
	ChainOfCustody     []custody.Event `json:"chain_of_custody"`
}

// ComputeHash returns the integrity hash of p's stable snapshot.
func ComputeHash(p *Package) (string, error) {
	payload, err := json.Marshal(snapshot{
		Purpose:            p.ExportMetadata.Purpose,
		CaseReference:      p.ExportMetadata.CaseReference,
		SurveillanceAlerts: p.SurveillanceAlerts,
		TechnicalAnalysis:  p.TechnicalAnalysis,
		ChainOfCustody:     p.ChainOfCustody,
	})
	if err != nil {
		return "", fmt.Errorf("encode evidence snapshot: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes p's hash and compares it with the embedded one.
func Verify(p *Package) error {
	want, err := ComputeHash(p)
	if err != nil {
		return err
	}
	if want != p.IntegrityHash {
		return fmt.Errorf("evidence %s hash mismatch: %w", p.ExportMetadata.ExportID, faults.ErrIntegrityViolation)
	}
	return nil
}

// AlertReader loads alerts.
type AlertReader interface {
	GetAlert(ctx context.Context, id string) (*alerts.Alert, error)
}

// AnomalyReader loads anomalies.
type AnomalyReader interface {
	GetAnomaly(ctx context.Context, id string) (*detection.Anomaly, error)
}

// Classifier describes devices for the technical analysis.
type Classifier interface {
	Classify(ctx context.Context, deviceID string) (*feed.DeviceInfo, error)
}

// Ledger is the custody access the exporter needs.
type Ledger interface {
	VerifiedTrail(ctx context.Context, refIDs []string) ([]custody.Event, error)
	Append(ctx context.Context, ev *custody.Event) error
}

// Exporter builds evidence packages.
type Exporter struct {
	alerts       AlertReader
	anomalies    AnomalyReader
	classifier   Classifier
	ledger       Ledger
	defaultActor string
	now          func() time.Time
}

// NewExporter creates an exporter. classifier may be nil.
func NewExporter(alertReader AlertReader, anomalies AnomalyReader, classifier Classifier, ledger Ledger, defaultActor string) *Exporter {
	if defaultActor == "" {
		defaultActor = "system:exporter"
	}
	return &Exporter{
		alerts:       alertReader,
		anomalies:    anomalies,
		classifier:   classifier,
		ledger:       ledger,
		defaultActor: defaultActor,
		now:          time.Now,
	}
}

// Export assembles, seals and logs an evidence package. Nothing is written
// unless every alert exists and the custody trail verifies.
func (e *Exporter) Export(ctx context.Context, req Request) (pkg *Package, err error) {
	defer func() { metrics.RecordEvidenceExport(err) }()

	ids, err := normalizeRequest(&req)
	if err != nil {
		return nil, err
	}
	actor := req.Actor
	if strings.TrimSpace(actor) == "" {
		actor = e.defaultActor
	}

	pkg = &Package{HashAlgorithm: HashAlgorithm}
	refs := make([]string, 0, 2*len(ids))
	for _, id := range ids {
		alert, err := e.alerts.GetAlert(ctx, id)
		if err != nil {
			return nil, err
		}
		anomaly, err := e.anomalies.GetAnomaly(ctx, alert.AnomalyID)
		if err != nil {
			return nil, fmt.Errorf("load anomaly of alert %s: %w", id, err)
		}
		pkg.SurveillanceAlerts = append(pkg.SurveillanceAlerts, alert)
		pkg.TechnicalAnalysis = append(pkg.TechnicalAnalysis, Analysis{
			AlertID: alert.ID,
			Anomaly: anomaly,
			Device:  e.classify(ctx, anomaly.PrimaryDevice),
		})
		refs = append(refs, alert.ID, anomaly.ID)
	}

	trail, err := e.ledger.VerifiedTrail(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("verify custody trail: %w", err)
	}
	pkg.ChainOfCustody = trail
	if pkg.ChainOfCustody == nil {
		pkg.ChainOfCustody = []custody.Event{}
	}

	pkg.ExportMetadata = Metadata{
		ExportID:      uuid.New().String(),
		ExportedAt:    e.now().UTC(),
		ExportedBy:    actor,
		Purpose:       req.Purpose,
		CaseReference: req.CaseReference,
		AlertCount:    len(ids),
	}
	if pkg.IntegrityHash, err = ComputeHash(pkg); err != nil {
		return nil, err
	}

	desc := fmt.Sprintf("exported %d alerts for %s", len(ids), req.Purpose)
	if req.CaseReference != "" {
		desc += " (case " + req.CaseReference + ")"
	}
	if err := e.ledger.Append(ctx, &custody.Event{
		RefID:         pkg.ExportMetadata.ExportID,
		RefType:       custody.RefEvidence,
		EventType:     custody.EventExported,
		Actor:         actor,
		Description:   desc,
		IntegrityHash: pkg.IntegrityHash,
	}); err != nil {
		return nil, fmt.Errorf("record export custody: %w", err)
	}

	logging.Info().
		Str("export_id", pkg.ExportMetadata.ExportID).
		Int("alerts", len(ids)).
		Str("integrity_hash", pkg.IntegrityHash).
		Str("actor", actor).
		Msg("Evidence exported")
	return pkg, nil
}

func (e *Exporter) classify(ctx context.Context, deviceID string) *feed.DeviceInfo {
	if e.classifier == nil {
		return nil
	}
	info, err := e.classifier.Classify(ctx, deviceID)
	if err != nil {
		logging.Debug().Err(err).Str("device_id", deviceID).Msg("Device classification unavailable")
		return nil
	}
	return info
}

// normalizeRequest trims the purpose and returns the sorted, deduplicated
// alert ids.
func normalizeRequest(req *Request) ([]string, error) {
	req.Purpose = strings.TrimSpace(req.Purpose)
	req.CaseReference = strings.TrimSpace(req.CaseReference)
	if req.Purpose == "" {
		return nil, faults.Invalid("purpose", "is required")
	}
	seen := make(map[string]bool, len(req.AlertIDs))
	ids := make([]string, 0, len(req.AlertIDs))
	for _, id := range req.AlertIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, faults.Invalid("alert_ids", "at least one alert id is required")
	}
	sort.Strings(ids)
	return ids, nil
}
