// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package alerts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/shadowcheck/internal/custody"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/faults"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/metrics"
	"github.com/tomtom215/shadowcheck/internal/safezone"
	"github.com/tomtom215/shadowcheck/internal/scoring"
)

// Outcome says what Generate did with an anomaly.
type Outcome string

const (
	OutcomeCreated            Outcome = "created"
	OutcomeDuplicate          Outcome = "duplicate"
	OutcomeSuppressedSafeZone Outcome = "suppressed_safe_zone"
	OutcomeSuppressedLow      Outcome = "suppressed_threshold"
)

// Result is the outcome of one Generate call.
type Result struct {
	Outcome Outcome
	Created bool
	Alert   *Alert
	Score   scoring.Score
	// ZoneID is set when a safe zone suppressed the alert.
	ZoneID string
}

// AlertInserter persists new alerts inside a custody transaction.
type AlertInserter interface {
	InsertAlertTx(ctx context.Context, tx *sql.Tx, a *Alert) error
}

// AnomalyScorer scores a persisted anomaly.
type AnomalyScorer interface {
	Score(ctx context.Context, a *detection.Anomaly) (scoring.Score, error)
}

// ZoneLookup finds the safe zone suppressing a type at a point.
type ZoneLookup interface {
	Covering(ctx context.Context, userID string, lat, lon float64, t detection.AnomalyType) (*safezone.Zone, error)
}

// DeviceNamer resolves a display name for a device.
type DeviceNamer interface {
	DeviceName(ctx context.Context, deviceID string) (string, error)
}

// Generator decides whether a scored anomaly becomes an alert.
type Generator struct {
	store     AlertInserter
	scorer    AnomalyScorer
	zones     ZoneLookup
	namer     DeviceNamer
	ledger    custody.TxLedger
	bands     scoring.AlertBands
	notifiers []Notifier
	now       func() time.Time
}

// GeneratorOption configures optional collaborators.
type GeneratorOption func(*Generator)

// WithZones enables safe-zone suppression.
func WithZones(z ZoneLookup) GeneratorOption { return func(g *Generator) { g.zones = z } }

// WithDeviceNamer resolves device names for titles.
func WithDeviceNamer(n DeviceNamer) GeneratorOption { return func(g *Generator) { g.namer = n } }

// WithNotifiers adds notifiers for created alerts.
func WithNotifiers(n ...Notifier) GeneratorOption {
	return func(g *Generator) { g.notifiers = append(g.notifiers, n...) }
}

// NewGenerator creates a generator.
func NewGenerator(store AlertInserter, scorer AnomalyScorer, ledger custody.TxLedger, bands scoring.AlertBands, opts ...GeneratorOption) *Generator {
	g := &Generator{
		store:  store,
		scorer: scorer,
		ledger: ledger,
		bands:  bands,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate scores a and, unless it is suppressed, creates its alert.
// A second call for the same anomaly reports OutcomeDuplicate.
func (g *Generator) Generate(ctx context.Context, a *detection.Anomaly, cfg *detection.DetectionConfig) (*Result, error) {
	score, err := g.scorer.Score(ctx, a)
	if err != nil {
		return nil, err
	}
	res := &Result{Score: score}
	log := logging.Ctx(ctx).With().Str("anomaly_id", a.ID).Str("type", string(a.Type)).Logger()

	if zone := g.coveringZone(ctx, a, cfg); zone != nil && score.Urgency < cfg.SafeZoneOverrideThreshold {
		res.Outcome, res.ZoneID = OutcomeSuppressedSafeZone, zone.ID
		metrics.RecordAlertSuppressed("safe_zone")
		log.Debug().Str("zone_id", zone.ID).Float64("urgency", score.Urgency).Msg("Alert suppressed by safe zone")
		return res, nil
	}

	if score.Final < cfg.Threshold(a.Type) {
		res.Outcome = OutcomeSuppressedLow
		metrics.RecordAlertSuppressed("threshold")
		log.Debug().Float64("final_score", score.Final).Float64("threshold", cfg.Threshold(a.Type)).
			Msg("Alert suppressed below threshold")
		return res, nil
	}

	// The alert row and its "created" event commit together, so a failed
	// append leaves no alert behind and a retry can create it.
	alert := g.build(ctx, a, cfg, score)
	err = g.ledger.InTx(ctx, func(tx *sql.Tx) error {
		if err := g.store.InsertAlertTx(ctx, tx, alert); err != nil {
			return err
		}
		if err := g.ledger.AppendTx(ctx, tx, &custody.Event{
			RefID:       alert.ID,
			RefType:     custody.RefAlert,
			EventType:   custody.EventCreated,
			Actor:       custody.ActorDetector,
			Description: fmt.Sprintf("alert created for anomaly %s at level %s", a.ID, alert.Level),
		}); err != nil {
			return fmt.Errorf("record custody for alert %s: %w", alert.ID, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, faults.ErrConflict) {
			res.Outcome = OutcomeDuplicate
			metrics.RecordAlertSuppressed("duplicate")
			log.Debug().Msg("Alert already exists for anomaly")
			return res, nil
		}
		return nil, fmt.Errorf("create alert for anomaly %s: %w", a.ID, err)
	}

	metrics.RecordAlertCreated(string(alert.Level))
	log.Info().Str("alert_id", alert.ID).Str("level", string(alert.Level)).
		Bool("immediate", alert.RequiresImmediateAttention).Msg("Alert created")

	g.notify(ctx, alert)
	res.Outcome, res.Created, res.Alert = OutcomeCreated, true, alert
	return res, nil
}

func (g *Generator) coveringZone(ctx context.Context, a *detection.Anomaly, cfg *detection.DetectionConfig) *safezone.Zone {
	if g.zones == nil || !cfg.SafeZonesEnabled {
		return nil
	}
	center, ok := a.Centroid()
	if !ok {
		return nil
	}
	zone, err := g.zones.Covering(ctx, a.UserID, center.Lat, center.Lon, a.Type)
	if err != nil {
		// Fail open.
		logging.Warn().Err(err).Str("anomaly_id", a.ID).Msg("Safe zone lookup failed, not suppressing")
		return nil
	}
	return zone
}

func (g *Generator) build(ctx context.Context, a *detection.Anomaly, cfg *detection.DetectionConfig, s scoring.Score) *Alert {
	return &Alert{
		ID:                         uuid.New().String(),
		AnomalyID:                  a.ID,
		UserID:                     a.UserID,
		AnomalyType:                a.Type,
		Level:                      LevelFor(s.Urgency, g.bands),
		Status:                     StatusActive,
		RequiresImmediateAttention: s.Urgency >= cfg.ImmediateAlertThreshold,
		Title:                      Title(a.Type, g.deviceName(ctx, a.PrimaryDevice), len(a.RelatedDevices)),
		Description:                Description(a, s),
		RecommendedActions:         s.Actions,
		FinalScore:                 s.Final,
		Urgency:                    s.Urgency,
		Assessment:                 s.Assessment,
		ThreatLevel:                s.ThreatLevel,
		CreatedAt:                  g.now().UTC(),
	}
}

// deviceName falls back to the device id when no name is known.
func (g *Generator) deviceName(ctx context.Context, deviceID string) string {
	if g.namer == nil {
		return deviceID
	}
	name, err := g.namer.DeviceName(ctx, deviceID)
	if err != nil {
		logging.Debug().Err(err).Str("device_id", deviceID).Msg("Device name lookup failed")
		return deviceID
	}
	if strings.TrimSpace(name) == "" {
		return deviceID
	}
	return name
}

func (g *Generator) notify(ctx context.Context, alert *Alert) {
	for _, n := range g.notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			logging.Warn().Err(err).Str("alert_id", alert.ID).Str("notifier", n.Name()).
				Msg("Alert notification failed")
		}
	}
}
