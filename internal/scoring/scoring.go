// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package scoring escalates an anomaly's rule confidence with context and
// maps the result onto the professional-assessment and threat-level scales.
//
//	escalation = repeat + significance + infra
//	final      = min(1, confidence + escalation)
//	urgency    = min(1, final * urgencyWeight[type])
//
// Bands are configuration, not constants. Compute is a pure function of its
// inputs; Scorer gathers the context (prior anomaly count, infrastructure
// correlation) and calls it.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/infra"
	"github.com/tomtom215/shadowcheck/internal/logging"
)

// Assessment is the professional-assessment band of a final score.
type Assessment string

const (
	AssessmentMonitoring   Assessment = "monitoring_recommended"
	AssessmentPossible     Assessment = "possible"
	AssessmentOrganized    Assessment = "organized"
	AssessmentProfessional Assessment = "professional"
	AssessmentStateActor   Assessment = "state_actor_likely"
)

// ThreatLevel grades urgency.
type ThreatLevel string

const (
	ThreatLow       ThreatLevel = "low"
	ThreatModerate  ThreatLevel = "moderate"
	ThreatElevated  ThreatLevel = "elevated"
	ThreatImmediate ThreatLevel = "immediate"
)

// AssessmentBands are the lower bounds of each band above
// monitoring_recommended.
type AssessmentBands struct {
	Possible     float64 `koanf:"possible" validate:"gte=0,lte=1"`
	Organized    float64 `koanf:"organized" validate:"gte=0,lte=1"`
	Professional float64 `koanf:"professional" validate:"gte=0,lte=1"`
	StateActor   float64 `koanf:"state_actor" validate:"gte=0,lte=1"`
}

// ThreatBands are the lower bounds of each threat level above low.
type ThreatBands struct {
	Moderate  float64 `koanf:"moderate" validate:"gte=0,lte=1"`
	Elevated  float64 `koanf:"elevated" validate:"gte=0,lte=1"`
	Immediate float64 `koanf:"immediate" validate:"gte=0,lte=1"`
}

// AlertBands are the lower bounds of each alert level above info.
type AlertBands struct {
	Warning   float64 `koanf:"warning" validate:"gte=0,lte=1"`
	Critical  float64 `koanf:"critical" validate:"gte=0,lte=1"`
	Emergency float64 `koanf:"emergency" validate:"gte=0,lte=1"`
}

// Config holds every scoring constant.
type Config struct {
	Assessment          AssessmentBands      `koanf:"assessment"`
	Threat              ThreatBands          `koanf:"threat"`
	Alert               AlertBands           `koanf:"alert"`
	SignificanceWeights detection.TypeValues `koanf:"significance_weights"`
	UrgencyWeights      detection.TypeValues `koanf:"urgency_weights"`
	RepeatStep          float64              `koanf:"repeat_step" validate:"gte=0,lte=1"`
	RepeatCap           float64              `koanf:"repeat_cap" validate:"gte=0,lte=1"`
	RepeatWindow        time.Duration        `koanf:"repeat_window"`
	InfraWeight         float64              `koanf:"infra_weight" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the built-in bands and weights.
func DefaultConfig() Config {
	return Config{
		Assessment: AssessmentBands{Possible: 0.5, Organized: 0.65, Professional: 0.8, StateActor: 0.9},
		Threat:     ThreatBands{Moderate: 0.4, Elevated: 0.6, Immediate: 0.8},
		Alert:      AlertBands{Warning: 0.5, Critical: 0.7, Emergency: 0.85},
		SignificanceWeights: detection.TypeValues{
			ImpossibleDistance:    0.05,
			CoordinatedMovement:   0.10,
			AerialPattern:         0.10,
			InfrastructurePattern: 0.15,
			RouteCorrelation:      0.15,
		},
		UrgencyWeights: detection.TypeValues{
			ImpossibleDistance:    0.9,
			CoordinatedMovement:   1.0,
			AerialPattern:         0.95,
			InfrastructurePattern: 1.0,
			RouteCorrelation:      1.0,
		},
		RepeatStep:   0.05,
		RepeatCap:    0.2,
		RepeatWindow: 30 * 24 * time.Hour,
		InfraWeight:  0.2,
	}
}

// Validate checks that every band sequence is strictly increasing.
func (c Config) Validate() error {
	seqs := []struct {
		name string
		v    []float64
	}{
		{"assessment", []float64{c.Assessment.Possible, c.Assessment.Organized, c.Assessment.Professional, c.Assessment.StateActor}},
		{"threat", []float64{c.Threat.Moderate, c.Threat.Elevated, c.Threat.Immediate}},
		{"alert", []float64{c.Alert.Warning, c.Alert.Critical, c.Alert.Emergency}},
	}
	for _, s := range seqs {
		if err := increasing(s.v); err != nil {
			return fmt.Errorf("scoring.%s bands: %w", s.name, err)
		}
	}
	if c.RepeatWindow <= 0 {
		return errors.New("scoring.repeat_window must be positive")
	}
	return nil
}

func increasing(v []float64) error {
	for i, x := range v {
		if x < 0 || x > 1 {
			return fmt.Errorf("bound %v outside [0,1]", x)
		}
		if i > 0 && x <= v[i-1] {
			return fmt.Errorf("bounds must be strictly increasing, got %v after %v", x, v[i-1])
		}
	}
	return nil
}

// AssessmentFor maps a final score to its band.
func (c Config) AssessmentFor(final float64) Assessment {
	b := c.Assessment
	switch {
	case final < b.Possible:
		return AssessmentMonitoring
	case final < b.Organized:
		return AssessmentPossible
	case final < b.Professional:
		return AssessmentOrganized
	case final < b.StateActor:
		return AssessmentProfessional
	default:
		return AssessmentStateActor
	}
}

// ThreatLevelFor maps urgency to a threat level.
func (c Config) ThreatLevelFor(urgency float64) ThreatLevel {
	b := c.Threat
	switch {
	case urgency < b.Moderate:
		return ThreatLow
	case urgency < b.Elevated:
		return ThreatModerate
	case urgency < b.Immediate:
		return ThreatElevated
	default:
		return ThreatImmediate
	}
}

// Factors are the contextual inputs to escalation.
type Factors struct {
	PriorAnomalies   int
	InfraCorrelation float64
}

// Score is the full scoring result for one anomaly.
type Score struct {
	RuleConfidence   float64     `json:"rule_confidence"`
	PriorAnomalies   int         `json:"prior_anomalies_30d"`
	InfraCorrelation float64     `json:"infra_correlation"`
	Repeat           float64     `json:"repeat_escalation"`
	Significance     float64     `json:"significance_escalation"`
	Infra            float64     `json:"infra_escalation"`
	Escalation       float64     `json:"escalation"`
	Final            float64     `json:"final_score"`
	Urgency          float64     `json:"urgency"`
	Assessment       Assessment  `json:"assessment"`
	ThreatLevel      ThreatLevel `json:"threat_level"`
	Actions          []string    `json:"recommended_actions"`
}

// Compute scores an anomaly of type t. Identical inputs always produce
// identical output.
func (c Config) Compute(t detection.AnomalyType, confidence float64, f Factors) Score {
	repeat := math.Min(c.RepeatCap, c.RepeatStep*float64(f.PriorAnomalies))
	significance := c.SignificanceWeights.Map()[t]
	infraTerm := c.InfraWeight * clamp01(f.InfraCorrelation)
	escalation := repeat + significance + infraTerm
	final := math.Min(1, clamp01(confidence)+escalation)
	urgency := math.Min(1, final*c.UrgencyWeights.Map()[t])

	return Score{
		RuleConfidence:   confidence,
		PriorAnomalies:   f.PriorAnomalies,
		InfraCorrelation: f.InfraCorrelation,
		Repeat:           round4(repeat),
		Significance:     round4(significance),
		Infra:            round4(infraTerm),
		Escalation:       round4(escalation),
		Final:            round4(final),
		Urgency:          round4(urgency),
		Assessment:       c.AssessmentFor(round4(final)),
		ThreatLevel:      c.ThreatLevelFor(round4(urgency)),
		Actions:          RecommendedActions(t),
	}
}

// PriorCounter counts earlier anomalies for the repeat factor.
type PriorCounter interface {
	CountPriorAnomalies(ctx context.Context, userID, deviceID string, since time.Time, excludeID string) (int, error)
}

// Scorer gathers context for Compute.
type Scorer struct {
	cfg   Config
	prior PriorCounter
	infra infra.Lookuper
	now   func() time.Time
}

// NewScorer creates a scorer. A nil correlator scores infrastructure as zero.
func NewScorer(cfg Config, prior PriorCounter, correlator infra.Lookuper) *Scorer {
	return &Scorer{cfg: cfg, prior: prior, infra: correlator, now: time.Now}
}

// Config returns the scorer's configuration.
func (s *Scorer) Config() Config { return s.cfg }

// Score computes the score of a persisted anomaly. A failed correlation
// lookup counts as zero; a failed prior count is an error.
func (s *Scorer) Score(ctx context.Context, a *detection.Anomaly) (Score, error) {
	since := a.DetectedAt.Add(-s.cfg.RepeatWindow)
	if a.DetectedAt.IsZero() {
		since = s.now().Add(-s.cfg.RepeatWindow)
	}
	prior, err := s.prior.CountPriorAnomalies(ctx, a.UserID, a.PrimaryDevice, since, a.ID)
	if err != nil {
		return Score{}, fmt.Errorf("count prior anomalies for %s: %w", a.ID, err)
	}

	return s.cfg.Compute(a.Type, a.Confidence, Factors{
		PriorAnomalies:   prior,
		InfraCorrelation: s.maxCorrelation(ctx, a),
	}), nil
}

func (s *Scorer) maxCorrelation(ctx context.Context, a *detection.Anomaly) float64 {
	if s.infra == nil {
		return 0
	}
	var best float64
	for _, id := range a.Devices() {
		c, err := s.infra.Lookup(ctx, id)
		if err != nil {
			logging.Warn().Err(err).Str("anomaly_id", a.ID).Str("device_id", id).
				Msg("Infrastructure correlation unavailable, scoring as zero")
			continue
		}
		best = math.Max(best, c.Confidence)
	}
	return best
}

func clamp01(v float64) float64 { return math.Max(0, math.Min(1, v)) }

func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }
