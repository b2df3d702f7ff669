// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package tuning adjusts per-user, per-type alert thresholds from the
// false-positive rate of recent feedback.
//
// A run is a singleton guarded by the "tuning" lease. Each threshold moves
// by at most one bounded step per run and never leaves [Min, Max]. Groups
// with fewer than MinSamples ratings are left alone.
package tuning

import (
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/faults"
)

// Config holds the tuning policy.
type Config struct {
	Enabled    bool          `koanf:"enabled"`
	Interval   time.Duration `koanf:"interval"`
	WindowDays int           `koanf:"window_days" validate:"gte=1"`
	Ceiling    float64       `koanf:"ceiling" validate:"gte=0,lte=1"`
	Floor      float64       `koanf:"floor" validate:"gte=0,lte=1"`
	Step       float64       `koanf:"step" validate:"gt=0,lte=1"`
	Min        float64       `koanf:"min" validate:"gte=0,lte=1"`
	Max        float64       `koanf:"max" validate:"gte=0,lte=1"`
	MinSamples int           `koanf:"min_samples" validate:"gte=1"`
	LeaseName  string        `koanf:"lease_name"`
	LeaseTTL   time.Duration `koanf:"lease_ttl"`
}

// DefaultConfig returns the built-in policy.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Interval:   24 * time.Hour,
		WindowDays: 30,
		Ceiling:    0.3,
		Floor:      0.1,
		Step:       0.05,
		Min:        0.3,
		Max:        0.95,
		MinSamples: 5,
		LeaseName:  "tuning",
		LeaseTTL:   10 * time.Minute,
	}
}

// Validate checks the cross-field constraints.
func (c Config) Validate() error {
	switch {
	case c.WindowDays < 1:
		return faults.Invalid("tuning.window_days", "must be at least 1")
	case c.MinSamples < 1:
		return faults.Invalid("tuning.min_samples", "must be at least 1")
	case c.Step <= 0 || c.Step > 1:
		return faults.Invalid("tuning.step", "must be within (0,1]")
	case c.Min < 0 || c.Max > 1 || c.Min > c.Max:
		return faults.Invalid("tuning.min", "need 0 <= min <= max <= 1, got min %g max %g", c.Min, c.Max)
	case c.Floor < 0 || c.Ceiling > 1 || c.Floor >= c.Ceiling:
		return faults.Invalid("tuning.floor", "need 0 <= floor < ceiling <= 1, got floor %g ceiling %g", c.Floor, c.Ceiling)
	case c.LeaseTTL <= 0:
		return faults.Invalid("tuning.lease_ttl", "must be positive")
	}
	return nil
}

// Window is the feedback aggregation window.
func (c Config) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

// Sample is the feedback tally for one user and type.
type Sample struct {
	Total         int
	FalsePositive int
}

// Rate is FalsePositive / Total, or 0 with no samples.
func (s Sample) Rate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.FalsePositive) / float64(s.Total)
}

// Adjustment records one threshold change.
type Adjustment struct {
	ID                string                `json:"id"`
	UserID            string                `json:"user_id"`
	Type              detection.AnomalyType `json:"type"`
	Old               float64               `json:"old"`
	New               float64               `json:"new"`
	Reason            string                `json:"reason"`
	FalsePositiveRate float64               `json:"false_positive_rate"`
	Samples           int                   `json:"samples"`
	AppliedAt         time.Time             `json:"applied_at"`
}

// Decide computes the new threshold for one type. It reports false when
// the threshold should not move. weight scales the step and is clamped to
// [0,1].
func (c Config) Decide(old float64, s Sample, weight float64) (float64, string, bool) {
	if s.Total < c.MinSamples {
		return old, "", false
	}
	weight = math.Max(0, math.Min(1, weight))
	step := c.Step * weight
	rate := s.Rate()

	var (
		next   float64
		reason string
	)
	switch {
	case rate > c.Ceiling:
		next = math.Min(c.Max, old+step)
		reason = fmt.Sprintf("false-positive rate %.1f%% (%d/%d) exceeds ceiling %.1f%%",
			rate*100, s.FalsePositive, s.Total, c.Ceiling*100)
	case rate < c.Floor:
		next = math.Max(c.Min, old-step)
		reason = fmt.Sprintf("false-positive rate %.1f%% (%d/%d) below floor %.1f%%",
			rate*100, s.FalsePositive, s.Total, c.Floor*100)
	default:
		return old, "", false
	}

	next = math.Round(next*1e4) / 1e4
	if next == old {
		return old, "", false
	}
	// A threshold already outside the bounds only moves back toward them.
	if (rate > c.Ceiling && next < old) || (rate < c.Floor && next > old) {
		return old, "", false
	}
	return next, reason, true
}
