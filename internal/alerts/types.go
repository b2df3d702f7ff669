// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package alerts turns scored anomalies into user-facing alerts and drives
// their lifecycle.
//
// An alert references exactly one anomaly, enforced by a UNIQUE column
// rather than a lock: a second creation attempt for the same anomaly is a
// benign no-op. Status moves once, from active to acknowledged or
// dismissed, through a single compare-and-set statement; acting on an alert
// that is no longer active returns false without error and writes nothing.
package alerts

import (
	"context"
	"time"

	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/faults"
	"github.com/tomtom215/shadowcheck/internal/scoring"
)

// Level is the alert severity, derived from urgency.
type Level string

const (
	LevelInfo      Level = "info"
	LevelWarning   Level = "warning"
	LevelCritical  Level = "critical"
	LevelEmergency Level = "emergency"
)

// LevelFor maps urgency onto an alert level.
func LevelFor(urgency float64, b scoring.AlertBands) Level {
	switch {
	case urgency < b.Warning:
		return LevelInfo
	case urgency < b.Critical:
		return LevelWarning
	case urgency < b.Emergency:
		return LevelCritical
	default:
		return LevelEmergency
	}
}

// Status is the lifecycle state of an alert.
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusDismissed    Status = "dismissed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return s == StatusAcknowledged || s == StatusDismissed }

// Rating is the user's verdict on an alert.
type Rating string

const (
	RatingFalsePositive Rating = "false_positive"
	RatingRealThreat    Rating = "real_threat"
	RatingUncertain     Rating = "uncertain"
)

// ParseRating validates r.
func ParseRating(r string) (Rating, error) {
	switch Rating(r) {
	case RatingFalsePositive, RatingRealThreat, RatingUncertain:
		return Rating(r), nil
	}
	return "", faults.Invalid("rating", "must be one of false_positive, real_threat, uncertain; got %q", r)
}

// TargetStatus is the status a rating moves an active alert to.
func (r Rating) TargetStatus() Status {
	if r == RatingFalsePositive {
		return StatusDismissed
	}
	return StatusAcknowledged
}

// Alert is a user-facing notification derived from one anomaly.
type Alert struct {
	ID                         string                `json:"id"`
	AnomalyID                  string                `json:"anomaly_id"`
	UserID                     string                `json:"user_id"`
	AnomalyType                detection.AnomalyType `json:"anomaly_type"`
	Level                      Level                 `json:"level"`
	Status                     Status                `json:"status"`
	RequiresImmediateAttention bool                  `json:"requires_immediate_attention"`
	Title                      string                `json:"title"`
	Description                string                `json:"description"`
	RecommendedActions         []string              `json:"recommended_actions"`
	FinalScore                 float64               `json:"final_score"`
	Urgency                    float64               `json:"urgency"`
	Assessment                 scoring.Assessment    `json:"assessment"`
	ThreatLevel                scoring.ThreatLevel   `json:"threat_level"`
	CreatedAt                  time.Time             `json:"created_at"`
	AcknowledgedAt             *time.Time            `json:"acknowledged_at,omitempty"`
}

// Feedback is one append-only user rating of an alert.
type Feedback struct {
	ID          string                `json:"id"`
	AlertID     string                `json:"alert_id"`
	UserID      string                `json:"user_id"`
	AnomalyType detection.AnomalyType `json:"anomaly_type"`
	Rating      Rating                `json:"rating"`
	Notes       string                `json:"notes,omitempty"`
	Whitelist   bool                  `json:"whitelist"`
	CreatedAt   time.Time             `json:"created_at"`
}

// Filter narrows ListAlerts.
type Filter struct {
	UserID string
	Status Status
	Limit  int
}

// Notifier receives newly created alerts. Failures are logged by the
// caller and never fail alert creation.
type Notifier interface {
	Notify(ctx context.Context, alert *Alert) error
	Name() string
}
