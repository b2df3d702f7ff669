// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package api

import (
	"context"
	"time"

	"github.com/tomtom215/shadowcheck/internal/alerts"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/evidence"
	"github.com/tomtom215/shadowcheck/internal/safezone"
	"github.com/tomtom215/shadowcheck/internal/threat"
	"github.com/tomtom215/shadowcheck/internal/tuning"
)

// ThreatService is the operation facade. Satisfied by *threat.Service.
type ThreatService interface {
	DetectionPass(ctx context.Context, windowDays int) (threat.PassSummary, error)
	SubmitFeedback(ctx context.Context, alertID, rating, notes string, whitelist bool, actor string) (bool, error)
	UpdateConfig(ctx context.Context, userID string, thresholds map[detection.AnomalyType]float64, safeZonesEnabled *bool) (string, error)
	Config(ctx context.Context, userID string) (*detection.DetectionConfig, error)
	RunAdaptiveTuning(ctx context.Context) ([]tuning.Adjustment, error)
	ExportEvidence(ctx context.Context, req evidence.Request) (*evidence.Package, error)
}

// AlertReader serves alert projections.
type AlertReader interface {
	GetAlert(ctx context.Context, id string) (*alerts.Alert, error)
	ListAlerts(ctx context.Context, f alerts.Filter) ([]*alerts.Alert, error)
}

// AnomalyStore serves anomalies and their analyst fields.
type AnomalyStore interface {
	GetAnomaly(ctx context.Context, id string) (*detection.Anomaly, error)
	UpdateInvestigation(ctx context.Context, id string, inv detection.Investigation) error
}

// ZoneRegistry manages safe zones.
type ZoneRegistry interface {
	Create(ctx context.Context, z *safezone.Zone) error
	List(ctx context.Context, userID string, includeInactive bool) ([]*safezone.Zone, error)
	Deactivate(ctx context.Context, userID, zoneID string) error
}

// ChainVerifier re-verifies the custody ledger.
type ChainVerifier interface {
	VerifyChain(ctx context.Context) (int, error)
}

// HealthCheck is one named dependency check.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps are the collaborators of Handlers.
type Deps struct {
	Threat    ThreatService
	Alerts    AlertReader
	Anomalies AnomalyStore
	Zones     ZoneRegistry
	Custody   ChainVerifier
	Health    []HealthCheck

	// DefaultWindowDays is used when a pass request omits window_days.
	DefaultWindowDays int
	Version           string
}

// Handlers implements the HTTP endpoints.
type Handlers struct {
	deps      Deps
	startTime time.Time
}

// NewHandlers creates Handlers.
func NewHandlers(deps Deps) *Handlers {
	if deps.DefaultWindowDays <= 0 {
		deps.DefaultWindowDays = 7
	}
	return &Handlers{deps: deps, startTime: time.Now()}
}
