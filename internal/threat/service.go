// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package threat is the operational surface of ShadowCheck: detection
// passes, analyst feedback, per-user configuration, adaptive tuning and
// evidence export. The scheduler and the HTTP API both call through it.
package threat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/shadowcheck/internal/alerts"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/evidence"
	"github.com/tomtom215/shadowcheck/internal/faults"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/metrics"
	"github.com/tomtom215/shadowcheck/internal/tuning"
)

// DefaultUserID owns the pass when no user has stored a config.
const DefaultUserID = "default"

// SightingReader loads the sightings of a detection window.
type SightingReader interface {
	SightingsBetween(ctx context.Context, from, to time.Time) ([]detection.Sighting, error)
}

// AnomalyDetector runs one user's pass.
type AnomalyDetector interface {
	Run(ctx context.Context, pass detection.Pass) ([]*detection.Anomaly, error)
}

// AlertGenerator turns a persisted anomaly into an alert.
type AlertGenerator interface {
	Generate(ctx context.Context, a *detection.Anomaly, cfg *detection.DetectionConfig) (*alerts.Result, error)
}

// FeedbackHandler applies analyst feedback.
type FeedbackHandler interface {
	SubmitFeedback(ctx context.Context, req alerts.FeedbackRequest) (bool, error)
}

// AdaptiveTuner runs one tuning cycle.
type AdaptiveTuner interface {
	Run(ctx context.Context) ([]tuning.Adjustment, error)
}

// EvidenceExporter builds evidence packages.
type EvidenceExporter interface {
	Export(ctx context.Context, req evidence.Request) (*evidence.Package, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Sightings SightingReader
	Configs   detection.ConfigStore
	Detector  AnomalyDetector
	Generator AlertGenerator
	Feedback  FeedbackHandler
	Tuner     AdaptiveTuner
	Exporter  EvidenceExporter
	Defaults  detection.Defaults
}

// Service implements the ShadowCheck operations.
type Service struct {
	Deps
	now func() time.Time
}

// New creates a Service.
func New(deps Deps) *Service {
	return &Service{Deps: deps, now: time.Now}
}

// PassSummary describes one RunDetectionPass call.
type PassSummary struct {
	Users     int
	Anomalies int
	Alerts    int
	Outcomes  map[alerts.Outcome]int
}

// RunDetectionPass evaluates the last windowDays of sightings for every user
// with a stored config, or for DefaultUserID when there are none, and
// returns the number of anomalies persisted.
//
// Cancelling ctx stops the pass between device windows. Anomalies already
// found are persisted and alerted, and the count so far is returned with
// ctx.Err().
func (s *Service) RunDetectionPass(ctx context.Context, windowDays int) (int, error) {
	sum, err := s.DetectionPass(ctx, windowDays)
	return sum.Anomalies, err
}

// DetectionPass is RunDetectionPass with a full summary.
func (s *Service) DetectionPass(ctx context.Context, windowDays int) (PassSummary, error) {
	sum := PassSummary{Outcomes: make(map[alerts.Outcome]int)}
	if windowDays < 1 {
		return sum, faults.Invalid("window_days", "must be at least 1, got %d", windowDays)
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordDetectionPass(metrics.StatusCancelled, 0)
		return sum, err
	}

	start := time.Now()
	end := s.now().UTC()
	from := end.Add(-time.Duration(windowDays) * 24 * time.Hour)

	status := metrics.StatusSuccess
	defer func() { metrics.RecordDetectionPass(status, time.Since(start)) }()

	configs, err := s.passConfigs(ctx)
	if err != nil {
		status = metrics.StatusFailure
		return sum, err
	}
	sightings, err := s.Sightings.SightingsBetween(ctx, from, end)
	if err != nil {
		status = metrics.StatusFailure
		return sum, fmt.Errorf("load sightings: %w", err)
	}

	var errs []error
	for _, cfg := range configs {
		if ctx.Err() != nil {
			break
		}
		sum.Users++
		pass := detection.Pass{
			ID:        uuid.New().String(),
			Start:     from,
			End:       end,
			Sightings: sightings,
			Config:    cfg,
		}
		anomalies, runErr := s.Detector.Run(ctx, pass)
		s.alertAnomalies(ctx, cfg, anomalies, &sum)

		if runErr != nil && ctx.Err() == nil {
			logging.Error().Err(runErr).Str("user_id", cfg.UserID).Str("pass_id", pass.ID).
				Msg("Detection pass failed for user")
			errs = append(errs, fmt.Errorf("user %s: %w", cfg.UserID, runErr))
		}
	}

	logging.Info().
		Int("window_days", windowDays).
		Int("sightings", len(sightings)).
		Int("users", sum.Users).
		Int("anomalies", sum.Anomalies).
		Int("alerts", sum.Alerts).
		Msg("Detection pass complete")

	if err := ctx.Err(); err != nil {
		status = metrics.StatusCancelled
		return sum, err
	}
	if len(errs) > 0 {
		status = metrics.StatusFailure
		return sum, errors.Join(errs...)
	}
	return sum, nil
}

func (s *Service) passConfigs(ctx context.Context) ([]*detection.DetectionConfig, error) {
	configs, err := s.Configs.ListConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list detection configs: %w", err)
	}
	if len(configs) == 0 {
		configs = []*detection.DetectionConfig{detection.NewDetectionConfig(DefaultUserID, s.Defaults)}
	}
	return configs, nil
}

// alertAnomalies generates the alert of each new anomaly. The detector has
// already stored each anomaly with its custody record; work continues after
// cancellation so that no stored anomaly is left unalerted.
func (s *Service) alertAnomalies(ctx context.Context, cfg *detection.DetectionConfig, anomalies []*detection.Anomaly, sum *PassSummary) {
	ctx = context.WithoutCancel(ctx)
	for _, a := range anomalies {
		sum.Anomalies++
		res, err := s.Generator.Generate(ctx, a, cfg)
		if err != nil {
			logging.Error().Err(err).Str("anomaly_id", a.ID).Str("user_id", a.UserID).Msg("Alert generation failed")
			continue
		}
		sum.Outcomes[res.Outcome]++
		if res.Created {
			sum.Alerts++
		}
	}
}

// SubmitFeedback applies an analyst rating to an alert. It returns false,
// with nothing written, when the alert was already acknowledged or
// dismissed.
func (s *Service) SubmitFeedback(ctx context.Context, alertID, rating, notes string, whitelist bool, actor string) (bool, error) {
	return s.Feedback.SubmitFeedback(ctx, alerts.FeedbackRequest{
		AlertID:   alertID,
		Rating:    rating,
		Notes:     notes,
		Whitelist: whitelist,
		Actor:     actor,
	})
}

// UpdateConfig merges thresholds and the safe-zone toggle into the user's
// stored config, or into a new config seeded from defaults, and saves it
// with a version bump. A nil safeZonesEnabled leaves the toggle unchanged.
// It returns the config id.
func (s *Service) UpdateConfig(ctx context.Context, userID string, thresholds map[detection.AnomalyType]float64, safeZonesEnabled *bool) (string, error) {
	cfg, err := s.Config(ctx, userID)
	if err != nil {
		return "", err
	}
	for t, v := range thresholds {
		if !t.Valid() {
			return "", faults.Invalid("thresholds", "unknown anomaly type %q", t)
		}
		cfg.Thresholds[t] = v
	}
	if safeZonesEnabled != nil {
		cfg.SafeZonesEnabled = *safeZonesEnabled
	}

	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if err := s.Configs.SaveConfig(ctx, cfg); err != nil {
		return "", err
	}
	logging.Ctx(ctx).Info().Str("user_id", userID).Str("config_id", cfg.ID).Int("version", cfg.Version).
		Msg("Detection config updated")
	return cfg.ID, nil
}

// Config returns the user's stored config, or an unsaved default config
// when none is stored.
func (s *Service) Config(ctx context.Context, userID string) (*detection.DetectionConfig, error) {
	if userID == "" {
		return nil, faults.Invalid("user_id", "is required")
	}
	cfg, err := s.Configs.GetConfig(ctx, userID)
	if errors.Is(err, faults.ErrNotFound) {
		return detection.NewDetectionConfig(userID, s.Defaults), nil
	}
	if err != nil {
		return nil, err
	}
	if cfg.Thresholds == nil {
		cfg.Thresholds = make(map[detection.AnomalyType]float64)
	}
	return cfg, nil
}

// RunAdaptiveTuning runs one tuning cycle. A lease held by another instance
// returns an error wrapping faults.ErrConflict and no adjustments.
func (s *Service) RunAdaptiveTuning(ctx context.Context) ([]tuning.Adjustment, error) {
	return s.Tuner.Run(ctx)
}

// ExportEvidence builds a verified, hashed evidence package.
func (s *Service) ExportEvidence(ctx context.Context, req evidence.Request) (*evidence.Package, error) {
	return s.Exporter.Export(ctx, req)
}
