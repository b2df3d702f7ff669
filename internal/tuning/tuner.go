// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package tuning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/shadowcheck/internal/alerts"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/faults"
	"github.com/tomtom215/shadowcheck/internal/lease"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

// FeedbackAggregator tallies feedback per user and type.
type FeedbackAggregator interface {
	FeedbackCounts(ctx context.Context, since time.Time) ([]alerts.FeedbackCount, error)
}

// HistoryStore persists applied adjustments.
type HistoryStore interface {
	InsertAdjustments(ctx context.Context, adj []Adjustment) error
}

// Tuner runs the adaptive threshold job.
type Tuner struct {
	cfg      Config
	feedback FeedbackAggregator
	configs  detection.ConfigStore
	history  HistoryStore
	locker   lease.Locker
	defaults detection.Defaults
	now      func() time.Time
}

// NewTuner creates a tuner. Users with feedback but no stored config are
// tuned from defaults.
func NewTuner(cfg Config, feedback FeedbackAggregator, configs detection.ConfigStore, history HistoryStore,
	locker lease.Locker, defaults detection.Defaults) *Tuner {
	return &Tuner{
		cfg:      cfg,
		feedback: feedback,
		configs:  configs,
		history:  history,
		locker:   locker,
		defaults: defaults,
		now:      time.Now,
	}
}

// Run performs one tuning cycle and returns the applied adjustments.
// It returns an error wrapping faults.ErrConflict, and no adjustments, when
// another instance holds the lease.
func (t *Tuner) Run(ctx context.Context) ([]Adjustment, error) {
	held, err := t.locker.Acquire(ctx, t.cfg.LeaseName, t.cfg.LeaseTTL)
	if err != nil {
		if errors.Is(err, faults.ErrConflict) {
			metrics.RecordTuningRun(metrics.StatusSkipped)
			logging.Info().Err(err).Msg("Tuning run skipped, lease held elsewhere")
		} else {
			metrics.RecordTuningRun(metrics.StatusFailure)
		}
		return nil, err
	}
	defer func() {
		if err := t.locker.Release(context.WithoutCancel(ctx), held); err != nil {
			logging.Warn().Err(err).Msg("Failed to release tuning lease")
		}
	}()

	adjustments, err := t.run(ctx)
	switch {
	case err == nil:
		metrics.RecordTuningRun(metrics.StatusSuccess)
	case errors.Is(err, context.Canceled):
		metrics.RecordTuningRun(metrics.StatusCancelled)
	default:
		metrics.RecordTuningRun(metrics.StatusFailure)
	}
	return adjustments, err
}

func (t *Tuner) run(ctx context.Context) ([]Adjustment, error) {
	now := t.now().UTC()
	counts, err := t.feedback.FeedbackCounts(ctx, now.Add(-t.cfg.Window()))
	if err != nil {
		return nil, fmt.Errorf("aggregate feedback: %w", err)
	}

	byUser := make(map[string][]alerts.FeedbackCount)
	var users []string
	for _, c := range counts {
		if _, ok := byUser[c.UserID]; !ok {
			users = append(users, c.UserID)
		}
		byUser[c.UserID] = append(byUser[c.UserID], c)
	}

	var out []Adjustment
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		adj, err := t.tuneUser(ctx, userID, byUser[userID], now)
		if err != nil {
			if errors.Is(err, faults.ErrConflict) {
				logging.Warn().Err(err).Str("user_id", userID).
					Msg("Config changed during tuning, user skipped until next run")
				continue
			}
			return out, err
		}
		out = append(out, adj...)
	}

	logging.Info().Int("users", len(users)).Int("adjustments", len(out)).Msg("Tuning run complete")
	return out, nil
}

func (t *Tuner) tuneUser(ctx context.Context, userID string, counts []alerts.FeedbackCount, now time.Time) ([]Adjustment, error) {
	cfg, err := t.configs.GetConfig(ctx, userID)
	if errors.Is(err, faults.ErrNotFound) {
		cfg = detection.NewDetectionConfig(userID, t.defaults)
	} else if err != nil {
		return nil, fmt.Errorf("load config for %s: %w", userID, err)
	}

	var adjustments []Adjustment
	for _, c := range counts {
		if !c.AnomalyType.Valid() {
			continue
		}
		sample := Sample{Total: c.Total, FalsePositive: c.FalsePositive}
		old := cfg.Threshold(c.AnomalyType)
		next, reason, ok := t.cfg.Decide(old, sample, cfg.FeedbackWeight)
		if !ok {
			continue
		}
		cfg.Thresholds[c.AnomalyType] = next
		adjustments = append(adjustments, Adjustment{
			ID:                uuid.New().String(),
			UserID:            userID,
			Type:              c.AnomalyType,
			Old:               old,
			New:               next,
			Reason:            reason,
			FalsePositiveRate: sample.Rate(),
			Samples:           sample.Total,
			AppliedAt:         now,
		})
	}
	if len(adjustments) == 0 {
		return nil, nil
	}

	if err := t.configs.SaveConfig(ctx, cfg); err != nil {
		return nil, err
	}
	if err := t.history.InsertAdjustments(ctx, adjustments); err != nil {
		// The thresholds are already live; only the history row is missing.
		logging.Error().Err(err).Str("user_id", userID).Msg("Failed to record threshold adjustments")
	}

	for _, a := range adjustments {
		metrics.RecordTuningAdjustment(string(a.Type), a.Old, a.New)
		logging.Info().
			Str("user_id", userID).
			Str("type", string(a.Type)).
			Float64("old", a.Old).
			Float64("new", a.New).
			Str("reason", a.Reason).
			Msg("Threshold adjusted")
	}
	return adjustments, nil
}
