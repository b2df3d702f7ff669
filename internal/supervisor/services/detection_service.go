// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package services

import (
	"context"
	"time"

	"github.com/tomtom215/shadowcheck/internal/feed"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/tuning"
)

// PassRunner runs one detection pass over the trailing windowDays.
// Satisfied by *threat.Service.
type PassRunner interface {
	RunDetectionPass(ctx context.Context, windowDays int) (int, error)
}

// TuningRunner runs adaptive tuning. Satisfied by *threat.Service.
type TuningRunner interface {
	RunAdaptiveTuning(ctx context.Context) ([]tuning.Adjustment, error)
}

// FeedSyncer pulls new sightings from the upstream feed.
// Satisfied by *feed.Syncer.
type FeedSyncer interface {
	SyncOnce(ctx context.Context) (int, error)
}

var _ FeedSyncer = (*feed.Syncer)(nil)

// NewDetectionService schedules detection passes.
func NewDetectionService(runner PassRunner, interval time.Duration, windowDays int, runOnStart bool) (*PeriodicService, error) {
	return NewPeriodicService("detection-scheduler", interval, runOnStart, func(ctx context.Context) error {
		alerts, err := runner.RunDetectionPass(ctx, windowDays)
		if alerts > 0 {
			logging.Ctx(ctx).Info().Int("alerts", alerts).Int("window_days", windowDays).Msg("Detection pass raised alerts")
		}
		return err
	})
}

// NewTuningService schedules adaptive tuning. A lease held by another
// instance surfaces as a benign conflict and is skipped.
func NewTuningService(runner TuningRunner, interval time.Duration) (*PeriodicService, error) {
	return NewPeriodicService("tuning-scheduler", interval, false, func(ctx context.Context) error {
		adjustments, err := runner.RunAdaptiveTuning(ctx)
		if err != nil {
			return err
		}
		if len(adjustments) > 0 {
			logging.Ctx(ctx).Info().Int("adjustments", len(adjustments)).Msg("Thresholds tuned")
		}
		return nil
	})
}

// NewFeedSyncService polls the sighting feed.
func NewFeedSyncService(syncer FeedSyncer, interval time.Duration) (*PeriodicService, error) {
	return NewPeriodicService("feed-sync", interval, true, func(ctx context.Context) error {
		n, err := syncer.SyncOnce(ctx)
		if n > 0 {
			logging.Ctx(ctx).Info().Int("sightings", n).Msg("Feed sync stored sightings")
		}
		return err
	})
}
