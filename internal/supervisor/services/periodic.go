// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/shadowcheck/internal/faults"
	"github.com/tomtom215/shadowcheck/internal/logging"
)

// Task is one unit of periodic work.
type Task func(ctx context.Context) error

// PeriodicService runs a Task on a fixed interval as a supervised service.
//
// Lifecycle:
//
//  1. Serve optionally runs the task once before the first tick
//  2. Each tick runs the task with a fresh correlation id on the context
//  3. Serve returns ctx.Err() when the supervisor stops it
//
// Task errors are logged and never returned, so one failed pass does not
// count against the supervisor's failure threshold. Benign errors such as a
// lease held by another replica are logged at debug level.
//
// Example usage:
//
//	svc, err := services.NewPeriodicService("retention", time.Hour, false, store.Prune)
//	if err != nil {
//		return err
//	}
//	tree.AddDataService(svc)
type PeriodicService struct {
	name       string
	interval   time.Duration
	runOnStart bool
	task       Task
}

// NewPeriodicService returns a service that calls task every interval, and
// once immediately when runOnStart is set.
func NewPeriodicService(name string, interval time.Duration, runOnStart bool, task Task) (*PeriodicService, error) {
	if task == nil {
		return nil, fmt.Errorf("%s: task is required", name)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%s: interval must be positive, got %s", name, interval)
	}
	return &PeriodicService{name: name, interval: interval, runOnStart: runOnStart, task: task}, nil
}

// Serve implements suture.Service. It returns ctx.Err() on shutdown.
func (p *PeriodicService) Serve(ctx context.Context) error {
	log := logging.WithComponent(p.name)
	log.Info().Dur("interval", p.interval).Msg("Scheduler started")

	if p.runOnStart {
		p.runOnce(ctx)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *PeriodicService) runOnce(ctx context.Context) {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx).With().Str("component", p.name).Logger()

	err := p.task(ctx)
	switch {
	case err == nil:
	case faults.IsBenign(err):
		log.Debug().Err(err).Msg("Run skipped")
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		log.Debug().Msg("Run cancelled by shutdown")
	default:
		log.Error().Err(err).Msg("Run failed")
	}
}

func (p *PeriodicService) String() string {
	return p.name
}
