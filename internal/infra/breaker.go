// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package infra

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/shadowcheck/internal/faults"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

// BreakerConfig configures the circuit breaker around correlation lookups.
type BreakerConfig struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// BreakerClient wraps a Lookuper with a circuit breaker so that a dead
// correlation service costs one fast failure per device instead of a
// timeout per device.
type BreakerClient struct {
	next Lookuper
	cb   *gobreaker.CircuitBreaker[*Correlation]
	name string
}

// NewBreakerClient wraps next.
func NewBreakerClient(next Lookuper, cfg BreakerConfig) *BreakerClient {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Minute
	}
	name := "infra-correlation"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[*Correlation](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		// A cancelled pass says nothing about the service's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerClient{next: next, cb: cb, name: name}
}

// Lookup implements Lookuper.
func (b *BreakerClient) Lookup(ctx context.Context, deviceID string) (*Correlation, error) {
	c, err := b.cb.Execute(func() (*Correlation, error) {
		return b.next.Lookup(ctx, deviceID)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, faults.Unavailable("infra", err)
		}
		return nil, err
	}
	return c, nil
}

// State returns the breaker state, for health reporting.
func (b *BreakerClient) State() string {
	return b.cb.State().String()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
