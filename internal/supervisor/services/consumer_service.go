// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/shadowcheck/internal/logging"
)

// Router is a blocking message router. Satisfied by *eventbus.IngestRouter.
type Router interface {
	Run(ctx context.Context) error
	Close() error
}

// RouterFactory builds a fresh router. A closed watermill router cannot be
// run again, so every restart gets a new one.
type RouterFactory func() (Router, error)

// SightingConsumerService runs the sighting ingest router under the
// messaging layer supervisor.
//
// Each call to Serve:
//
//  1. Builds a new router from the factory
//  2. Runs it until ctx ends or the router stops by itself
//  3. Closes the router before returning
//
// Example usage:
//
//	tree.AddMessagingService(services.NewSightingConsumerService(func() (services.Router, error) {
//		return eventbus.NewIngestRouter(bus, detections, cfg.EventBus)
//	}))
type SightingConsumerService struct {
	newRouter RouterFactory
}

// NewSightingConsumerService wraps newRouter.
func NewSightingConsumerService(newRouter RouterFactory) *SightingConsumerService {
	return &SightingConsumerService{newRouter: newRouter}
}

// Serve implements suture.Service. A router that stops while ctx is still
// live is reported as a failure so the supervisor restarts it.
func (s *SightingConsumerService) Serve(ctx context.Context) error {
	router, err := s.newRouter()
	if err != nil {
		return fmt.Errorf("sighting consumer: %w", err)
	}
	defer func() {
		if cerr := router.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Closing sighting router")
		}
	}()

	runErr := router.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if runErr != nil {
		return fmt.Errorf("sighting consumer: %w", runErr)
	}
	return errors.New("sighting consumer: router exited")
}

func (s *SightingConsumerService) String() string {
	return "sighting-consumer"
}
