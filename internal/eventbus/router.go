// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package eventbus

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

// SightingStore is where the ingest consumer writes batches.
type SightingStore interface {
	InsertSightings(ctx context.Context, sightings []detection.Sighting) (int, error)
}

// IngestRouter consumes TopicSightings into a SightingStore.
type IngestRouter struct {
	router *message.Router
}

// NewIngestRouter builds the sightings consumer.
func NewIngestRouter(bus *Bus, store SightingStore, cfg Config) (*IngestRouter, error) {
	wmRouter, err := message.NewRouter(message.RouterConfig{}, bus.Logger())
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	// First added is outermost: poison sees an error only after retries
	// are exhausted.
	if cfg.PoisonQueueTopic != "" {
		poison, err := middleware.PoisonQueue(bus.Publisher(), cfg.PoisonQueueTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		wmRouter.AddMiddleware(poison)
	}
	wmRouter.AddMiddleware(
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      cfg.RetryMaxRetries,
			InitialInterval: cfg.RetryInitialInterval,
			MaxInterval:     cfg.RetryMaxInterval,
			Multiplier:      2,
			Logger:          bus.Logger(),
		}.Middleware,
		middleware.Recoverer,
	)

	wmRouter.AddConsumerHandler("sightings-ingest", TopicSightings, bus.Subscriber(), ingestHandler(store))
	return &IngestRouter{router: wmRouter}, nil
}

func ingestHandler(store SightingStore) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		batch, err := DecodeSightingBatch(msg)
		if err != nil {
			return err
		}
		ctx := msg.Context()
		if cid := msg.Metadata.Get("correlation_id"); cid != "" {
			ctx = logging.ContextWithCorrelationID(ctx, cid)
		}

		n, err := store.InsertSightings(ctx, batch.Sightings)
		if err != nil {
			return err
		}
		metrics.RecordSightingsIngested(batch.Source, n)
		logging.Ctx(ctx).Debug().Str("source", batch.Source).Int("received", len(batch.Sightings)).
			Int("stored", n).Msg("Sighting batch ingested")
		return nil
	}
}

// Run blocks until ctx is cancelled or the router is closed.
func (r *IngestRouter) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running is closed once handlers are subscribed.
func (r *IngestRouter) Running() chan struct{} {
	return r.router.Running()
}

// Close stops the router.
func (r *IngestRouter) Close() error {
	return r.router.Close()
}
