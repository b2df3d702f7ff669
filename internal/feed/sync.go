// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package feed

import (
	"context"
	"fmt"

	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

// Fetcher returns sightings after a checkpoint.
type Fetcher interface {
	Fetch(ctx context.Context, cp Checkpoint, limit int) ([]detection.Sighting, Checkpoint, error)
}

// Sink receives fetched sightings. detection.DuckDBStore satisfies it, as
// does the event bus publisher.
type Sink interface {
	InsertSightings(ctx context.Context, sightings []detection.Sighting) (int, error)
}

// Checkpointer loads and saves feed positions.
type Checkpointer interface {
	Load(ctx context.Context, source string) (Checkpoint, error)
	Save(ctx context.Context, source string, cp Checkpoint) error
}

// Syncer copies new import-layer sightings into the sink.
type Syncer struct {
	source      string
	fetcher     Fetcher
	sink        Sink
	checkpoints Checkpointer
	batchSize   int
}

// NewSyncer creates a Syncer. A non-positive batchSize uses the default.
func NewSyncer(fetcher Fetcher, sink Sink, checkpoints Checkpointer, batchSize int) *Syncer {
	if batchSize <= 0 {
		batchSize = DefaultConfig().BatchSize
	}
	return &Syncer{
		source:      SourceName,
		fetcher:     fetcher,
		sink:        sink,
		checkpoints: checkpoints,
		batchSize:   batchSize,
	}
}

// SyncOnce drains every available batch and returns the number of sightings
// the sink accepted. The checkpoint advances only after a batch is stored.
func (s *Syncer) SyncOnce(ctx context.Context) (int, error) {
	cp, err := s.checkpoints.Load(ctx, s.source)
	if err != nil {
		return 0, err
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch, next, err := s.fetcher.Fetch(ctx, cp, s.batchSize)
		if err != nil {
			return total, fmt.Errorf("fetch sightings: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		n, err := s.sink.InsertSightings(ctx, batch)
		if err != nil {
			return total, fmt.Errorf("store sightings: %w", err)
		}
		if err := s.checkpoints.Save(ctx, s.source, next); err != nil {
			return total, err
		}
		total += n
		cp = next
		metrics.RecordSightingsIngested(s.source, n)

		if len(batch) < s.batchSize {
			break
		}
	}

	if total > 0 {
		logging.Ctx(ctx).Info().Int("sightings", total).Int64("checkpoint_ms", cp.TimeMs).Msg("Feed sync complete")
	}
	return total, nil
}
