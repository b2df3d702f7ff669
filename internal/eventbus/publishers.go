// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package eventbus

import (
	"context"
	"time"

	"github.com/tomtom215/shadowcheck/internal/alerts"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/logging"
)

// SightingPublisher publishes sighting batches instead of storing them. It
// satisfies feed.Sink so the Postgres feed can hand off to the bus.
type SightingPublisher struct {
	bus    *Bus
	source string
}

// NewSightingPublisher creates a publisher that labels batches with source.
func NewSightingPublisher(bus *Bus, source string) *SightingPublisher {
	return &SightingPublisher{bus: bus, source: source}
}

// InsertSightings publishes the batch and reports it as accepted in full.
func (p *SightingPublisher) InsertSightings(ctx context.Context, sightings []detection.Sighting) (int, error) {
	if len(sightings) == 0 {
		return 0, nil
	}
	msg, err := newMessage(SightingBatch{
		Source:     p.source,
		Sightings:  sightings,
		ObservedAt: time.Now().UTC(),
	}, map[string]string{"source": p.source})
	if err != nil {
		return 0, err
	}
	if cid := logging.CorrelationIDFromContext(ctx); cid != "" {
		msg.Metadata.Set("correlation_id", cid)
	}
	if err := p.bus.Publish(ctx, TopicSightings, msg); err != nil {
		return 0, err
	}
	return len(sightings), nil
}

// AlertPublisher forwards created alerts to TopicAlerts.
type AlertPublisher struct {
	bus *Bus
}

// NewAlertPublisher creates an alerts.Notifier backed by the bus.
func NewAlertPublisher(bus *Bus) *AlertPublisher {
	return &AlertPublisher{bus: bus}
}

// Name implements alerts.Notifier.
func (p *AlertPublisher) Name() string { return "eventbus" }

// Notify implements alerts.Notifier.
func (p *AlertPublisher) Notify(ctx context.Context, a *alerts.Alert) error {
	msg, err := newMessage(AlertEvent{Alert: a, CreatedAt: a.CreatedAt}, map[string]string{
		"alert_id":     a.ID,
		"user_id":      a.UserID,
		"anomaly_type": string(a.AnomalyType),
		"level":        string(a.Level),
	})
	if err != nil {
		return err
	}
	return p.bus.Publish(ctx, TopicAlerts, msg)
}
