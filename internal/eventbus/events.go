// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package eventbus

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/shadowcheck/internal/alerts"
	"github.com/tomtom215/shadowcheck/internal/detection"
)

const (
	TopicSightings = "shadowcheck.sightings.observed"
	TopicAlerts    = "shadowcheck.alerts.created"
	TopicPoison    = "shadowcheck.poison"
)

// SightingBatch is the payload on TopicSightings.
type SightingBatch struct {
	Source     string               `json:"source"`
	Sightings  []detection.Sighting `json:"sightings"`
	ObservedAt time.Time            `json:"observed_at"`
}

// AlertEvent is the payload on TopicAlerts.
type AlertEvent struct {
	Alert     *alerts.Alert `json:"alert"`
	CreatedAt time.Time     `json:"created_at"`
}

func newMessage(payload any, metadata map[string]string) (*message.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("content_type", "application/json")
	for k, v := range metadata {
		msg.Metadata.Set(k, v)
	}
	return msg, nil
}

// DecodeSightingBatch parses a TopicSightings message.
func DecodeSightingBatch(msg *message.Message) (*SightingBatch, error) {
	var b SightingBatch
	if err := json.Unmarshal(msg.Payload, &b); err != nil {
		return nil, fmt.Errorf("decode sighting batch %s: %w", msg.UUID, err)
	}
	return &b, nil
}

// DecodeAlertEvent parses a TopicAlerts message.
func DecodeAlertEvent(msg *message.Message) (*AlertEvent, error) {
	var e AlertEvent
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return nil, fmt.Errorf("decode alert event %s: %w", msg.UUID, err)
	}
	return &e, nil
}
