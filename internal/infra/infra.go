// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package infra looks up infrastructure correlation for wireless devices:
// whether a device identifier is associated with a known agency or site.
//
// The lookup is an external enrichment. Callers treat any failure as
// faults.ErrDependencyUnavailable and continue with a correlation of zero, so
// one missing source never blocks a detection pass.
//
// Clients compose:
//
//	client := infra.NewHTTPClient(cfg)           // resty, REST lookups
//	guarded := infra.NewBreakerClient(client)    // gobreaker
//	cached := infra.NewCachedClient(guarded, ttl) // TTL memo
package infra

import (
	"context"
	"math"
)

// Match is one agency or site associated with a device.
type Match struct {
	Agency      string  `json:"agency"`
	Site        string  `json:"site,omitempty"`
	Lat         float64 `json:"lat,omitempty"`
	Lon         float64 `json:"lon,omitempty"`
	HasLocation bool    `json:"has_location,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// Correlation is the lookup result for one device. Confidence is the highest
// match confidence, or zero when there are no matches.
type Correlation struct {
	DeviceID   string  `json:"device_id"`
	Matches    []Match `json:"matches"`
	Confidence float64 `json:"confidence"`
}

// Best returns the highest-confidence match, or false when there is none.
func (c *Correlation) Best() (Match, bool) {
	if c == nil || len(c.Matches) == 0 {
		return Match{}, false
	}
	best := c.Matches[0]
	for _, m := range c.Matches[1:] {
		if m.Confidence > best.Confidence {
			best = m
		}
	}
	return best, true
}

// normalize clamps confidences into [0,1] and recomputes the aggregate.
func (c *Correlation) normalize() {
	c.Confidence = 0
	for i := range c.Matches {
		m := &c.Matches[i]
		m.Confidence = math.Max(0, math.Min(1, m.Confidence))
		if m.Confidence > c.Confidence {
			c.Confidence = m.Confidence
		}
	}
}

// Lookuper resolves a device's infrastructure correlation. A device with no
// known association returns an empty Correlation and a nil error.
type Lookuper interface {
	Lookup(ctx context.Context, deviceID string) (*Correlation, error)
}

// Static is an in-memory Lookuper, used when no correlation service is
// configured and in tests.
type Static map[string]*Correlation

// Lookup implements Lookuper.
func (s Static) Lookup(_ context.Context, deviceID string) (*Correlation, error) {
	if c, ok := s[deviceID]; ok {
		out := *c
		out.Matches = append([]Match(nil), c.Matches...)
		out.normalize()
		return &out, nil
	}
	return &Correlation{DeviceID: deviceID}, nil
}
