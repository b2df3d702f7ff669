// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import (
	"context"
	"testing"
	"time"
)

const subjectPhone = "5A:BB:00:00:00:01"

// trip returns a 10-point, ~2 km drive starting at start.
func trip(device string, lat float64, start time.Duration) []Sighting {
	return lineTrack(device, lat, -83.0, 0.002, 0, 10, start, time.Minute)
}

func TestRouteCorrelation(t *testing.T) {
	cfg := testConfig(t)
	cfg.SubjectDeviceIDs = []string{subjectPhone}

	var sightings []Sighting
	sightings = append(sightings, trip(subjectPhone, 43.0, 0)...)
	sightings = append(sightings, trip(subjectPhone, 43.2, 3*time.Hour)...)

	// Follows on both trips, 55 m behind.
	sightings = append(sightings, trip("F0:00:00:00:00:01", 43.0005, 0)...)
	sightings = append(sightings, trip("F0:00:00:00:00:01", 43.2005, 3*time.Hour)...)

	// Shares only the first trip.
	sightings = append(sightings, trip("F0:00:00:00:00:02", 43.0005, 0)...)

	// Same road, wrong day.
	sightings = append(sightings, trip("F0:00:00:00:00:03", 43.0005, 24*time.Hour)...)
	sightings = append(sightings, trip("F0:00:00:00:00:03", 43.2005, 27*time.Hour)...)

	got, err := RouteCorrelationRule{}.EvaluateWindow(context.Background(), window(sightings, subjectPhone), cfg)
	if err != nil {
		t.Fatalf("EvaluateWindow: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1: %+v", len(got), got)
	}
	c := got[0]
	if c.PrimaryDevice != "F0:00:00:00:00:01" {
		t.Errorf("primary = %q", c.PrimaryDevice)
	}
	ev := c.Evidence.(routeEvidence)
	if ev.TripsMatched != 2 || ev.TripsObserved != 2 || ev.MeanMatchRatio != 1 {
		t.Errorf("evidence = %+v", ev)
	}
	// 0.4 + 0.15*(2-1) + 0.2*1
	if c.Confidence < 0.74 || c.Confidence > 0.76 {
		t.Errorf("confidence = %v, want 0.75", c.Confidence)
	}
}

func TestRouteCorrelationWithoutSubjectDevices(t *testing.T) {
	cfg := testConfig(t)
	sightings := append(trip("F0:00:00:00:00:01", 43.0, 0), trip("F0:00:00:00:00:02", 43.0, 0)...)

	got, err := RouteCorrelationRule{}.EvaluateWindow(context.Background(), window(sightings), cfg)
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v; want nothing without a subject", got, err)
	}
}

func TestSplitTrips(t *testing.T) {
	track := append(trip("s", 43.0, 0), trip("s", 43.2, 2*time.Hour)...)
	// A short hop that does not count as a trip.
	track = append(track, lineTrack("s", 43.5, -83.0, 0.0001, 0, 3, 5*time.Hour, time.Minute)...)

	trips := SplitTrips(track, 30*time.Minute, 1)
	if len(trips) != 2 {
		t.Fatalf("trips = %d, want 2", len(trips))
	}
	for i, tr := range trips {
		if len(tr) != 10 {
			t.Errorf("trip %d has %d points, want 10", i, len(tr))
		}
	}
}
