// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import (
	"testing"
	"time"
)

var testBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sighting(device string, lat, lon float64, at time.Duration) Sighting {
	return Sighting{
		DeviceID:       device,
		Lat:            lat,
		Lon:            lon,
		Timestamp:      testBase.Add(at),
		SignalStrength: -60,
		Accuracy:       5,
	}
}

// lineTrack returns n sightings starting at (lat, lon), moving dLat/dLon per
// step every interval.
func lineTrack(device string, lat, lon, dLat, dLon float64, n int, start, interval time.Duration) []Sighting {
	out := make([]Sighting, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, sighting(device, lat+float64(i)*dLat, lon+float64(i)*dLon, start+time.Duration(i)*interval))
	}
	return out
}

func testConfig(t *testing.T) *DetectionConfig {
	t.Helper()
	cfg := NewDetectionConfig("analyst", DefaultDefaults())
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	return cfg
}

func window(sightings []Sighting, subject ...string) *Window {
	return NewWindow(sightings, time.Time{}, time.Time{}, subject)
}
