// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package alerts

import (
	"errors"
	"testing"

	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/faults"
	"github.com/tomtom215/shadowcheck/internal/scoring"
)

func TestLevelFor(t *testing.T) {
	bands := scoring.DefaultConfig().Alert
	tests := []struct {
		urgency float64
		want    Level
	}{
		{0, LevelInfo},
		{0.49, LevelInfo},
		{0.5, LevelWarning},
		{0.69, LevelWarning},
		{0.7, LevelCritical},
		{0.849, LevelCritical},
		{0.85, LevelEmergency},
		{1, LevelEmergency},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.urgency, bands); got != tt.want {
			t.Errorf("LevelFor(%g) = %s, want %s", tt.urgency, got, tt.want)
		}
	}
}

func TestParseRating(t *testing.T) {
	for _, r := range []string{"false_positive", "real_threat", "uncertain"} {
		if _, err := ParseRating(r); err != nil {
			t.Errorf("ParseRating(%q) = %v", r, err)
		}
	}
	if _, err := ParseRating("maybe"); !errors.Is(err, faults.ErrValidation) {
		t.Errorf("ParseRating(maybe) = %v, want ErrValidation", err)
	}
	if RatingFalsePositive.TargetStatus() != StatusDismissed {
		t.Error("false_positive should dismiss")
	}
	if RatingUncertain.TargetStatus() != StatusAcknowledged {
		t.Error("uncertain should acknowledge")
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		related int
		want    string
	}{
		{0, "Aerial pattern: dev"},
		{1, "Aerial pattern: dev and 1 related device"},
		{4, "Aerial pattern: dev and 4 related devices"},
	}
	for _, tt := range tests {
		if got := Title(detection.TypeAerialPattern, "dev", tt.related); got != tt.want {
			t.Errorf("Title(related=%d) = %q, want %q", tt.related, got, tt.want)
		}
	}
}
