// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package tuning

import (
	"errors"
	"strings"
	"testing"

	"github.com/tomtom215/shadowcheck/internal/faults"
)

func TestDecide(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name   string
		old    float64
		sample Sample
		weight float64
		want   float64
		moved  bool
		reason string
	}{
		{"raise on high fp rate", 0.7, Sample{Total: 10, FalsePositive: 8}, 1, 0.75, true,
			"false-positive rate 80.0% (8/10) exceeds ceiling 30.0%"},
		{"lower on low fp rate", 0.7, Sample{Total: 20, FalsePositive: 1}, 1, 0.65, true,
			"false-positive rate 5.0% (1/20) below floor 10.0%"},
		{"inside band", 0.7, Sample{Total: 10, FalsePositive: 2}, 1, 0.7, false, ""},
		{"rate equal to ceiling", 0.7, Sample{Total: 10, FalsePositive: 3}, 1, 0.7, false, ""},
		{"too few samples", 0.7, Sample{Total: 4, FalsePositive: 4}, 1, 0.7, false, ""},
		{"clamped at max", 0.93, Sample{Total: 10, FalsePositive: 10}, 1, 0.95, true,
			"false-positive rate 100.0% (10/10) exceeds ceiling 30.0%"},
		{"already at max", 0.95, Sample{Total: 10, FalsePositive: 10}, 1, 0.95, false, ""},
		{"above max stays", 0.99, Sample{Total: 10, FalsePositive: 10}, 1, 0.99, false, ""},
		{"clamped at min", 0.32, Sample{Total: 10}, 1, 0.3, true,
			"false-positive rate 0.0% (0/10) below floor 10.0%"},
		{"already at min", 0.3, Sample{Total: 10}, 1, 0.3, false, ""},
		{"half weight", 0.7, Sample{Total: 10, FalsePositive: 8}, 0.5, 0.725, true,
			"false-positive rate 80.0% (8/10) exceeds ceiling 30.0%"},
		{"zero weight", 0.7, Sample{Total: 10, FalsePositive: 8}, 0, 0.7, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason, moved := cfg.Decide(tt.old, tt.sample, tt.weight)
			if moved != tt.moved || got != tt.want {
				t.Fatalf("Decide = %g, %v; want %g, %v", got, moved, tt.want, tt.moved)
			}
			if reason != tt.reason {
				t.Errorf("reason = %q, want %q", reason, tt.reason)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"min above max", func(c *Config) { c.Min, c.Max = 0.9, 0.5 }, "tuning.min"},
		{"floor above ceiling", func(c *Config) { c.Floor = 0.5 }, "tuning.floor"},
		{"zero samples", func(c *Config) { c.MinSamples = 0 }, "tuning.min_samples"},
		{"zero window", func(c *Config) { c.WindowDays = 0 }, "tuning.window_days"},
		{"zero step", func(c *Config) { c.Step = 0 }, "tuning.step"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			err := c.Validate()
			var ve *faults.ValidationError
			if !errors.As(err, &ve) || !strings.HasPrefix(ve.Field, tt.field) {
				t.Errorf("Validate() = %v, want field %s", err, tt.field)
			}
		})
	}
}
