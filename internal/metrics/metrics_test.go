// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordTuningAdjustmentDirection(t *testing.T) {
	tests := []struct {
		name      string
		oldValue  float64
		newValue  float64
		direction string
	}{
		{"raise", 0.6, 0.65, "raise"},
		{"lower", 0.6, 0.55, "lower"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := TuningAdjustments.WithLabelValues("route_correlation", tt.direction)
			before := testutil.ToFloat64(c)
			RecordTuningAdjustment("route_correlation", tt.oldValue, tt.newValue)
			if got := testutil.ToFloat64(c) - before; got != 1 {
				t.Errorf("%s counter delta = %v, want 1", tt.direction, got)
			}
		})
	}
}

func TestRecordEvidenceExport(t *testing.T) {
	ok := EvidenceExports.WithLabelValues(StatusSuccess)
	failed := EvidenceExports.WithLabelValues(StatusFailure)
	okBefore, failedBefore := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	RecordEvidenceExport(nil)
	RecordEvidenceExport(errors.New("integrity violation"))

	if got := testutil.ToFloat64(ok) - okBefore; got != 1 {
		t.Errorf("success delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(failed) - failedBefore; got != 1 {
		t.Errorf("failure delta = %v, want 1", got)
	}
}

func TestRecordSightingsIngestedIgnoresEmptyBatches(t *testing.T) {
	c := SightingsIngested.WithLabelValues("test")
	before := testutil.ToFloat64(c)

	RecordSightingsIngested("test", 0)
	RecordSightingsIngested("test", 12)

	if got := testutil.ToFloat64(c) - before; got != 12 {
		t.Errorf("ingested delta = %v, want 12", got)
	}
}

func TestRecordDetectionPass(t *testing.T) {
	c := DetectionPasses.WithLabelValues(StatusCancelled)
	before := testutil.ToFloat64(c)

	RecordDetectionPass(StatusCancelled, 250*time.Millisecond)

	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("cancelled delta = %v, want 1", got)
	}
}
