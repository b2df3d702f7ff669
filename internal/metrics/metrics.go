// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package metrics defines the Prometheus series exported on /metrics.
//
// Series are registered with promauto at init time. Callers use the Record
// helpers rather than touching the vectors directly so that label values
// stay consistent.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values shared by the run counters.
const (
	StatusSuccess   = "success"
	StatusFailure   = "failure"
	StatusCancelled = "cancelled"
	StatusSkipped   = "skipped"
)

var (
	// Detection
	DetectionPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shadowcheck_detection_passes_total",
			Help: "Total number of detection passes by outcome",
		},
		[]string{"status"},
	)

	DetectionPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shadowcheck_detection_pass_duration_seconds",
			Help:    "Duration of detection passes in seconds",
			Buckets: []float64{.05, .1, .5, 1, 5, 10, 30, 60, 300},
		},
	)

	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shadowcheck_anomalies_detected_total",
			Help: "Total number of anomalies persisted by type",
		},
		[]string{"type"},
	)

	// Alerts
	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shadowcheck_alerts_created_total",
			Help: "Total number of alerts created by level",
		},
		[]string{"level"},
	)

	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shadowcheck_alerts_suppressed_total",
			Help: "Total number of anomalies that did not produce an alert, by reason",
		},
		[]string{"reason"}, // "safe_zone", "below_threshold", "duplicate"
	)

	AlertTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shadowcheck_alert_transitions_total",
			Help: "Total number of alert status transitions by target status",
		},
		[]string{"status"},
	)

	// Tuning
	TuningAdjustments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shadowcheck_tuning_adjustments_total",
			Help: "Total number of threshold adjustments applied",
		},
		[]string{"type", "direction"}, // direction: "raise", "lower"
	)

	TuningRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shadowcheck_tuning_runs_total",
			Help: "Total number of adaptive tuning runs by outcome",
		},
		[]string{"status"},
	)

	// Evidence
	EvidenceExports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shadowcheck_evidence_exports_total",
			Help: "Total number of evidence exports by outcome",
		},
		[]string{"status"},
	)

	// Enrichment
	InfraLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shadowcheck_infra_lookups_total",
			Help: "Total number of infrastructure correlation lookups by result",
		},
		[]string{"result"}, // "hit", "miss", "error", "cached"
	)

	// Ingest
	SightingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shadowcheck_sightings_ingested_total",
			Help: "Total number of sightings ingested by source",
		},
		[]string{"source"}, // "postgres", "stream", "api"
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shadowcheck_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shadowcheck_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shadowcheck_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shadowcheck_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordDetectionPass records the outcome of one detection pass.
func RecordDetectionPass(status string, duration time.Duration) {
	DetectionPasses.WithLabelValues(status).Inc()
	DetectionPassDuration.Observe(duration.Seconds())
}

// RecordAnomaly counts one persisted anomaly.
func RecordAnomaly(anomalyType string) {
	AnomaliesDetected.WithLabelValues(anomalyType).Inc()
}

// RecordAlertCreated counts one created alert.
func RecordAlertCreated(level string) {
	AlertsCreated.WithLabelValues(level).Inc()
}

// RecordAlertSuppressed counts an anomaly that produced no alert.
func RecordAlertSuppressed(reason string) {
	AlertsSuppressed.WithLabelValues(reason).Inc()
}

// RecordAlertTransition counts one successful status transition.
func RecordAlertTransition(status string) {
	AlertTransitions.WithLabelValues(status).Inc()
}

// RecordTuningAdjustment counts one applied threshold change.
func RecordTuningAdjustment(anomalyType string, oldValue, newValue float64) {
	direction := "raise"
	if newValue < oldValue {
		direction = "lower"
	}
	TuningAdjustments.WithLabelValues(anomalyType, direction).Inc()
}

// RecordTuningRun counts one tuning run.
func RecordTuningRun(status string) {
	TuningRuns.WithLabelValues(status).Inc()
}

// RecordEvidenceExport counts one export attempt.
func RecordEvidenceExport(err error) {
	if err != nil {
		EvidenceExports.WithLabelValues(StatusFailure).Inc()
		return
	}
	EvidenceExports.WithLabelValues(StatusSuccess).Inc()
}

// RecordInfraLookup counts one correlation lookup.
func RecordInfraLookup(result string) {
	InfraLookups.WithLabelValues(result).Inc()
}

// RecordSightingsIngested adds n ingested sightings for source.
func RecordSightingsIngested(source string, n int) {
	if n <= 0 {
		return
	}
	SightingsIngested.WithLabelValues(source).Add(float64(n))
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
