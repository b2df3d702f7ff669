// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package alerts

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/scoring"
)

// Title builds the alert title. It is a pure function of its inputs.
func Title(t detection.AnomalyType, deviceName string, related int) string {
	title := t.Label() + ": " + deviceName
	switch {
	case related == 1:
		title += " and 1 related device"
	case related > 1:
		title += fmt.Sprintf(" and %d related devices", related)
	}
	return title
}

// Description builds the alert body. It is a pure function of its inputs.
func Description(a *detection.Anomaly, s scoring.Score) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s detected with rule confidence %.2f, escalated to %.2f (%s). ",
		a.Type.Label(), a.Confidence, s.Final, strings.ReplaceAll(string(s.Assessment), "_", " "))
	fmt.Fprintf(&b, "Threat level %s. ", s.ThreatLevel)
	if s.PriorAnomalies > 0 {
		fmt.Fprintf(&b, "The device was involved in %d earlier anomalies in the repeat window. ", s.PriorAnomalies)
	}
	if s.InfraCorrelation > 0 {
		fmt.Fprintf(&b, "Infrastructure correlation %.2f. ", s.InfraCorrelation)
	}
	fmt.Fprintf(&b, "Observed from %s to %s.",
		a.FirstSeen.UTC().Format(time.RFC3339), a.LastSeen.UTC().Format(time.RFC3339))
	return b.String()
}
