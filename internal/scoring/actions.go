// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package scoring

import "github.com/tomtom215/shadowcheck/internal/detection"

var actionCatalog = map[detection.AnomalyType][]string{
	detection.TypeImpossibleDistance: {
		"Check whether the identifier is spoofed or cloned across locations",
		"Compare sighting accuracy and source for the flagged pair",
		"Watch for the identifier near the subject's regular locations",
	},
	detection.TypeCoordinatedMovement: {
		"Vary routes and departure times and watch whether the group adjusts",
		"Record the participating devices for cross-reference",
		"Avoid confronting the group; document time and place",
	},
	detection.TypeAerialPattern: {
		"Note the time window and check for aircraft overhead",
		"Look for repeated flight tracks over the subject's locations",
		"Preserve raw sightings for later correlation with flight data",
	},
	detection.TypeInfrastructurePattern: {
		"Treat the address block as professionally provisioned equipment",
		"Consult counsel before acting on agency correlations",
		"Export evidence with a case reference",
	},
	detection.TypeRouteCorrelation: {
		"Take a surveillance-detection route and confirm whether the device follows",
		"Check vehicles and belongings for a tracking device",
		"Contact law enforcement if the device persists",
	},
}

var defaultActions = []string{"Continue monitoring and review the anomaly details"}

// RecommendedActions returns the static action list for t. The slice is a
// copy the caller may keep.
func RecommendedActions(t detection.AnomalyType) []string {
	actions, ok := actionCatalog[t]
	if !ok {
		actions = defaultActions
	}
	return append([]string(nil), actions...)
}
