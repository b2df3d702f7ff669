// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

/*
Package detection finds surveillance patterns in wireless sighting data.

A detection pass builds a Window from the sightings in a trailing time range,
keeping only those with usable location precision, and runs five rules over
it:

  - impossible_distance: one device's consecutive sightings imply a speed
    above the plausible-travel ceiling. Pairs within their combined GPS
    accuracy radii are ignored.
  - coordinated_movement: at least N devices stay within D meters of each
    other across T consecutive time slots while the group travels.
  - aerial_pattern: sustained flight-band speeds with a straight track or a
    climb over the device's lowest observed altitude.
  - infrastructure_pattern: sequential hardware addresses in one vendor
    block that correlate with a known agency site.
  - route_correlation: a foreign device keeps appearing alongside the
    subject's own devices on several distinct trips.

Device rules (DeviceRule) see one device's track and run in parallel across
devices. Window rules (WindowRule) see the whole window. Rules are pure: they
return Candidates and never touch storage.

The Detector turns candidates into Anomalies. Each anomaly carries an origin
key derived from the pass, user, type, devices and time span, and the
anomalies table enforces it as UNIQUE, so a retried pass never records the
same detection twice. Passes are independent; overlapping detections from
different passes are separate anomalies.

Everything a rule needs from the user is passed in explicitly through the
DetectionConfig. There is no ambient "current config".
*/
package detection
