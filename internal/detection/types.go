// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// AnomalyType identifies the rule that produced an anomaly.
type AnomalyType string

const (
	// TypeImpossibleDistance flags consecutive sightings of one device that
	// imply a travel speed above the plausible ceiling.
	TypeImpossibleDistance AnomalyType = "impossible_distance"

	// TypeCoordinatedMovement flags a group of devices that stay together
	// while moving.
	TypeCoordinatedMovement AnomalyType = "coordinated_movement"

	// TypeAerialPattern flags sustained flight-like movement.
	TypeAerialPattern AnomalyType = "aerial_pattern"

	// TypeInfrastructurePattern flags sequentially addressed devices near a
	// known agency site.
	TypeInfrastructurePattern AnomalyType = "infrastructure_pattern"

	// TypeRouteCorrelation flags a foreign device that keeps showing up on
	// the subject's own trips.
	TypeRouteCorrelation AnomalyType = "route_correlation"
)

// AllTypes lists every anomaly type in a stable order.
var AllTypes = []AnomalyType{
	TypeImpossibleDistance,
	TypeCoordinatedMovement,
	TypeAerialPattern,
	TypeInfrastructurePattern,
	TypeRouteCorrelation,
}

// Valid reports whether t is a known type.
func (t AnomalyType) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Label returns the human-readable name used in alert titles.
func (t AnomalyType) Label() string {
	switch t {
	case TypeImpossibleDistance:
		return "Impossible distance"
	case TypeCoordinatedMovement:
		return "Coordinated movement"
	case TypeAerialPattern:
		return "Aerial pattern"
	case TypeInfrastructurePattern:
		return "Infrastructure pattern"
	case TypeRouteCorrelation:
		return "Route correlation"
	default:
		return string(t)
	}
}

// TypeValues holds one number per anomaly type. It is used for thresholds
// and weights in configuration, where explicit fields work better with
// environment overrides than a map.
type TypeValues struct {
	ImpossibleDistance    float64 `koanf:"impossible_distance" json:"impossible_distance"`
	CoordinatedMovement   float64 `koanf:"coordinated_movement" json:"coordinated_movement"`
	AerialPattern         float64 `koanf:"aerial_pattern" json:"aerial_pattern"`
	InfrastructurePattern float64 `koanf:"infrastructure_pattern" json:"infrastructure_pattern"`
	RouteCorrelation      float64 `koanf:"route_correlation" json:"route_correlation"`
}

// Map converts v into a map keyed by type.
func (v TypeValues) Map() map[AnomalyType]float64 {
	return map[AnomalyType]float64{
		TypeImpossibleDistance:    v.ImpossibleDistance,
		TypeCoordinatedMovement:   v.CoordinatedMovement,
		TypeAerialPattern:         v.AerialPattern,
		TypeInfrastructurePattern: v.InfrastructurePattern,
		TypeRouteCorrelation:      v.RouteCorrelation,
	}
}

// NormalizeDeviceID upper-cases a BSSID or MAC and trims whitespace. Every
// sighting and whitelist entry is stored under its normalized id, so one
// radio maps to one track whichever source reported it.
func NormalizeDeviceID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Sighting is one geolocated observation of a wireless device. Sightings
// are immutable once ingested.
type Sighting struct {
	DeviceID       string    `json:"device_id"`
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	Altitude       float64   `json:"altitude,omitempty"`
	HasAltitude    bool      `json:"has_altitude,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	SignalStrength int       `json:"signal_strength"`
	Accuracy       float64   `json:"accuracy"`
	Source         string    `json:"source,omitempty"`
}

// Qualifies reports whether the sighting carries enough location precision
// to take part in detection.
func (s *Sighting) Qualifies() bool {
	if s.Accuracy <= 0 || IsUnknownLocation(s.Lat, s.Lon) {
		return false
	}
	return s.Lat >= -90 && s.Lat <= 90 && s.Lon >= -180 && s.Lon <= 180
}

// GeoPoint is one vertex of an anomaly's geometry.
type GeoPoint struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Candidate is the output of a single rule evaluation before persistence.
type Candidate struct {
	Type           AnomalyType
	Confidence     float64
	PrimaryDevice  string
	RelatedDevices []string
	Geometry       []GeoPoint
	Evidence       interface{}
	FirstSeen      time.Time
	LastSeen       time.Time
}

// Devices returns the primary device followed by the related devices.
func (c *Candidate) Devices() []string {
	out := make([]string, 0, 1+len(c.RelatedDevices))
	out = append(out, c.PrimaryDevice)
	return append(out, c.RelatedDevices...)
}

// Anomaly is a persisted detection. Everything except the investigation
// fields is fixed at creation.
type Anomaly struct {
	ID             string          `json:"id"`
	PassID         string          `json:"pass_id"`
	UserID         string          `json:"user_id"`
	Type           AnomalyType     `json:"type"`
	Confidence     float64         `json:"confidence"`
	PrimaryDevice  string          `json:"primary_device"`
	RelatedDevices []string        `json:"related_devices"`
	Geometry       []GeoPoint      `json:"geometry"`
	Evidence       json.RawMessage `json:"evidence"`
	FirstSeen      time.Time       `json:"first_seen"`
	LastSeen       time.Time       `json:"last_seen"`
	DetectedAt     time.Time       `json:"detected_at"`
	OriginKey      string          `json:"origin_key"`

	// Analyst-set.
	InvestigationPriority int    `json:"investigation_priority"`
	Significance          string `json:"significance,omitempty"`
}

// Devices returns the primary device followed by the related devices.
func (a *Anomaly) Devices() []string {
	out := make([]string, 0, 1+len(a.RelatedDevices))
	out = append(out, a.PrimaryDevice)
	return append(out, a.RelatedDevices...)
}

// Centroid returns the mean position of the anomaly's geometry.
func (a *Anomaly) Centroid() (GeoPoint, bool) {
	return Centroid(a.Geometry)
}

// Investigation holds the analyst-editable fields of an anomaly.
type Investigation struct {
	Priority     int    `json:"priority" validate:"min=0,max=5"`
	Significance string `json:"significance" validate:"omitempty,oneof=routine notable significant critical"`
}
