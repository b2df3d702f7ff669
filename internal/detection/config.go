// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/shadowcheck/internal/faults"
)

// RuleParams holds the tunable constants of the five rules.
type RuleParams struct {
	// Impossible distance.
	MaxPlausibleSpeedKmH float64 `koanf:"max_plausible_speed_kmh" json:"max_plausible_speed_kmh"`
	SpeedSaturationRatio float64 `koanf:"speed_saturation_ratio" json:"speed_saturation_ratio"`

	// Coordinated movement.
	CoordinatedMinDevices     int           `koanf:"coordinated_min_devices" json:"coordinated_min_devices"`
	CoordinatedMaxDistanceM   float64       `koanf:"coordinated_max_distance_m" json:"coordinated_max_distance_m"`
	CoordinatedMinConsecutive int           `koanf:"coordinated_min_consecutive" json:"coordinated_min_consecutive"`
	CoordinatedSlot           time.Duration `koanf:"coordinated_slot" json:"coordinated_slot"`
	CoordinatedMinTravelM     float64       `koanf:"coordinated_min_travel_m" json:"coordinated_min_travel_m"`

	// Aerial pattern.
	AerialMinSpeedKmH      float64 `koanf:"aerial_min_speed_kmh" json:"aerial_min_speed_kmh"`
	AerialMaxSpeedKmH      float64 `koanf:"aerial_max_speed_kmh" json:"aerial_max_speed_kmh"`
	AerialMinSegments      int     `koanf:"aerial_min_segments" json:"aerial_min_segments"`
	AerialMinStraightness  float64 `koanf:"aerial_min_straightness" json:"aerial_min_straightness"`
	AerialMinAltitudeGainM float64 `koanf:"aerial_min_altitude_gain_m" json:"aerial_min_altitude_gain_m"`

	// Infrastructure pattern.
	InfraMinSequential  int     `koanf:"infra_min_sequential" json:"infra_min_sequential"`
	InfraMaxAddressGap  uint64  `koanf:"infra_max_address_gap" json:"infra_max_address_gap"`
	InfraMinCorrelation float64 `koanf:"infra_min_correlation" json:"infra_min_correlation"`
	InfraSiteRadiusM    float64 `koanf:"infra_site_radius_m" json:"infra_site_radius_m"`

	// Route correlation.
	TripGap            time.Duration `koanf:"trip_gap" json:"trip_gap"`
	TripMinDistanceKm  float64       `koanf:"trip_min_distance_km" json:"trip_min_distance_km"`
	RouteMaxDistanceM  float64       `koanf:"route_max_distance_m" json:"route_max_distance_m"`
	RouteMaxTimeSkew   time.Duration `koanf:"route_max_time_skew" json:"route_max_time_skew"`
	RouteMinMatchRatio float64       `koanf:"route_min_match_ratio" json:"route_min_match_ratio"`
	RouteMinTrips      int           `koanf:"route_min_trips" json:"route_min_trips"`
}

// DefaultRuleParams returns the rule constants used when nothing is configured.
func DefaultRuleParams() RuleParams {
	return RuleParams{
		MaxPlausibleSpeedKmH: 900,
		SpeedSaturationRatio: 5,

		CoordinatedMinDevices:     3,
		CoordinatedMaxDistanceM:   50,
		CoordinatedMinConsecutive: 3,
		CoordinatedSlot:           5 * time.Minute,
		CoordinatedMinTravelM:     500,

		AerialMinSpeedKmH:      200,
		AerialMaxSpeedKmH:      1000,
		AerialMinSegments:      3,
		AerialMinStraightness:  0.9,
		AerialMinAltitudeGainM: 300,

		InfraMinSequential:  3,
		InfraMaxAddressGap:  4,
		InfraMinCorrelation: 0.5,
		InfraSiteRadiusM:    1000,

		TripGap:            30 * time.Minute,
		TripMinDistanceKm:  1,
		RouteMaxDistanceM:  200,
		RouteMaxTimeSkew:   5 * time.Minute,
		RouteMinMatchRatio: 0.5,
		RouteMinTrips:      2,
	}
}

// Validate rejects negative radii and out-of-range ratios.
func (p *RuleParams) Validate() error {
	nonNegative := []struct {
		name string
		v    float64
	}{
		{"coordinated_max_distance_m", p.CoordinatedMaxDistanceM},
		{"coordinated_min_travel_m", p.CoordinatedMinTravelM},
		{"aerial_min_altitude_gain_m", p.AerialMinAltitudeGainM},
		{"infra_site_radius_m", p.InfraSiteRadiusM},
		{"trip_min_distance_km", p.TripMinDistanceKm},
		{"route_max_distance_m", p.RouteMaxDistanceM},
	}
	for _, f := range nonNegative {
		if f.v < 0 {
			return faults.Invalid("rules."+f.name, "must not be negative, got %g", f.v)
		}
	}

	switch {
	case p.MaxPlausibleSpeedKmH <= 0:
		return faults.Invalid("rules.max_plausible_speed_kmh", "must be positive")
	case p.SpeedSaturationRatio <= 1:
		return faults.Invalid("rules.speed_saturation_ratio", "must be greater than 1")
	case p.CoordinatedMinDevices < 2:
		return faults.Invalid("rules.coordinated_min_devices", "must be at least 2")
	case p.CoordinatedMinConsecutive < 2:
		return faults.Invalid("rules.coordinated_min_consecutive", "must be at least 2")
	case p.CoordinatedSlot <= 0:
		return faults.Invalid("rules.coordinated_slot", "must be positive")
	case p.AerialMinSpeedKmH <= 0 || p.AerialMaxSpeedKmH < p.AerialMinSpeedKmH:
		return faults.Invalid("rules.aerial_max_speed_kmh", "must be at least aerial_min_speed_kmh, which must be positive")
	case p.AerialMinSegments < 1:
		return faults.Invalid("rules.aerial_min_segments", "must be at least 1")
	case p.AerialMinStraightness < 0 || p.AerialMinStraightness > 1:
		return faults.Invalid("rules.aerial_min_straightness", "must be within [0,1]")
	case p.InfraMinSequential < 2:
		return faults.Invalid("rules.infra_min_sequential", "must be at least 2")
	case p.InfraMinCorrelation < 0 || p.InfraMinCorrelation > 1:
		return faults.Invalid("rules.infra_min_correlation", "must be within [0,1]")
	case p.TripGap <= 0 || p.RouteMaxTimeSkew < 0:
		return faults.Invalid("rules.trip_gap", "trip_gap must be positive and route_max_time_skew non-negative")
	case p.RouteMinMatchRatio <= 0 || p.RouteMinMatchRatio > 1:
		return faults.Invalid("rules.route_min_match_ratio", "must be within (0,1]")
	case p.RouteMinTrips < 1:
		return faults.Invalid("rules.route_min_trips", "must be at least 1")
	}
	return nil
}

// Defaults seeds a user's DetectionConfig the first time it is needed.
type Defaults struct {
	Thresholds                TypeValues `koanf:"thresholds"`
	ImmediateAlertThreshold   float64    `koanf:"immediate_alert_threshold"`
	SafeZoneOverrideThreshold float64    `koanf:"safe_zone_override_threshold"`
	FeedbackWeight            float64    `koanf:"feedback_weight"`
	Rules                     RuleParams `koanf:"rules"`
}

// DefaultDefaults returns the built-in seed values.
func DefaultDefaults() Defaults {
	return Defaults{
		Thresholds: TypeValues{
			ImpossibleDistance:    0.7,
			CoordinatedMovement:   0.6,
			AerialPattern:         0.6,
			InfrastructurePattern: 0.6,
			RouteCorrelation:      0.6,
		},
		ImmediateAlertThreshold:   0.85,
		SafeZoneOverrideThreshold: 0.9,
		FeedbackWeight:            1.0,
		Rules:                     DefaultRuleParams(),
	}
}

// DetectionConfig is the per-user configuration passed explicitly into every
// detection, scoring and alerting call. It changes only through an explicit
// update or a tuning run.
type DetectionConfig struct {
	ID                        string                  `json:"id"`
	UserID                    string                  `json:"user_id"`
	Version                   int                     `json:"version"`
	Thresholds                map[AnomalyType]float64 `json:"thresholds"`
	SafeZonesEnabled          bool                    `json:"safe_zones_enabled"`
	ImmediateAlertThreshold   float64                 `json:"immediate_alert_threshold"`
	SafeZoneOverrideThreshold float64                 `json:"safe_zone_override_threshold"`
	FeedbackWeight            float64                 `json:"feedback_weight"`
	SubjectDeviceIDs          []string                `json:"subject_device_ids"`
	Rules                     RuleParams              `json:"rules"`
	UpdatedAt                 time.Time               `json:"updated_at"`
}

// NewDetectionConfig builds an unsaved config for userID from d.
func NewDetectionConfig(userID string, d Defaults) *DetectionConfig {
	return &DetectionConfig{
		ID:                        uuid.New().String(),
		UserID:                    userID,
		Thresholds:                d.Thresholds.Map(),
		SafeZonesEnabled:          true,
		ImmediateAlertThreshold:   d.ImmediateAlertThreshold,
		SafeZoneOverrideThreshold: d.SafeZoneOverrideThreshold,
		FeedbackWeight:            d.FeedbackWeight,
		Rules:                     d.Rules,
	}
}

// Threshold returns the alert threshold for t. Types missing from the map
// fall back to 1, which suppresses everything but certain detections.
func (c *DetectionConfig) Threshold(t AnomalyType) float64 {
	if v, ok := c.Thresholds[t]; ok {
		return v
	}
	return 1
}

// IsSubjectDevice reports whether id belongs to the protected subject.
func (c *DetectionConfig) IsSubjectDevice(id string) bool {
	for _, s := range c.SubjectDeviceIDs {
		if strings.EqualFold(s, id) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (c *DetectionConfig) Clone() *DetectionConfig {
	out := *c
	out.Thresholds = make(map[AnomalyType]float64, len(c.Thresholds))
	for k, v := range c.Thresholds {
		out.Thresholds[k] = v
	}
	out.SubjectDeviceIDs = append([]string(nil), c.SubjectDeviceIDs...)
	return &out
}

// Validate rejects thresholds outside [0,1], unknown types and bad rule
// parameters. An invalid config is never persisted.
func (c *DetectionConfig) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return faults.Invalid("user_id", "is required")
	}

	types := make([]string, 0, len(c.Thresholds))
	for t := range c.Thresholds {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, name := range types {
		t := AnomalyType(name)
		if !t.Valid() {
			return faults.Invalid("thresholds."+name, "unknown anomaly type")
		}
		if v := c.Thresholds[t]; v < 0 || v > 1 {
			return faults.Invalid("thresholds."+name, "must be within [0,1], got %g", v)
		}
	}

	unit := []struct {
		name string
		v    float64
	}{
		{"immediate_alert_threshold", c.ImmediateAlertThreshold},
		{"safe_zone_override_threshold", c.SafeZoneOverrideThreshold},
		{"feedback_weight", c.FeedbackWeight},
	}
	for _, f := range unit {
		if f.v < 0 || f.v > 1 {
			return faults.Invalid(f.name, "must be within [0,1], got %g", f.v)
		}
	}

	return c.Rules.Validate()
}

// ConfigStore persists DetectionConfigs. SaveConfig uses optimistic
// concurrency on Version and returns faults.ErrConflict on a stale save.
type ConfigStore interface {
	GetConfig(ctx context.Context, userID string) (*DetectionConfig, error)
	ListConfigs(ctx context.Context) ([]*DetectionConfig, error)
	SaveConfig(ctx context.Context, cfg *DetectionConfig) error
}
