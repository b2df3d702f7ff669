// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

const maxViolationsInEvidence = 50

// ImpossibleDistanceRule flags consecutive sightings of one device whose
// implied speed exceeds the plausible-travel ceiling.
type ImpossibleDistanceRule struct{}

// Type implements DeviceRule.
func (ImpossibleDistanceRule) Type() AnomalyType { return TypeImpossibleDistance }

type speedViolation struct {
	From        GeoPoint `json:"from"`
	To          GeoPoint `json:"to"`
	DistanceKm  float64  `json:"distance_km"`
	ElapsedSecs float64  `json:"elapsed_seconds"`
	SpeedKmH    float64  `json:"speed_kmh"`
}

type impossibleDistanceEvidence struct {
	MaxSpeedKmH         float64          `json:"max_speed_kmh"`
	PlausibleCeilingKmH float64          `json:"plausible_ceiling_kmh"`
	ViolationCount      int              `json:"violation_count"`
	Violations          []speedViolation `json:"violations"`
	ViolationsTruncated bool             `json:"violations_truncated,omitempty"`
}

// ImpossibleDistanceConfidence maps an implied speed to a confidence. It is
// zero at or below the ceiling, 0.5 just above it, and saturates at 1 when
// speed reaches SpeedSaturationRatio times the ceiling. It never decreases as
// speed grows.
func ImpossibleDistanceConfidence(speedKmH float64, p *RuleParams) float64 {
	ceiling := p.MaxPlausibleSpeedKmH
	if ceiling <= 0 || speedKmH <= ceiling {
		return 0
	}
	sat := p.SpeedSaturationRatio
	if sat <= 1 {
		sat = 5
	}
	return clamp(0.5+0.5*(speedKmH/ceiling-1)/(sat-1), 0, 1)
}

// EvaluateDevice implements DeviceRule.
func (ImpossibleDistanceRule) EvaluateDevice(track []Sighting, p *RuleParams) []Candidate {
	if len(track) < 2 {
		return nil
	}

	var (
		violations []speedViolation
		best       = -1
		bestSpeed  float64
	)
	for i := 1; i < len(track); i++ {
		a, b := &track[i-1], &track[i]
		dt := b.Timestamp.Sub(a.Timestamp)
		if dt <= 0 {
			continue
		}
		distM := DistanceM(a, b)
		// Within the combined accuracy radii the "movement" may be noise.
		if distM <= a.Accuracy+b.Accuracy {
			continue
		}
		speed := (distM / 1000) / dt.Hours()
		if speed <= p.MaxPlausibleSpeedKmH {
			continue
		}
		violations = append(violations, speedViolation{
			From:        pointOf(a),
			To:          pointOf(b),
			DistanceKm:  round(distM/1000, 3),
			ElapsedSecs: dt.Seconds(),
			SpeedKmH:    round(speed, 1),
		})
		if speed > bestSpeed {
			bestSpeed = speed
			best = i
		}
	}
	if best < 0 {
		return nil
	}

	a, b := &track[best-1], &track[best]
	ev := impossibleDistanceEvidence{
		MaxSpeedKmH:         round(bestSpeed, 1),
		PlausibleCeilingKmH: p.MaxPlausibleSpeedKmH,
		ViolationCount:      len(violations),
		Violations:          violations,
	}
	if len(violations) > maxViolationsInEvidence {
		ev.Violations = violations[:maxViolationsInEvidence]
		ev.ViolationsTruncated = true
	}

	return []Candidate{{
		Type:          TypeImpossibleDistance,
		Confidence:    ImpossibleDistanceConfidence(bestSpeed, p),
		PrimaryDevice: a.DeviceID,
		Geometry:      []GeoPoint{pointOf(a), pointOf(b)},
		Evidence:      ev,
		FirstSeen:     a.Timestamp,
		LastSeen:      b.Timestamp,
	}}
}
