// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import "math"

// AerialPatternRule flags sustained movement at speeds, straightness or
// altitudes that ground transport cannot produce.
type AerialPatternRule struct{}

// Type implements DeviceRule.
func (AerialPatternRule) Type() AnomalyType { return TypeAerialPattern }

type aerialEvidence struct {
	Segments         int     `json:"segments"`
	MeanSpeedKmH     float64 `json:"mean_speed_kmh"`
	MaxSpeedKmH      float64 `json:"max_speed_kmh"`
	Straightness     float64 `json:"straightness"`
	PathKm           float64 `json:"path_km"`
	AltitudeGainM    float64 `json:"altitude_gain_m,omitempty"`
	AltitudeObserved bool    `json:"altitude_observed"`
}

// aerialRun covers track[start..end] inclusive, i.e. end-start segments.
type aerialRun struct {
	start, end int
}

// EvaluateDevice implements DeviceRule.
func (AerialPatternRule) EvaluateDevice(track []Sighting, p *RuleParams) []Candidate {
	if len(track) < 2 {
		return nil
	}

	baseAlt, hasBase := minAltitude(track)

	var (
		best     Candidate
		bestConf float64
		found    bool
	)
	for _, run := range aerialRuns(track, p) {
		if run.end-run.start < p.AerialMinSegments {
			continue
		}
		c, ok := scoreAerialRun(track[run.start:run.end+1], baseAlt, hasBase, p)
		if ok && c.Confidence > bestConf {
			best, bestConf, found = c, c.Confidence, true
		}
	}
	if !found {
		return nil
	}
	return []Candidate{best}
}

func aerialRuns(track []Sighting, p *RuleParams) []aerialRun {
	var (
		runs    []aerialRun
		current = aerialRun{start: -1}
	)
	for i := 1; i < len(track); i++ {
		speed := SpeedKmH(&track[i-1], &track[i])
		inBand := track[i].Timestamp.After(track[i-1].Timestamp) &&
			speed >= p.AerialMinSpeedKmH && speed <= p.AerialMaxSpeedKmH
		switch {
		case inBand && current.start < 0:
			current = aerialRun{start: i - 1, end: i}
		case inBand:
			current.end = i
		case current.start >= 0:
			runs = append(runs, current)
			current = aerialRun{start: -1}
		}
	}
	if current.start >= 0 {
		runs = append(runs, current)
	}
	return runs
}

func scoreAerialRun(run []Sighting, baseAlt float64, hasBase bool, p *RuleParams) (Candidate, bool) {
	first, last := &run[0], &run[len(run)-1]
	path := PathLengthKm(run)
	if path <= 0 {
		return Candidate{}, false
	}
	straightness := clamp(HaversineKm(first.Lat, first.Lon, last.Lat, last.Lon)/path, 0, 1)

	var (
		gain     float64
		altitude bool
		maxSpeed float64
		geometry = make([]GeoPoint, 0, len(run))
	)
	for i := range run {
		s := &run[i]
		geometry = append(geometry, pointOf(s))
		if hasBase && s.HasAltitude {
			altitude = true
			gain = math.Max(gain, s.Altitude-baseAlt)
		}
		if i > 0 {
			maxSpeed = math.Max(maxSpeed, SpeedKmH(&run[i-1], s))
		}
	}

	if straightness < p.AerialMinStraightness && (!altitude || gain < p.AerialMinAltitudeGainM) {
		return Candidate{}, false
	}

	var altScore float64
	if altitude && p.AerialMinAltitudeGainM > 0 {
		altScore = clamp(gain/p.AerialMinAltitudeGainM, 0, 1)
	}
	segments := len(run) - 1
	extra := math.Min(3, float64(segments-p.AerialMinSegments))
	conf := 0.5 + 0.2*straightness + 0.2*altScore + 0.05*extra

	elapsed := last.Timestamp.Sub(first.Timestamp).Hours()
	return Candidate{
		Type:          TypeAerialPattern,
		Confidence:    clamp(conf, 0, 0.95),
		PrimaryDevice: first.DeviceID,
		Geometry:      geometry,
		Evidence: aerialEvidence{
			Segments:         segments,
			MeanSpeedKmH:     round(path/elapsed, 1),
			MaxSpeedKmH:      round(maxSpeed, 1),
			Straightness:     round(straightness, 3),
			PathKm:           round(path, 3),
			AltitudeGainM:    round(gain, 1),
			AltitudeObserved: altitude,
		},
		FirstSeen: first.Timestamp,
		LastSeen:  last.Timestamp,
	}, true
}

func minAltitude(track []Sighting) (float64, bool) {
	var (
		lowest float64
		found  bool
	)
	for i := range track {
		if !track[i].HasAltitude {
			continue
		}
		if !found || track[i].Altitude < lowest {
			lowest, found = track[i].Altitude, true
		}
	}
	return lowest, found
}
