// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import (
	"context"
	"sort"
	"time"
)

// RouteCorrelationRule flags a foreign device that travels with the subject
// on several distinct trips.
type RouteCorrelationRule struct{}

// Type implements WindowRule.
func (RouteCorrelationRule) Type() AnomalyType { return TypeRouteCorrelation }

type tripMatch struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Points     int       `json:"points"`
	Matched    int       `json:"matched"`
	Ratio      float64   `json:"ratio"`
	DistanceKm float64   `json:"distance_km"`
}

type routeEvidence struct {
	SubjectDevices []string    `json:"subject_devices"`
	TripsObserved  int         `json:"trips_observed"`
	TripsMatched   int         `json:"trips_matched"`
	MeanMatchRatio float64     `json:"mean_match_ratio"`
	Trips          []tripMatch `json:"trips"`
}

// EvaluateWindow implements WindowRule.
func (r RouteCorrelationRule) EvaluateWindow(ctx context.Context, w *Window, cfg *DetectionConfig) ([]Candidate, error) {
	p := &cfg.Rules
	subject := w.SubjectDevices()
	if len(subject) == 0 {
		return nil, nil
	}
	trips := SplitTrips(mergeTracks(w, subject), p.TripGap, p.TripMinDistanceKm)
	if len(trips) < p.RouteMinTrips {
		return nil, nil
	}

	var out []Candidate
	for _, id := range w.ForeignDevices() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if c, ok := r.evaluateDevice(w.Tracks[id], trips, subject, p); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (RouteCorrelationRule) evaluateDevice(track []Sighting, trips [][]Sighting, subject []string, p *RuleParams) (Candidate, bool) {
	if len(track) < 2 {
		return Candidate{}, false
	}

	var (
		matches  []tripMatch
		geometry []GeoPoint
		ratioSum float64
	)
	for _, trip := range trips {
		var hits []int // indices into trip
		var seen []GeoPoint
		for i := range trip {
			if j, ok := nearestCompanion(track, &trip[i], p); ok {
				hits = append(hits, i)
				seen = append(seen, pointOf(&track[j]))
			}
		}
		ratio := float64(len(hits)) / float64(len(trip))
		if len(hits) < 2 || ratio < p.RouteMinMatchRatio {
			continue
		}
		if matchedSpanKm(trip, hits) < p.TripMinDistanceKm/2 {
			continue
		}
		ratioSum += ratio
		geometry = append(geometry, seen...)
		matches = append(matches, tripMatch{
			Start:      trip[0].Timestamp,
			End:        trip[len(trip)-1].Timestamp,
			Points:     len(trip),
			Matched:    len(hits),
			Ratio:      round(ratio, 3),
			DistanceKm: round(PathLengthKm(trip), 3),
		})
	}
	if len(matches) < p.RouteMinTrips {
		return Candidate{}, false
	}

	mean := ratioSum / float64(len(matches))
	conf := 0.4 + 0.15*float64(len(matches)-1) + 0.2*mean

	return Candidate{
		Type:          TypeRouteCorrelation,
		Confidence:    clamp(conf, 0, 0.95),
		PrimaryDevice: track[0].DeviceID,
		Geometry:      geometry,
		Evidence: routeEvidence{
			SubjectDevices: subject,
			TripsObserved:  len(trips),
			TripsMatched:   len(matches),
			MeanMatchRatio: round(mean, 3),
			Trips:          matches,
		},
		FirstSeen: geometry[0].Timestamp,
		LastSeen:  geometry[len(geometry)-1].Timestamp,
	}, true
}

// nearestCompanion returns the index of the foreign sighting closest in space
// to s among those within the time skew, if one is within range.
func nearestCompanion(track []Sighting, s *Sighting, p *RuleParams) (int, bool) {
	from := s.Timestamp.Add(-p.RouteMaxTimeSkew)
	to := s.Timestamp.Add(p.RouteMaxTimeSkew)
	i := sort.Search(len(track), func(k int) bool { return !track[k].Timestamp.Before(from) })

	best, bestDist := -1, p.RouteMaxDistanceM
	for ; i < len(track) && !track[i].Timestamp.After(to); i++ {
		if d := DistanceM(s, &track[i]); d <= bestDist {
			best, bestDist = i, d
		}
	}
	return best, best >= 0
}

func matchedSpanKm(trip []Sighting, hits []int) float64 {
	origin := &trip[hits[0]]
	var span float64
	for _, h := range hits[1:] {
		if d := HaversineKm(origin.Lat, origin.Lon, trip[h].Lat, trip[h].Lon); d > span {
			span = d
		}
	}
	return span
}

func mergeTracks(w *Window, ids []string) []Sighting {
	var merged []Sighting
	for _, id := range ids {
		merged = append(merged, w.Tracks[id]...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}

// SplitTrips cuts a time-ordered track wherever consecutive sightings are
// more than gap apart, keeping only trips of at least minKm path length.
func SplitTrips(track []Sighting, gap time.Duration, minKm float64) [][]Sighting {
	var trips [][]Sighting
	keep := func(t []Sighting) {
		if len(t) >= 2 && PathLengthKm(t) >= minKm {
			trips = append(trips, t)
		}
	}
	start := 0
	for i := 1; i < len(track); i++ {
		if track[i].Timestamp.Sub(track[i-1].Timestamp) > gap {
			keep(track[start:i])
			start = i
		}
	}
	if start < len(track) {
		keep(track[start:])
	}
	return trips
}
