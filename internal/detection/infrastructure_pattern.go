// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tomtom215/shadowcheck/internal/infra"
	"github.com/tomtom215/shadowcheck/internal/logging"
)

// InfrastructurePatternRule flags runs of sequentially addressed devices
// from one vendor block that correlate with a known agency site. Sequential
// hardware addresses are typical of devices provisioned in bulk.
type InfrastructurePatternRule struct {
	Correlator infra.Lookuper
}

// Type implements WindowRule.
func (InfrastructurePatternRule) Type() AnomalyType { return TypeInfrastructurePattern }

type macAddress struct {
	id    string
	value uint64
}

func (m macAddress) oui() uint64 { return m.value >> 24 }
func (m macAddress) nic() uint64 { return m.value & 0xFFFFFF }

type infrastructureEvidence struct {
	OUI            string   `json:"oui"`
	Addresses      []string `json:"addresses"`
	Agency         string   `json:"agency"`
	Site           string   `json:"site,omitempty"`
	Correlation    float64  `json:"correlation"`
	SiteDistanceM  float64  `json:"site_distance_m,omitempty"`
	LookupFailures int      `json:"lookup_failures,omitempty"`
}

// ParseMAC parses a 48-bit hardware address written with colons, dashes or
// as 12 bare hex digits.
func ParseMAC(id string) (uint64, error) {
	clean := strings.NewReplacer(":", "", "-", "", ".", "").Replace(strings.TrimSpace(id))
	if len(clean) != 12 {
		return 0, fmt.Errorf("not a 48-bit MAC: %q", id)
	}
	v, err := strconv.ParseUint(clean, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("not a 48-bit MAC: %q", id)
	}
	return v, nil
}

// EvaluateWindow implements WindowRule.
func (r InfrastructurePatternRule) EvaluateWindow(ctx context.Context, w *Window, cfg *DetectionConfig) ([]Candidate, error) {
	if r.Correlator == nil {
		return nil, nil
	}
	p := &cfg.Rules

	groups := make(map[uint64][]macAddress)
	for _, id := range w.ForeignDevices() {
		v, err := ParseMAC(id)
		if err != nil {
			continue
		}
		m := macAddress{id: id, value: v}
		groups[m.oui()] = append(groups[m.oui()], m)
	}

	ouis := make([]uint64, 0, len(groups))
	for oui := range groups {
		ouis = append(ouis, oui)
	}
	sort.Slice(ouis, func(i, j int) bool { return ouis[i] < ouis[j] })

	var out []Candidate
	for _, oui := range ouis {
		members := groups[oui]
		sort.Slice(members, func(i, j int) bool { return members[i].value < members[j].value })
		for _, run := range sequentialRuns(members, p.InfraMaxAddressGap, p.InfraMinSequential) {
			c, ok, err := r.evaluateRun(ctx, w, cfg, oui, run)
			if err != nil {
				return out, err
			}
			if ok {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func sequentialRuns(sorted []macAddress, maxGap uint64, minLen int) [][]macAddress {
	var runs [][]macAddress
	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) && sorted[i].nic()-sorted[i-1].nic() <= maxGap {
			continue
		}
		if i-start >= minLen {
			runs = append(runs, sorted[start:i])
		}
		start = i
	}
	return runs
}

func (r InfrastructurePatternRule) evaluateRun(ctx context.Context, w *Window, cfg *DetectionConfig, oui uint64, run []macAddress) (Candidate, bool, error) {
	p := &cfg.Rules

	var (
		points    []GeoPoint
		addresses = make([]string, 0, len(run))
		first     = w.Tracks[run[0].id][0].Timestamp
		last      = first
	)
	for _, m := range run {
		addresses = append(addresses, m.id)
		track := w.Tracks[m.id]
		for i := range track {
			points = append(points, pointOf(&track[i]))
		}
		if ts := track[0].Timestamp; ts.Before(first) {
			first = ts
		}
		if ts := track[len(track)-1].Timestamp; ts.After(last) {
			last = ts
		}
	}
	centroid, ok := Centroid(points)
	if !ok {
		return Candidate{}, false, nil
	}

	var (
		best     infra.Match
		bestDist float64
		found    bool
		failures int
	)
	for _, m := range run {
		corr, err := r.Correlator.Lookup(ctx, m.id)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Candidate{}, false, err
			}
			failures++
			logging.Warn().Err(err).Str("device_id", m.id).
				Msg("Infrastructure correlation unavailable, treating as zero")
			continue
		}
		for _, match := range corr.Matches {
			if match.Confidence < p.InfraMinCorrelation {
				continue
			}
			var dist float64
			if match.HasLocation {
				dist = HaversineKm(centroid.Lat, centroid.Lon, match.Lat, match.Lon) * 1000
				if dist > p.InfraSiteRadiusM {
					continue
				}
			}
			if !found || match.Confidence > best.Confidence {
				best, bestDist, found = match, dist, true
			}
		}
	}
	if !found {
		return Candidate{}, false, nil
	}

	conf := 0.4 + 0.1*float64(len(run)-p.InfraMinSequential) + 0.4*best.Confidence
	geometry := []GeoPoint{centroid}
	if best.HasLocation {
		geometry = append(geometry, GeoPoint{Lat: best.Lat, Lon: best.Lon})
	}

	return Candidate{
		Type:           TypeInfrastructurePattern,
		Confidence:     clamp(conf, 0, 0.95),
		PrimaryDevice:  run[0].id,
		RelatedDevices: addresses[1:],
		Geometry:       geometry,
		Evidence: infrastructureEvidence{
			OUI:            fmt.Sprintf("%06X", oui),
			Addresses:      addresses,
			Agency:         best.Agency,
			Site:           best.Site,
			Correlation:    best.Confidence,
			SiteDistanceM:  round(bestDist, 1),
			LookupFailures: failures,
		},
		FirstSeen: first,
		LastSeen:  last,
	}, true, nil
}
