// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import (
	"context"
	"sort"
	"time"

	"github.com/tomtom215/shadowcheck/internal/cache"
)

// CoordinatedMovementRule flags groups of devices that stay within a small
// radius of each other across consecutive time slots while the group moves.
type CoordinatedMovementRule struct{}

// Type implements WindowRule.
func (CoordinatedMovementRule) Type() AnomalyType { return TypeCoordinatedMovement }

type groupSlot struct {
	index    int64
	start    time.Time
	end      time.Time
	centroid GeoPoint
	spreadM  float64
}

// slotRound is one observation round: the latest position of each foreign
// device seen between start and end.
type slotRound struct {
	index     int64
	start     time.Time
	end       time.Time
	positions map[string]Sighting
}

type groupTrack struct {
	devices  []string
	slots    []groupSlot
	extended bool
}

func (g *groupTrack) last() int64 { return g.slots[len(g.slots)-1].index }

type coordinatedEvidence struct {
	DeviceCount      int     `json:"device_count"`
	ConsecutiveSlots int     `json:"consecutive_slots"`
	SlotSeconds      float64 `json:"slot_seconds"`
	TravelM          float64 `json:"travel_m"`
	MaxSpreadM       float64 `json:"max_spread_m"`
	MaxDistanceM     float64 `json:"max_distance_m"`
}

// EvaluateWindow implements WindowRule.
func (r CoordinatedMovementRule) EvaluateWindow(ctx context.Context, w *Window, cfg *DetectionConfig) ([]Candidate, error) {
	p := &cfg.Rules
	rounds := groupRounds(w, p.CoordinatedSlot)
	if len(rounds) < p.CoordinatedMinConsecutive {
		return nil, nil
	}

	var (
		active []*groupTrack
		done   []*groupTrack
	)
	for i := range rounds {
		round := &rounds[i]
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx, positions := round.index, round.positions
		components := clusterSlot(positions, p.CoordinatedMaxDistanceM, p.CoordinatedMinDevices)

		var next []*groupTrack
		for _, t := range active {
			if t.last() != idx-1 {
				continue
			}
			for _, comp := range components {
				shared := intersectSorted(t.devices, comp)
				if len(shared) < p.CoordinatedMinDevices {
					continue
				}
				t.extended = true
				slotsCopy := append(append([]groupSlot(nil), t.slots...), summarizeSlot(round, shared))
				next = appendUniqueTrack(next, &groupTrack{devices: shared, slots: slotsCopy})
			}
		}
		for _, t := range active {
			if !t.extended {
				done = append(done, t)
			}
		}
		for _, comp := range components {
			if hasTrackFor(next, comp) {
				continue
			}
			next = append(next, &groupTrack{
				devices: comp,
				slots:   []groupSlot{summarizeSlot(round, comp)},
			})
		}
		active = next
	}
	done = append(done, active...)

	var out []Candidate
	for _, t := range done {
		if c, ok := r.candidate(t, p); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (CoordinatedMovementRule) candidate(t *groupTrack, p *RuleParams) (Candidate, bool) {
	if len(t.slots) < p.CoordinatedMinConsecutive {
		return Candidate{}, false
	}
	origin := t.slots[0].centroid
	var travelM, spreadM float64
	geometry := make([]GeoPoint, 0, len(t.slots))
	for _, s := range t.slots {
		d := HaversineKm(origin.Lat, origin.Lon, s.centroid.Lat, s.centroid.Lon) * 1000
		if d > travelM {
			travelM = d
		}
		if s.spreadM > spreadM {
			spreadM = s.spreadM
		}
		geometry = append(geometry, s.centroid)
	}
	if travelM < p.CoordinatedMinTravelM {
		return Candidate{}, false
	}

	devices := len(t.devices)
	conf := 0.5 +
		0.1*float64(devices-p.CoordinatedMinDevices) +
		0.1*float64(len(t.slots)-p.CoordinatedMinConsecutive)

	slotLen := p.CoordinatedSlot
	first := t.slots[0].start
	last := t.slots[len(t.slots)-1].end

	return Candidate{
		Type:           TypeCoordinatedMovement,
		Confidence:     clamp(conf, 0, 0.95),
		PrimaryDevice:  t.devices[0],
		RelatedDevices: append([]string(nil), t.devices[1:]...),
		Geometry:       geometry,
		Evidence: coordinatedEvidence{
			DeviceCount:      devices,
			ConsecutiveSlots: len(t.slots),
			SlotSeconds:      slotLen.Seconds(),
			TravelM:          round(travelM, 1),
			MaxSpreadM:       round(spreadM, 1),
			MaxDistanceM:     p.CoordinatedMaxDistanceM,
		},
		FirstSeen: first,
		LastSeen:  last,
	}, true
}

// groupRounds splits the foreign sightings into observation rounds anchored
// on the data rather than the wall clock. A round opens at its first sighting
// and closes once a sighting falls a full slot after that anchor, or once the
// stream goes quiet for more than half a slot. Rounds whose anchors are less
// than two slots apart get adjacent indices; a longer pause leaves a gap so
// the group track breaks there.
func groupRounds(w *Window, slot time.Duration) []slotRound {
	var all []Sighting
	for _, id := range w.ForeignDevices() {
		all = append(all, w.Tracks[id]...)
	}
	if len(all) == 0 {
		return nil
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })

	var (
		rounds []slotRound
		cur    *slotRound
		prev   time.Time
	)
	for _, s := range all {
		if cur == nil || s.Timestamp.Sub(cur.start) >= slot || s.Timestamp.Sub(prev) > slot/2 {
			idx := int64(0)
			if cur != nil {
				idx = cur.index + 1
				if s.Timestamp.Sub(cur.start) >= 2*slot {
					idx++
				}
			}
			rounds = append(rounds, slotRound{index: idx, start: s.Timestamp, positions: make(map[string]Sighting)})
			cur = &rounds[len(rounds)-1]
		}
		// Sorted by time, so the last write is the device's latest position.
		cur.positions[s.DeviceID] = s
		cur.end = s.Timestamp
		prev = s.Timestamp
	}
	return rounds
}

// clusterSlot returns the sorted device sets of the connected components of
// the "within maxDistM" graph that have at least minSize members.
func clusterSlot(positions map[string]Sighting, maxDistM float64, minSize int) [][]string {
	if len(positions) < minSize {
		return nil
	}
	radiusKm := maxDistM / 1000
	grid := cache.NewSpatialHashGrid(radiusKm)
	ids := make([]string, 0, len(positions))
	for id, s := range positions {
		grid.Insert(id, s.Lat, s.Lon, s.Timestamp, nil)
		ids = append(ids, id)
	}
	sort.Strings(ids)

	uf := newUnionFind(ids)
	for _, id := range ids {
		s := positions[id]
		for _, e := range grid.QueryNearby(s.Lat, s.Lon, radiusKm) {
			if e.ID != id {
				uf.union(id, e.ID)
			}
		}
	}

	groups := make(map[string][]string)
	for _, id := range ids {
		root := uf.find(id)
		groups[root] = append(groups[root], id)
	}
	var out [][]string
	for _, members := range groups {
		if len(members) >= minSize {
			out = append(out, members) // ids were visited in order, so members are sorted
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func summarizeSlot(round *slotRound, devices []string) groupSlot {
	points := make([]GeoPoint, 0, len(devices))
	for _, id := range devices {
		s := round.positions[id]
		points = append(points, pointOf(&s))
	}
	c, _ := Centroid(points)
	c.Timestamp = round.start

	var spread float64
	for i := range points {
		for j := i + 1; j < len(points); j++ {
			d := HaversineKm(points[i].Lat, points[i].Lon, points[j].Lat, points[j].Lon) * 1000
			if d > spread {
				spread = d
			}
		}
	}
	return groupSlot{index: round.index, start: round.start, end: round.end, centroid: c, spreadM: spread}
}

func appendUniqueTrack(tracks []*groupTrack, t *groupTrack) []*groupTrack {
	for i, existing := range tracks {
		if equalSorted(existing.devices, t.devices) {
			if len(t.slots) > len(existing.slots) {
				tracks[i] = t
			}
			return tracks
		}
	}
	return append(tracks, t)
}

func hasTrackFor(tracks []*groupTrack, devices []string) bool {
	for _, t := range tracks {
		if equalSorted(t.devices, devices) {
			return true
		}
	}
	return false
}

func intersectSorted(a, b []string) []string {
	var out []string
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

func equalSorted(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type unionFind struct {
	parent map[string]string
}

func newUnionFind(ids []string) *unionFind {
	uf := &unionFind{parent: make(map[string]string, len(ids))}
	for _, id := range ids {
		uf.parent[id] = id
	}
	return uf
}

func (u *unionFind) find(id string) string {
	for u.parent[id] != id {
		u.parent[id] = u.parent[u.parent[id]]
		id = u.parent[id]
	}
	return id
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	// Smaller id becomes the root so component roots are deterministic.
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}
