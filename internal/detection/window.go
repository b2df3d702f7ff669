// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import (
	"sort"
	"strings"
	"time"
)

// Window is the set of qualifying sightings a detection pass evaluates,
// grouped into per-device tracks sorted by time.
type Window struct {
	Start   time.Time
	End     time.Time
	Tracks  map[string][]Sighting
	Devices []string
	Subject map[string]bool
}

// NewWindow filters sightings to [start, end] and to those that qualify,
// then builds the per-device tracks. Sightings already in the slice are not
// modified.
func NewWindow(sightings []Sighting, start, end time.Time, subjectIDs []string) *Window {
	w := &Window{
		Start:   start,
		End:     end,
		Tracks:  make(map[string][]Sighting),
		Subject: make(map[string]bool, len(subjectIDs)),
	}
	for _, id := range subjectIDs {
		w.Subject[strings.ToLower(id)] = true
	}

	for i := range sightings {
		s := sightings[i]
		if !s.Qualifies() {
			continue
		}
		if !start.IsZero() && s.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && s.Timestamp.After(end) {
			continue
		}
		w.Tracks[s.DeviceID] = append(w.Tracks[s.DeviceID], s)
	}

	w.Devices = make([]string, 0, len(w.Tracks))
	for id, track := range w.Tracks {
		sort.SliceStable(track, func(i, j int) bool {
			return track[i].Timestamp.Before(track[j].Timestamp)
		})
		w.Devices = append(w.Devices, id)
	}
	sort.Strings(w.Devices)
	return w
}

// IsSubject reports whether id is one of the subject's own devices.
func (w *Window) IsSubject(id string) bool {
	return w.Subject[strings.ToLower(id)]
}

// ForeignDevices returns the sorted non-subject device ids.
func (w *Window) ForeignDevices() []string {
	out := make([]string, 0, len(w.Devices))
	for _, id := range w.Devices {
		if !w.IsSubject(id) {
			out = append(out, id)
		}
	}
	return out
}

// SubjectDevices returns the sorted subject device ids present in the window.
func (w *Window) SubjectDevices() []string {
	out := make([]string, 0, len(w.Subject))
	for _, id := range w.Devices {
		if w.IsSubject(id) {
			out = append(out, id)
		}
	}
	return out
}

// SightingCount returns the number of qualifying sightings.
func (w *Window) SightingCount() int {
	n := 0
	for _, t := range w.Tracks {
		n += len(t)
	}
	return n
}
