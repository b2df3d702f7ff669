// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"github.com/tomtom215/shadowcheck/internal/infra"
	"github.com/tomtom215/shadowcheck/internal/logging"
)

// DeviceRule evaluates one device's time-ordered qualifying track. Device
// rules are pure and may run concurrently for different devices.
type DeviceRule interface {
	Type() AnomalyType
	EvaluateDevice(track []Sighting, p *RuleParams) []Candidate
}

// WindowRule evaluates the whole window. It should check ctx between
// devices so long passes can be cancelled.
type WindowRule interface {
	Type() AnomalyType
	EvaluateWindow(ctx context.Context, w *Window, cfg *DetectionConfig) ([]Candidate, error)
}

// Engine runs the registered rules over a window with a bounded worker pool.
type Engine struct {
	mu          sync.RWMutex
	deviceRules []DeviceRule
	windowRules []WindowRule
	workers     int
}

// NewEngine creates an engine with no rules. workers <= 0 uses GOMAXPROCS.
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{workers: workers}
}

// DefaultEngine creates an engine with all five rules registered. A nil
// correlator disables the infrastructure rule's lookups, which then never
// produces a candidate.
func DefaultEngine(workers int, correlator infra.Lookuper) *Engine {
	e := NewEngine(workers)
	e.RegisterDeviceRule(ImpossibleDistanceRule{})
	e.RegisterDeviceRule(AerialPatternRule{})
	e.RegisterWindowRule(CoordinatedMovementRule{})
	e.RegisterWindowRule(InfrastructurePatternRule{Correlator: correlator})
	e.RegisterWindowRule(RouteCorrelationRule{})
	return e
}

// RegisterDeviceRule adds a per-device rule.
func (e *Engine) RegisterDeviceRule(r DeviceRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deviceRules = append(e.deviceRules, r)
	logging.Debug().Str("rule", string(r.Type())).Msg("Registered device rule")
}

// RegisterWindowRule adds a whole-window rule.
func (e *Engine) RegisterWindowRule(r WindowRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.windowRules = append(e.windowRules, r)
	logging.Debug().Str("rule", string(r.Type())).Msg("Registered window rule")
}

// Types lists the registered rule types.
func (e *Engine) Types() []AnomalyType {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]AnomalyType, 0, len(e.deviceRules)+len(e.windowRules))
	for _, r := range e.deviceRules {
		out = append(out, r.Type())
	}
	for _, r := range e.windowRules {
		out = append(out, r.Type())
	}
	return out
}

// unit is one schedulable piece of work: either one device through every
// device rule, or one window rule over the whole window.
type unit struct {
	device string
	rule   WindowRule
}

// Evaluate runs every rule and returns the candidates in a stable order.
//
// Cancellation is checked between units. On cancel, the candidates finished
// so far are returned together with ctx.Err(). A rule error is logged and the
// remaining rules still run.
func (e *Engine) Evaluate(ctx context.Context, w *Window, cfg *DetectionConfig) ([]Candidate, error) {
	e.mu.RLock()
	deviceRules := append([]DeviceRule(nil), e.deviceRules...)
	windowRules := append([]WindowRule(nil), e.windowRules...)
	e.mu.RUnlock()

	units := make([]unit, 0, len(w.Devices)+len(windowRules))
	if len(deviceRules) > 0 {
		for _, id := range w.Devices {
			if len(w.Tracks[id]) >= 2 {
				units = append(units, unit{device: id})
			}
		}
	}
	for _, r := range windowRules {
		units = append(units, unit{rule: r})
	}

	var (
		mu  sync.Mutex
		out []Candidate
		wg  sync.WaitGroup
	)
	queue := make(chan unit)
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range queue {
				found := e.runUnit(ctx, u, w, cfg, deviceRules)
				if len(found) == 0 {
					continue
				}
				mu.Lock()
				out = append(out, found...)
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, u := range units {
		select {
		case <-ctx.Done():
			break dispatch
		case queue <- u:
		}
	}
	close(queue)
	wg.Wait()

	SortCandidates(out)
	return out, ctx.Err()
}

func (e *Engine) runUnit(ctx context.Context, u unit, w *Window, cfg *DetectionConfig, deviceRules []DeviceRule) []Candidate {
	if u.rule == nil {
		if w.IsSubject(u.device) {
			return nil
		}
		var out []Candidate
		track := w.Tracks[u.device]
		for _, r := range deviceRules {
			out = append(out, r.EvaluateDevice(track, &cfg.Rules)...)
		}
		return out
	}

	found, err := u.rule.EvaluateWindow(ctx, w, cfg)
	if err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Str("rule", string(u.rule.Type())).Str("user_id", cfg.UserID).
			Msg("Detection rule failed")
	}
	return found
}

// SortCandidates orders candidates by type, primary device and first seen.
func SortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := &cs[i], &cs[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.PrimaryDevice != b.PrimaryDevice {
			return a.PrimaryDevice < b.PrimaryDevice
		}
		return a.FirstSeen.Before(b.FirstSeen)
	})
}

// FilterWhitelisted drops candidates whose primary device is whitelisted.
func FilterWhitelisted(cs []Candidate, whitelist map[string]bool) []Candidate {
	if len(whitelist) == 0 {
		return cs
	}
	out := cs[:0]
	for _, c := range cs {
		if !whitelist[c.PrimaryDevice] {
			out = append(out, c)
		}
	}
	return out
}
