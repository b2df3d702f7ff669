// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingWindowRule struct{}

func (failingWindowRule) Type() AnomalyType { return TypeRouteCorrelation }

func (failingWindowRule) EvaluateWindow(context.Context, *Window, *DetectionConfig) ([]Candidate, error) {
	return nil, errors.New("boom")
}

func mixedSightings() []Sighting {
	var s []Sighting
	s = append(s, convoy(5, 4, 0.006)...)
	s = append(s,
		sighting("DE:AD:BE:EF:00:01", 45.0, -85.0, 0),
		sighting("DE:AD:BE:EF:00:01", 45.9, -84.0, time.Minute),
	)
	s = append(s, lineTrack("AE:00:00:00:00:01", 44.0, -84.0, 0.05, 0, 5, 0, time.Minute)...)
	return s
}

func TestEngineEvaluate(t *testing.T) {
	cfg := testConfig(t)
	e := DefaultEngine(4, nil)

	got, err := e.Evaluate(context.Background(), window(mixedSightings()), cfg)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	types := map[AnomalyType]int{}
	for _, c := range got {
		types[c.Type]++
	}
	want := map[AnomalyType]int{
		TypeAerialPattern:       1,
		TypeCoordinatedMovement: 1,
		TypeImpossibleDistance:  1,
	}
	for typ, n := range want {
		if types[typ] != n {
			t.Errorf("%s candidates = %d, want %d (all: %v)", typ, types[typ], n, types)
		}
	}

	for i := 1; i < len(got); i++ {
		if got[i-1].Type > got[i].Type {
			t.Errorf("candidates not sorted by type: %s before %s", got[i-1].Type, got[i].Type)
		}
	}
}

func TestEngineIsDeterministicAcrossWorkerCounts(t *testing.T) {
	cfg := testConfig(t)
	w := window(mixedSightings())

	one, err := DefaultEngine(1, nil).Evaluate(context.Background(), w, cfg)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	many, err := DefaultEngine(8, nil).Evaluate(context.Background(), w, cfg)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(one) != len(many) {
		t.Fatalf("1 worker: %d candidates, 8 workers: %d", len(one), len(many))
	}
	for i := range one {
		if OriginKey("p", "u", &one[i]) != OriginKey("p", "u", &many[i]) {
			t.Errorf("candidate %d differs between worker counts", i)
		}
	}
}

func TestEngineCancelled(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DefaultEngine(2, nil).Evaluate(ctx, window(mixedSightings()), cfg)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestEngineRuleFailureDoesNotStopOthers(t *testing.T) {
	cfg := testConfig(t)
	e := NewEngine(2)
	e.RegisterDeviceRule(ImpossibleDistanceRule{})
	e.RegisterWindowRule(failingWindowRule{})

	got, err := e.Evaluate(context.Background(), window(mixedSightings()), cfg)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(got) != 1 || got[0].Type != TypeImpossibleDistance {
		t.Errorf("got %+v, want the impossible distance candidate", got)
	}
}

func TestFilterWhitelisted(t *testing.T) {
	cs := []Candidate{{PrimaryDevice: "a"}, {PrimaryDevice: "b"}, {PrimaryDevice: "c"}}
	got := FilterWhitelisted(cs, map[string]bool{"b": true})
	if len(got) != 2 || got[0].PrimaryDevice != "a" || got[1].PrimaryDevice != "c" {
		t.Errorf("FilterWhitelisted = %+v", got)
	}
}
