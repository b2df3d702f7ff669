// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package infra

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/shadowcheck/internal/faults"
)

func newCorrelationServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		switch r.URL.Path {
		case "/correlations/AA:BB:CC:00:00:01":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"device_id":"AA:BB:CC:00:00:01","matches":[` +
				`{"agency":"Field Office","confidence":0.4},` +
				`{"agency":"Regional HQ","site":"hq","lat":43.1,"lon":-83.1,"has_location":true,"confidence":1.7}]}`))
		case "/correlations/AA:BB:CC:00:00:02":
			http.NotFound(w, r)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClientLookup(t *testing.T) {
	var calls int32
	srv := newCorrelationServer(t, &calls)
	client := NewHTTPClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second})
	ctx := context.Background()

	t.Run("matches are clamped and aggregated", func(t *testing.T) {
		c, err := client.Lookup(ctx, "AA:BB:CC:00:00:01")
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if len(c.Matches) != 2 {
			t.Fatalf("matches = %d, want 2", len(c.Matches))
		}
		if c.Confidence != 1 {
			t.Errorf("confidence = %v, want 1 (clamped)", c.Confidence)
		}
		best, ok := c.Best()
		if !ok || best.Agency != "Regional HQ" || !best.HasLocation {
			t.Errorf("best = %+v", best)
		}
	})

	t.Run("404 means no association", func(t *testing.T) {
		c, err := client.Lookup(ctx, "AA:BB:CC:00:00:02")
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if c.DeviceID != "AA:BB:CC:00:00:02" || len(c.Matches) != 0 || c.Confidence != 0 {
			t.Errorf("unexpected correlation %+v", c)
		}
	})

	t.Run("server error is a dependency failure", func(t *testing.T) {
		_, err := client.Lookup(ctx, "FF:FF:FF:00:00:00")
		if !errors.Is(err, faults.ErrDependencyUnavailable) {
			t.Errorf("err = %v, want ErrDependencyUnavailable", err)
		}
	})
}

type failingLookuper struct {
	calls int
}

func (f *failingLookuper) Lookup(context.Context, string) (*Correlation, error) {
	f.calls++
	return nil, faults.Unavailable("infra", errors.New("connection refused"))
}

func TestBreakerClientOpensAfterConsecutiveFailures(t *testing.T) {
	next := &failingLookuper{}
	b := NewBreakerClient(next, BreakerConfig{MaxFailures: 2, OpenTimeout: time.Hour})

	for i := 0; i < 5; i++ {
		_, err := b.Lookup(context.Background(), "dev")
		if !errors.Is(err, faults.ErrDependencyUnavailable) {
			t.Fatalf("call %d: err = %v, want ErrDependencyUnavailable", i, err)
		}
	}
	if next.calls != 2 {
		t.Errorf("underlying calls = %d, want 2 before the breaker opened", next.calls)
	}
	if b.State() != "open" {
		t.Errorf("state = %q, want open", b.State())
	}
}

func TestCachedClientMemoizesSuccess(t *testing.T) {
	var calls int32
	srv := newCorrelationServer(t, &calls)
	c := NewCachedClient(NewHTTPClient(ClientConfig{BaseURL: srv.URL}), time.Minute)
	defer c.Close()

	for i := 0; i < 3; i++ {
		if _, err := c.Lookup(context.Background(), "AA:BB:CC:00:00:01"); err != nil {
			t.Fatalf("Lookup: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		_, _ = c.Lookup(context.Background(), "FF:FF:FF:00:00:00")
	}

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("server calls = %d, want 3 (1 cached success + 2 uncached failures)", got)
	}
}

func TestStaticLookup(t *testing.T) {
	s := Static{
		"dev-1": {DeviceID: "dev-1", Matches: []Match{{Agency: "a", Confidence: 0.7}}},
	}
	c, err := s.Lookup(context.Background(), "dev-1")
	if err != nil || c.Confidence != 0.7 {
		t.Fatalf("Lookup = %+v, %v", c, err)
	}
	c, err = s.Lookup(context.Background(), "dev-2")
	if err != nil || c.Confidence != 0 || c.DeviceID != "dev-2" {
		t.Fatalf("Lookup unknown = %+v, %v", c, err)
	}
}
