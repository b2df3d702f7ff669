// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package api

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// HealthStatus is the GET /api/v1/health payload.
type HealthStatus struct {
	Status        string            `json:"status"`
	Version       string            `json:"version,omitempty"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

// Health handles GET /api/v1/health. Any failing check degrades the status
// and answers 503.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := HealthStatus{
		Status:        "healthy",
		Version:       h.deps.Version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		Checks:        make(map[string]string, len(h.deps.Health)),
	}
	for _, c := range h.deps.Health {
		if err := c.Check(ctx); err != nil {
			status.Checks[c.Name] = err.Error()
			status.Status = "degraded"
			continue
		}
		status.Checks[c.Name] = "ok"
	}

	if status.Status != "healthy" {
		rw.respond(http.StatusServiceUnavailable, status, nil)
		return
	}
	rw.Success(status)
}
