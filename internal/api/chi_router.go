// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/shadowcheck/internal/middleware"
)

// NewRouter wires handlers and middleware into a chi router.
func NewRouter(h *Handlers, mw *ChiMiddleware) http.Handler {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS()) // global so OPTIONS preflight is answered

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Metrics)

		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimit())

			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", h.ListAlerts)
				r.Get("/{id}", h.GetAlert)
				r.Post("/{id}/feedback", h.SubmitFeedback)
			})

			r.Route("/anomalies/{id}", func(r chi.Router) {
				r.Get("/", h.GetAnomaly)
				r.Patch("/investigation", h.UpdateInvestigation)
			})

			r.Get("/custody/verify", h.VerifyCustody)

			r.Route("/users/{userID}", func(r chi.Router) {
				r.Get("/config", h.GetConfig)
				r.Put("/config", h.UpdateConfig)
				r.Get("/safe-zones", h.ListSafeZones)
				r.Post("/safe-zones", h.CreateSafeZone)
				r.Delete("/safe-zones/{zoneID}", h.DeleteSafeZone)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimitCustom(RateLimitOperations))

			r.Post("/detection/passes", h.RunDetectionPass)
			r.Post("/tuning/runs", h.RunTuning)
			r.Post("/evidence", h.ExportEvidence)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusNotFound, ErrCodeNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	return r
}
