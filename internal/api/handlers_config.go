// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/faults"
	"github.com/tomtom215/shadowcheck/internal/safezone"
)

// GetConfig handles GET /api/v1/users/{userID}/config. Users without a
// stored config get the defaults.
func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	cfg, err := h.deps.Threat.Config(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		rw.Fault(err)
		return
	}
	rw.Success(cfg)
}

type configUpdateRequest struct {
	Thresholds       map[detection.AnomalyType]float64 `json:"thresholds" validate:"omitempty,dive,keys,anomaly_type,endkeys,unit_interval"`
	SafeZonesEnabled *bool                             `json:"safe_zones_enabled"`
}

// UpdateConfig handles PUT /api/v1/users/{userID}/config. Thresholds are
// merged into the current config; omitted types keep their value.
func (h *Handlers) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req configUpdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		rw.Fault(err)
		return
	}
	userID := chi.URLParam(r, "userID")
	if _, err := h.deps.Threat.UpdateConfig(r.Context(), userID, req.Thresholds, req.SafeZonesEnabled); err != nil {
		rw.Fault(err)
		return
	}
	cfg, err := h.deps.Threat.Config(r.Context(), userID)
	if err != nil {
		rw.Fault(err)
		return
	}
	rw.Success(cfg)
}

// ListSafeZones handles GET /api/v1/users/{userID}/safe-zones.
func (h *Handlers) ListSafeZones(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	includeInactive := false
	if v := r.URL.Query().Get("include_inactive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			rw.Fault(faults.Invalid("include_inactive", "must be a boolean"))
			return
		}
		includeInactive = b
	}
	zones, err := h.deps.Zones.List(r.Context(), chi.URLParam(r, "userID"), includeInactive)
	if err != nil {
		rw.Fault(err)
		return
	}
	if zones == nil {
		zones = []*safezone.Zone{}
	}
	rw.List(zones, len(zones))
}

type safeZoneRequest struct {
	Name          string                  `json:"name" validate:"required,max=128"`
	Polygon       []safezone.Point        `json:"polygon" validate:"required,min=3"`
	SuppressTypes []detection.AnomalyType `json:"suppress_types" validate:"required,min=1,dive,anomaly_type"`
}

// CreateSafeZone handles POST /api/v1/users/{userID}/safe-zones.
func (h *Handlers) CreateSafeZone(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req safeZoneRequest
	if err := decodeBody(w, r, &req); err != nil {
		rw.Fault(err)
		return
	}
	z := &safezone.Zone{
		UserID:        chi.URLParam(r, "userID"),
		Name:          req.Name,
		Polygon:       req.Polygon,
		SuppressTypes: req.SuppressTypes,
	}
	if err := h.deps.Zones.Create(r.Context(), z); err != nil {
		rw.Fault(err)
		return
	}
	rw.Created(z)
}

// DeleteSafeZone handles DELETE /api/v1/users/{userID}/safe-zones/{zoneID}.
// Zones are deactivated, not removed.
func (h *Handlers) DeleteSafeZone(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if err := h.deps.Zones.Deactivate(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "zoneID")); err != nil {
		rw.Fault(err)
		return
	}
	rw.NoContent()
}
