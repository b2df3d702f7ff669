// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/tomtom215/shadowcheck/internal/alerts"
	"github.com/tomtom215/shadowcheck/internal/evidence"
	"github.com/tomtom215/shadowcheck/internal/faults"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/tuning"
)

type passRequest struct {
	WindowDays int `json:"window_days" validate:"omitempty,min=1,max=365"`
}

type passResponse struct {
	WindowDays int                    `json:"window_days"`
	Users      int                    `json:"users"`
	Anomalies  int                    `json:"anomalies"`
	Alerts     int                    `json:"alerts"`
	Outcomes   map[alerts.Outcome]int `json:"outcomes"`
}

// RunDetectionPass handles POST /api/v1/detection/passes. An empty body
// runs over the configured default window.
func (h *Handlers) RunDetectionPass(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req passRequest
	if err := decodeOptionalBody(w, r, &req); err != nil {
		rw.Fault(err)
		return
	}
	if req.WindowDays == 0 {
		req.WindowDays = h.deps.DefaultWindowDays
	}

	sum, err := h.deps.Threat.DetectionPass(r.Context(), req.WindowDays)
	if err != nil {
		rw.Fault(err)
		return
	}
	rw.Success(passResponse{
		WindowDays: req.WindowDays,
		Users:      sum.Users,
		Anomalies:  sum.Anomalies,
		Alerts:     sum.Alerts,
		Outcomes:   sum.Outcomes,
	})
}

// RunTuning handles POST /api/v1/tuning/runs. A run already in progress on
// another instance answers 409.
func (h *Handlers) RunTuning(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	adjustments, err := h.deps.Threat.RunAdaptiveTuning(r.Context())
	if err != nil {
		rw.Fault(err)
		return
	}
	if adjustments == nil {
		adjustments = []tuning.Adjustment{}
	}
	rw.List(adjustments, len(adjustments))
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportEvidence handles POST /api/v1/evidence. format=xlsx returns the
// workbook rendering instead of JSON.
func (h *Handlers) ExportEvidence(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "xlsx" {
		rw.Fault(faults.Invalid("format", "must be json or xlsx; got %q", format))
		return
	}

	var req evidence.Request
	if err := decodeBody(w, r, &req); err != nil {
		rw.Fault(err)
		return
	}
	pkg, err := h.deps.Threat.ExportEvidence(r.Context(), req)
	if err != nil {
		rw.Fault(err)
		return
	}

	if format != "xlsx" {
		rw.Created(pkg)
		return
	}

	// Render fully before writing headers so a failure still gets a JSON error.
	var buf bytes.Buffer
	if err := evidence.WriteWorkbook(pkg, &buf); err != nil {
		rw.Fault(fmt.Errorf("render evidence workbook: %w", err))
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="evidence-%s.xlsx"`, pkg.ExportMetadata.ExportID))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Integrity-Hash", pkg.IntegrityHash)
	w.WriteHeader(http.StatusCreated)
	if _, err := buf.WriteTo(w); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Writing evidence workbook")
	}
}
