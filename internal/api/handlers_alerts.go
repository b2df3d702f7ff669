// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/shadowcheck/internal/alerts"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/faults"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// ListAlerts handles GET /api/v1/alerts.
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	q := r.URL.Query()

	f := alerts.Filter{UserID: q.Get("user_id"), Limit: defaultListLimit}
	if v := q.Get("status"); v != "" {
		switch s := alerts.Status(v); s {
		case alerts.StatusActive, alerts.StatusAcknowledged, alerts.StatusDismissed:
			f.Status = s
		default:
			rw.Fault(faults.Invalid("status", "must be active, acknowledged or dismissed; got %q", v))
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			rw.Fault(faults.Invalid("limit", "must be between 1 and %d", maxListLimit))
			return
		}
		f.Limit = n
	}

	list, err := h.deps.Alerts.ListAlerts(r.Context(), f)
	if err != nil {
		rw.Fault(err)
		return
	}
	if list == nil {
		list = []*alerts.Alert{}
	}
	rw.List(list, len(list))
}

// GetAlert handles GET /api/v1/alerts/{id}.
func (h *Handlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	a, err := h.deps.Alerts.GetAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rw.Fault(err)
		return
	}
	rw.Success(a)
}

type feedbackRequest struct {
	Rating    string `json:"rating" validate:"required,oneof=false_positive real_threat uncertain"`
	Notes     string `json:"notes" validate:"max=4000"`
	Whitelist bool   `json:"whitelist"`
	Actor     string `json:"actor" validate:"max=128"`
}

type feedbackResponse struct {
	AlertID string `json:"alert_id"`
	Applied bool   `json:"applied"`
}

// SubmitFeedback handles POST /api/v1/alerts/{id}/feedback. A repeat
// submission answers 200 with applied=false.
func (h *Handlers) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req feedbackRequest
	if err := decodeBody(w, r, &req); err != nil {
		rw.Fault(err)
		return
	}
	id := chi.URLParam(r, "id")
	applied, err := h.deps.Threat.SubmitFeedback(r.Context(), id, req.Rating, req.Notes, req.Whitelist, req.Actor)
	if err != nil {
		rw.Fault(err)
		return
	}
	rw.Success(feedbackResponse{AlertID: id, Applied: applied})
}

// GetAnomaly handles GET /api/v1/anomalies/{id}.
func (h *Handlers) GetAnomaly(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	a, err := h.deps.Anomalies.GetAnomaly(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rw.Fault(err)
		return
	}
	rw.Success(a)
}

// UpdateInvestigation handles PATCH /api/v1/anomalies/{id}/investigation.
func (h *Handlers) UpdateInvestigation(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var inv detection.Investigation
	if err := decodeBody(w, r, &inv); err != nil {
		rw.Fault(err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.deps.Anomalies.UpdateInvestigation(r.Context(), id, inv); err != nil {
		rw.Fault(err)
		return
	}
	a, err := h.deps.Anomalies.GetAnomaly(r.Context(), id)
	if err != nil {
		rw.Fault(err)
		return
	}
	rw.Success(a)
}

type custodyVerifyResponse struct {
	Verified int  `json:"verified_entries"`
	Intact   bool `json:"intact"`
}

// VerifyCustody handles GET /api/v1/custody/verify.
func (h *Handlers) VerifyCustody(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	n, err := h.deps.Custody.VerifyChain(r.Context())
	if err != nil {
		rw.Fault(err)
		return
	}
	rw.Success(custodyVerifyResponse{Verified: n, Intact: true})
}
