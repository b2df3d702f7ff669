// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/shadowcheck/internal/faults"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/validation"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *APIMeta    `json:"meta,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIMeta is attached to every response.
type APIMeta struct {
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Count      *int      `json:"count,omitempty"`
}

// Error codes.
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeIntegrity          = "INTEGRITY_VIOLATION"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// ResponseWriter writes enveloped responses for one request.
type ResponseWriter struct {
	w         http.ResponseWriter
	r         *http.Request
	startTime time.Time
}

// NewResponseWriter starts the duration clock for r.
func NewResponseWriter(w http.ResponseWriter, r *http.Request) *ResponseWriter {
	return &ResponseWriter{w: w, r: r, startTime: time.Now()}
}

func (rw *ResponseWriter) meta() *APIMeta {
	return &APIMeta{
		RequestID:  logging.RequestIDFromContext(rw.r.Context()),
		Timestamp:  time.Now().UTC(),
		DurationMs: time.Since(rw.startTime).Milliseconds(),
	}
}

// Success writes 200 with data.
func (rw *ResponseWriter) Success(data interface{}) {
	rw.respond(http.StatusOK, data, nil)
}

// List writes 200 with a slice and its length.
func (rw *ResponseWriter) List(data interface{}, count int) {
	m := rw.meta()
	m.Count = &count
	rw.writeJSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: m})
}

// Created writes 201 with data.
func (rw *ResponseWriter) Created(data interface{}) {
	rw.respond(http.StatusCreated, data, nil)
}

// NoContent writes 204.
func (rw *ResponseWriter) NoContent() {
	rw.w.WriteHeader(http.StatusNoContent)
}

func (rw *ResponseWriter) respond(status int, data interface{}, apiErr *APIError) {
	rw.writeJSON(status, APIResponse{Success: apiErr == nil, Data: data, Error: apiErr, Meta: rw.meta()})
}

// Error writes an error envelope.
func (rw *ResponseWriter) Error(status int, code, message string, details interface{}) {
	rw.respond(status, nil, &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: logging.RequestIDFromContext(rw.r.Context()),
	})
}

// BadRequest writes 400 BAD_REQUEST.
func (rw *ResponseWriter) BadRequest(message string) {
	rw.Error(http.StatusBadRequest, ErrCodeBadRequest, message, nil)
}

// Fault maps a domain error onto a status code and envelope.
func (rw *ResponseWriter) Fault(err error) {
	var verrs validation.Errors
	var verr *faults.ValidationError
	switch {
	case errors.As(err, &verrs):
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, "Request validation failed", []validation.FieldError(verrs))
	case errors.As(err, &verr):
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, verr.Error(),
			[]validation.FieldError{{Field: verr.Field, Message: verr.Reason}})
	case errors.Is(err, faults.ErrNotFound):
		rw.Error(http.StatusNotFound, ErrCodeNotFound, err.Error(), nil)
	case errors.Is(err, faults.ErrConflict):
		rw.Error(http.StatusConflict, ErrCodeConflict, err.Error(), nil)
	case errors.Is(err, faults.ErrDependencyUnavailable):
		logging.Ctx(rw.r.Context()).Warn().Err(err).Msg("Dependency unavailable")
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "A dependency is unavailable, retry later", nil)
	case errors.Is(err, faults.ErrIntegrityViolation):
		logging.Ctx(rw.r.Context()).Error().Err(err).Msg("Integrity violation")
		rw.Error(http.StatusInternalServerError, ErrCodeIntegrity, "Custody chain failed verification", nil)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Request cancelled", nil)
	default:
		logging.Ctx(rw.r.Context()).Error().Err(err).Str("path", rw.r.URL.Path).Msg("Request failed")
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, "Internal server error", nil)
	}
}

func (rw *ResponseWriter) writeJSON(status int, data interface{}) {
	rw.w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.w.WriteHeader(status)
	if err := json.NewEncoder(rw.w).Encode(data); err != nil {
		logging.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

const maxBodyBytes = 1 << 20

// decodeBody reads a JSON body into dst and validates it.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	return decode(w, r, dst, false)
}

// decodeOptionalBody is decodeBody for endpoints where an empty body means
// all defaults.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	return decode(w, r, dst, true)
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			if optional {
				return validation.ValidateStruct(dst)
			}
			return faults.Invalid("body", "request body is required")
		}
		return faults.Invalid("body", "malformed JSON: %v", err)
	}
	return validation.ValidateStruct(dst)
}
