// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package faults defines the error classes shared by the detection core.
//
// Every error returned across a package boundary belongs to one of five
// classes, checked with errors.Is against the sentinels below:
//
//   - ErrValidation: malformed input, rejected before anything is persisted
//   - ErrNotFound: unknown alert or anomaly id, no side effects
//   - ErrConflict: benign idempotency outcome (already exists, lease held)
//   - ErrDependencyUnavailable: an enrichment source failed; callers
//     continue with that factor treated as zero
//   - ErrIntegrityViolation: the custody ledger failed re-verification;
//     never retried or downgraded
package faults

import (
	"errors"
	"fmt"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrIntegrityViolation    = errors.New("custody integrity violation")
)

// ValidationError describes a rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid is shorthand for &ValidationError{Field: field, Reason: fmt.Sprintf(...)}.
func Invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError names the kind and id of a missing entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a *NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// DependencyError wraps a failure of an external enrichment source.
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDependencyUnavailable) hold.
func (e *DependencyError) Is(target error) bool { return target == ErrDependencyUnavailable }

// Unavailable wraps err as a DependencyError for the named dependency.
func Unavailable(dependency string, err error) error {
	return &DependencyError{Dependency: dependency, Err: err}
}

// IsBenign reports whether err is an idempotency outcome that callers should
// report as a no-op rather than a failure.
func IsBenign(err error) bool {
	return errors.Is(err, ErrConflict)
}
