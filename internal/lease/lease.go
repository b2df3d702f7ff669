// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package lease provides named, expiring run-locks for singleton jobs.
//
// A lease is held by one holder until it is released or its TTL runs out.
// Acquiring a lease that is held elsewhere returns faults.ErrConflict, which
// callers treat as "another instance is already running this job".
//
// Two backends are available: Badger for a single instance with a local data
// directory, and Redis for deployments where several instances share the
// schedule.
package lease

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tomtom215/shadowcheck/internal/faults"
)

// Lease is a held run-lock.
type Lease struct {
	Name      string    `json:"name"`
	Holder    string    `json:"holder"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Locker acquires and releases leases.
type Locker interface {
	// Acquire takes the named lease for ttl. It returns an error wrapping
	// faults.ErrConflict when the lease is held by someone else.
	Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error)
	// Release gives the lease up. Releasing a lease that expired or was
	// taken over is not an error.
	Release(ctx context.Context, l *Lease) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend       string `koanf:"backend" validate:"oneof=badger redis"`
	BadgerPath    string `koanf:"badger_path"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db" validate:"gte=0"`
	Holder        string `koanf:"holder"`
}

// New opens the configured backend.
func New(ctx context.Context, cfg Config) (Locker, error) {
	holder := cfg.Holder
	if holder == "" {
		holder = DefaultHolder()
	}
	switch strings.ToLower(cfg.Backend) {
	case "", "badger":
		return OpenBadger(cfg.BadgerPath, holder)
	case "redis":
		return NewRedis(ctx, RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}, holder)
	default:
		return nil, faults.Invalid("lease.backend", "unknown backend %q", cfg.Backend)
	}
}

// DefaultHolder identifies this process as hostname:pid.
func DefaultHolder() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

func held(name, holder string) error {
	return fmt.Errorf("lease %q held by %s: %w", name, holder, faults.ErrConflict)
}

func newToken() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

func validate(name string, ttl time.Duration) error {
	if name == "" {
		return faults.Invalid("lease.name", "is required")
	}
	if ttl <= 0 {
		return faults.Invalid("lease.ttl", "must be positive")
	}
	return nil
}
