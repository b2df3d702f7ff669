// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/faults"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/validation"
)

// Validate checks struct tags first, then the cross-field rules of each
// section.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	checks := []func() error{
		c.validateLogging,
		c.validateDetection,
		c.Scoring.Validate,
		c.validateTuning,
		c.validateLease,
		c.validateInfra,
		c.validatePostgres,
		c.EventBus.Validate,
		c.validateNotify,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return faults.Invalid("logging.level", "unknown level %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateDetection() error {
	if c.Detection.Enabled && c.Detection.Interval <= 0 {
		return faults.Invalid("detection.interval", "must be positive when detection is enabled")
	}
	seed := detection.NewDetectionConfig("defaults", c.Detection.Defaults)
	if err := seed.Validate(); err != nil {
		return fmt.Errorf("detection.defaults: %w", err)
	}
	return nil
}

func (c *Config) validateTuning() error {
	if err := c.Tuning.Validate(); err != nil {
		return err
	}
	if c.Tuning.Enabled && c.Tuning.Interval <= 0 {
		return faults.Invalid("tuning.interval", "must be positive when tuning is enabled")
	}
	return nil
}

func (c *Config) validateLease() error {
	switch strings.ToLower(c.Lease.Backend) {
	case "", "badger":
	case "redis":
		if c.Lease.RedisAddr == "" {
			return faults.Invalid("lease.redis_addr", "is required for the redis backend")
		}
	default:
		return faults.Invalid("lease.backend", "unknown backend %q", c.Lease.Backend)
	}
	return nil
}

func (c *Config) validateInfra() error {
	if !c.Infra.Enabled {
		return nil
	}
	return validateHTTPURL(c.Infra.BaseURL, "infra.base_url")
}

func (c *Config) validatePostgres() error {
	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		return faults.Invalid("postgres.dsn", "is required when the feed is enabled")
	}
	if c.Postgres.Enabled && c.Postgres.PollInterval <= 0 {
		return faults.Invalid("postgres.poll_interval", "must be positive")
	}
	return nil
}

func (c *Config) validateNotify() error {
	if c.Notify.Webhook.URL == "" {
		return nil
	}
	return validateHTTPURL(c.Notify.Webhook.URL, "notify.webhook.url")
}

func validateHTTPURL(raw, field string) error {
	if raw == "" {
		return faults.Invalid(field, "is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return faults.Invalid(field, "is not a valid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return faults.Invalid(field, "must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return faults.Invalid(field, "must include a host")
	}
	return nil
}
