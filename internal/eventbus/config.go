// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package eventbus

import (
	"time"

	"github.com/tomtom215/shadowcheck/internal/faults"
)

const (
	BackendMemory = "memory"
	BackendNATS   = "nats"
)

// Config configures the event bus.
type Config struct {
	Enabled       bool          `koanf:"enabled"`
	Backend       string        `koanf:"backend" validate:"omitempty,oneof=memory nats"`
	NATSURL       string        `koanf:"nats_url"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
	QueueGroup    string        `koanf:"queue_group"`
	DurableName   string        `koanf:"durable_name"`

	RetryMaxRetries      int           `koanf:"retry_max_retries"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `koanf:"retry_max_interval"`
	PoisonQueueTopic     string        `koanf:"poison_queue_topic"`

	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
}

// DefaultConfig returns an in-memory bus configuration.
func DefaultConfig() Config {
	return Config{
		Backend:              BackendMemory,
		NATSURL:              "nats://127.0.0.1:4222",
		MaxReconnects:        -1,
		ReconnectWait:        2 * time.Second,
		QueueGroup:           "shadowcheck",
		DurableName:          "shadowcheck",
		RetryMaxRetries:      3,
		RetryInitialInterval: 100 * time.Millisecond,
		RetryMaxInterval:     5 * time.Second,
		PoisonQueueTopic:     TopicPoison,
		BreakerMaxFailures:   5,
		BreakerTimeout:       30 * time.Second,
	}
}

// Validate checks the backend-specific settings.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendNATS:
		if c.NATSURL == "" {
			return faults.Invalid("eventbus.nats_url", "is required for the nats backend")
		}
	default:
		return faults.Invalid("eventbus.backend", "unknown backend %q", c.Backend)
	}
	if c.RetryMaxRetries < 0 {
		return faults.Invalid("eventbus.retry_max_retries", "must not be negative")
	}
	return nil
}
