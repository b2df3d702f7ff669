// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/tomtom215/shadowcheck/internal/alerts"
	"github.com/tomtom215/shadowcheck/internal/database"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/eventbus"
	"github.com/tomtom215/shadowcheck/internal/feed"
	"github.com/tomtom215/shadowcheck/internal/infra"
	"github.com/tomtom215/shadowcheck/internal/lease"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/scoring"
	"github.com/tomtom215/shadowcheck/internal/tuning"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Logging   LoggingConfig   `koanf:"logging"`
	Detection DetectionConfig `koanf:"detection"`
	Scoring   scoring.Config  `koanf:"scoring"`
	Tuning    tuning.Config   `koanf:"tuning"`
	Lease     lease.Config    `koanf:"lease"`
	Infra     InfraConfig     `koanf:"infra"`
	Postgres  feed.Config     `koanf:"postgres"`
	EventBus  eventbus.Config `koanf:"eventbus"`
	Evidence  EvidenceConfig  `koanf:"evidence"`
	Notify    NotifyConfig    `koanf:"notify"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port" validate:"gte=1,lte=65535"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds the DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"gte=0"`
}

// LoggingConfig holds the zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// DetectionConfig holds the scheduled detection pass and the seed values
// for new users' detection configs.
type DetectionConfig struct {
	Enabled    bool               `koanf:"enabled"`
	Interval   time.Duration      `koanf:"interval"`
	WindowDays int                `koanf:"window_days" validate:"gte=1"`
	Workers    int                `koanf:"workers" validate:"gte=0"`
	RunOnStart bool               `koanf:"run_on_start"`
	Defaults   detection.Defaults `koanf:"defaults"`
}

// InfraConfig configures the infrastructure correlation client.
type InfraConfig struct {
	Enabled            bool          `koanf:"enabled"`
	BaseURL            string        `koanf:"base_url"`
	APIKey             string        `koanf:"api_key"`
	Timeout            time.Duration `koanf:"timeout"`
	RetryCount         int           `koanf:"retry_count" validate:"gte=0"`
	CacheTTL           time.Duration `koanf:"cache_ttl"`
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
}

// EvidenceConfig configures evidence export.
type EvidenceConfig struct {
	DefaultActor string `koanf:"default_actor"`
}

// NotifyConfig configures alert notifications.
type NotifyConfig struct {
	Webhook alerts.WebhookConfig `koanf:"webhook"`
}

// DatabaseSettings converts to the database package's settings.
func (c *Config) DatabaseSettings() database.Config {
	return database.Config{Path: c.Database.Path, MaxMemory: c.Database.MaxMemory, Threads: c.Database.Threads}
}

// LoggingSettings converts to the logging package's settings.
func (c *Config) LoggingSettings() logging.Config {
	return logging.Config{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		Caller:    c.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	}
}

// InfraClientConfig converts to the infra client settings.
func (c *Config) InfraClientConfig() infra.ClientConfig {
	return infra.ClientConfig{
		BaseURL:    c.Infra.BaseURL,
		Timeout:    c.Infra.Timeout,
		RetryCount: c.Infra.RetryCount,
		APIKey:     c.Infra.APIKey,
	}
}

// InfraBreakerConfig converts to the infra breaker settings.
func (c *Config) InfraBreakerConfig() infra.BreakerConfig {
	return infra.BreakerConfig{MaxFailures: c.Infra.BreakerMaxFailures, OpenTimeout: c.Infra.BreakerTimeout}
}
