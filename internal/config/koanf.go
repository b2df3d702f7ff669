// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/shadowcheck/internal/alerts"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/eventbus"
	"github.com/tomtom215/shadowcheck/internal/feed"
	"github.com/tomtom215/shadowcheck/internal/lease"
	"github.com/tomtom215/shadowcheck/internal/scoring"
	"github.com/tomtom215/shadowcheck/internal/tuning"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/shadowcheck/config.yaml",
	"/etc/shadowcheck/config.yml",
}

// ConfigPathEnvVar names an explicit config file.
const ConfigPathEnvVar = "CONFIG_PATH"

// EnvPrefix marks generic nested environment keys.
const EnvPrefix = "SHADOWCHECK_"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8473,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			CORSOrigins:       []string{"http://localhost:3000"},
			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
		},
		Database: DatabaseConfig{
			Path:      "/data/shadowcheck.duckdb",
			MaxMemory: "1GB",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Detection: DetectionConfig{
			Enabled:    true,
			Interval:   15 * time.Minute,
			WindowDays: 7,
			RunOnStart: true,
			Defaults:   detection.DefaultDefaults(),
		},
		Scoring:  scoring.DefaultConfig(),
		Tuning:   tuning.DefaultConfig(),
		Lease:    lease.Config{Backend: "badger", BadgerPath: "/data/leases"},
		Infra: InfraConfig{
			Timeout:            5 * time.Second,
			RetryCount:         2,
			CacheTTL:           6 * time.Hour,
			BreakerMaxFailures: 5,
			BreakerTimeout:     time.Minute,
		},
		Postgres: feed.DefaultConfig(),
		EventBus: eventbus.DefaultConfig(),
		Evidence: EvidenceConfig{DefaultActor: "system:exporter"},
		Notify: NotifyConfig{
			Webhook: alerts.WebhookConfig{Timeout: 10 * time.Second, RateLimit: time.Second},
		},
	}
}

// Load reads defaults, the optional config file and the environment, then
// validates the result.
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := applyImplicitToggles(k); err != nil {
		return nil, err
	}
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var envMappings = map[string]string{
	"http_host":             "server.host",
	"http_port":             "server.port",
	"cors_origins":          "server.cors_origins",
	"duckdb_path":           "database.path",
	"duckdb_max_memory":     "database.max_memory",
	"log_level":             "logging.level",
	"log_format":            "logging.format",
	"postgres_dsn":          "postgres.dsn",
	"nats_url":              "eventbus.nats_url",
	"redis_addr":            "lease.redis_addr",
	"redis_password":        "lease.redis_password",
	"infra_url":             "infra.base_url",
	"infra_api_key":         "infra.api_key",
	"alert_webhook_url":     "notify.webhook.url",
	"detection_window_days": "detection.window_days",
}

// envTransformFunc maps an environment variable name to a koanf path, or
// "" to ignore it.
func envTransformFunc(key string) string {
	if upper := strings.ToUpper(key); strings.HasPrefix(upper, EnvPrefix) {
		rest := strings.ToLower(strings.TrimPrefix(upper, EnvPrefix))
		return strings.ReplaceAll(rest, "__", ".")
	}
	return envMappings[strings.ToLower(key)]
}

// applyImplicitToggles turns on the components whose endpoint was supplied
// through the short environment names.
func applyImplicitToggles(k *koanf.Koanf) error {
	toggles := []struct {
		env  string
		path string
		val  any
	}{
		{"POSTGRES_DSN", "postgres.enabled", true},
		{"NATS_URL", "eventbus.enabled", true},
		{"NATS_URL", "eventbus.backend", eventbus.BackendNATS},
		{"REDIS_ADDR", "lease.backend", "redis"},
		{"INFRA_URL", "infra.enabled", true},
	}
	for _, t := range toggles {
		if os.Getenv(t.env) == "" {
			continue
		}
		if err := k.Set(t.path, t.val); err != nil {
			return fmt.Errorf("failed to set %s: %w", t.path, err)
		}
	}
	return nil
}

var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields splits comma-separated environment values for slice
// fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
