// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

/*
Package config loads ShadowCheck's process configuration.

Configuration is layered with koanf, each layer overriding the previous:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file: $CONFIG_PATH, ./config.yaml or
    /etc/shadowcheck/config.yaml
 3. Environment variables

Environment variables come in two forms. Common settings have short names:

  - HTTP_HOST, HTTP_PORT: API listen address (default 0.0.0.0:8473)
  - DUCKDB_PATH: DuckDB file (default /data/shadowcheck.duckdb)
  - LOG_LEVEL, LOG_FORMAT: zerolog level and json|console
  - POSTGRES_DSN: import-layer PostgreSQL DSN; setting it enables the feed
  - NATS_URL: NATS server; setting it selects the nats event bus backend
  - REDIS_ADDR: Redis address; setting it selects the redis lease backend
  - INFRA_URL: correlation service base URL; setting it enables lookups
  - ALERT_WEBHOOK_URL: webhook notified on every created alert
  - CORS_ORIGINS: comma-separated allowed origins

Every other key is reachable as SHADOWCHECK_<SECTION>__<KEY>, with a double
underscore separating nesting levels:

	SHADOWCHECK_TUNING__STEP=0.02                        -> tuning.step
	SHADOWCHECK_DETECTION__DEFAULTS__THRESHOLDS__AERIAL_PATTERN=0.65

Detection defaults only seed a user's DetectionConfig the first time it is
created. After that the stored per-user config is authoritative and changes
only through UpdateConfig or adaptive tuning.
*/
package config
