// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

/*
Command server runs the ShadowCheck surveillance threat detection service.

It stores wireless sightings in DuckDB, runs the detection rules on a schedule,
scores and alerts on anomalies, tunes per-user thresholds from feedback, and
serves the HTTP API. Everything long-lived runs under a suture supervisor tree:

	shadowcheck
	├── data-layer
	│   ├── feed-sync            PostgreSQL sighting feed (POSTGRES_DSN)
	│   ├── detection-scheduler  detection passes every detection.interval
	│   └── tuning-scheduler     adaptive tuning every tuning.interval
	├── messaging-layer
	│   └── sighting-consumer    watermill router (eventbus.enabled)
	└── api-layer
	    └── http-server

# Configuration

Defaults, then an optional shadowcheck.yaml, then environment variables.
Any key can be set as SHADOWCHECK_<SECTION>__<KEY>; the common ones have
short names:

	HTTP_PORT=8473
	DUCKDB_PATH=/data/shadowcheck.duckdb
	LOG_LEVEL=info
	LOG_FORMAT=json
	POSTGRES_DSN=postgres://...      enables the sighting feed and device names
	NATS_URL=nats://nats:4222        enables the JetStream event bus
	REDIS_ADDR=redis:6379            tuning lease in Redis instead of Badger
	INFRA_URL=https://...            infrastructure correlation service
	ALERT_WEBHOOK_URL=https://...    alert webhook
	CORS_ORIGINS=https://a,https://b

# Shutdown

SIGINT or SIGTERM cancels the tree. The HTTP server drains within
server.shutdown_timeout, then DuckDB is checkpointed and closed.
*/
package main
