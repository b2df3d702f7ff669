// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

/*
Package services adapts ShadowCheck components to suture's Serve(ctx) model.

	HTTPServerService        *http.Server with graceful shutdown
	PeriodicService          ticker loop around a func(ctx) error
	DetectionService         scheduled detection passes
	TuningService            scheduled adaptive threshold tuning
	FeedSyncService          PostgreSQL sighting feed polling
	SightingConsumerService  event bus ingest router

A periodic task that fails is logged and retried on the next tick; only a
panic or a failing server escalates to the supervisor. Benign outcomes such
as a tuning lease held by another instance are logged at debug level.
*/
package services
