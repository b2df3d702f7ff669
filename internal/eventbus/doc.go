// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

/*
Package eventbus carries sightings and alerts over Watermill.

Two topics are used:

  - shadowcheck.sightings.observed: batches of sightings from collectors.
    The ingest consumer stores each batch through the sighting store.
  - shadowcheck.alerts.created: every alert the generator creates, for
    downstream dispatchers.

The bus runs on NATS JetStream in production and on an in-process
gochannel pub/sub in single-node deployments and tests. Publishes go
through a circuit breaker; the ingest router retries failed batches and
routes poison messages to shadowcheck.poison.

Usage:

	bus, err := eventbus.New(cfg, logging.NewWatermillAdapter())
	router, err := eventbus.NewIngestRouter(bus, store, cfg)
	go router.Run(ctx)

	feedSink := eventbus.NewSightingPublisher(bus)
	notifier := eventbus.NewAlertPublisher(bus)
*/
package eventbus
