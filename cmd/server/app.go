// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/shadowcheck/internal/alerts"
	"github.com/tomtom215/shadowcheck/internal/api"
	"github.com/tomtom215/shadowcheck/internal/config"
	"github.com/tomtom215/shadowcheck/internal/custody"
	"github.com/tomtom215/shadowcheck/internal/database"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/eventbus"
	"github.com/tomtom215/shadowcheck/internal/evidence"
	"github.com/tomtom215/shadowcheck/internal/feed"
	"github.com/tomtom215/shadowcheck/internal/infra"
	"github.com/tomtom215/shadowcheck/internal/lease"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/safezone"
	"github.com/tomtom215/shadowcheck/internal/scoring"
	"github.com/tomtom215/shadowcheck/internal/supervisor"
	"github.com/tomtom215/shadowcheck/internal/supervisor/services"
	"github.com/tomtom215/shadowcheck/internal/threat"
	"github.com/tomtom215/shadowcheck/internal/tuning"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app holds every long-lived component. closers run in reverse order.
type app struct {
	cfg     *config.Config
	db      *database.DB
	threat  *threat.Service
	handler http.Handler
	tree    *supervisor.SupervisorTree
	closers []io.Closer
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func (a *app) onClose(c io.Closer) { a.closers = append(a.closers, c) }

// Close releases resources in reverse acquisition order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// newApp wires the application from cfg. On error everything opened so far
// is closed.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.db, err = database.New(cfg.DatabaseSettings())
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	a.onClose(a.db)
	conn := a.db.Conn()

	detections := detection.NewDuckDBStore(conn)
	alertStore := alerts.NewDuckDBStore(conn)
	ledger := custody.NewLedger(conn)
	zones := safezone.NewRegistry(conn)
	history := tuning.NewDuckDBStore(conn)
	checkpoints := feed.NewCheckpointStore(conn)
	if err := a.db.InitSchemas(ctx, detections, alertStore, ledger, zones, history, checkpoints); err != nil {
		return nil, err
	}

	locker, err := lease.New(ctx, cfg.Lease)
	if err != nil {
		return nil, fmt.Errorf("open lease store: %w", err)
	}
	a.onClose(locker)

	correlator := a.buildCorrelator()

	var pg *sql.DB
	var classifier *feed.PostgresClassifier
	if cfg.Postgres.Enabled {
		pg, err = feed.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		a.onClose(pg)
		classifier, err = feed.NewPostgresClassifier(pg, cfg.Postgres.NetworkTable)
		if err != nil {
			return nil, err
		}
	}

	var bus *eventbus.Bus
	if cfg.EventBus.Enabled {
		bus, err = eventbus.New(cfg.EventBus, logging.NewWatermillAdapter())
		if err != nil {
			return nil, fmt.Errorf("open event bus: %w", err)
		}
		a.onClose(bus)
	}

	var notifiers []alerts.Notifier
	if cfg.Notify.Webhook.URL != "" {
		notifiers = append(notifiers, alerts.NewWebhookNotifier(cfg.Notify.Webhook))
	}
	if bus != nil {
		notifiers = append(notifiers, eventbus.NewAlertPublisher(bus))
	}

	genOpts := []alerts.GeneratorOption{alerts.WithZones(zones), alerts.WithNotifiers(notifiers...)}
	var exportClassifier evidence.Classifier
	if classifier != nil {
		genOpts = append(genOpts, alerts.WithDeviceNamer(classifier))
		exportClassifier = classifier
	}

	defaults := cfg.Detection.Defaults
	a.threat = threat.New(threat.Deps{
		Sightings: detections,
		Configs:   detections,
		Detector:  detection.NewDetector(detection.DefaultEngine(cfg.Detection.Workers, correlator), detections, ledger),
		Generator: alerts.NewGenerator(alertStore, scoring.NewScorer(cfg.Scoring, detections, correlator), ledger,
			cfg.Scoring.Alert, genOpts...),
		Feedback: alerts.NewLifecycle(alertStore, detections, detections, ledger),
		Tuner:    tuning.NewTuner(cfg.Tuning, alertStore, detections, history, locker, defaults),
		Exporter: evidence.NewExporter(alertStore, detections, exportClassifier, ledger, cfg.Evidence.DefaultActor),
		Defaults: defaults,
	})

	a.handler = api.NewRouter(api.NewHandlers(api.Deps{
		Threat:            a.threat,
		Alerts:            alertStore,
		Anomalies:         detections,
		Zones:             zones,
		Custody:           ledger,
		Health:            a.healthChecks(pg, bus),
		DefaultWindowDays: cfg.Detection.WindowDays,
		Version:           version,
	}), api.NewChiMiddleware(&api.ChiMiddlewareConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		CORSMaxAge:         86400,
		RateLimitRequests:  cfg.Server.RateLimitRequests,
		RateLimitWindow:    cfg.Server.RateLimitWindow,
		RateLimitDisabled:  cfg.Server.RateLimitRequests == 0,
	}))

	a.tree, err = supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return nil, err
	}
	if err := a.addServices(pg, checkpoints, detections, bus); err != nil {
		return nil, err
	}
	return a, nil
}

// buildCorrelator layers the REST client behind a breaker and a TTL cache.
// Without a configured service every device is uncorrelated.
func (a *app) buildCorrelator() infra.Lookuper {
	cfg := a.cfg
	if !cfg.Infra.Enabled {
		return infra.Static{}
	}
	breaker := infra.NewBreakerClient(infra.NewHTTPClient(cfg.InfraClientConfig()), cfg.InfraBreakerConfig())
	cached := infra.NewCachedClient(breaker, cfg.Infra.CacheTTL)
	a.onClose(closerFunc(func() error { cached.Close(); return nil }))
	logging.Info().Str("url", cfg.Infra.BaseURL).Dur("cache_ttl", cfg.Infra.CacheTTL).Msg("Infrastructure correlation enabled")
	return cached
}

func (a *app) healthChecks(pg *sql.DB, bus *eventbus.Bus) []api.HealthCheck {
	checks := []api.HealthCheck{{Name: "duckdb", Check: a.db.Ping}}
	if pg != nil {
		checks = append(checks, api.HealthCheck{Name: "postgres", Check: pg.PingContext})
	}
	if bus != nil {
		checks = append(checks, api.HealthCheck{Name: "eventbus", Check: func(context.Context) error {
			if state := bus.BreakerState(); state == gobreaker.StateOpen.String() {
				return fmt.Errorf("publish circuit %s", state)
			}
			return nil
		}})
	}
	return checks
}

// addServices registers the supervised background work.
func (a *app) addServices(pg *sql.DB, checkpoints *feed.CheckpointStore, store *detection.DuckDBStore, bus *eventbus.Bus) error {
	cfg := a.cfg

	if pg != nil {
		source, err := feed.NewPostgresSource(pg, cfg.Postgres.LocationTable)
		if err != nil {
			return err
		}
		// With a bus, sightings take the same path as externally streamed ones.
		var sink feed.Sink = store
		if bus != nil {
			sink = eventbus.NewSightingPublisher(bus, feed.SourceName)
		}
		svc, err := services.NewFeedSyncService(feed.NewSyncer(source, sink, checkpoints, cfg.Postgres.BatchSize), cfg.Postgres.PollInterval)
		if err != nil {
			return err
		}
		a.tree.AddDataService(svc)
	}

	if bus != nil {
		a.tree.AddMessagingService(services.NewSightingConsumerService(func() (services.Router, error) {
			return eventbus.NewIngestRouter(bus, store, cfg.EventBus)
		}))
	}

	if cfg.Detection.Enabled {
		svc, err := services.NewDetectionService(a.threat, cfg.Detection.Interval, cfg.Detection.WindowDays, cfg.Detection.RunOnStart)
		if err != nil {
			return err
		}
		a.tree.AddDataService(svc)
	}

	if cfg.Tuning.Enabled {
		svc, err := services.NewTuningService(a.threat, cfg.Tuning.Interval)
		if err != nil {
			return err
		}
		a.tree.AddDataService(svc)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	a.tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	return nil
}
