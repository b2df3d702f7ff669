// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/shadowcheck/internal/faults"
	"github.com/tomtom215/shadowcheck/internal/logging"
)

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("event bus is closed")

// Bus owns the Watermill publisher and subscriber for one backend.
type Bus struct {
	pub     message.Publisher
	sub     message.Subscriber
	cb      *gobreaker.CircuitBreaker[struct{}]
	logger  watermill.LoggerAdapter
	backend string

	mu     sync.RWMutex
	closed bool
}

// New connects the configured backend.
func New(cfg Config, logger watermill.LoggerAdapter) (*Bus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewWatermillAdapter()
	}

	b := &Bus{logger: logger, backend: cfg.Backend}
	switch cfg.Backend {
	case BackendNATS:
		pub, sub, err := newNATS(cfg, logger)
		if err != nil {
			return nil, err
		}
		b.pub, b.sub = pub, sub
	default:
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		b.pub, b.sub = ch, ch
	}

	b.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "eventbus-publish",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.BreakerMaxFailures > 0 && counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state transition")
		},
	})

	logging.Info().Str("backend", cfg.Backend).Msg("Event bus started")
	return b, nil
}

func natsOptions(cfg Config, logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
}

func newNATS(cfg Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	opts := natsOptions(cfg, logger)

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.NATSURL,
		NatsOptions: opts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
		},
	}, logger)
	if err != nil {
		return nil, nil, faults.Unavailable("nats", fmt.Errorf("create publisher: %w", err))
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.NATSURL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: 1,
		NatsOptions:      opts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			DurablePrefix: cfg.DurableName,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.DeliverAll(),
			},
		},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, nil, faults.Unavailable("nats", fmt.Errorf("create subscriber: %w", err))
	}
	return pub, sub, nil
}

// Publish sends msgs to topic through the circuit breaker.
func (b *Bus) Publish(_ context.Context, topic string, msgs ...*message.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	if b.backend == BackendNATS {
		for _, m := range msgs {
			if m.Metadata.Get(natsgo.MsgIdHdr) == "" {
				m.Metadata.Set(natsgo.MsgIdHdr, m.UUID)
			}
		}
	}

	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.pub.Publish(topic, msgs...)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return faults.Unavailable("eventbus", err)
	}
	return err
}

// Subscriber exposes the Watermill subscriber for routers.
func (b *Bus) Subscriber() message.Subscriber { return b.sub }

// Publisher exposes the Watermill publisher, bypassing the breaker. The
// router uses it for the poison queue.
func (b *Bus) Publisher() message.Publisher { return b.pub }

// Logger returns the bus's Watermill logger.
func (b *Bus) Logger() watermill.LoggerAdapter { return b.logger }

// BreakerState reports the publish breaker state for health checks.
func (b *Bus) BreakerState() string { return b.cb.State().String() }

// Close shuts down the publisher and subscriber.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	err := b.pub.Close()
	if b.backend == BackendNATS {
		err = errors.Join(err, b.sub.Close())
	}
	return err
}
