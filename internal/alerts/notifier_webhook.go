// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

// WebhookConfig configures the generic webhook notifier.
type WebhookConfig struct {
	URL       string            `koanf:"url"`
	Headers   map[string]string `koanf:"headers"`
	Timeout   time.Duration     `koanf:"timeout"`
	RateLimit time.Duration     `koanf:"rate_limit"`
}

// WebhookPayload is the JSON body posted for each created alert.
type WebhookPayload struct {
	Alert     *Alert    `json:"alert"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// WebhookNotifier posts created alerts to an HTTP endpoint.
type WebhookNotifier struct {
	client    *resty.Client
	url       string
	rateLimit time.Duration

	mu       sync.Mutex
	lastSent time.Time
}

// NewWebhookNotifier creates a notifier. RateLimit defaults to 500ms
// between deliveries.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 500 * time.Millisecond
	}
	c := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeaders(cfg.Headers).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
	return &WebhookNotifier{client: c, url: cfg.URL, rateLimit: cfg.RateLimit}
}

// Name implements Notifier.
func (n *WebhookNotifier) Name() string { return "webhook" }

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, alert *Alert) error {
	if n.url == "" {
		return nil
	}
	if err := n.wait(ctx); err != nil {
		return err
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(WebhookPayload{
			Alert:     alert,
			EventType: "alert.created",
			Timestamp: time.Now().UTC(),
			Source:    "shadowcheck",
		}).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("webhook delivery: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

func (n *WebhookNotifier) wait(ctx context.Context) error {
	n.mu.Lock()
	delay := n.rateLimit - time.Since(n.lastSent)
	if delay < 0 {
		delay = 0
	}
	n.lastSent = time.Now().Add(delay)
	n.mu.Unlock()

	if delay == 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
