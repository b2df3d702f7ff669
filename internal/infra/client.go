// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package infra

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"github.com/tomtom215/shadowcheck/internal/faults"
)

// ClientConfig configures the correlation REST client.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	APIKey     string
}

// HTTPClient queries the correlation service at GET /correlations/{deviceID}.
type HTTPClient struct {
	http *resty.Client
}

// NewHTTPClient builds a resty-backed client.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
	if cfg.APIKey != "" {
		c.SetHeader("X-API-Key", cfg.APIKey)
	}
	return &HTTPClient{http: c}
}

// Lookup implements Lookuper. A 404 means the device has no association.
func (c *HTTPClient) Lookup(ctx context.Context, deviceID string) (*Correlation, error) {
	var out Correlation
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/correlations/" + url.PathEscape(deviceID))
	if err != nil {
		return nil, faults.Unavailable("infra", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusNotFound:
		return &Correlation{DeviceID: deviceID}, nil
	default:
		return nil, faults.Unavailable("infra", fmt.Errorf("unexpected status %d", resp.StatusCode()))
	}

	if out.DeviceID == "" {
		out.DeviceID = deviceID
	}
	out.normalize()
	return &out, nil
}
