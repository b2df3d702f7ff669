// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package infra

import (
	"context"
	"time"

	"github.com/tomtom215/shadowcheck/internal/cache"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

// CachedClient memoizes successful lookups for a TTL. Failures are not
// cached, so the next pass retries them.
type CachedClient struct {
	next  Lookuper
	cache *cache.Cache
}

// NewCachedClient wraps next with a TTL cache.
func NewCachedClient(next Lookuper, ttl time.Duration) *CachedClient {
	return &CachedClient{next: next, cache: cache.New(ttl)}
}

// Lookup implements Lookuper.
func (c *CachedClient) Lookup(ctx context.Context, deviceID string) (*Correlation, error) {
	if v, ok := c.cache.Get(deviceID); ok {
		metrics.RecordInfraLookup("cached")
		return v.(*Correlation), nil
	}

	corr, err := c.next.Lookup(ctx, deviceID)
	if err != nil {
		metrics.RecordInfraLookup("error")
		return nil, err
	}
	if len(corr.Matches) > 0 {
		metrics.RecordInfraLookup("hit")
	} else {
		metrics.RecordInfraLookup("miss")
	}
	c.cache.Set(deviceID, corr)
	return corr, nil
}

// Close stops the cache sweeper.
func (c *CachedClient) Close() {
	c.cache.Close()
}
