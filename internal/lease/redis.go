// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package lease

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/shadowcheck/internal/logging"
)

const redisKeyPrefix = "shadowcheck:lease:"

// releaseScript deletes the key only if it still holds our value.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOptions selects the Redis server.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisLocker stores leases with SET NX PX.
type RedisLocker struct {
	client *redis.Client
	holder string
	now    func() time.Time
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions, holder string) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       opts.Addr,
		Password:   opts.Password,
		DB:         opts.DB,
		MaxRetries: 3,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logging.Info().Str("addr", opts.Addr).Str("holder", holder).Msg("Redis lease store connected")
	return NewRedisWithClient(client, holder), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, holder string) *RedisLocker {
	return &RedisLocker{client: client, holder: holder, now: time.Now}
}

// Acquire implements Locker.
func (r *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	if err := validate(name, ttl); err != nil {
		return nil, err
	}
	l := &Lease{Name: name, Holder: r.holder, Token: newToken(), ExpiresAt: r.now().Add(ttl).UTC()}

	key := redisKeyPrefix + name
	ok, err := r.client.SetNX(ctx, key, redisValue(l), ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %q: %w", name, err)
	}
	if !ok {
		holder := "another instance"
		if raw, err := r.client.Get(ctx, key).Result(); err == nil {
			if _, h, found := strings.Cut(raw, " "); found && h != "" {
				holder = h
			}
		}
		return nil, held(name, holder)
	}
	return l, nil
}

// Release implements Locker.
func (r *RedisLocker) Release(ctx context.Context, l *Lease) error {
	if err := releaseScript.Run(ctx, r.client, []string{redisKeyPrefix + l.Name}, redisValue(l)).Err(); err != nil {
		return fmt.Errorf("release lease %q: %w", l.Name, err)
	}
	return nil
}

// Close closes the client.
func (r *RedisLocker) Close() error {
	return r.client.Close()
}

// redisValue is "<token> <holder>".
func redisValue(l *Lease) string {
	return l.Token + " " + l.Holder
}
