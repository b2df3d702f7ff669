// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/shadowcheck/internal/logging"
)

const badgerKeyPrefix = "lease/"

// BadgerLocker stores leases as Badger entries with native TTL.
type BadgerLocker struct {
	db     *badger.DB
	holder string
	now    func() time.Time
}

// OpenBadger opens (or creates) a lease store at path. An empty path opens
// an in-memory store.
func OpenBadger(path, holder string) (*BadgerLocker, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.SyncWrites = true
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	logging.Info().Str("path", path).Str("holder", holder).Msg("Badger lease store opened")
	return &BadgerLocker{db: db, holder: holder, now: time.Now}, nil
}

// Acquire implements Locker.
func (b *BadgerLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	if err := validate(name, ttl); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := []byte(badgerKeyPrefix + name)
	l := &Lease{Name: name, Holder: b.holder, Token: newToken(), ExpiresAt: b.now().Add(ttl).UTC()}

	err := b.db.Update(func(txn *badger.Txn) error {
		current, err := readLease(txn, key)
		if err != nil {
			return err
		}
		if current != nil && b.now().Before(current.ExpiresAt) {
			return held(name, current.Holder)
		}
		data, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("marshal lease: %w", err)
		}
		return txn.SetEntry(badger.NewEntry(key, data).WithTTL(ttl))
	})
	if errors.Is(err, badger.ErrConflict) {
		return nil, held(name, "a concurrent acquirer")
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Release implements Locker.
func (b *BadgerLocker) Release(_ context.Context, l *Lease) error {
	key := []byte(badgerKeyPrefix + l.Name)
	err := b.db.Update(func(txn *badger.Txn) error {
		current, err := readLease(txn, key)
		if err != nil || current == nil || current.Token != l.Token {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrConflict) {
		return nil
	}
	return err
}

// Close closes the underlying database.
func (b *BadgerLocker) Close() error {
	return b.db.Close()
}

func readLease(txn *badger.Txn, key []byte) (*Lease, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lease: %w", err)
	}
	var l Lease
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &l) }); err != nil {
		return nil, fmt.Errorf("decode lease: %w", err)
	}
	return &l, nil
}
