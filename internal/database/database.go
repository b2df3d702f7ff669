// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package database owns the DuckDB connection shared by the ShadowCheck
// stores. Each store package creates its own tables through InitSchema;
// this package opens the file, tunes the connection, runs those schema
// initializers in order and checkpoints on shutdown.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // register the duckdb driver

	"github.com/tomtom215/shadowcheck/internal/logging"
)

// SchemaInitializer is implemented by every DuckDB-backed store.
type SchemaInitializer interface {
	InitSchema(ctx context.Context) error
}

// Config holds the DuckDB connection settings.
type Config struct {
	Path      string
	MaxMemory string
	Threads   int
}

// DB wraps the DuckDB handle.
type DB struct {
	conn *sql.DB
	cfg  Config
}

// New opens (creating if needed) the DuckDB file named in cfg.
// An empty path opens an in-memory database.
func New(cfg Config) (*DB, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	} else {
		if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "1GB"
	}

	connStr := fmt.Sprintf("%s?threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		path, threads, maxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(runtime.NumCPU())
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	db := &DB{conn: conn, cfg: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.Ping(ctx); err != nil {
		CloseQuietly(conn)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logging.Info().Str("path", path).Int("threads", threads).Str("max_memory", maxMemory).Msg("DuckDB opened")
	return db, nil
}

// Conn returns the underlying handle for store constructors.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// InitSchemas runs each initializer in order and checkpoints once at the end
// so a crash right after startup does not replay schema DDL from the WAL.
func (db *DB) InitSchemas(ctx context.Context, stores ...SchemaInitializer) error {
	for _, s := range stores {
		if err := s.InitSchema(ctx); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	if err := db.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint after schema initialization")
	}
	return nil
}

// Checkpoint flushes the DuckDB WAL into the main file.
func (db *DB) Checkpoint(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// Ping checks the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// Close checkpoints and closes the handle.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
	}
	cancel()
	return db.conn.Close()
}
