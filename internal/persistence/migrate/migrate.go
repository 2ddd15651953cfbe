// SPDX-License-Identifier: Apache-2.0

// Package migrate applies the embedded SQL files of one dialect in name order
// and records each one in schema_migrations.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	embeddedmigrations "github.com/adiadia/syrphid-receiver/migrations"
)

// RequiredTables must all exist before the receiver accepts messages.
var RequiredTables = []string{
	"events",
	"network_requests",
	"network_responses",
	"user_interactions",
	"mouse_event_details",
	"key_event_details",
	"touch_point_details",
}

// Conn is the handle a run executes on. *sql.DB, *sql.Conn and sqlmock
// databases all satisfy it.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type ledger struct {
	create  string
	applied string
	record  string
}

var ledgers = map[string]ledger{
	embeddedmigrations.Postgres: {
		create: `CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		applied: `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`,
		record:  `INSERT INTO schema_migrations (filename) VALUES ($1)`,
	},
	embeddedmigrations.SQLite: {
		create: `CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`,
		applied: `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = ?)`,
		record:  `INSERT INTO schema_migrations (filename) VALUES (?)`,
	},
}

// Summary counts the files of one run.
type Summary struct {
	Applied int
	Skipped int
}

// Run applies every pending migration of dialect on conn. Each file runs in
// its own transaction together with its schema_migrations row. Callers that
// share a database across processes hold their own lock around Run.
func Run(ctx context.Context, conn Conn, dialect string, logger *slog.Logger) (Summary, error) {
	if conn == nil {
		return Summary{}, errors.New("nil migration connection")
	}
	if logger == nil {
		logger = slog.Default()
	}
	l, ok := ledgers[dialect]
	if !ok {
		return Summary{}, fmt.Errorf("no migration ledger for dialect %q", dialect)
	}

	files, err := embeddedmigrations.Ordered(dialect)
	if err != nil {
		return Summary{}, fmt.Errorf("load embedded migrations: %w", err)
	}
	if len(files) == 0 {
		return Summary{}, errors.New("no embedded migrations found")
	}

	started := time.Now()
	logger.Info("schema bootstrap starting", "dialect", dialect, "files", len(files))

	if _, err := conn.ExecContext(ctx, l.create); err != nil {
		return Summary{}, fmt.Errorf("create schema_migrations table: %w", err)
	}

	var sum Summary
	for _, file := range files {
		var done bool
		if err := conn.QueryRowContext(ctx, l.applied, file.Name).Scan(&done); err != nil {
			return sum, fmt.Errorf("check migration %s: %w", file.Name, err)
		}
		if done {
			sum.Skipped++
			continue
		}

		if err := apply(ctx, conn, l, file); err != nil {
			return sum, fmt.Errorf("apply migration %s: %w", file.Name, err)
		}
		logger.Info("migration applied", "dialect", dialect, "file", file.Name)
		sum.Applied++
	}

	logger.Info("schema bootstrap complete",
		"dialect", dialect,
		"applied", sum.Applied,
		"skipped", sum.Skipped,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return sum, nil
}

func apply(ctx context.Context, conn Conn, l ledger, file embeddedmigrations.File) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, file.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, l.record, file.Name); err != nil {
		return err
	}
	return tx.Commit()
}
