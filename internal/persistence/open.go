// SPDX-License-Identifier: Apache-2.0

// Package persistence selects and opens the storage backend named by a
// database URL.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adiadia/syrphid-receiver/internal/persistence/postgres"
	"github.com/adiadia/syrphid-receiver/internal/persistence/sqlite"
	"github.com/adiadia/syrphid-receiver/internal/repository"
)

// Options tune the backend. Zero values use defaults.
type Options struct {
	MaxConns int32
}

// Database is an open backend together with its schema bootstrap.
type Database struct {
	DB      *sql.DB
	Dialect repository.Dialect

	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Target is the parsed form of a database URL.
type Target struct {
	Dialect repository.Dialect
	DSN     string
}

// ParseURL maps postgres://, postgresql://, sqlite:// and file: URLs onto a
// dialect. A bare path ending in .db or .sqlite is taken as SQLite.
func ParseURL(databaseURL string) (Target, error) {
	raw := strings.TrimSpace(databaseURL)
	lower := strings.ToLower(raw)

	switch {
	case raw == "":
		return Target{}, errors.New("empty database url")
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return Target{Dialect: repository.DialectPostgres, DSN: raw}, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return sqliteTarget(raw[len("sqlite://"):])
	case strings.HasPrefix(lower, "sqlite:"):
		return sqliteTarget(raw[len("sqlite:"):])
	case strings.HasPrefix(lower, "file:"):
		return sqliteTarget(raw[len("file:"):])
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"):
		return sqliteTarget(raw)
	}

	return Target{}, fmt.Errorf("unsupported database url %q", databaseURL)
}

func sqliteTarget(path string) (Target, error) {
	if strings.TrimSpace(path) == "" {
		return Target{}, errors.New("sqlite url without a path")
	}
	return Target{Dialect: repository.DialectSQLite, DSN: path}, nil
}

func Open(ctx context.Context, databaseURL string, opts Options, logger *slog.Logger) (*Database, error) {
	if logger == nil {
		logger = slog.Default()
	}

	target, err := ParseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	switch target.Dialect {
	case repository.DialectPostgres:
		pool, err := postgres.NewPool(ctx, target.DSN, opts.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return &Database{
			DB:      postgres.OpenDB(pool),
			Dialect: repository.DialectPostgres,
			pool:    pool,
			logger:  logger,
		}, nil
	default:
		db, err := sqlite.Open(ctx, target.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return &Database{
			DB:      db,
			Dialect: repository.DialectSQLite,
			logger:  logger,
		}, nil
	}
}

// EnsureSchema applies the embedded migrations for the backend's dialect.
func (d *Database) EnsureSchema(ctx context.Context) error {
	if d.pool != nil {
		return postgres.EnsureSchema(ctx, d.pool, d.logger)
	}
	return sqlite.EnsureSchema(ctx, d.DB, d.logger)
}

// Check reports whether the schema is ready. It backs /readyz.
func (d *Database) Check(ctx context.Context) error {
	if d.pool != nil {
		return postgres.NewSchemaHealthChecker(d.pool).Check(ctx)
	}
	return sqlite.NewSchemaHealthChecker(d.DB).Check(ctx)
}

func (d *Database) Close() {
	if err := d.DB.Close(); err != nil {
		d.logger.Error("close database failed", "error", err)
	}
	if d.pool != nil {
		d.pool.Close()
	}
}
