// SPDX-License-Identifier: Apache-2.0

// Package sqlite opens the embedded SQLite store used for single-host
// deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite" // CGO-free SQLite

	"github.com/adiadia/syrphid-receiver/internal/persistence/migrate"
	embeddedmigrations "github.com/adiadia/syrphid-receiver/migrations"
)

const pragmas = "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

// Open opens the database file at path with foreign keys enforced.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("empty sqlite path")
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}

	ctxPing, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := db.PingContext(ctxPing); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func dsn(path string) string {
	path = strings.TrimPrefix(path, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return "file:" + path + "&" + pragmas
	}
	return "file:" + path + "?" + pragmas
}

// SchemaHealthChecker reports whether the event tables exist.
type SchemaHealthChecker struct {
	db *sql.DB
}

func NewSchemaHealthChecker(db *sql.DB) *SchemaHealthChecker {
	return &SchemaHealthChecker{db: db}
}

func (h *SchemaHealthChecker) Check(ctx context.Context) error {
	return SchemaReady(ctx, h.db)
}

// EnsureSchema applies pending embedded migrations. SQLite serializes
// writers, so no separate lock is taken.
func EnsureSchema(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if db == nil {
		return errors.New("nil database")
	}
	if _, err := migrate.Run(ctx, db, embeddedmigrations.SQLite, logger); err != nil {
		return err
	}
	return SchemaReady(ctx, db)
}

func SchemaReady(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("nil database")
	}

	missingTables := make([]string, 0, len(migrate.RequiredTables))
	for _, table := range migrate.RequiredTables {
		var count int
		if err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
			table,
		).Scan(&count); err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if count == 0 {
			missingTables = append(missingTables, table)
		}
	}
	if len(missingTables) > 0 {
		return fmt.Errorf("required tables missing: %s", strings.Join(missingTables, ", "))
	}

	return nil
}
