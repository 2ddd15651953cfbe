// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/adiadia/syrphid-receiver/internal/domain"
)

// Dialect selects placeholder syntax and value encoding.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Store is the process-wide storage handle. Each connection handler takes
// its own Session from it.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

func NewStore(db *sql.DB, dialect Dialect, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Session pins one pooled connection until Close is called.
func (s *Store) Session(ctx context.Context) (*Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		s.logger.Error("acquire session connection failed", "error", err)
		return nil, fmt.Errorf("%w: acquire connection: %w", domain.ErrPersistence, err)
	}

	return &Session{
		conn:    conn,
		dialect: s.dialect,
		logger:  s.logger,
	}, nil
}

type Session struct {
	conn    *sql.Conn
	dialect Dialect
	logger  *slog.Logger
}

// Begin opens the unit of work for one message.
func (s *Session) Begin(ctx context.Context) (*UnitOfWork, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("begin tx failed", "error", err)
		return nil, fmt.Errorf("%w: begin: %w", domain.ErrPersistence, err)
	}

	return &UnitOfWork{
		tx:      tx,
		dialect: s.dialect,
		logger:  s.logger,
	}, nil
}

func (s *Session) Close() error {
	return s.conn.Close()
}

// UnitOfWork is the transaction holding every row written for one message.
type UnitOfWork struct {
	tx      *sql.Tx
	dialect Dialect
	logger  *slog.Logger
}

func (u *UnitOfWork) Commit() error {
	if err := u.tx.Commit(); err != nil {
		u.logger.Error("commit failed", "error", err)
		return fmt.Errorf("%w: commit: %w", domain.ErrPersistence, err)
	}
	return nil
}

// Rollback is a no-op once the unit of work was committed or rolled back.
func (u *UnitOfWork) Rollback() error {
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		u.logger.Error("rollback failed", "error", err)
		return fmt.Errorf("%w: rollback: %w", domain.ErrPersistence, err)
	}
	return nil
}

func (u *UnitOfWork) insertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := u.tx.QueryRowContext(ctx, rebind(u.dialect, query), args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL. Queries in this
// package never contain a literal question mark.
func rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (u *UnitOfWork) timeArg(t time.Time) any {
	if u.dialect == DialectSQLite {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC()
}

// blobArg stores JSON as text. Empty means NULL.
func blobArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}
