// SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/adiadia/syrphid-receiver/internal/domain"
	"github.com/adiadia/syrphid-receiver/internal/persistence/sqlite"
	"github.com/adiadia/syrphid-receiver/internal/repository"
)

// sqliteSession returns a session on a freshly bootstrapped database file.
func sqliteSession(t *testing.T) (Session, *sql.DB) {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := sqlite.EnsureSchema(ctx, db, discardLogger()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	store := NewRepositoryStore(repository.NewStore(db, repository.DialectSQLite, discardLogger()))
	session, err := store.Open(ctx)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session, db
}

func tableCount(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func expectCounts(t *testing.T, db *sql.DB, want map[string]int) {
	t.Helper()
	for table, n := range want {
		if got := tableCount(t, db, table); got != n {
			t.Fatalf("expected %d rows in %s, got %d", n, table, got)
		}
	}
}

func TestSQLiteKeydownWritesOneKeyRow(t *testing.T) {
	session, db := sqliteSession(t)
	d := newDispatcher(t, Taxonomy{}, nil)

	if _, err := d.Dispatch(context.Background(), session, keydownMessage(t), time.Time{}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	expectCounts(t, db, map[string]int{
		"events":              1,
		"user_interactions":   1,
		"key_event_details":   1,
		"mouse_event_details": 0,
		"touch_point_details": 0,
	})

	var key, code string
	if err := db.QueryRow(`SELECT key, code FROM key_event_details`).Scan(&key, &code); err != nil {
		t.Fatalf("select key: %v", err)
	}
	if key != "a" || code != "KeyA" {
		t.Fatalf("unexpected key row %q %q", key, code)
	}
}

func TestSQLiteTouchPointsOrdered(t *testing.T) {
	session, db := sqliteSession(t)
	d := newDispatcher(t, Taxonomy{}, nil)

	if _, err := d.Dispatch(context.Background(), session, touchMessage(t, 4), time.Time{}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	rows, err := db.Query(`SELECT position, identifier FROM touch_point_details ORDER BY id`)
	if err != nil {
		t.Fatalf("select touches: %v", err)
	}
	defer rows.Close()

	var i int
	for rows.Next() {
		var position int
		var identifier int64
		if err := rows.Scan(&position, &identifier); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if position != i || identifier != int64(100+i) {
			t.Fatalf("row %d: position %d identifier %d", i, position, identifier)
		}
		i++
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	if i != 4 {
		t.Fatalf("expected 4 touch rows, got %d", i)
	}
}

func TestSQLiteNetworkResponseFoldsHeaders(t *testing.T) {
	session, db := sqliteSession(t)
	d := newDispatcher(t, Taxonomy{}, nil)

	raw := buildMessage(t, "network_response", map[string]any{
		"statusCode": 404,
		"requestId":  "r-9",
		"headers": []any{
			map[string]any{"name": "X", "value": "1"},
			map[string]any{"name": "X", "value": "2"},
		},
	})
	res, err := d.Dispatch(context.Background(), session, raw, time.Time{})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.DetailSkipped() {
		t.Fatalf("unexpected variant error: %v", res.VariantErr)
	}

	var status int
	var headers string
	err = db.QueryRow(`SELECT status_code, headers FROM network_responses WHERE event_id = ?`, res.EventID).Scan(&status, &headers)
	if err != nil {
		t.Fatalf("select response: %v", err)
	}
	if status != 404 || headers != `{"X":"2"}` {
		t.Fatalf("unexpected response row: %d %s", status, headers)
	}
}

func TestSQLiteRootFailureWritesNothing(t *testing.T) {
	session, db := sqliteSession(t)
	d := newDispatcher(t, Taxonomy{}, nil)

	raw := buildMessage(t, "navigation", map[string]any{"sessionId": nil})
	if _, err := d.Dispatch(context.Background(), session, raw, time.Time{}); !errors.Is(err, domain.ErrRootValidation) {
		t.Fatalf("expected root validation error, got %v", err)
	}
	expectCounts(t, db, map[string]int{"events": 0})
}

func TestSQLiteUnknownTypeKeepsRawMessage(t *testing.T) {
	session, db := sqliteSession(t)
	d := newDispatcher(t, Taxonomy{}, nil)

	raw := buildMessage(t, "unknown_future_event", map[string]any{
		"additionalData": map[string]any{"ignored": true},
		"payload":        map[string]any{"a": []any{1, "two"}},
	})
	res, err := d.Dispatch(context.Background(), session, raw, time.Time{})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	var stored string
	if err := db.QueryRow(`SELECT additional_data FROM events WHERE id = ?`, res.EventID).Scan(&stored); err != nil {
		t.Fatalf("select additional data: %v", err)
	}

	var got, want any
	if err := json.Unmarshal([]byte(stored), &got); err != nil {
		t.Fatalf("stored additional data is not json: %v", err)
	}
	if err := json.Unmarshal(raw, &want); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected additional data %v, got %v", want, got)
	}
}

func TestSQLiteVariantFailureKeepsRoot(t *testing.T) {
	session, db := sqliteSession(t)
	d := newDispatcher(t, Taxonomy{}, nil)

	raw := buildMessage(t, "network_request", map[string]any{"url": "https://example.com/api"})
	res, err := d.Dispatch(context.Background(), session, raw, time.Time{})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !errors.Is(res.VariantErr, domain.ErrVariantValidation) {
		t.Fatalf("expected variant error, got %v", res.VariantErr)
	}
	expectCounts(t, db, map[string]int{"events": 1, "network_requests": 0})
}

func TestSQLiteSessionCarriesManyMessages(t *testing.T) {
	session, db := sqliteSession(t)
	d := newDispatcher(t, Taxonomy{}, nil)
	ctx := context.Background()

	msgs := [][]byte{
		keydownMessage(t),
		[]byte(`{"type":`),
		touchMessage(t, 2),
		buildMessage(t, "navigation", nil),
	}
	var stored int
	for _, raw := range msgs {
		if _, err := d.Dispatch(ctx, session, raw, time.Time{}); err == nil {
			stored++
		}
	}
	if stored != 3 {
		t.Fatalf("expected 3 stored messages, got %d", stored)
	}
	expectCounts(t, db, map[string]int{
		"events":              3,
		"user_interactions":   2,
		"touch_point_details": 2,
	})
}
