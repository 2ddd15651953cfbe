// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"testing"

	"github.com/adiadia/syrphid-receiver/internal/persistence/migrate"
)

func TestNewPoolInvalidURL(t *testing.T) {
	t.Parallel()

	pool, err := NewPool(context.Background(), "://not-valid", 0)
	if err == nil {
		t.Fatal("expected invalid URL to return an error")
	}
	if pool != nil {
		t.Fatal("expected pool to be nil on parse error")
	}
}

func TestRequiredColumnsBelongToRequiredTables(t *testing.T) {
	t.Parallel()

	tables := make(map[string]bool, len(migrate.RequiredTables))
	for _, table := range migrate.RequiredTables {
		tables[table] = true
	}
	for _, column := range requiredColumns {
		if !tables[column.Table] {
			t.Fatalf("column %s.%s names a table outside the required set", column.Table, column.Column)
		}
	}
}
