// Package dbtest provides throwaway databases for repository tests.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/uptrace/bun"

	"github.com/redmonkez12/go-session-auth/internal/database"
)

// NewSQLite opens a private in-memory SQLite database with the schema applied.
// The database is closed when the test ends.
func NewSQLite(t *testing.T) *bun.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)

	db, err := database.Open(database.DriverSQLite, dsn, 1)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return db
}
