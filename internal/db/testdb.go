package db

import (
	"database/sql"
	"testing"
)

// NewTestDB returns an in-memory database with the porabnik schema. It is
// closed when the test ends.
func NewTestDB(tb testing.TB) *sql.DB {
	tb.Helper()

	db, err := OpenWithSchema(":memory:")
	if err != nil {
		tb.Fatalf("opening test database: %v", err)
	}
	tb.Cleanup(func() { db.Close() })

	return db
}
