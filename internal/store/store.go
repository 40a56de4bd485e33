// Package store holds the SQL for every table. Functions take a Querier so
// they can run either directly on the database or inside a transaction.
package store

import (
	"context"
	"database/sql"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
