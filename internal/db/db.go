package db

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/multierr"
	"modernc.org/sqlite"
)

// sidecars are the files SQLite keeps next to a WAL-mode database.
var sidecars = []string{"-wal", "-shm"}

func init() {
	// SQLite's lower() only folds ASCII.
	sqlite.MustRegisterDeterministicScalarFunction("fold", 1, foldFunc)
}

// Fold lowercases s the same way the SQL fold() function does, so patterns
// built in Go match folded columns.
func Fold(s string) string {
	return strings.ToLower(s)
}

func foldFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return Fold(v), nil
	case []byte:
		return Fold(string(v)), nil
	default:
		return v, nil
	}
}

// Open opens a SQLite database connection and configures pragmas. The pool
// holds a single connection, so transactions run one at a time.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	return db, nil
}

// OpenWithSchema opens the database at path and creates any missing tables.
func OpenWithSchema(path string) (*sql.DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Exists reports whether a database file is present at path.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking database %s: %w", path, err)
	}
	return true, nil
}

// Remove deletes the database file and its WAL sidecars. Missing files are
// not an error.
func Remove(path string) error {
	var errs error
	for _, name := range append([]string{path}, prefixed(path)...) {
		if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = multierr.Append(errs, fmt.Errorf("removing %s: %w", name, err))
		}
	}
	return errs
}

func prefixed(path string) []string {
	names := make([]string, len(sidecars))
	for i, s := range sidecars {
		names[i] = path + s
	}
	return names
}
