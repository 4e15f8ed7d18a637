// Package sqlite provides the SQLite backing store for the repository: driver
// selection, connection setup, and catalog introspection.
//
// Build modes:
//   - Default (CGO_ENABLED=0): pure Go modernc.org/sqlite
//   - CGO mode (-tags cgo_sqlite): mattn/go-sqlite3
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Querier is the subset of *sql.DB, *sql.Conn and *sql.Tx used by the catalog helpers.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DriverName returns the database/sql driver name in use.
func DriverName() string {
	return driverName
}

// DriverType returns "purego" for modernc.org/sqlite and "cgo" for mattn/go-sqlite3.
func DriverType() string {
	return driverType
}

// DriverPackage returns the import path of the underlying driver.
func DriverPackage() string {
	return driverPackage
}

// Open creates the database file if it is absent and opens it.
// The pool is pinned to a single long-lived connection because attached
// schemas only exist on the connection that attached them.
func Open(path string) (*sql.DB, error) {
	if err := EnsureFile(path); err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// EnsureFile creates an empty database file at path if none exists.
// In-memory and URI paths are left to the driver.
func EnsureFile(path string) error {
	if path == "" || path == MemoryPath || strings.HasPrefix(path, "file:") {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat database file: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create database file: %w", err)
	}
	return f.Close()
}

// Attach mounts the database file at path under name.
func Attach(ctx context.Context, q Querier, name, path string) error {
	if err := EnsureFile(path); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, "ATTACH DATABASE ? AS "+QuoteIdent(name), path); err != nil {
		return fmt.Errorf("failed to attach %s: %w", name, err)
	}
	return nil
}

// Detach unmounts the schema previously attached under name.
func Detach(ctx context.Context, q Querier, name string) error {
	if _, err := q.ExecContext(ctx, "DETACH DATABASE "+QuoteIdent(name)); err != nil {
		return fmt.Errorf("failed to detach %s: %w", name, err)
	}
	return nil
}
