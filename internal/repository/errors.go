package repository

import (
	"errors"
	"fmt"
)

// Sentinel errors for misuse and initialization failures.
var (
	// ErrNotOpen is returned when the controller has no open connection.
	ErrNotOpen = errors.New("repository: controller is not open")

	// ErrTableNotRegistered is returned when a table type or name was never registered.
	ErrTableNotRegistered = errors.New("repository: table not registered")

	// ErrTableAlreadyRegistered is returned when a table is registered twice.
	ErrTableAlreadyRegistered = errors.New("repository: table already registered")

	// ErrTypeMismatch is returned when a row is wrapped for the wrong table type.
	ErrTypeMismatch = errors.New("repository: row belongs to a different table type")

	// ErrReadOnly is returned by mutation entry points of read-only tables and columns.
	ErrReadOnly = errors.New("repository: table is read-only")

	// ErrEmptyDDL is returned when a table must be created but its definition has no DDL.
	ErrEmptyDDL = errors.New("repository: table definition returned empty DDL")

	// ErrColumnNotFound is returned when a column name is unknown to a table.
	ErrColumnNotFound = errors.New("repository: column not found")

	// ErrColumnExists is returned when a computed column collides with a stored column.
	ErrColumnExists = errors.New("repository: column already exists")

	// ErrRelationNotFound is returned when a relation name is unknown to the controller.
	ErrRelationNotFound = errors.New("repository: relation not found")

	// ErrRowDeleted is returned when a deleted row is mutated.
	ErrRowDeleted = errors.New("repository: row is deleted")

	// ErrRowDetached is returned when an operation needs a row that belongs to a table's row set.
	ErrRowDetached = errors.New("repository: row is not part of the table")

	// ErrComputedColumn is returned when a relation-bound computed column is written.
	ErrComputedColumn = errors.New("repository: computed column cannot be written")

	// ErrNoParticipants is returned when a multi-table transaction names no tables.
	ErrNoParticipants = errors.New("repository: transaction requires at least one table")

	// ErrInitialization is returned when computed columns cannot be resolved.
	ErrInitialization = errors.New("repository: initialization failed")

	// ErrPrecisionLoss is returned when a decimal would not survive a NUMERIC column.
	ErrPrecisionLoss = errors.New("repository: value would lose precision in a NUMERIC column")

	// ErrOutOfRange is returned for unsigned integers above math.MaxInt64.
	ErrOutOfRange = errors.New("repository: integer does not fit in a signed 64-bit column")
)

// TableError records a failed table operation.
type TableError struct {
	Table string // qualified table name
	Op    string
	Err   error
}

// Error returns the error string.
func (e *TableError) Error() string {
	return fmt.Sprintf("repository: %s %s: %v", e.Op, e.Table, e.Err)
}

// Unwrap returns the underlying error.
func (e *TableError) Unwrap() error {
	return e.Err
}

func tableErr(t *Table, op string, err error) error {
	if err == nil {
		return nil
	}
	return &TableError{Table: t.FullName(), Op: op, Err: err}
}

// IsReadOnly reports whether err was caused by writing to a read-only table or column.
func IsReadOnly(err error) bool {
	return errors.Is(err, ErrReadOnly)
}

// IsNotRegistered reports whether err was caused by an unregistered table.
func IsNotRegistered(err error) bool {
	return errors.Is(err, ErrTableNotRegistered)
}
