package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"rowcache/internal/logging"
)

// Tx is a transaction on the controller's connection.
type Tx struct {
	tx *sql.Tx
	id uuid.UUID
}

// ID returns the identifier used to correlate the transaction's log records.
func (tx *Tx) ID() string {
	return tx.id.String()
}

// ExecContext executes a statement inside the transaction.
func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tx.tx.ExecContext(ctx, query, args...)
}

// QueryContext runs a query inside the transaction.
func (tx *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return tx.tx.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query inside the transaction.
func (tx *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return tx.tx.QueryRowContext(ctx, query, args...)
}

// Commit commits the transaction.
func (tx *Tx) Commit() error {
	if err := tx.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction %s: %w", tx.id, err)
	}
	logging.Debug("transaction committed", "tx_id", tx.ID())
	return nil
}

// Rollback aborts the transaction.
func (tx *Tx) Rollback() error {
	if err := tx.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction %s: %w", tx.id, err)
	}
	logging.Debug("transaction rolled back", "tx_id", tx.ID())
	return nil
}

// Participant is a table taking part in a coordinated transaction.
// Every *Table, and every application table embedding one, satisfies it.
type Participant interface {
	Save(ctx context.Context) error
	SaveTx(ctx context.Context, tx *Tx) error
	AcceptChanges()
	RejectChanges()
}

// Coordinator runs atomic units of work against the controller's connection.
type Coordinator struct {
	ctrl *Controller
}

// ExecStatements executes stmts in order inside one transaction. Any
// failure rolls the whole list back.
func (c *Coordinator) ExecStatements(ctx context.Context, stmts ...string) error {
	tx, err := c.ctrl.Begin(ctx)
	if err != nil {
		return err
	}
	ctx = logging.WithTxID(ctx, tx.ID())
	for i, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			err = fmt.Errorf("statement %d: %w", i+1, err)
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
			logging.WarnContext(ctx, "statement list rolled back", "error", err)
			return err
		}
	}
	return tx.Commit()
}

// Run saves every participant on its own first, then opens a transaction
// and hands it to fn, which is expected to call SaveTx on the participants.
// If fn and the commit succeed every participant accepts its changes;
// otherwise the transaction is rolled back and every participant rejects
// its changes, so the cache matches the store when Run returns.
func (c *Coordinator) Run(ctx context.Context, tables []Participant, fn func(ctx context.Context, tx *Tx) error) error {
	if len(tables) == 0 {
		return ErrNoParticipants
	}
	for _, t := range tables {
		if err := t.Save(ctx); err != nil {
			return err
		}
	}

	tx, err := c.ctrl.Begin(ctx)
	if err != nil {
		return err
	}
	ctx = logging.WithTxID(ctx, tx.ID())
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			rejectAll(tables)
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		rejectAll(tables)
		logging.WarnContext(ctx, "transaction rolled back", "tables", len(tables), "error", err)
		return err
	}
	if err := tx.Commit(); err != nil {
		rejectAll(tables)
		return err
	}
	for _, t := range tables {
		t.AcceptChanges()
	}
	return nil
}

func rejectAll(tables []Participant) {
	for _, t := range tables {
		t.RejectChanges()
	}
}
