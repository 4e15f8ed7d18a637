package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rowcache/internal/logging"
	"rowcache/internal/repository/sqlite"
)

func (t *Table) selectSQL(cols []*Column, opts LoadOptions) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	for _, c := range cols {
		b.WriteString(sqlite.QuoteIdent(c.Name))
		b.WriteString(", ")
	}
	b.WriteString("rowid AS ")
	b.WriteString(sqlite.QuoteIdent(RowIDAlias))
	b.WriteString(" FROM ")
	b.WriteString(sqlite.Qualified(t.schema, t.name))
	if opts.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(opts.Where)
	}
	if opts.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(opts.OrderBy)
	}
	return b.String()
}

// insertSQL builds the INSERT for r over the insertable, loaded columns.
func (t *Table) insertSQL(r *Row) (string, []any) {
	var (
		names []string
		args  []any
	)
	for _, c := range t.columns {
		if c.insertable() && t.isSelected(c.Name) {
			names = append(names, sqlite.QuoteIdent(c.Name))
			args = append(args, storeValue(r.values[c.Name]))
		}
	}
	target := sqlite.Qualified(t.schema, t.name)
	if len(names) == 0 {
		return "INSERT INTO " + target + " DEFAULT VALUES", nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", target, strings.Join(names, ", "), placeholders), args
}

// updateSQL builds the UPDATE for r addressed by its rowid. It returns an
// empty query when the table has no updatable columns.
func (t *Table) updateSQL(r *Row) (string, []any, error) {
	rid, ok := r.RowID()
	if !ok {
		return "", nil, fmt.Errorf("%w: modified row has no rowid", ErrRowDetached)
	}
	var (
		sets []string
		args []any
	)
	for _, c := range t.columns {
		if c.updatable() && t.isSelected(c.Name) {
			sets = append(sets, sqlite.QuoteIdent(c.Name)+" = ?")
			args = append(args, storeValue(r.values[c.Name]))
		}
	}
	if len(sets) == 0 {
		return "", nil, nil
	}
	args = append(args, rid)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE rowid = ?", sqlite.Qualified(t.schema, t.name), strings.Join(sets, ", "))
	return query, args, nil
}

// deleteSQL builds the DELETE for r addressed by the rowid it had before
// any mutation.
func (t *Table) deleteSQL(r *Row) (string, []any, error) {
	rid, ok := r.originalRowID()
	if !ok {
		return "", nil, fmt.Errorf("%w: deleted row has no rowid", ErrRowDetached)
	}
	return "DELETE FROM " + sqlite.Qualified(t.schema, t.name) + " WHERE rowid = ?", []any{rid}, nil
}

// storeLayout is the text form DATETIME values are written in.
const storeLayout = "2006-01-02 15:04:05.999999999-07:00"

func storeValue(v any) any {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return x.Format(storeLayout)
	}
	return v
}

// hasUpdatableChange reports whether r changed a column an UPDATE would write.
func (t *Table) hasUpdatableChange(r *Row) bool {
	for name := range r.changed {
		if c := t.Column(name); c != nil && c.updatable() && t.isSelected(name) {
			return true
		}
	}
	return false
}

// changeSet holds the three disjoint row sets of a save.
type changeSet struct {
	inserts []*Row
	updates []*Row
	deletes []*Row
}

func (cs changeSet) empty() bool {
	return len(cs.inserts) == 0 && len(cs.updates) == 0 && len(cs.deletes) == 0
}

func (t *Table) changes() changeSet {
	var cs changeSet
	for _, r := range t.rows {
		switch r.state {
		case RowAdded:
			cs.inserts = append(cs.inserts, r)
		case RowModified:
			if t.hasUpdatableChange(r) {
				cs.updates = append(cs.updates, r)
			}
		case RowDeleted:
			if !t.deleteRestricted {
				cs.deletes = append(cs.deletes, r)
			}
		}
	}
	return cs
}

// persist executes inserts, then updates, then deletes inside tx.
func (t *Table) persist(ctx context.Context, tx *Tx, cs changeSet) error {
	for _, r := range cs.inserts {
		if err := t.insertRow(ctx, tx, r); err != nil {
			return err
		}
	}
	for _, r := range cs.updates {
		query, args, err := t.updateSQL(r)
		if err != nil {
			return err
		}
		if query == "" {
			continue
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update row: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			logging.WarnContext(ctx, "update matched no rows", "table", t.FullName(), "rowid", args[len(args)-1])
		}
	}
	for _, r := range cs.deletes {
		query, args, err := t.deleteSQL(r)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete row: %w", err)
		}
	}
	logging.DebugContext(ctx, "table persisted", "table", t.FullName(),
		"inserted", len(cs.inserts), "updated", len(cs.updates), "deleted", len(cs.deletes))
	return nil
}

// insertRow inserts r and back-fills the generated id into the row-id alias
// and every column flagged ReceivesGeneratedID.
func (t *Table) insertRow(ctx context.Context, q sqlite.Querier, r *Row) error {
	query, args := t.insertSQL(r)
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert row: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read generated id: %w", err)
	}
	r.setInternal(RowIDAlias, id)
	for _, c := range t.columns {
		if c.Has(ReceivesGeneratedID) {
			r.setInternal(c.Name, id)
		}
	}
	return nil
}

// Save persists every pending change in its own transaction. On success the
// changes are accepted; on failure the transaction is rolled back and every
// row is restored to its state before the call.
func (t *Table) Save(ctx context.Context) error {
	if t.readOnly || !t.IsDirty() {
		return nil
	}

	cs := t.changes()
	if cs.empty() {
		t.AcceptChanges()
		return nil
	}
	snaps := t.snapshotDirty()

	tx, err := t.ctrl.Begin(ctx)
	if err != nil {
		return tableErr(t, "save", err)
	}
	ctx = logging.WithTxID(ctx, tx.ID())

	if err := t.persist(ctx, tx, cs); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		restoreAll(snaps)
		logging.WarnContext(ctx, "save rolled back", "table", t.FullName(), "error", err)
		return tableErr(t, "save", err)
	}
	if err := tx.Commit(); err != nil {
		restoreAll(snaps)
		return tableErr(t, "save", err)
	}
	t.AcceptChanges()
	return nil
}

// SaveTx persists every pending change inside a caller-owned transaction.
// The caller must follow up with AcceptChanges or RejectChanges.
func (t *Table) SaveTx(ctx context.Context, tx *Tx) error {
	if t.readOnly || !t.IsDirty() {
		return nil
	}
	ctx = logging.WithTxID(ctx, tx.ID())
	return tableErr(t, "save", t.persist(ctx, tx, t.changes()))
}

func (t *Table) snapshotDirty() []rowSnapshot {
	var snaps []rowSnapshot
	for _, r := range t.rows {
		if r.IsDirty() {
			snaps = append(snaps, r.snapshot())
		}
	}
	return snaps
}

func restoreAll(snaps []rowSnapshot) {
	for _, s := range snaps {
		s.restore()
	}
}
