package repository

import (
	"maps"
	"sort"
)

// RowState is the persistence state of a row.
type RowState int

const (
	// RowDetached rows were created by NewRow and not added, or were removed.
	RowDetached RowState = iota
	RowUnchanged
	RowAdded
	RowModified
	RowDeleted
)

func (s RowState) String() string {
	switch s {
	case RowUnchanged:
		return "unchanged"
	case RowAdded:
		return "added"
	case RowModified:
		return "modified"
	case RowDeleted:
		return "deleted"
	default:
		return "detached"
	}
}

// Row is one cached row of a Table.
type Row struct {
	table  *Table
	state  RowState
	values map[string]any

	// original holds the values before the first mutation since the last
	// accept. It is set while the row is modified, or deleted after being loaded.
	original map[string]any

	// changed holds the updatable columns changed since the last save.
	changed map[string]struct{}

	editDepth int
	editDirty bool

	pending     map[*ComputedColumn]struct{}
	recomputing map[*ComputedColumn]struct{}
}

func newRow(t *Table, state RowState, values map[string]any) *Row {
	if values == nil {
		values = make(map[string]any)
	}
	return &Row{
		table:   t,
		state:   state,
		values:  values,
		changed: make(map[string]struct{}),
	}
}

// Table returns the table the row was created by.
func (r *Row) Table() *Table {
	return r.table
}

// State returns the row's persistence state.
func (r *Row) State() RowState {
	return r.state
}

// IsDirty reports whether the row carries an unsaved change.
func (r *Row) IsDirty() bool {
	return r.state == RowAdded || r.state == RowModified || r.state == RowDeleted
}

// Get returns the value of column, or nil for SQL NULL and unknown columns.
// Relation-bound computed columns are evaluated on every call.
func (r *Row) Get(column string) any {
	col := r.table.Column(column)
	if col == nil {
		return nil
	}
	if cc := col.computed; cc != nil && cc.kind == relationBound {
		return cc.evaluate(r)
	}
	return r.values[column]
}

// Original returns the value column had before the row was modified.
// For rows without pending modifications it returns the current value.
func (r *Row) Original(column string) any {
	if r.original != nil {
		return r.original[column]
	}
	return r.values[column]
}

// RowID returns the store-assigned rowid, if the row has been persisted.
func (r *Row) RowID() (int64, bool) {
	id, ok := asInt64OrNil(r.values[RowIDAlias])
	return id, ok
}

func (r *Row) originalRowID() (int64, bool) {
	return asInt64OrNil(r.Original(RowIDAlias))
}

func asInt64OrNil(v any) (int64, bool) {
	if v == nil {
		return 0, false
	}
	return asInt64(v)
}

// Values returns a copy of the stored values keyed by column name.
func (r *Row) Values() map[string]any {
	return maps.Clone(r.values)
}

// ChangedColumns returns the updatable columns changed since the last save, sorted.
func (r *Row) ChangedColumns() []string {
	cols := make([]string, 0, len(r.changed))
	for c := range r.changed {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Set writes value into column. It reports false without notifying anyone
// when the column already holds an equal value.
func (r *Row) Set(column string, value any) (bool, error) {
	t := r.table
	col := t.Column(column)
	if col == nil {
		return false, tableErr(t, "set "+column, ErrColumnNotFound)
	}
	cc := col.computed
	if cc != nil && cc.kind == relationBound {
		return false, tableErr(t, "set "+column, ErrComputedColumn)
	}
	if r.state == RowDeleted {
		return false, tableErr(t, "set "+column, ErrRowDeleted)
	}
	if cc == nil && (t.readOnly || col.Has(ColumnReadOnly) || col.Name == RowIDAlias) {
		return false, tableErr(t, "set "+column, ErrReadOnly)
	}

	value = normalize(value)
	if cc == nil {
		if err := checkStorable(col.Type, value); err != nil {
			return false, tableErr(t, "set "+column, err)
		}
	}
	old := r.values[column]
	if valuesEqual(old, value) {
		return false, nil
	}

	// Derived values never move the row out of its persistence state.
	if cc == nil && r.state == RowUnchanged {
		r.original = maps.Clone(r.values)
		r.state = RowModified
	}
	r.values[column] = value
	if cc == nil && r.state == RowModified && col.updatable() {
		r.changed[column] = struct{}{}
	}

	if r.state == RowDetached {
		return true, nil
	}
	t.bus.publishColumn(ColumnChangeEvent{Table: t, Row: r, Column: column, Old: old, New: value})
	if r.editDepth > 0 {
		r.editDirty = true
	} else {
		t.bus.publishRow(RowChangeEvent{Table: t, Row: r, Action: RowActionChange})
	}
	return true, nil
}

// BeginEdit starts a batch: row change notifications are held back until
// the matching EndEdit. Edits nest.
func (r *Row) BeginEdit() {
	r.editDepth++
}

// EndEdit closes a batch and publishes one row change notification if any
// column changed inside it.
func (r *Row) EndEdit() {
	if r.editDepth == 0 {
		return
	}
	r.editDepth--
	if r.editDepth > 0 || !r.editDirty {
		return
	}
	r.editDirty = false
	if r.state != RowDetached {
		r.table.bus.publishRow(RowChangeEvent{Table: r.table, Row: r, Action: RowActionChange})
	}
}

// Delete marks the row deleted. Rows that were added and never saved are
// removed from the table immediately.
func (r *Row) Delete() error {
	t := r.table
	if t.readOnly {
		return tableErr(t, "delete", ErrReadOnly)
	}
	switch r.state {
	case RowDetached:
		return tableErr(t, "delete", ErrRowDetached)
	case RowDeleted:
		return nil
	case RowAdded:
		t.removeRow(r)
		r.state = RowDetached
		t.bus.publishRow(RowChangeEvent{Table: t, Row: r, Action: RowActionDelete})
		return nil
	case RowUnchanged:
		r.original = maps.Clone(r.values)
	}
	r.state = RowDeleted
	t.bus.publishRow(RowChangeEvent{Table: t, Row: r, Action: RowActionDelete})
	return nil
}

// setInternal writes a value without state tracking or notifications.
func (r *Row) setInternal(column string, value any) {
	r.values[column] = normalize(value)
}

func (r *Row) accept() {
	r.state = RowUnchanged
	r.original = nil
	clear(r.changed)
}

// reject restores the row to its last accepted values. Added rows become detached.
func (r *Row) reject() {
	switch r.state {
	case RowAdded:
		r.state = RowDetached
	case RowModified, RowDeleted:
		if r.original != nil {
			r.values = r.original
		}
		r.state = RowUnchanged
	}
	r.original = nil
	clear(r.changed)
}

func (r *Row) markPending(cc *ComputedColumn) {
	if r.pending == nil {
		r.pending = make(map[*ComputedColumn]struct{})
	}
	r.pending[cc] = struct{}{}
}

// takePending clears the pending marker for cc and reports whether it was set.
func (r *Row) takePending(cc *ComputedColumn) bool {
	if _, ok := r.pending[cc]; !ok {
		return false
	}
	delete(r.pending, cc)
	return true
}

func (r *Row) isRecomputing(cc *ComputedColumn) bool {
	_, ok := r.recomputing[cc]
	return ok
}

func (r *Row) setRecomputing(cc *ComputedColumn, on bool) {
	if !on {
		delete(r.recomputing, cc)
		return
	}
	if r.recomputing == nil {
		r.recomputing = make(map[*ComputedColumn]struct{})
	}
	r.recomputing[cc] = struct{}{}
}

// rowSnapshot captures everything Save may change on a row.
type rowSnapshot struct {
	row      *Row
	state    RowState
	values   map[string]any
	original map[string]any
	changed  map[string]struct{}
}

func (r *Row) snapshot() rowSnapshot {
	return rowSnapshot{
		row:      r,
		state:    r.state,
		values:   maps.Clone(r.values),
		original: maps.Clone(r.original),
		changed:  maps.Clone(r.changed),
	}
}

func (s rowSnapshot) restore() {
	s.row.state = s.state
	s.row.values = s.values
	s.row.original = s.original
	s.row.changed = s.changed
	if s.row.changed == nil {
		s.row.changed = make(map[string]struct{})
	}
}
