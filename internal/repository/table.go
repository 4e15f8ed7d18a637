package repository

import (
	"context"
	"fmt"
	"slices"

	"rowcache/internal/logging"
	"rowcache/internal/repository/sqlite"
)

// Table is the in-memory cache of one relational table. Application tables
// embed it and implement Definition; see RegisterTable.
type Table struct {
	ctrl *Controller
	def  Definition

	schema string
	name   string

	columns []*Column
	byName  map[string]*Column

	// selected is the projection of the last Load; generated SQL is limited to it.
	selected []string

	rows []*Row
	bus  eventBus

	readOnly         bool
	deleteRestricted bool
	primaryKey       string
}

func (t *Table) base() *Table { return t }

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Schema returns the schema the table belongs to.
func (t *Table) Schema() string {
	return sqlite.SchemaOrMain(t.schema)
}

// FullName returns schema.table.
func (t *Table) FullName() string {
	return t.Schema() + "." + t.name
}

// Controller returns the controller the table is registered with.
func (t *Table) Controller() *Controller {
	return t.ctrl
}

// ReadOnly reports whether the table rejects mutations.
func (t *Table) ReadOnly() bool { return t.readOnly }

// SetReadOnly marks the table read-only. Read-only tables are never saved.
func (t *Table) SetReadOnly(v bool) { t.readOnly = v }

// DeleteRestricted reports whether Save skips its delete phase.
func (t *Table) DeleteRestricted() bool { return t.deleteRestricted }

// SetDeleteRestricted makes Save skip the delete phase.
func (t *Table) SetDeleteRestricted(v bool) { t.deleteRestricted = v }

// PrimaryKey returns the declared primary key column name, if any.
func (t *Table) PrimaryKey() string { return t.primaryKey }

// SetPrimaryKey overrides the primary key column read from the catalog.
func (t *Table) SetPrimaryKey(column string) error {
	if t.Column(column) == nil {
		return tableErr(t, "set primary key "+column, ErrColumnNotFound)
	}
	t.primaryKey = column
	return nil
}

// Columns returns the table's columns in order, computed columns last.
func (t *Table) Columns() []*Column {
	return slices.Clone(t.columns)
}

// ColumnNames returns the names of all columns except the row-id alias.
func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.columns))
	for _, c := range t.columns {
		if c.Name != RowIDAlias {
			names = append(names, c.Name)
		}
	}
	return names
}

// Column returns the named column, or nil.
func (t *Table) Column(name string) *Column {
	return t.byName[name]
}

// SetColumnFlags replaces the flag set of a stored column.
func (t *Table) SetColumnFlags(name string, flags ColumnFlag) error {
	col := t.Column(name)
	if col == nil || col.Name == RowIDAlias {
		return tableErr(t, "set flags "+name, ErrColumnNotFound)
	}
	col.Flags = flags
	return nil
}

// SetColumnDefault sets the value NewRow puts into column. A DefaultFunc is
// called for every new row.
func (t *Table) SetColumnDefault(name string, v any) error {
	col := t.Column(name)
	if col == nil {
		return tableErr(t, "set default "+name, ErrColumnNotFound)
	}
	if _, ok := v.(DefaultFunc); !ok {
		v = normalize(v)
	}
	col.Default = v
	return nil
}

// Subscribe registers l for the table's change notifications.
func (t *Table) Subscribe(l ChangeListener) {
	t.bus.subscribe(l)
}

// Exists reports whether the table exists in the backing store.
func (t *Table) Exists(ctx context.Context) (bool, error) {
	db, err := t.ctrl.conn()
	if err != nil {
		return false, err
	}
	return sqlite.TableExists(ctx, db, t.schema, t.name)
}

// HasRows reports whether the backing table holds any rows.
func (t *Table) HasRows(ctx context.Context) (bool, error) {
	db, err := t.ctrl.conn()
	if err != nil {
		return false, err
	}
	return sqlite.HasRows(ctx, db, t.schema, t.name)
}

// readColumns rebuilds the stored column list from the catalog, keeping
// computed columns and any flags or defaults already configured.
func (t *Table) readColumns(ctx context.Context) error {
	db, err := t.ctrl.conn()
	if err != nil {
		return err
	}
	infos, err := sqlite.Columns(ctx, db, t.schema, t.name)
	if err != nil {
		return err
	}

	old, prevCols := t.byName, t.columns
	t.columns = nil
	t.byName = make(map[string]*Column, len(infos)+1)
	t.primaryKey = ""
	for _, ci := range infos {
		col := &Column{
			Name:       ci.Name,
			Declared:   ci.Type,
			Type:       ParseColumnType(ci.Type),
			NotNull:    ci.NotNull,
			PrimaryKey: ci.PKOrder > 0,
		}
		if ci.HasDefault {
			if v, ok := parseDefault(col.Type, ci.Default); ok {
				col.Default = v
			}
		}
		if prev := old[ci.Name]; prev != nil && prev.computed == nil {
			col.Flags = prev.Flags
			col.Default = prev.Default
		}
		if ci.PKOrder == 1 {
			t.primaryKey = ci.Name
		}
		t.addColumn(col)
	}
	t.addColumn(&Column{Name: RowIDAlias, Declared: "INTEGER", Type: TypeInteger, Flags: ColumnReadOnly})

	for _, prev := range prevCols {
		if prev.computed != nil {
			t.addColumn(prev)
		}
	}
	return nil
}

func (t *Table) addColumn(c *Column) {
	t.columns = append(t.columns, c)
	t.byName[c.Name] = c
}

// storedColumns returns the columns a load selects, excluding the row-id alias.
func (t *Table) storedColumns() []*Column {
	cols := make([]*Column, 0, len(t.columns))
	for _, c := range t.columns {
		if c.computed == nil && c.Name != RowIDAlias {
			cols = append(cols, c)
		}
	}
	return cols
}

// LoadOptions restricts and orders a Load.
type LoadOptions struct {
	Where   string // SQL predicate without the WHERE keyword
	Args    []any
	OrderBy string // SQL ordering without the ORDER BY keywords
	Columns []string
}

// Load replaces every cached row with the rows the store returns.
func (t *Table) Load(ctx context.Context, opts LoadOptions) error {
	db, err := t.ctrl.conn()
	if err != nil {
		return err
	}

	var cols []*Column
	if len(opts.Columns) == 0 {
		cols = t.storedColumns()
	} else {
		for _, name := range opts.Columns {
			col := t.Column(name)
			if col == nil || col.computed != nil || col.Name == RowIDAlias {
				return tableErr(t, "load", fmt.Errorf("%w: %s", ErrColumnNotFound, name))
			}
			cols = append(cols, col)
		}
	}

	query := t.selectSQL(cols, opts)
	rows, err := db.QueryContext(ctx, query, opts.Args...)
	if err != nil {
		return tableErr(t, "load", err)
	}
	defer rows.Close()

	loaded := make([]*Row, 0, len(t.rows))
	for rows.Next() {
		dest := make([]any, len(cols)+1)
		ptrs := make([]any, len(dest))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return tableErr(t, "load", fmt.Errorf("failed to scan row: %w", err))
		}
		values := make(map[string]any, len(dest))
		for i, col := range cols {
			values[col.Name] = fromStore(col.Type, dest[i])
		}
		values[RowIDAlias] = normalize(dest[len(cols)])
		loaded = append(loaded, newRow(t, RowUnchanged, values))
	}
	if err := rows.Err(); err != nil {
		return tableErr(t, "load", fmt.Errorf("error iterating rows: %w", err))
	}

	for _, r := range t.rows {
		r.state = RowDetached
	}
	t.rows = loaded
	t.selected = make([]string, 0, len(cols))
	for _, c := range cols {
		t.selected = append(t.selected, c.Name)
	}
	logging.DebugContext(ctx, "table loaded", "table", t.FullName(), "rows", len(loaded))
	return nil
}

// isSelected reports whether name was part of the last Load. Before the
// first Load every column counts as selected.
func (t *Table) isSelected(name string) bool {
	return t.selected == nil || slices.Contains(t.selected, name)
}

// Rows returns the cached rows in load order, including rows marked deleted.
func (t *Table) Rows() []*Row {
	return slices.Clone(t.rows)
}

// Len returns the number of cached rows, including rows marked deleted.
func (t *Table) Len() int {
	return len(t.rows)
}

// Find returns the first row not marked deleted whose column equals value.
func (t *Table) Find(column string, value any) *Row {
	value = normalize(value)
	for _, r := range t.rows {
		if r.state != RowDeleted && valuesEqual(r.Get(column), value) {
			return r
		}
	}
	return nil
}

// NewRow returns a detached row filled with the column defaults.
func (t *Table) NewRow() (*Row, error) {
	if t.readOnly {
		return nil, tableErr(t, "new row", ErrReadOnly)
	}
	return t.newDefaultRow(), nil
}

func (t *Table) newDefaultRow() *Row {
	r := newRow(t, RowDetached, nil)
	for _, c := range t.columns {
		if c.Default != nil && c.computed == nil {
			r.values[c.Name] = normalize(resolveDefault(c.Default))
		}
	}
	return r
}

// Add appends a detached row created by this table's NewRow.
func (t *Table) Add(r *Row) error {
	if t.readOnly {
		return tableErr(t, "add", ErrReadOnly)
	}
	if r.table != t {
		return tableErr(t, "add", ErrTypeMismatch)
	}
	if r.state != RowDetached {
		return tableErr(t, "add", fmt.Errorf("row is already %s", r.state))
	}
	r.state = RowAdded
	t.rows = append(t.rows, r)
	t.bus.publishRow(RowChangeEvent{Table: t, Row: r, Action: RowActionAdd})
	return nil
}

// AddDefaultRow adds a row populated with column, type and table defaults
// and saves the table.
func (t *Table) AddDefaultRow(ctx context.Context) (*Row, error) {
	r, err := t.NewRow()
	if err != nil {
		return nil, err
	}
	for _, c := range t.columns {
		if !c.insertable() || c.Has(ReceivesGeneratedID) || r.values[c.Name] != nil {
			continue
		}
		r.values[c.Name] = zeroValue(c.Type)
	}
	if f, ok := t.def.(DefaultRowFiller); ok {
		if err := f.FillDefaultRow(r); err != nil {
			return nil, tableErr(t, "add default row", err)
		}
	}
	if err := t.Add(r); err != nil {
		return nil, err
	}
	if err := t.Save(ctx); err != nil {
		return r, err
	}
	return r, nil
}

// Update runs fn as one edit batch on r.
func (t *Table) Update(r *Row, fn func(*Row) error) error {
	if r.table != t {
		return tableErr(t, "update", ErrTypeMismatch)
	}
	r.BeginEdit()
	defer r.EndEdit()
	return fn(r)
}

func (t *Table) removeRow(r *Row) {
	if i := slices.Index(t.rows, r); i >= 0 {
		t.rows = slices.Delete(t.rows, i, i+1)
	}
}

// IsDirty reports whether any row is added, modified or deleted.
// Read-only tables are never dirty.
func (t *Table) IsDirty() bool {
	if t.readOnly {
		return false
	}
	for _, r := range t.rows {
		if r.IsDirty() {
			return true
		}
	}
	return false
}

// AcceptChanges marks every pending change as persisted: deleted rows are
// dropped and the rest become unchanged.
func (t *Table) AcceptChanges() {
	kept := t.rows[:0]
	for _, r := range t.rows {
		if r.state == RowDeleted {
			r.state = RowDetached
			r.original = nil
			continue
		}
		if r.IsDirty() {
			r.accept()
		}
		kept = append(kept, r)
	}
	clear(t.rows[len(kept):])
	t.rows = kept
}

// RejectChanges discards every pending change: added rows are dropped and
// modified or deleted rows get their last accepted values back.
func (t *Table) RejectChanges() {
	var touched []*Row
	kept := t.rows[:0]
	for _, r := range t.rows {
		if !r.IsDirty() {
			kept = append(kept, r)
			continue
		}
		r.reject()
		touched = append(touched, r)
		if r.state != RowDetached {
			kept = append(kept, r)
		}
	}
	clear(t.rows[len(kept):])
	t.rows = kept
	for _, r := range touched {
		t.bus.publishRow(RowChangeEvent{Table: t, Row: r, Action: RowActionRollback})
	}
}

// Clear drops every cached row and subscription.
func (t *Table) Clear() {
	for _, r := range t.rows {
		r.state = RowDetached
	}
	t.rows = nil
	t.bus.reset()
}

// String implements fmt.Stringer.
func (t *Table) String() string {
	return t.FullName()
}
