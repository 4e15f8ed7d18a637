package repository

import (
	"fmt"
	"slices"
)

type computedKind int

const (
	relationBound computedKind = iota + 1
	callbackBound
)

// UpdateFunc recomputes a callback-bound column after a row of the
// dependent table changed. It usually writes cc's column on rows of cc.Owner().
type UpdateFunc func(cc *ComputedColumn, ev RowChangeEvent)

// ComputedColumn is a derived column. Relation-bound columns read a parent
// value through a Relation on every access; callback-bound columns are
// stored in memory and recomputed by an UpdateFunc.
type ComputedColumn struct {
	kind   computedKind
	owner  *Table
	column *Column

	relation     *Relation
	parentColumn string

	dependent *Table
	deps      []string
	update    UpdateFunc
}

// Name returns the column name.
func (cc *ComputedColumn) Name() string { return cc.column.Name }

// Owner returns the table the column belongs to.
func (cc *ComputedColumn) Owner() *Table { return cc.owner }

// Relation returns the relation of a relation-bound column.
func (cc *ComputedColumn) Relation() *Relation { return cc.relation }

// Dependent returns the table a callback-bound column watches.
func (cc *ComputedColumn) Dependent() *Table { return cc.dependent }

// DependsOn returns the watched column names of a callback-bound column.
func (cc *ComputedColumn) DependsOn() []string { return slices.Clone(cc.deps) }

func (cc *ComputedColumn) evaluate(r *Row) any {
	parent := cc.relation.ParentRow(r)
	if parent == nil {
		return nil
	}
	return parent.Get(cc.parentColumn)
}

// ColumnChanged marks the row for recomputation when a watched column changed.
func (cc *ComputedColumn) ColumnChanged(ev ColumnChangeEvent) {
	if slices.Contains(cc.deps, ev.Column) {
		ev.Row.markPending(cc)
	}
}

// RowChanged runs the update callback at most once per batch. The marker is
// cleared before the callback runs, and markers set by the callback's own
// writes to the same row are dropped when it returns.
func (cc *ComputedColumn) RowChanged(ev RowChangeEvent) {
	r := ev.Row
	switch ev.Action {
	case RowActionAdd, RowActionDelete, RowActionRollback:
		r.markPending(cc)
	}
	if r.isRecomputing(cc) {
		r.takePending(cc)
		return
	}
	if !r.takePending(cc) {
		return
	}
	r.setRecomputing(cc, true)
	defer func() {
		r.setRecomputing(cc, false)
		r.takePending(cc)
	}()
	cc.update(cc, ev)
}

// existingComputed returns the computed column already registered under
// name, or an error if a stored column has that name.
func (t *Table) existingComputed(name string) (*ComputedColumn, error) {
	col := t.Column(name)
	if col == nil {
		return nil, nil
	}
	if col.computed == nil {
		return nil, tableErr(t, "add computed column "+name, ErrColumnExists)
	}
	return col.computed, nil
}

// AddRelationColumn adds a column whose value is parentColumn of the row
// reached through the named relation. Adding it again is a no-op.
func (t *Table) AddRelationColumn(name string, typ ColumnType, relationName, parentColumn string) (*ComputedColumn, error) {
	if cc, err := t.existingComputed(name); cc != nil || err != nil {
		return cc, err
	}
	rel, err := t.ctrl.Relation(relationName)
	if err != nil {
		return nil, tableErr(t, "add computed column "+name, err)
	}
	if rel.Child != t {
		return nil, tableErr(t, "add computed column "+name,
			fmt.Errorf("relation %s has child table %s", relationName, rel.Child.FullName()))
	}
	if rel.Parent.Column(parentColumn) == nil {
		return nil, tableErr(t, "add computed column "+name,
			fmt.Errorf("%w: %s.%s", ErrColumnNotFound, rel.Parent.FullName(), parentColumn))
	}

	cc := &ComputedColumn{
		kind:         relationBound,
		owner:        t,
		relation:     rel,
		parentColumn: parentColumn,
	}
	t.attachComputed(name, typ, cc)
	return cc, nil
}

// AddCallbackColumn adds an in-memory column recomputed by fn whenever one
// of deps changes on a row of dependent, or a row is added to or removed
// from it. Adding it again is a no-op.
func (t *Table) AddCallbackColumn(name string, typ ColumnType, dependent *Table, deps []string, fn UpdateFunc) (*ComputedColumn, error) {
	if cc, err := t.existingComputed(name); cc != nil || err != nil {
		return cc, err
	}
	for _, dep := range deps {
		if dependent.Column(dep) == nil {
			return nil, tableErr(t, "add computed column "+name,
				fmt.Errorf("%w: %s.%s", ErrColumnNotFound, dependent.FullName(), dep))
		}
	}

	cc := &ComputedColumn{
		kind:      callbackBound,
		owner:     t,
		dependent: dependent,
		deps:      slices.Clone(deps),
		update:    fn,
	}
	t.attachComputed(name, typ, cc)
	dependent.Subscribe(cc)
	return cc, nil
}

func (t *Table) attachComputed(name string, typ ColumnType, cc *ComputedColumn) {
	col := &Column{Name: name, Type: typ, Declared: string(typ), computed: cc}
	cc.column = col
	t.addColumn(col)
}

// dropComputedFor removes computed columns that read from a table of schema.
func (t *Table) dropComputedFor(schema string) {
	kept := t.columns[:0]
	for _, c := range t.columns {
		cc := c.computed
		if cc != nil && ((cc.relation != nil && cc.relation.touches(schema)) ||
			(cc.dependent != nil && cc.dependent.Schema() == schema)) {
			delete(t.byName, c.Name)
			for _, r := range t.rows {
				delete(r.values, c.Name)
			}
			continue
		}
		kept = append(kept, c)
	}
	clear(t.columns[len(kept):])
	t.columns = kept
}

func (t *Table) computedCount() int {
	n := 0
	for _, c := range t.columns {
		if c.computed != nil {
			n++
		}
	}
	return n
}
