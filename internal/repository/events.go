package repository

import "slices"

// RowAction is the kind of row-level change being reported.
type RowAction string

const (
	RowActionAdd    RowAction = "add"
	RowActionChange RowAction = "change"
	RowActionDelete RowAction = "delete"
	// RowActionRollback is published for every row RejectChanges restored or removed.
	RowActionRollback RowAction = "rollback"
)

// ColumnChangeEvent is published after a column value of a row changed.
type ColumnChangeEvent struct {
	Table  *Table
	Row    *Row
	Column string
	Old    any
	New    any
}

// RowChangeEvent is published once per row-mutation batch, after all of the
// batch's column change events.
type RowChangeEvent struct {
	Table  *Table
	Row    *Row
	Action RowAction
}

// ChangeListener receives a table's change notifications synchronously.
type ChangeListener interface {
	ColumnChanged(ev ColumnChangeEvent)
	RowChanged(ev RowChangeEvent)
}

// ListenerFuncs adapts plain functions to ChangeListener. Nil fields are skipped.
type ListenerFuncs struct {
	OnColumn func(ColumnChangeEvent)
	OnRow    func(RowChangeEvent)
}

// ColumnChanged implements ChangeListener.
func (f ListenerFuncs) ColumnChanged(ev ColumnChangeEvent) {
	if f.OnColumn != nil {
		f.OnColumn(ev)
	}
}

// RowChanged implements ChangeListener.
func (f ListenerFuncs) RowChanged(ev RowChangeEvent) {
	if f.OnRow != nil {
		f.OnRow(ev)
	}
}

// eventBus fans notifications out to subscribers in subscription order.
type eventBus struct {
	subscribers []ChangeListener
}

func (eb *eventBus) subscribe(l ChangeListener) {
	eb.subscribers = append(eb.subscribers, l)
}

func (eb *eventBus) publishColumn(ev ColumnChangeEvent) {
	for _, l := range eb.subscribers {
		l.ColumnChanged(ev)
	}
}

func (eb *eventBus) publishRow(ev RowChangeEvent) {
	for _, l := range eb.subscribers {
		l.RowChanged(ev)
	}
}

// drop removes every subscriber for which match reports true.
func (eb *eventBus) drop(match func(ChangeListener) bool) {
	eb.subscribers = slices.DeleteFunc(eb.subscribers, match)
}

func (eb *eventBus) reset() {
	eb.subscribers = nil
}
