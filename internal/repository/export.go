package repository

import (
	"context"
	"fmt"
)

// TableData is a portable snapshot of a table's stored columns, used by the
// codecs and the CLI.
type TableData struct {
	Schema  string   `json:"schema" yaml:"schema" msgpack:"schema"`
	Table   string   `json:"table" yaml:"table" msgpack:"table"`
	Columns []string `json:"columns" yaml:"columns" msgpack:"columns"`
	Rows    [][]any  `json:"rows" yaml:"rows" msgpack:"rows"`
}

// Export returns the loaded stored columns of every row not marked deleted.
func (t *Table) Export() TableData {
	data := TableData{Schema: t.Schema(), Table: t.name}
	var cols []*Column
	for _, c := range t.storedColumns() {
		if t.isSelected(c.Name) {
			cols = append(cols, c)
			data.Columns = append(data.Columns, c.Name)
		}
	}
	data.Rows = make([][]any, 0, len(t.rows))
	for _, r := range t.rows {
		if r.state == RowDeleted {
			continue
		}
		vals := make([]any, len(cols))
		for i, c := range cols {
			vals[i] = exportValue(r.values[c.Name])
		}
		data.Rows = append(data.Rows, vals)
	}
	return data
}

func exportValue(v any) any {
	switch v.(type) {
	case nil, int64, float64, bool, string, []byte:
		return v
	}
	return storeValue(v)
}

// Import adds every row of data and saves the table together with any
// change already pending. Columns flagged ExcludeFromInsert are skipped. On
// failure only the imported rows are dropped; earlier edits stay pending. It
// returns the number of rows inserted.
func (t *Table) Import(ctx context.Context, data TableData) (int, error) {
	if t.readOnly {
		return 0, tableErr(t, "import", ErrReadOnly)
	}
	cols := make([]*Column, len(data.Columns))
	for i, name := range data.Columns {
		col := t.Column(name)
		if col == nil || col.computed != nil {
			return 0, tableErr(t, "import", fmt.Errorf("%w: %s", ErrColumnNotFound, name))
		}
		cols[i] = col
	}

	added := make([]*Row, 0, len(data.Rows))
	for i, vals := range data.Rows {
		if len(vals) != len(cols) {
			t.discardAdded(added)
			return 0, tableErr(t, "import", fmt.Errorf("row %d has %d values, want %d", i+1, len(vals), len(cols)))
		}
		r := t.newDefaultRow()
		for j, col := range cols {
			if !col.insertable() {
				continue
			}
			v := coerce(col.Type, vals[j])
			if err := checkStorable(col.Type, v); err != nil {
				t.discardAdded(added)
				return 0, tableErr(t, "import", fmt.Errorf("row %d column %s: %w", i+1, col.Name, err))
			}
			r.values[col.Name] = v
		}
		if err := t.Add(r); err != nil {
			t.discardAdded(added)
			return 0, err
		}
		added = append(added, r)
	}
	if err := t.Save(ctx); err != nil {
		t.discardAdded(added)
		return 0, err
	}
	return len(added), nil
}

// discardAdded drops the rows of added that are still waiting to be inserted.
func (t *Table) discardAdded(added []*Row) {
	for _, r := range added {
		if r.state != RowAdded {
			continue
		}
		r.reject()
		t.removeRow(r)
		t.bus.publishRow(RowChangeEvent{Table: t, Row: r, Action: RowActionRollback})
	}
}
