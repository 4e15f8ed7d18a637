package repository

import (
	"strings"
)

// RowIDAlias is the name under which every load selects SQLite's rowid.
// Updates and deletes are addressed by it instead of the declared primary key.
const RowIDAlias = "_rid"

// ColumnType is the normalized declared type of a column.
type ColumnType string

const (
	TypeInteger  ColumnType = "INTEGER"
	TypeReal     ColumnType = "REAL"
	TypeNumeric  ColumnType = "NUMERIC"
	TypeText     ColumnType = "TEXT"
	TypeBlob     ColumnType = "BLOB"
	TypeBoolean  ColumnType = "BOOLEAN"
	TypeDateTime ColumnType = "DATETIME"
	// TypeDecimal is a decimal kept as text, declared as e.g. "DECIMAL TEXT".
	// NUMERIC columns hold only what survives a float64.
	TypeDecimal ColumnType = "DECIMAL"
)

// ParseColumnType maps a declared SQLite type to a ColumnType using the
// affinity rules, with BOOLEAN and DATETIME split out.
func ParseColumnType(declared string) ColumnType {
	d := strings.ToUpper(declared)
	switch {
	case strings.Contains(d, "BOOL"):
		return TypeBoolean
	case strings.Contains(d, "INT"):
		return TypeInteger
	case strings.Contains(d, "DEC") &&
		(strings.Contains(d, "CHAR") || strings.Contains(d, "CLOB") || strings.Contains(d, "TEXT")):
		return TypeDecimal
	case strings.Contains(d, "DATE"), strings.Contains(d, "TIME"):
		return TypeDateTime
	case strings.Contains(d, "CHAR"), strings.Contains(d, "CLOB"), strings.Contains(d, "TEXT"):
		return TypeText
	case d == "", strings.Contains(d, "BLOB"):
		return TypeBlob
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"):
		return TypeReal
	default:
		return TypeNumeric
	}
}

// ColumnFlag marks how a column takes part in generated SQL.
type ColumnFlag uint8

const (
	// ExcludeFromInsert keeps the column out of INSERT column lists.
	ExcludeFromInsert ColumnFlag = 1 << iota
	// ExcludeFromUpdate keeps the column out of UPDATE SET lists.
	ExcludeFromUpdate
	// ReceivesGeneratedID is back-filled with the store's generated id after insert.
	ReceivesGeneratedID
	// ColumnReadOnly keeps the column out of all generated SQL and rejects writes.
	ColumnReadOnly
)

// GeneratedID is the usual flag set of an INTEGER PRIMARY KEY column.
const GeneratedID = ReceivesGeneratedID | ExcludeFromInsert | ExcludeFromUpdate

// Column describes one column of a table.
type Column struct {
	Name       string
	Type       ColumnType
	Declared   string
	Flags      ColumnFlag
	NotNull    bool
	PrimaryKey bool

	// Default is applied by Table.NewRow. It starts as the parsed catalog default.
	Default any

	computed *ComputedColumn
}

// Has reports whether every bit of f is set.
func (c *Column) Has(f ColumnFlag) bool {
	return c.Flags&f == f
}

// IsComputed reports whether the column is derived instead of stored.
func (c *Column) IsComputed() bool {
	return c.computed != nil
}

// Computed returns the computed column definition, or nil for stored columns.
func (c *Column) Computed() *ComputedColumn {
	return c.computed
}

// persistent reports whether the column may appear in generated SQL at all.
func (c *Column) persistent() bool {
	return c.computed == nil && c.Name != RowIDAlias && !c.Has(ColumnReadOnly)
}

func (c *Column) insertable() bool {
	return c.persistent() && !c.Has(ExcludeFromInsert)
}

func (c *Column) updatable() bool {
	return c.persistent() && !c.Has(ExcludeFromUpdate)
}
