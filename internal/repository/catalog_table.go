package repository

import "strings"

// CatalogTable is a Definition for a table known only by name, such as the
// tables the CLI discovers in the catalog or names in a seed file.
type CatalogTable struct {
	Table

	schemaName string
	tableName  string

	// CreateDDL is used when the table does not exist yet.
	CreateDDL string
	// Seeds are inserted when the table exists but is empty.
	Seeds []map[string]any
	// ColumnFlags overrides the flags of the named columns.
	ColumnFlags map[string]ColumnFlag
	// Filter restricts what the controller loads.
	Filter LoadOptions
	// Locked registers the table read-only.
	Locked bool
}

// NewCatalogTable returns a definition for schema.name. An empty schema means main.
func NewCatalogTable(schema, name string) *CatalogTable {
	return &CatalogTable{schemaName: schema, tableName: name}
}

// TableName implements Definition.
func (ct *CatalogTable) TableName() string { return ct.tableName }

// SchemaName implements Definition.
func (ct *CatalogTable) SchemaName() string { return ct.schemaName }

// DDL implements Definition.
func (ct *CatalogTable) DDL() string { return ct.CreateDDL }

// Configure flags a lone INTEGER PRIMARY KEY as the generated id, then
// applies ColumnFlags and Locked.
func (ct *CatalogTable) Configure(t *Table) error {
	var pks []*Column
	for _, c := range t.Columns() {
		if c.PrimaryKey {
			pks = append(pks, c)
		}
	}
	if len(pks) == 1 && strings.EqualFold(strings.TrimSpace(pks[0].Declared), "INTEGER") {
		pks[0].Flags |= GeneratedID
	}
	for name, flags := range ct.ColumnFlags {
		if err := t.SetColumnFlags(name, flags); err != nil {
			return err
		}
	}
	t.SetReadOnly(ct.Locked)
	return nil
}

// SeedRows implements Seeder.
func (ct *CatalogTable) SeedRows() []map[string]any { return ct.Seeds }

// DefaultLoadOptions implements DefaultLoader.
func (ct *CatalogTable) DefaultLoadOptions() LoadOptions { return ct.Filter }
