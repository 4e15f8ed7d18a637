package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"rowcache/internal/repository/sqlite"
)

// personTable is the application table used across the tests.
type personTable struct {
	Table
	shutdownCalls int
}

func (*personTable) TableName() string  { return "person" }
func (*personTable) SchemaName() string { return "" }

func (*personTable) DDL() string {
	return `CREATE TABLE "{schema}"."{table}" (
		id       INTEGER PRIMARY KEY,
		name     TEXT,
		nickname TEXT,
		balance  NUMERIC,
		active   BOOLEAN,
		born     DATETIME,
		verified DATETIME,
		savings  DECIMAL TEXT
	)`
}

func (*personTable) Configure(t *Table) error {
	if err := t.SetColumnFlags("id", GeneratedID); err != nil {
		return err
	}
	return t.SetColumnFlags("nickname", ExcludeFromUpdate)
}

func (p *personTable) OnShutdown() { p.shutdownCalls++ }

// hookTable is a catalog table with pluggable initialization hooks.
type hookTable struct {
	CatalogTable
	relations func(c *Controller, t *Table) error
	computed  func(c *Controller, t *Table) error
	builds    int
}

func newHookTable(name, ddl string) *hookTable {
	h := &hookTable{CatalogTable: *NewCatalogTable("", name)}
	h.CreateDDL = ddl
	return h
}

func (h *hookTable) BuildRelations(c *Controller) error {
	if h.relations == nil {
		return nil
	}
	return h.relations(c, &h.Table)
}

func (h *hookTable) BuildComputedColumns(c *Controller) error {
	h.builds++
	if h.computed == nil {
		return nil
	}
	return h.computed(c, &h.Table)
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	return openTestController(t, sqlite.MemoryPath)
}

func openTestController(t *testing.T, path string) *Controller {
	t.Helper()
	c := NewController()
	require.NoError(t, c.Open(path))
	t.Cleanup(func() {
		_ = c.Shutdown(context.Background(), false)
	})
	return c
}

func registerPerson(t *testing.T, c *Controller) *personTable {
	t.Helper()
	p, err := RegisterTable[personTable](context.Background(), c)
	require.NoError(t, err)
	return p
}

func mountTable(t *testing.T, c *Controller, def Definition) *Table {
	t.Helper()
	tbl, err := c.Mount(context.Background(), def)
	require.NoError(t, err)
	return tbl
}

// newMockTable builds a person-like table on a sqlmock connection that
// matches statements exactly.
func newMockTable(t *testing.T) (*Table, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c := NewController(WithOpenFunc(func(string) (*sql.DB, error) { return db, nil }))
	require.NoError(t, c.Open("mock.db"))

	tbl := &Table{ctrl: c, name: "person", byName: make(map[string]*Column)}
	tbl.addColumn(&Column{Name: "id", Type: TypeInteger, Flags: GeneratedID, PrimaryKey: true})
	tbl.addColumn(&Column{Name: "name", Type: TypeText})
	tbl.addColumn(&Column{Name: "nickname", Type: TypeText, Flags: ExcludeFromUpdate})
	tbl.addColumn(&Column{Name: RowIDAlias, Type: TypeInteger, Flags: ColumnReadOnly})
	return tbl, mock
}

func countRows(t *testing.T, c *Controller, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, c.DB().QueryRow(query, args...).Scan(&n))
	return n
}

func mustSet(t *testing.T, r *Row, column string, v any) {
	t.Helper()
	_, err := r.Set(column, v)
	require.NoError(t, err)
}

func addRow(t *testing.T, tbl *Table, values map[string]any) *Row {
	t.Helper()
	r, err := tbl.NewRow()
	require.NoError(t, err)
	for k, v := range values {
		mustSet(t, r, k, v)
	}
	require.NoError(t, tbl.Add(r))
	return r
}
