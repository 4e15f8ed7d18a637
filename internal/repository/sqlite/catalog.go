package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// MainSchema is the schema name of the database opened by Open.
const MainSchema = "main"

// ColumnInfo is one row of pragma_table_info.
type ColumnInfo struct {
	Name       string
	Type       string
	NotNull    bool
	Default    string
	HasDefault bool
	PKOrder    int
}

// QuoteIdent quotes an SQL identifier, doubling embedded quotes.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Qualified returns the quoted schema.table name. An empty schema means main.
func Qualified(schema, table string) string {
	return QuoteIdent(SchemaOrMain(schema)) + "." + QuoteIdent(table)
}

// SchemaOrMain maps the empty schema name to MainSchema.
func SchemaOrMain(schema string) string {
	if schema == "" {
		return MainSchema
	}
	return schema
}

// TableExists reports whether table exists in schema.
func TableExists(ctx context.Context, q Querier, schema, table string) (bool, error) {
	var n int
	query := "SELECT count(*) FROM " + QuoteIdent(SchemaOrMain(schema)) + ".sqlite_master WHERE type = 'table' AND name = ?"
	if err := q.QueryRowContext(ctx, query, table).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return n > 0, nil
}

// HasRows reports whether table holds at least one row.
func HasRows(ctx context.Context, q Querier, schema, table string) (bool, error) {
	var n int
	query := "SELECT EXISTS (SELECT 1 FROM " + Qualified(schema, table) + ")"
	if err := q.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return n != 0, nil
}

// Tables lists the user tables of schema in name order.
func Tables(ctx context.Context, q Querier, schema string) ([]string, error) {
	query := "SELECT name FROM " + QuoteIdent(SchemaOrMain(schema)) +
		".sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return names, nil
}

// Columns lists the declared columns of table in ordinal order.
func Columns(ctx context.Context, q Querier, schema, table string) ([]ColumnInfo, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?, ?) ORDER BY cid`,
		table, SchemaOrMain(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var (
			ci      ColumnInfo
			notNull int
			dflt    sql.NullString
		)
		if err := rows.Scan(&ci.Name, &ci.Type, &notNull, &dflt, &ci.PKOrder); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		ci.NotNull = notNull != 0
		ci.Default = nullToString(dflt)
		ci.HasDefault = dflt.Valid
		cols = append(cols, ci)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns of %s: %w", table, err)
	}
	return cols, nil
}

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
