// Package loader reads seed files: YAML documents that declare tables, their
// creation DDL and the rows to insert when a table is empty.
package loader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"rowcache/internal/repository"

	"gopkg.in/yaml.v3"
)

// SeedFileYAML represents the YAML file structure
type SeedFileYAML struct {
	Version int          `yaml:"version"`
	Schema  string       `yaml:"schema,omitempty"`
	Tables  []*TableYAML `yaml:"tables"`
}

// TableYAML represents one table entry
type TableYAML struct {
	Name     string              `yaml:"name"`
	Schema   string              `yaml:"schema,omitempty"`
	DDL      string              `yaml:"ddl,omitempty"`
	ReadOnly bool                `yaml:"read_only,omitempty"`
	Flags    map[string][]string `yaml:"flags,omitempty"`
	Where    string              `yaml:"where,omitempty"`
	OrderBy  string              `yaml:"order_by,omitempty"`
	Columns  []string            `yaml:"columns,omitempty"`
	Rows     []map[string]any    `yaml:"rows,omitempty"`
}

var flagNames = map[string]repository.ColumnFlag{
	"exclude_insert":        repository.ExcludeFromInsert,
	"exclude_update":        repository.ExcludeFromUpdate,
	"receives_generated_id": repository.ReceivesGeneratedID,
	"generated_id":          repository.GeneratedID,
	"read_only":             repository.ColumnReadOnly,
}

// LoadYAML loads a seed file from disk
func LoadYAML(path string) (*SeedFileYAML, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return ParseYAML(data)
}

// ParseYAML parses a seed file from YAML bytes
func ParseYAML(data []byte) (*SeedFileYAML, error) {
	var sf SeedFileYAML
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	seen := make(map[string]bool)
	for i, t := range sf.Tables {
		if t == nil || t.Name == "" {
			return nil, fmt.Errorf("table entry %d has no name", i+1)
		}
		key := t.schema(sf.Schema) + "." + t.Name
		if seen[key] {
			return nil, fmt.Errorf("table %s declared twice", t.Name)
		}
		seen[key] = true
	}

	return &sf, nil
}

func (t *TableYAML) schema(fileSchema string) string {
	if t.Schema != "" {
		return t.Schema
	}
	return fileSchema
}

// Definitions converts the file into catalog table definitions, in file order.
func (sf *SeedFileYAML) Definitions() ([]*repository.CatalogTable, error) {
	defs := make([]*repository.CatalogTable, 0, len(sf.Tables))
	for _, t := range sf.Tables {
		def := repository.NewCatalogTable(t.schema(sf.Schema), t.Name)
		def.CreateDDL = t.DDL
		def.Locked = t.ReadOnly
		def.Seeds = t.Rows
		def.Filter = repository.LoadOptions{
			Where:   t.Where,
			OrderBy: t.OrderBy,
			Columns: t.Columns,
		}

		if len(t.Flags) > 0 {
			def.ColumnFlags = make(map[string]repository.ColumnFlag, len(t.Flags))
			for column, names := range t.Flags {
				var flags repository.ColumnFlag
				for _, name := range names {
					f, ok := flagNames[strings.ToLower(strings.TrimSpace(name))]
					if !ok {
						return nil, fmt.Errorf("table %s column %s: unknown flag %q", t.Name, column, name)
					}
					flags |= f
				}
				def.ColumnFlags[column] = flags
			}
		}

		defs = append(defs, def)
	}
	return defs, nil
}

// Mount registers every table of the file with the controller. Tables that
// already exist keep their rows; empty ones receive the seed rows.
func (sf *SeedFileYAML) Mount(ctx context.Context, c *repository.Controller) ([]*repository.Table, error) {
	defs, err := sf.Definitions()
	if err != nil {
		return nil, err
	}

	tables := make([]*repository.Table, 0, len(defs))
	for _, def := range defs {
		if t, err := c.Table(def.SchemaName(), def.TableName()); err == nil {
			tables = append(tables, t)
			continue
		}
		t, err := c.Mount(ctx, def)
		if err != nil {
			return tables, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}
