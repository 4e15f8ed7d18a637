package codec

import (
	"fmt"
	"io"
	"sort"

	"rowcache/internal/repository"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML import/export. Rows are written as mappings so the
// files stay readable and editable by hand.
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// yamlDocument represents the YAML structure for table snapshots
type yamlDocument struct {
	Tables []yamlTable `yaml:"tables"`
}

type yamlTable struct {
	Schema  string           `yaml:"schema,omitempty"`
	Table   string           `yaml:"table"`
	Columns []string         `yaml:"columns,omitempty"`
	Rows    []map[string]any `yaml:"rows"`
}

// Parse imports table snapshots from YAML. When a table lists no columns,
// the sorted union of its row keys is used.
func (c *YAMLCodec) Parse(r io.Reader) ([]repository.TableData, error) {
	var yd yamlDocument
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&yd); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	tables := make([]repository.TableData, 0, len(yd.Tables))
	for _, yt := range yd.Tables {
		td := repository.TableData{
			Schema:  yt.Schema,
			Table:   yt.Table,
			Columns: yt.Columns,
			Rows:    make([][]any, 0, len(yt.Rows)),
		}
		if len(td.Columns) == 0 {
			td.Columns = rowKeys(yt.Rows)
		}
		for _, row := range yt.Rows {
			values := make([]any, len(td.Columns))
			for i, col := range td.Columns {
				values[i] = row[col]
			}
			td.Rows = append(td.Rows, values)
		}
		tables = append(tables, td)
	}

	if err := checkTables(tables); err != nil {
		return nil, err
	}
	if err := normalizeRows(tables); err != nil {
		return nil, err
	}
	return tables, nil
}

func rowKeys(rows []map[string]any) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// Export exports table snapshots to YAML
func (c *YAMLCodec) Export(tables []repository.TableData, w io.Writer) error {
	yd := yamlDocument{
		Tables: make([]yamlTable, 0, len(tables)),
	}

	for _, td := range tables {
		yt := yamlTable{
			Schema:  td.Schema,
			Table:   td.Table,
			Columns: td.Columns,
			Rows:    make([]map[string]any, 0, len(td.Rows)),
		}
		for _, values := range td.Rows {
			row := make(map[string]any, len(values))
			for i, col := range td.Columns {
				if i < len(values) {
					row[col] = values[i]
				}
			}
			yt.Rows = append(yt.Rows, row)
		}
		yd.Tables = append(yd.Tables, yt)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&yd); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
