// Package codec reads and writes table snapshots in JSON, YAML and
// MessagePack.
package codec

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"rowcache/internal/repository"
)

// Importer interface for importing table snapshots from various formats
type Importer interface {
	Parse(r io.Reader) ([]repository.TableData, error)
	Format() string
}

// Exporter interface for exporting table snapshots to various formats
type Exporter interface {
	Export(tables []repository.TableData, w io.Writer) error
	Format() string
}

// Codec both imports and exports one format
type Codec interface {
	Importer
	Exporter
}

// Formats returns the supported format identifiers
func Formats() []string {
	return []string{"json", "yaml", "msgpack"}
}

// ForFormat returns the codec for a format identifier
func ForFormat(format string) (Codec, error) {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONCodec(), nil
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	case "msgpack", "mp":
		return NewMsgpackCodec(), nil
	}
	return nil, fmt.Errorf("unsupported format %q (want one of %s)", format, strings.Join(Formats(), ", "))
}

// ForPath picks the codec from a file extension
func ForPath(path string) (Codec, error) {
	return ForFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// document is the top-level shape shared by all formats
type document struct {
	Tables []repository.TableData `json:"tables" yaml:"tables" msgpack:"tables"`
}

// normalizeRows converts decoder-specific numeric types into int64 or float64
func normalizeRows(tables []repository.TableData) error {
	for _, td := range tables {
		for i, row := range td.Rows {
			for j, v := range row {
				nv, err := normalizeValue(v)
				if err != nil {
					return fmt.Errorf("%s row %d column %d: %w", td.Table, i+1, j+1, err)
				}
				row[j] = nv
			}
		}
	}
	return nil
}

func normalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint:
		return unsigned(uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return unsigned(x)
	case float32:
		return float64(x), nil
	case jsonNumber:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		if f, err := x.Float64(); err == nil {
			return f, nil
		}
		return x.String(), nil
	}
	return v, nil
}

func unsigned(n uint64) (any, error) {
	if n > math.MaxInt64 {
		return nil, fmt.Errorf("integer %d overflows int64", n)
	}
	return int64(n), nil
}

func checkTables(tables []repository.TableData) error {
	for _, td := range tables {
		if td.Table == "" {
			return fmt.Errorf("table entry without a name")
		}
		for i, row := range td.Rows {
			if len(row) != len(td.Columns) {
				return fmt.Errorf("%s row %d has %d values, want %d", td.Table, i+1, len(row), len(td.Columns))
			}
		}
	}
	return nil
}
