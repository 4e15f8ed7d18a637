package codec

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"rowcache/internal/repository"
)

type jsonNumber = json.Number

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Parse imports table snapshots from JSON. Integers keep their precision.
func (c *JSONCodec) Parse(r io.Reader) ([]repository.TableData, error) {
	var doc document
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if err := checkTables(doc.Tables); err != nil {
		return nil, err
	}
	if err := normalizeRows(doc.Tables); err != nil {
		return nil, err
	}
	return doc.Tables, nil
}

// Export exports table snapshots to JSON
func (c *JSONCodec) Export(tables []repository.TableData, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(document{Tables: tables}); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
