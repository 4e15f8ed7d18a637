package codec

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"rowcache/internal/repository"
)

// MsgpackCodec handles MessagePack import/export
type MsgpackCodec struct{}

// NewMsgpackCodec creates a new MessagePack codec
func NewMsgpackCodec() *MsgpackCodec {
	return &MsgpackCodec{}
}

// Format returns the codec format identifier
func (c *MsgpackCodec) Format() string {
	return "msgpack"
}

// Parse imports table snapshots from MessagePack
func (c *MsgpackCodec) Parse(r io.Reader) ([]repository.TableData, error) {
	var doc document
	if err := msgpack.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse MessagePack: %w", err)
	}
	if err := checkTables(doc.Tables); err != nil {
		return nil, err
	}
	if err := normalizeRows(doc.Tables); err != nil {
		return nil, err
	}
	return doc.Tables, nil
}

// Export exports table snapshots to MessagePack
func (c *MsgpackCodec) Export(tables []repository.TableData, w io.Writer) error {
	if err := msgpack.NewEncoder(w).Encode(document{Tables: tables}); err != nil {
		return fmt.Errorf("failed to encode MessagePack: %w", err)
	}
	return nil
}
