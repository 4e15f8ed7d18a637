package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RowWrapper gives typed access to one row of a known table type.
// Application row types embed it and add named accessors.
type RowWrapper struct {
	row      *Row
	onChange func(column string)
}

// WrapOption configures a RowWrapper.
type WrapOption func(*RowWrapper)

// WithChangeHook sets a function called after every setter that changed a value.
func WithChangeHook(fn func(column string)) WrapOption {
	return func(w *RowWrapper) {
		w.onChange = fn
	}
}

// Wrap binds row to a wrapper after checking that it belongs to the
// registered table type T.
func Wrap[T any, PT tablePtr[T]](row *Row, opts ...WrapOption) (*RowWrapper, error) {
	if row == nil || row.table == nil {
		return nil, ErrRowDetached
	}
	if _, ok := row.table.def.(PT); !ok {
		return nil, fmt.Errorf("%w: row of %s, want %T", ErrTypeMismatch, row.table.FullName(), PT(nil))
	}
	w := &RowWrapper{row: row}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Row returns the wrapped row.
func (w *RowWrapper) Row() *Row {
	return w.row
}

// IsNull reports whether column holds SQL NULL.
func (w *RowWrapper) IsNull(column string) bool {
	return w.row.Get(column) == nil
}

func (w *RowWrapper) set(column string, v any) (bool, error) {
	changed, err := w.row.Set(column, v)
	if err != nil || !changed {
		return false, err
	}
	if w.onChange != nil {
		w.onChange(column)
	}
	return true, nil
}

// Int64 returns column as an integer, or 0 for NULL.
func (w *RowWrapper) Int64(column string) int64 {
	n, _ := asInt64OrNil(w.row.Get(column))
	return n
}

// SetInt64 writes column and reports whether the value changed.
func (w *RowWrapper) SetInt64(column string, v int64) (bool, error) {
	return w.set(column, v)
}

// Decimal returns column as a decimal, or zero for NULL.
func (w *RowWrapper) Decimal(column string) decimal.Decimal {
	if d, ok := asDecimal(w.row.Get(column)); ok {
		return d
	}
	return decimal.Zero
}

// SetDecimal writes column and reports whether the value changed.
func (w *RowWrapper) SetDecimal(column string, v decimal.Decimal) (bool, error) {
	return w.set(column, v)
}

// Text returns column as a string, or "" for NULL.
func (w *RowWrapper) Text(column string) string {
	s, _ := asString(w.row.Get(column))
	return s
}

// SetText writes column; the empty string is stored as NULL.
func (w *RowWrapper) SetText(column, v string) (bool, error) {
	if v == "" {
		return w.set(column, nil)
	}
	return w.set(column, v)
}

// Bool returns column as a boolean, or false for NULL.
func (w *RowWrapper) Bool(column string) bool {
	b, _ := asBool(w.row.Get(column))
	return b
}

// SetBool writes column and reports whether the value changed.
func (w *RowWrapper) SetBool(column string, v bool) (bool, error) {
	return w.set(column, v)
}

// Time returns column as a time, or the zero time for NULL.
func (w *RowWrapper) Time(column string) time.Time {
	t, _ := asTime(w.row.Get(column))
	return t
}

// SetTime writes column; the zero time is stored as NULL.
func (w *RowWrapper) SetTime(column string, v time.Time) (bool, error) {
	if v.IsZero() {
		return w.set(column, nil)
	}
	return w.set(column, v)
}

// NullTime returns column as a nullable time.
func (w *RowWrapper) NullTime(column string) sql.NullTime {
	t, ok := asTime(w.row.Get(column))
	return sql.NullTime{Time: t, Valid: ok}
}

// SetNullTime writes column; an invalid value is stored as NULL.
func (w *RowWrapper) SetNullTime(column string, v sql.NullTime) (bool, error) {
	if !v.Valid {
		return w.set(column, nil)
	}
	return w.set(column, v.Time)
}
