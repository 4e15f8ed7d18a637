package repository

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// timeLayouts are tried in order when a DATETIME value comes back as text.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	time.RFC3339Nano,
}

// normalize converts a Go value into the representation rows store.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint:
		if uint64(x) <= math.MaxInt64 {
			return int64(x)
		}
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x)
		}
	case float32:
		return float64(x)
	case []byte:
		return bytes.Clone(x)
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case decimal.Decimal:
		return x
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return v
		}
		return normalize(dv)
	}
	return v
}

// fromStore converts a scanned driver value according to the column's declared type.
func fromStore(t ColumnType, v any) any {
	switch x := v.(type) {
	case []byte:
		if t == TypeBlob {
			return bytes.Clone(x)
		}
		v = string(x)
	case int64:
		if t == TypeBoolean {
			return x != 0
		}
	}
	if t == TypeDecimal {
		if d, ok := asDecimal(v); ok {
			return d
		}
	}
	return v
}

// valuesEqual compares two stored values, tolerating the representation
// differences between what was written and what the driver returns.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case time.Time:
		y, ok := asTime(b)
		return ok && x.Equal(y)
	case decimal.Decimal:
		y, ok := asDecimal(b)
		return ok && x.Equal(y)
	case bool:
		y, ok := asBool(b)
		return ok && x == y
	case []byte:
		switch y := b.(type) {
		case []byte:
			return bytes.Equal(x, y)
		case string:
			return string(x) == y
		}
		return false
	}
	switch b.(type) {
	case time.Time, decimal.Decimal, bool, []byte:
		return valuesEqual(b, a)
	}
	return reflect.DeepEqual(a, b)
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case float64:
		return int64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n, err == nil
	case decimal.Decimal:
		return x.IntPart(), true
	}
	return 0, false
}

func asBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case int64:
		return x != 0, true
	case float64:
		return x != 0, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return b, err == nil
	}
	return false, false
}

func asString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	case time.Time:
		return x.Format(time.RFC3339Nano), true
	case decimal.Decimal:
		return x.String(), true
	case nil:
		return "", false
	}
	return fmt.Sprint(v), true
}

func asDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case int64:
		return decimal.NewFromInt(x), true
	case float64:
		return decimal.NewFromFloat(x), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		return d, err == nil
	case []byte:
		d, err := decimal.NewFromString(strings.TrimSpace(string(x)))
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case int64:
		return time.Unix(x, 0).UTC(), true
	case []byte:
		return asTime(string(x))
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// DefaultFunc is a column default evaluated each time a row is created.
type DefaultFunc func() any

func resolveDefault(v any) any {
	if f, ok := v.(DefaultFunc); ok {
		return f()
	}
	return v
}

// zeroValue is the type default used by AddDefaultRow.
func zeroValue(t ColumnType) any {
	switch t {
	case TypeInteger:
		return int64(0)
	case TypeReal:
		return float64(0)
	case TypeNumeric, TypeDecimal:
		return decimal.Zero
	case TypeText:
		return ""
	case TypeBoolean:
		return false
	case TypeDateTime:
		return time.Now().UTC()
	}
	return nil
}

// parseDefault turns a catalog dflt_value literal into a value. Expressions
// it does not understand yield ok == false and are left to the store.
func parseDefault(t ColumnType, literal string) (any, bool) {
	s := strings.TrimSpace(literal)
	for strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	upper := strings.ToUpper(s)
	switch {
	case s == "":
		return nil, false
	case upper == "NULL":
		return nil, true
	case upper == "TRUE":
		return true, true
	case upper == "FALSE":
		return false, true
	case upper == "CURRENT_TIMESTAMP", upper == "CURRENT_DATE", upper == "CURRENT_TIME":
		return DefaultFunc(func() any { return time.Now().UTC() }), true
	case len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'':
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'"), true
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if t == TypeBoolean {
			return n != 0, true
		}
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	return nil, false
}

// coerce converts a loosely typed value, such as one decoded from JSON or
// YAML, into the representation of the column type. Values that do not
// convert are returned normalized but otherwise unchanged.
func coerce(t ColumnType, v any) any {
	v = normalize(v)
	if v == nil {
		return nil
	}
	var (
		out any
		ok  bool
	)
	switch t {
	case TypeInteger:
		if f, isFloat := v.(float64); isFloat && f != float64(int64(f)) {
			return v
		}
		out, ok = asInt64(v)
	case TypeBoolean:
		out, ok = asBool(v)
	case TypeNumeric, TypeDecimal:
		out, ok = asDecimal(v)
	case TypeDateTime:
		out, ok = asTime(v)
	case TypeText:
		if _, isBlob := v.([]byte); isBlob {
			out, ok = asString(v)
		}
	}
	if !ok {
		return v
	}
	return out
}

// checkStorable rejects normalized values the store cannot hold exactly:
// unsigned integers above math.MaxInt64, and decimals that a NUMERIC column
// would round. SQLite keeps integers that fit in 64 bits and stores any
// other number as a REAL.
func checkStorable(t ColumnType, v any) error {
	switch v.(type) {
	case uint, uint64:
		return ErrOutOfRange
	}
	d, ok := v.(decimal.Decimal)
	if !ok || t != TypeNumeric {
		return nil
	}
	if d.IsInteger() && d.BigInt().IsInt64() {
		return nil
	}
	if !decimal.NewFromFloat(d.InexactFloat64()).Equal(d) {
		return ErrPrecisionLoss
	}
	return nil
}
