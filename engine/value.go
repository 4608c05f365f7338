package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ============================================================================
// VALUE: Tagged scalar held in a row cell
// ============================================================================
// A cell is a string, a number, or null. Numeric coercion is explicit:
// Float() answers whether the cell can be read as a number at all.
// ============================================================================

// Kind tags the variant stored in a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
)

// Value is a comparable scalar: safe to use as a map key.
type Value struct {
	kind Kind
	str  string
	num  float64
}

// Null returns the null value.
func Null() Value { return Value{} }

// String wraps a string cell.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a numeric cell.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Float coerces v to a number. Strings are parsed after trimming spaces;
// empty or non-numeric strings and nulls are not numeric.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		s := strings.TrimSpace(v.str)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Text renders v for keys, CSV cells and sorting. Null renders empty.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return ""
}

func (v Value) String() string {
	if v.kind == KindNull {
		return "<null>"
	}
	return v.Text()
}

// Interface converts v to a plain Go value (string, float64 or nil).
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	}
	return nil
}

// ValueOf converts a plain Go value into a Value. Unsupported types are
// rendered with fmt and stored as strings.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return Number(f)
		}
		return String(t.String())
	case bool:
		return String(strconv.FormatBool(t))
	}
	return String(fmt.Sprint(x))
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return err
	}
	switch x.(type) {
	case nil, string, json.Number:
		*v = ValueOf(x)
		return nil
	}
	return fmt.Errorf("engine: cannot decode %s into a scalar value", string(data))
}

// lessValue orders values by their text, then by kind so that "1" and 1
// have a stable relative order.
func lessValue(a, b Value) bool {
	at, bt := a.Text(), b.Text()
	if at != bt {
		return at < bt
	}
	return a.kind < b.kind
}

// ============================================================================
// ROW
// ============================================================================

// Row maps a field key to its cell. Rows are never mutated by the engine.
type Row map[string]Value

// Get returns the cell at key, or null when the row has no such field.
func (r Row) Get(key string) Value {
	if r == nil {
		return Null()
	}
	return r[key]
}

// Map converts the row to plain Go values, e.g. for expression evaluation.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r))
	for k, v := range r {
		m[k] = v.Interface()
	}
	return m
}

// RowFromMap builds a Row from plain Go values.
func RowFromMap(m map[string]any) Row {
	r := make(Row, len(m))
	for k, v := range m {
		r[k] = ValueOf(v)
	}
	return r
}
