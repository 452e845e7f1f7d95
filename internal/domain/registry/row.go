// Package registry models rows of the product registry. The column set is
// schema-driven and not fixed at compile time, so a row is an ordered mapping
// from column name to a tagged value rather than a struct.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ValueKind tags the dynamic type of a column value.
type ValueKind int

const (
	// KindNull is an SQL NULL.
	KindNull ValueKind = iota
	// KindString is a text value.
	KindString
	// KindInt is an integer value.
	KindInt
	// KindFloat is a decimal value, serialized as a JSON number.
	KindFloat
	// KindBool is a boolean value.
	KindBool
	// KindDate is a date value, serialized as an ISO-8601 string.
	KindDate
	// KindTime is a timestamp value, serialized as an ISO-8601 string.
	KindTime
)

// Value is a tagged column value.
type Value struct {
	kind ValueKind
	str  string
	i    int64
	f    float64
	b    bool
	t    time.Time
}

// Null returns a NULL value.
func Null() Value { return Value{kind: KindNull} }

// String returns a text value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a decimal value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Date returns a date value.
func Date(t time.Time) Value { return Value{kind: KindDate, t: t} }

// Time returns a timestamp value.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

// Kind reports the tagged type.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is NULL.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the textual form of the value.
func (v Value) AsString() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDate:
		return v.t.Format("2006-01-02")
	case KindTime:
		return v.t.Format(time.RFC3339)
	default:
		return ""
	}
}

// AsFloat returns the numeric form of the value, or 0 for non-numeric kinds.
func (v Value) AsFloat() float64 {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindInt:
		return float64(v.i)
	default:
		return 0
	}
}

// AsInt returns the integer form of the value, or 0 for non-integer kinds.
func (v Value) AsInt() int64 {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return int64(v.f)
	default:
		return 0
	}
}

// MarshalJSON serializes dates as ISO-8601 strings and decimals as numbers.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	case KindDate:
		return json.Marshal(v.t.Format("2006-01-02"))
	case KindTime:
		return json.Marshal(v.t.Format(time.RFC3339))
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

// Row is one registry record: an ordered set of named column values.
type Row struct {
	columns []string
	values  map[string]Value
}

// NewRow creates an empty row.
func NewRow() *Row {
	return &Row{values: make(map[string]Value)}
}

// Set stores a column value, appending the column at the end of the order if
// it is new.
func (r *Row) Set(column string, v Value) {
	if _, ok := r.values[column]; !ok {
		r.columns = append(r.columns, column)
	}
	r.values[column] = v
}

// Get returns a column value and whether the column exists.
func (r *Row) Get(column string) (Value, bool) {
	v, ok := r.values[column]
	return v, ok
}

// Delete removes a column from the row, preserving the order of the rest.
func (r *Row) Delete(column string) {
	if _, ok := r.values[column]; !ok {
		return
	}
	delete(r.values, column)
	for i, c := range r.columns {
		if c == column {
			r.columns = append(r.columns[:i], r.columns[i+1:]...)
			break
		}
	}
}

// Columns returns column names in order.
func (r *Row) Columns() []string { return r.columns }

// Len returns the number of columns.
func (r *Row) Len() int { return len(r.columns) }

// ID returns the value of the "id" column, or 0 if absent. Rows are
// deduplicated by this identifier during ranking.
func (r *Row) ID() int64 {
	v, ok := r.values["id"]
	if !ok {
		return 0
	}
	return v.AsInt()
}

// ProductName returns the "productname" column as text, or "".
func (r *Row) ProductName() string {
	v, ok := r.values["productname"]
	if !ok || v.IsNull() {
		return ""
	}
	return v.AsString()
}

// Distance returns the vector distance column, or +Inf when absent so that
// unscored rows sort last.
func (r *Row) Distance() float64 {
	v, ok := r.values["distance"]
	if !ok || v.IsNull() {
		return math.Inf(1)
	}
	return v.AsFloat()
}

// MarshalJSON serializes the row as a JSON object preserving column order.
func (r *Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[col])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
