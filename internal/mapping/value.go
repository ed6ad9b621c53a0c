// Package mapping turns raw spreadsheet rows into ERP-ready records using a
// user-authored column mapping: it validates the mapping itself at save time,
// and validates/transforms each row at import time.
package mapping

import (
	"strconv"
	"strings"
	"time"
)

// Kind tags the closed set of scalar kinds a cell value can hold.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindDate
)

// Value is a tagged-union scalar cell value. Rows are open-ended key/value
// bags, but every value is one of a closed set of kinds so the validator and
// the transformations can match exhaustively.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	t    time.Time
}

// Row is one decoded spreadsheet row, keyed by source column name.
type Row map[string]Value

func Null() Value            { return Value{kind: KindNull} }
func String(s string) Value  { return Value{kind: KindString, str: s} }
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Date(t time.Time) Value { return Value{kind: KindDate, t: t} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsEmpty reports whether the value is null or blank after trimming. This is
// the emptiness test used for required-field checks.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return strings.TrimSpace(v.str) == ""
	default:
		return false
	}
}

// String renders the value as text, the domain the transformations operate in.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDate:
		return v.t.Format(time.RFC3339)
	default:
		return ""
	}
}

// Raw returns the value as the native Go type used in JSON payloads.
func (v Value) Raw() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindDate:
		return v.t.Format(time.RFC3339)
	default:
		return nil
	}
}

// RawStrings renders a row for error-log diagnostics.
func (r Row) RawStrings() map[string]string {
	out := make(map[string]string, len(r))
	for k, v := range r {
		out[k] = v.String()
	}
	return out
}
