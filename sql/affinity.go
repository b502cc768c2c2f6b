package sql

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Affinity is a column's coercion rule: on store, a value is converted
// (where lossless) toward the column's affinity. Five variants, derived
// from the declared type name by the same substring rules SQLite applies.
type Affinity int

const (
	BlobAffinity Affinity = iota
	TextAffinity
	NumericAffinity
	IntegerAffinity
	RealAffinity
)

func (a Affinity) String() string {
	switch a {
	case BlobAffinity:
		return "BLOB"
	case TextAffinity:
		return "TEXT"
	case NumericAffinity:
		return "NUMERIC"
	case IntegerAffinity:
		return "INTEGER"
	case RealAffinity:
		return "REAL"
	default:
		return "UNKNOWN"
	}
}

// AffinityOf maps a declared column type name to its affinity:
// "INT" anywhere -> integer; "CHAR", "CLOB", or "TEXT" -> text; "BLOB" or
// an empty declaration -> blob; "REAL", "FLOA", or "DOUB" -> real;
// everything else -> numeric.
func AffinityOf(declared string) Affinity {
	d := strings.ToUpper(declared)
	switch {
	case strings.Contains(d, "INT"):
		return IntegerAffinity
	case strings.Contains(d, "CHAR"), strings.Contains(d, "CLOB"), strings.Contains(d, "TEXT"):
		return TextAffinity
	case strings.Contains(d, "BLOB"), d == "":
		return BlobAffinity
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"):
		return RealAffinity
	default:
		return NumericAffinity
	}
}

// Apply coerces v toward a. Coercions that would lose information leave
// the value in its original storage class: "12" under integer affinity
// becomes 12, "12.5" becomes the real 12.5, "widget" stays text. NULL passes through
// every affinity unchanged.
func (a Affinity) Apply(v Value) Value {
	if v == nil {
		return nil
	}
	switch a {
	case IntegerAffinity, NumericAffinity:
		switch v := v.(type) {
		case BoolValue:
			return Int64Value(v.num())
		case Float64Value:
			// A real whose value round-trips through int64 stores as an
			// integer.
			if i := Int64Value(v); Float64Value(i) == v {
				return i
			}
			return v
		case StringValue:
			return numericFromText(string(v), v)
		}
		return v
	case RealAffinity:
		switch v := v.(type) {
		case BoolValue:
			return v.num()
		case Int64Value:
			return Float64Value(v)
		case StringValue:
			if f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64); err == nil {
				return Float64Value(f)
			}
			return v
		}
		return v
	case TextAffinity:
		switch v := v.(type) {
		case Int64Value:
			return StringValue(strconv.FormatInt(int64(v), 10))
		case Float64Value:
			return StringValue(strconv.FormatFloat(float64(v), 'g', -1, 64))
		case BoolValue:
			return StringValue(v.String())
		case BytesValue:
			if utf8.Valid([]byte(v)) {
				return StringValue(v)
			}
			return v
		}
		return v
	default: // BlobAffinity stores every class as-is.
		return v
	}
}

// numericFromText is the text-under-numeric-affinity rule: a string that
// reads entirely as an integer stores as one, a string that reads as a
// real stores as one, anything else keeps its text form.
func numericFromText(s string, orig Value) Value {
	t := strings.TrimSpace(s)
	if i, err := strconv.ParseInt(t, 10, 64); err == nil {
		return Int64Value(i)
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil {
		if i := Int64Value(f); Float64Value(i) == Float64Value(f) {
			return i
		}
		return Float64Value(f)
	}
	return orig
}
