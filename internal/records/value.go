package records

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrCoercion indicates a cell could not be converted to the requested type.
	ErrCoercion = errors.New("cannot coerce value")
)

// Kind enumerates the cell types a record can hold.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInteger
	KindFloat
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindDate:
		return "date"
	default:
		return "null"
	}
}

// ParseKind maps a schema type name to a Kind. Unknown names are strings.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer":
		return KindInteger
	case "float", "double", "number":
		return KindFloat
	case "date", "datetime":
		return KindDate
	default:
		return KindString
	}
}

// DateLayouts are tried in order when a string cell is coerced to a date.
var DateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02T15:04:05.000000",
	"02/01/2006",
}

// Value is a single cell. The zero Value is null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	t    time.Time
}

func Null() Value              { return Value{} }
func String(s string) Value    { return Value{kind: KindString, s: s} }
func Int(i int64) Value        { return Value{kind: KindInteger, i: i} }
func Float(f float64) Value    { return Value{kind: KindFloat, f: f} }
func Date(t time.Time) Value   { return Value{kind: KindDate, t: t} }
func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }

// Text renders the cell the way legacy reports did: nulls become "nan",
// integral floats lose their fractional part.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		if math.IsNaN(v.f) {
			return "nan"
		}
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindDate:
		return v.t.Format("2006-01-02")
	default:
		return "nan"
	}
}

func (v Value) String() string { return v.Text() }

// Equal compares kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindInteger:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindDate:
		return v.t.Equal(o.t)
	default:
		return true
	}
}

// AsString returns the content of a non-null cell as text.
func (v Value) AsString() (string, error) {
	if v.kind == KindNull {
		return "", fmt.Errorf("%w: null to string", ErrCoercion)
	}
	return v.Text(), nil
}

func (v Value) AsInt() (int64, error) {
	switch v.kind {
	case KindInteger:
		return v.i, nil
	case KindFloat:
		if v.f == math.Trunc(v.f) && !math.IsInf(v.f, 0) {
			return int64(v.f), nil
		}
	case KindString:
		if n, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: %s %q to integer", ErrCoercion, v.kind, v.Text())
}

func (v Value) AsFloat() (float64, error) {
	switch v.kind {
	case KindInteger:
		return float64(v.i), nil
	case KindFloat:
		return v.f, nil
	case KindString:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64); err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %s %q to float", ErrCoercion, v.kind, v.Text())
}

func (v Value) AsDate() (time.Time, error) {
	switch v.kind {
	case KindDate:
		return v.t, nil
	case KindString:
		s := strings.TrimSpace(v.s)
		for _, layout := range DateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s %q to date", ErrCoercion, v.kind, v.Text())
}

// AsBool accepts the spellings seen in case exports: True/False, 1/0, yes/no.
func (v Value) AsBool() (bool, error) {
	switch v.kind {
	case KindInteger:
		return v.i != 0, nil
	case KindFloat:
		return v.f != 0, nil
	case KindString:
		switch strings.ToLower(strings.TrimSpace(v.s)) {
		case "true", "1", "yes", "y", "t":
			return true, nil
		case "false", "0", "no", "n", "f", "":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %s %q to bool", ErrCoercion, v.kind, v.Text())
}

// Parse converts raw text into a cell of the given kind. Empty text is null;
// text that does not parse as the requested kind is kept as a string so no
// data is lost at ingestion.
func Parse(raw string, kind Kind) Value {
	if raw == "" {
		return Null()
	}
	s := String(raw)
	switch kind {
	case KindInteger:
		if n, err := s.AsInt(); err == nil {
			return Int(n)
		}
	case KindFloat:
		if f, err := s.AsFloat(); err == nil {
			return Float(f)
		}
	case KindDate:
		if t, err := s.AsDate(); err == nil {
			return Date(t)
		}
	}
	return s
}
