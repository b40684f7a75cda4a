// Package records holds the tabular data model: typed cells, records with a
// stable original index, and immutable record sets.
package records

import "sort"

// ErrorField is the column that carries a rejected record's reason tag.
// Downstream reporters key on this name.
const ErrorField = "error"

// Field is a named, typed column.
type Field struct {
	Name string
	Kind Kind
}

// Schema is an ordered list of fields.
type Schema []Field

// Index returns the position of name or -1.
func (s Schema) Index(name string) int {
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (s Schema) Has(name string) bool { return s.Index(name) >= 0 }

func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = f.Name
	}
	return out
}

// with returns a copy of s that includes f, replacing a field of the same name.
func (s Schema) with(f Field) Schema {
	out := make(Schema, len(s), len(s)+1)
	copy(out, s)
	if i := out.Index(f.Name); i >= 0 {
		out[i] = f
		return out
	}
	return append(out, f)
}

// Row is the input shape for building a set.
type Row map[string]Value

// Record is one row. Records are shared between sets and never mutated; use
// With to derive a changed copy.
type Record struct {
	index int
	cells map[string]Value
}

// Index is the record's position in the set it was first loaded into. It is
// the record's identity across every derived set.
func (r Record) Index() int { return r.index }

// Get returns the cell and whether the record has the field at all.
func (r Record) Get(field string) (Value, bool) {
	v, ok := r.cells[field]
	return v, ok
}

// Value returns the cell or null when absent.
func (r Record) Value(field string) Value { return r.cells[field] }

// Error returns the reason tag, empty for records that were not rejected.
func (r Record) Error() string {
	v, ok := r.cells[ErrorField]
	if !ok || v.IsNull() {
		return ""
	}
	return v.Text()
}

// With returns a copy of r with field set to v.
func (r Record) With(field string, v Value) Record {
	cells := make(map[string]Value, len(r.cells)+1)
	for k, c := range r.cells {
		cells[k] = c
	}
	cells[field] = v
	return Record{index: r.index, cells: cells}
}

// Set is an ordered, immutable collection of records sharing a schema.
type Set struct {
	schema Schema
	rows   []Record
}

// New builds a set; each row's index is its position in rows.
func New(schema Schema, rows ...Row) *Set {
	out := &Set{schema: append(Schema(nil), schema...), rows: make([]Record, len(rows))}
	for i, row := range rows {
		cells := make(map[string]Value, len(row))
		for k, v := range row {
			cells[k] = v
		}
		out.rows[i] = Record{index: i, cells: cells}
	}
	return out
}

// Empty returns a set with the schema and no rows.
func Empty(schema Schema) *Set { return &Set{schema: append(Schema(nil), schema...)} }

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rows)
}

func (s *Set) Schema() Schema { return append(Schema(nil), s.schema...) }

func (s *Set) Has(field string) bool { return s != nil && s.schema.Has(field) }

func (s *Set) At(i int) Record { return s.rows[i] }

// Records returns a copy of the record slice.
func (s *Set) Records() []Record {
	if s == nil {
		return nil
	}
	return append([]Record(nil), s.rows...)
}

// Column returns the field's cells in order.
func (s *Set) Column(field string) []Value {
	out := make([]Value, s.Len())
	for i, r := range s.rows {
		out[i] = r.cells[field]
	}
	return out
}

// Indexes returns the original indexes of the records in order.
func (s *Set) Indexes() []int {
	out := make([]int, s.Len())
	for i, r := range s.rows {
		out[i] = r.index
	}
	return out
}

// Filter keeps the records where keep is true.
func (s *Set) Filter(keep Mask) *Set {
	out := &Set{schema: s.schema}
	for i, r := range s.rows {
		if i < len(keep) && keep[i] {
			out.rows = append(out.rows, r)
		}
	}
	return out
}

// Partition splits s into the records where m is true and the rest.
func (s *Set) Partition(m Mask) (matched, rest *Set) {
	return s.Filter(m), s.Filter(m.Not())
}

// Where builds a mask from fn and filters by it.
func (s *Set) Where(fn func(Record) bool) *Set { return s.Filter(s.Mask(fn)) }

// Mask evaluates fn over every record.
func (s *Set) Mask(fn func(Record) bool) Mask {
	m := make(Mask, s.Len())
	for i, r := range s.rows {
		m[i] = fn(r)
	}
	return m
}

// WithField derives a column. Existing values of the same field are replaced.
func (s *Set) WithField(name string, kind Kind, fn func(Record) Value) *Set {
	out := &Set{schema: s.schema.with(Field{Name: name, Kind: kind}), rows: make([]Record, len(s.rows))}
	for i, r := range s.rows {
		out.rows[i] = r.With(name, fn(r))
	}
	return out
}

// Tag returns a copy of s whose records carry tag in the error field.
func (s *Set) Tag(tag string) *Set {
	v := String(tag)
	return s.WithField(ErrorField, KindString, func(Record) Value { return v })
}

// Concat appends sets in order. The schema is the union of the inputs'
// schemas in first-seen order; nil sets are skipped.
func Concat(sets ...*Set) *Set {
	out := &Set{}
	for _, s := range sets {
		if s == nil {
			continue
		}
		for _, f := range s.schema {
			if !out.schema.Has(f.Name) {
				out.schema = append(out.schema, f)
			}
		}
		out.rows = append(out.rows, s.rows...)
	}
	return out
}

// SortByIndex returns s ordered by original index.
func (s *Set) SortByIndex() *Set {
	out := &Set{schema: s.schema, rows: append([]Record(nil), s.rows...)}
	sort.SliceStable(out.rows, func(i, j int) bool { return out.rows[i].index < out.rows[j].index })
	return out
}

// Reindex returns a copy of s whose record indexes are their current
// positions. Used when a set built from several files becomes a new input.
func (s *Set) Reindex() *Set {
	out := &Set{schema: s.schema, rows: make([]Record, len(s.rows))}
	for i, r := range s.rows {
		out.rows[i] = Record{index: i, cells: r.cells}
	}
	return out
}
