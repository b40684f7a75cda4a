// Package predicate implements single-field tests over record sets. Every
// test returns the number of matches, the matching records tagged with a
// reason, and a mask aligned with the input. Inputs are never modified.
package predicate

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yourorg/case-audit/internal/records"
)

// Placeholder is what the collection app stores for a skipped question.
const Placeholder = "---"

// NaN is the text a missing cell picks up after a round trip through a
// spreadsheet export.
const NaN = "nan"

// Result of applying a test to a set.
type Result struct {
	Tag     string
	Count   int
	Matched *records.Set
	Mask    records.Mask
}

// Rest returns the records of set that did not match.
func (r Result) Rest(set *records.Set) *records.Set {
	return set.Filter(r.Mask.Not())
}

// Test decides whether a single cell matches.
type Test func(records.Value) bool

// Apply runs test over field. A field absent from the schema matches nothing.
func Apply(set *records.Set, field, tag string, test Test) Result {
	if !set.Has(field) {
		return none(set, tag)
	}
	mask := set.Mask(func(r records.Record) bool { return test(r.Value(field)) })
	return Result{Tag: tag, Count: mask.Count(), Matched: set.Filter(mask).Tag(tag), Mask: mask}
}

// none is the empty result for a set the test cannot apply to.
func none(set *records.Set, tag string) Result {
	var schema records.Schema
	if set != nil {
		schema = set.Schema()
	}
	return Result{Tag: tag, Matched: records.Empty(schema).Tag(tag), Mask: make(records.Mask, set.Len())}
}

// Contains matches cells whose text matches re anywhere.
func Contains(set *records.Set, field string, re *regexp.Regexp, tag string) Result {
	return Apply(set, field, tag, func(v records.Value) bool { return re.MatchString(v.Text()) })
}

// NotContains is the negation of Contains.
func NotContains(set *records.Set, field string, re *regexp.Regexp, tag string) Result {
	return Apply(set, field, tag, func(v records.Value) bool { return !re.MatchString(v.Text()) })
}

// Length matches cells whose character count differs from want; the
// matched set holds the wrong-length values.
func Length(set *records.Set, field string, want int, tag string) Result {
	return Apply(set, field, tag, func(v records.Value) bool { return utf8.RuneCountInString(v.Text()) != want })
}

func StartsWith(set *records.Set, field, prefix, tag string) Result {
	return Apply(set, field, tag, func(v records.Value) bool { return strings.HasPrefix(v.Text(), prefix) })
}

func NotStartsWith(set *records.Set, field, prefix, tag string) Result {
	return Apply(set, field, tag, func(v records.Value) bool { return !strings.HasPrefix(v.Text(), prefix) })
}

// IsNull matches true nulls only.
func IsNull(set *records.Set, field, tag string) Result {
	return Apply(set, field, tag, func(v records.Value) bool { return v.IsNull() })
}

// IsPlaceholder matches the skipped-question sentinel.
func IsPlaceholder(set *records.Set, field, tag string) Result {
	return Apply(set, field, tag, isText(Placeholder))
}

// IsNaN matches the literal "nan" string, not null cells.
func IsNaN(set *records.Set, field, tag string) Result {
	return Apply(set, field, tag, isText(NaN))
}

// NullOrPlaceholder matches any of the three blank spellings.
func NullOrPlaceholder(set *records.Set, field, tag string) Result {
	return Apply(set, field, tag, func(v records.Value) bool {
		return v.IsNull() || (v.Kind() == records.KindString && (v.Text() == Placeholder || v.Text() == NaN))
	})
}

// Equal matches cells whose text equals want. Nulls never match.
func Equal(set *records.Set, field, want, tag string) Result {
	return Apply(set, field, tag, func(v records.Value) bool { return !v.IsNull() && v.Text() == want })
}

// In matches cells whose text is in allowed.
func In(set *records.Set, field string, allowed []string, tag string) Result {
	idx := index(allowed)
	return Apply(set, field, tag, func(v records.Value) bool { return !v.IsNull() && idx[v.Text()] })
}

// NotIn matches cells outside allowed; nulls are outside every list.
func NotIn(set *records.Set, field string, allowed []string, tag string) Result {
	idx := index(allowed)
	return Apply(set, field, tag, func(v records.Value) bool { return v.IsNull() || !idx[v.Text()] })
}

func isText(s string) Test {
	return func(v records.Value) bool { return v.Kind() == records.KindString && v.Text() == s }
}

func index(list []string) map[string]bool {
	m := make(map[string]bool, len(list))
	for _, s := range list {
		m[s] = true
	}
	return m
}
