package predicate

import (
	"math"
	"time"

	"github.com/yourorg/case-audit/internal/records"
)

const (
	// DaysPerYear is the year length used for every age computation.
	DaysPerYear = 365.25

	// AgeBracketField is the derived column AddAgeBracket writes by default.
	AgeBracketField = "age_bracket"

	// TagBadAgeBracket marks records in an implausible bracket.
	TagBadAgeBracket = "bad_age_bracket"
)

// Bracket is an age range closed on the right: ages up to and including
// UpperDays fall here unless an earlier bracket already took them.
type Bracket struct {
	UpperDays float64 `yaml:"upper_days"`
	Label     string  `yaml:"label"`
}

// Brackets is an ascending list. Ages below the first bound land in the
// first bracket and ages above the last bound in the last, so every
// parseable age gets a label.
type Brackets []Bracket

func years(y float64) float64 { return y * DaysPerYear }

// DefaultBrackets are the standard reporting ranges.
var DefaultBrackets = Brackets{
	{0, "<0 yrs"},
	{years(5), "0-5 yrs"},
	{years(11), "5-11 yrs"},
	{years(14), "11-14 yrs"},
	{years(49), "14-49 yrs"},
	{years(99), "49-99 yrs"},
	{math.Inf(1), "99 yrs+"},
}

// YearlyBrackets split childhood into single years.
var YearlyBrackets = Brackets{
	{0, "<0 yrs"},
	{years(1), "0-1 yrs"}, {years(2), "1-2 yrs"}, {years(3), "2-3 yrs"},
	{years(4), "3-4 yrs"}, {years(5), "4-5 yrs"}, {years(6), "5-6 yrs"},
	{years(7), "6-7 yrs"}, {years(8), "7-8 yrs"}, {years(9), "8-9 yrs"},
	{years(10), "9-10 yrs"}, {years(11), "10-11 yrs"}, {years(12), "11-12 yrs"},
	{years(13), "12-13 yrs"}, {years(14), "13-14 yrs"}, {years(15), "14-15 yrs"},
	{years(16), "15-16 yrs"}, {years(49), "16-49 yrs"}, {years(99), "49-99 yrs"},
	{math.Inf(1), "99 yrs+"},
}

// Valid reports whether the brackets are non-empty, labelled and ascending.
func (b Brackets) Valid() bool {
	if len(b) == 0 {
		return false
	}
	for i, br := range b {
		if br.Label == "" {
			return false
		}
		if i > 0 && br.UpperDays <= b[i-1].UpperDays {
			return false
		}
	}
	return true
}

// Classify returns the label for an age in days.
func (b Brackets) Classify(days float64) string {
	for _, br := range b {
		if days <= br.UpperDays {
			return br.Label
		}
	}
	return b[len(b)-1].Label
}

// AgeDays is the fractional number of days from dob to ref.
func AgeDays(dob, ref time.Time) float64 {
	return ref.Sub(dob).Hours() / 24
}

// AgeSpec configures AddAgeBracket. When RefField is empty, RefDate is used
// for every record.
type AgeSpec struct {
	DOBField string
	RefField string
	RefDate  time.Time
	Column   string
	Brackets Brackets
}

// AddAgeBracket derives the bracket column. Records whose dob or reference
// date cannot be read as a date get a null bracket. A set without the dob
// field is returned unchanged.
func AddAgeBracket(set *records.Set, spec AgeSpec) *records.Set {
	if spec.DOBField == "" {
		spec.DOBField = "dob"
	}
	if spec.Column == "" {
		spec.Column = AgeBracketField
	}
	if len(spec.Brackets) == 0 {
		spec.Brackets = DefaultBrackets
	}
	if !set.Has(spec.DOBField) || (spec.RefField != "" && !set.Has(spec.RefField)) {
		return set
	}
	return set.WithField(spec.Column, records.KindString, func(r records.Record) records.Value {
		days, ok := ageOf(r, spec)
		if !ok {
			return records.Null()
		}
		return records.String(spec.Brackets.Classify(days))
	})
}

// ageOf returns the age in days of r under spec.
func ageOf(r records.Record, spec AgeSpec) (float64, bool) {
	dob, err := r.Value(spec.DOBField).AsDate()
	if err != nil {
		return 0, false
	}
	ref := spec.RefDate
	if spec.RefField != "" {
		if ref, err = r.Value(spec.RefField).AsDate(); err != nil {
			return 0, false
		}
	}
	return AgeDays(dob, ref), true
}

// AgeBetween matches records whose age lies in [minDays, maxDays]. Records
// whose dates cannot be read do not match.
func AgeBetween(set *records.Set, spec AgeSpec, minDays, maxDays float64, tag string) Result {
	if !set.Has(spec.DOBField) || (spec.RefField != "" && !set.Has(spec.RefField)) {
		return none(set, tag)
	}
	mask := set.Mask(func(r records.Record) bool {
		days, ok := ageOf(r, spec)
		return ok && minDays <= days && days <= maxDays
	})
	return Result{Tag: tag, Count: mask.Count(), Matched: set.Filter(mask).Tag(tag), Mask: mask}
}

// InBracket flags records whose bracket column equals label. A set without
// the column matches nothing.
func InBracket(set *records.Set, column, label, tag string) Result {
	if column == "" {
		column = AgeBracketField
	}
	if tag == "" {
		tag = TagBadAgeBracket
	}
	return Equal(set, column, label, tag)
}
