// Package analysis computes informational flags over identifier columns.
// Flagged records stay in the good set; the flags feed the report and the
// bad list alongside the pipeline's rejections.
package analysis

import (
	"regexp"

	"go.uber.org/zap"

	"github.com/yourorg/case-audit/internal/predicate"
	"github.com/yourorg/case-audit/internal/records"
	"github.com/yourorg/case-audit/internal/stats"
)

// Flag tags.
const (
	TagAscending      = "ascending_sequence"
	TagDescending     = "descending_sequence"
	TagStartsWith1    = "starts_with_1"
	TagStartsWith0    = "starts_with_0"
	TagRepeatedDigits = "repeated_digits"
)

const (
	// TopDups is how many of the most frequent values are reported.
	TopDups = 15
	// RepeatRun is the shortest run of one digit that is flagged.
	RepeatRun = 7
)

var (
	ascending  = regexp.MustCompile(`123456789`)
	descending = regexp.MustCompile(`987654321`)
)

// Report is the outcome of one analysis.
type Report struct {
	Flags []predicate.Result
	Stats *stats.Stats
}

// Ledger concatenates every flagged subset in flag order. A record flagged
// twice appears twice.
func (r *Report) Ledger() *records.Set {
	sets := make([]*records.Set, 0, len(r.Flags))
	for _, f := range r.Flags {
		sets = append(sets, f.Matched)
	}
	return records.Concat(sets...)
}

// Flag returns the result for tag.
func (r *Report) Flag(tag string) (predicate.Result, bool) {
	for _, f := range r.Flags {
		if f.Tag == tag {
			return f, true
		}
	}
	return predicate.Result{}, false
}

func (r *Report) add(key string, res predicate.Result) {
	r.Flags = append(r.Flags, res)
	r.Stats.Set(key, res.Count)
}

type Option func(*Analyzer)

func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) { a.log = l }
}

// Analyzer holds the logging sink; it has no per-run state.
type Analyzer struct {
	log *zap.Logger
}

func New(opts ...Option) *Analyzer {
	a := &Analyzer{log: zap.NewNop()}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Analyzer) logFlag(res predicate.Result, of int) {
	a.log.Debug("flag", zap.String("test", res.Tag), zap.Int("found", res.Count), zap.Int("of", of))
}

// Duplicates summarizes repeated values of a column. Nulls are ignored.
type Duplicates struct {
	Unique        int
	Duplicated    int
	RepeatedTwice int
	Top           []string
	TopCounts     []int
}

// CountDuplicates tallies the values of field.
func CountDuplicates(set *records.Set, field string) Duplicates {
	var values []string
	counts := make(map[string]int)
	for _, v := range set.Column(field) {
		if v.IsNull() {
			continue
		}
		s := v.Text()
		values = append(values, s)
		counts[s]++
	}
	var d Duplicates
	d.Unique = len(counts)
	for _, n := range counts {
		if n > 1 {
			d.Duplicated++
		}
		if n == 2 {
			d.RepeatedTwice++
		}
	}
	d.Top, d.TopCounts = stats.TopN(values, TopDups)
	return d
}

// Sequences flags values containing 123456789 and 987654321.
func Sequences(set *records.Set, field string) (asc, desc predicate.Result) {
	return predicate.Contains(set, field, ascending, TagAscending),
		predicate.Contains(set, field, descending, TagDescending)
}

// RepeatedDigits flags values with a run of at least n identical digits.
func RepeatedDigits(set *records.Set, field string, n int) predicate.Result {
	return predicate.Apply(set, field, TagRepeatedDigits, func(v records.Value) bool {
		return hasRun(v.Text(), n)
	})
}

func hasRun(s string, n int) bool {
	run := 0
	var prev byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			run = 0
			continue
		}
		if run > 0 && c == prev {
			run++
		} else {
			run = 1
		}
		prev = c
		if run >= n {
			return true
		}
	}
	return false
}
