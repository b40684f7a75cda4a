// Package pipeline validates an identifier column. Records pass through a
// fixed sequence of stages; the first stage that rejects a record tags it
// and removes it from every later stage. Survivors are deduplicated.
//
// Stage order:
//
//	1. "---" placeholder (skipped), then null (blank)
//	2. any character outside 0-9 (non_numeric_char)
//	3. wrong length (not_specified_length)
//	4. missing required prefix (format's tag), when the format has one
//	5. Verhoeff checksum (failed_checksum), when the format has one
//	6. duplicates: later occurrences are dropped without a tag
package pipeline

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/yourorg/case-audit/internal/predicate"
	"github.com/yourorg/case-audit/internal/records"
	"github.com/yourorg/case-audit/internal/stats"
	"github.com/yourorg/case-audit/internal/verhoeff"
)

// Reason tags.
const (
	TagSkipped    = predicate.TagSkipped
	TagBlank      = predicate.TagBlank
	TagNonNumeric = "non_numeric_char"
	TagLength     = "not_specified_length"
	TagChecksum   = "failed_checksum"
	// TagDuplicate names the duplicate statistic; duplicates are never tagged.
	TagDuplicate = "duplicated_numbers"
)

var nonNumeric = regexp.MustCompile(`\D`)

// Rejection is one stage's failure subset.
type Rejection struct {
	Stage int
	Tag   string
	Set   *records.Set
}

// Outcome of one run.
type Outcome struct {
	Field string
	Input int
	Good  *records.Set
	// Rejections holds one entry per stage that ran, in stage order.
	Rejections []Rejection
	// Duplicates counts records dropped by stage 6.
	Duplicates int
	// Applicable is false when the set had no identifier column.
	Applicable bool
	Stats      *stats.Stats
}

// Ledger is the flat bad ledger: every rejection in stage order.
func (o *Outcome) Ledger() *records.Set {
	sets := make([]*records.Set, len(o.Rejections))
	for i, r := range o.Rejections {
		sets[i] = r.Set
	}
	if len(sets) == 0 {
		return records.Empty(o.Good.Schema()).Tag("")
	}
	return records.Concat(sets...)
}

// Rejected returns the failure subset for tag, or nil if no stage uses it.
func (o *Outcome) Rejected(tag string) *records.Set {
	for _, r := range o.Rejections {
		if r.Tag == tag {
			return r.Set
		}
	}
	return nil
}

// Rejects returns the number of records tagged by stages 1-5.
func (o *Outcome) Rejects() int {
	n := 0
	for _, r := range o.Rejections {
		n += r.Set.Len()
	}
	return n
}

type Option func(*Validator)

// WithLogger sets the sink for per-stage diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(v *Validator) { v.log = l }
}

// WithDeduper replaces the in-memory duplicate set.
func WithDeduper(f DeduperFactory) Option {
	return func(v *Validator) { v.newDeduper = f }
}

// WithStatPrefix namespaces counters so several validators can share one
// statistics dictionary.
func WithStatPrefix(p string) Option {
	return func(v *Validator) { v.prefix = p }
}

// Validator runs the stages for one identifier column and format.
type Validator struct {
	field      string
	format     Format
	log        *zap.Logger
	newDeduper DeduperFactory
	prefix     string
}

func New(field string, format Format, opts ...Option) *Validator {
	v := &Validator{field: field, format: format, log: zap.NewNop(), newDeduper: NewMemory}
	for _, o := range opts {
		o(v)
	}
	return v
}

func (v *Validator) Field() string  { return v.field }
func (v *Validator) Format() Format { return v.format }

// Validate returns the good set and the flat bad ledger.
func (v *Validator) Validate(set *records.Set) (good, bad *records.Set, err error) {
	o, err := v.Run(set)
	if err != nil {
		return nil, nil, err
	}
	return o.Good, o.Ledger(), nil
}

// ValidateSplit returns the good set and one failure subset per stage.
func (v *Validator) ValidateSplit(set *records.Set) (*records.Set, []Rejection, error) {
	o, err := v.Run(set)
	if err != nil {
		return nil, nil, err
	}
	return o.Good, o.Rejections, nil
}

// Run executes every stage. The only error source is the deduper backend;
// bad data never fails a run.
func (v *Validator) Run(set *records.Set) (*Outcome, error) {
	if err := v.format.Validate(); err != nil {
		return nil, err
	}
	o := &Outcome{Field: v.field, Input: set.Len(), Stats: stats.New(), Applicable: set.Has(v.field)}
	if !o.Applicable {
		v.log.Info("identifier column not found, passing records through",
			zap.String("field", v.field), zap.String("format", v.format.Name), zap.Int("rows", set.Len()))
		o.Good = set
		o.Stats.NA(v.keys()...)
		return o, nil
	}

	good := set
	stage := func(n int, r predicate.Result, key string) {
		v.log.Debug("stage result",
			zap.String("field", v.field), zap.String("test", r.Tag),
			zap.Int("found", r.Count), zap.Int("of", good.Len()))
		o.Stats.Set(v.key(key), r.Count)
		o.Rejections = append(o.Rejections, Rejection{Stage: n, Tag: r.Tag, Set: r.Matched})
		good = r.Rest(good)
	}

	stage(1, predicate.IsPlaceholder(good, v.field, TagSkipped), "num_skipped")
	stage(1, predicate.IsNull(good, v.field, TagBlank), "num_blank")
	stage(2, predicate.Contains(good, v.field, nonNumeric, TagNonNumeric), "num_non_numeric")
	stage(3, predicate.Length(good, v.field, v.format.Length, TagLength), v.lengthKey())
	if v.format.Prefix != "" {
		stage(4, predicate.NotStartsWith(good, v.field, v.format.Prefix, v.format.PrefixTag), "num_bad_prefix")
	}
	if v.format.Checksum {
		checked := good.Len()
		stage(5, predicate.Apply(good, v.field, TagChecksum, func(val records.Value) bool {
			return !verhoeff.Valid(val.Text())
		}), "num_failed_checksum")
		o.Stats.Set(v.key("pct_failed_checksum"), stats.Pct(checked-good.Len(), checked))
	}

	deduped, dups, err := v.dedupe(good)
	if err != nil {
		return nil, err
	}
	v.log.Debug("stage result",
		zap.String("field", v.field), zap.String("test", TagDuplicate),
		zap.Int("found", dups), zap.Int("of", good.Len()))
	o.Good = deduped
	o.Duplicates = dups
	o.Stats.Set(v.key("num_duplicates_dropped"), dups)
	o.Stats.Set(v.key("num_good"), deduped.Len())
	o.Stats.Set(v.key("pct_good"), stats.Pct(deduped.Len(), o.Input))
	v.log.Info("identifier validation complete",
		zap.String("field", v.field), zap.String("format", v.format.Name),
		zap.Int("rows", o.Input), zap.Int("good", deduped.Len()),
		zap.Int("rejected", o.Rejects()), zap.Int("duplicates", dups))
	return o, nil
}

// dedupe keeps the first record for each identifier value.
func (v *Validator) dedupe(set *records.Set) (*records.Set, int, error) {
	d, err := v.newDeduper()
	if err != nil {
		return nil, 0, fmt.Errorf("open deduper: %w", err)
	}
	defer d.Close()
	keep := make(records.Mask, set.Len())
	dups := 0
	for i, r := range set.Records() {
		seen, err := d.Seen(r.Value(v.field).Text())
		if err != nil {
			return nil, 0, fmt.Errorf("dedupe %s: %w", v.field, err)
		}
		keep[i] = !seen
		if seen {
			dups++
		}
	}
	return set.Filter(keep), dups, nil
}

func (v *Validator) key(k string) string { return v.prefix + k }

func (v *Validator) lengthKey() string { return fmt.Sprintf("num_non_%d_char", v.format.Length) }

// keys lists every counter a run can emit, in emission order.
func (v *Validator) keys() []string {
	ks := []string{"num_skipped", "num_blank", "num_non_numeric", v.lengthKey()}
	if v.format.Prefix != "" {
		ks = append(ks, "num_bad_prefix")
	}
	if v.format.Checksum {
		ks = append(ks, "num_failed_checksum", "pct_failed_checksum")
	}
	ks = append(ks, "num_duplicates_dropped", "num_good", "pct_good")
	for i, k := range ks {
		ks[i] = v.key(k)
	}
	return ks
}
