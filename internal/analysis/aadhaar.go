package analysis

import (
	"regexp"

	"go.uber.org/zap"

	"github.com/yourorg/case-audit/internal/normalize"
	"github.com/yourorg/case-audit/internal/pipeline"
	"github.com/yourorg/case-audit/internal/predicate"
	"github.com/yourorg/case-audit/internal/records"
	"github.com/yourorg/case-audit/internal/stats"
)

// Scan tags.
const (
	TagNoRawString   = "no_raw_aadhar_string"
	TagInvalid2D     = "invalid_2dbarcode_scan"
	TagInvalid1D     = "invalid_1d_barcode_scan"
	TagChanged2D     = "good2d_scan_manually_changed"
	TagChangedGood1D = "good1d_scan_manually_changed"
	TagChangedBad1D  = "bad1d_scan_manually_changed"
)

// BadBracket is the age bracket no living beneficiary should be in.
const BadBracket = "99 yrs+"

var uidAttr = regexp.MustCompile(`uid=`)

// AadhaarConfig names the columns Aadhaar reads.
type AadhaarConfig struct {
	Field    string
	RawField string
	// BracketColumn holds the age bracket added by predicate.AddAgeBracket.
	BracketColumn string
	Format        pipeline.Format
}

func DefaultAadhaarConfig() AadhaarConfig {
	return AadhaarConfig{
		Field:         "aadhar_number",
		RawField:      "raw_aadhar_string",
		BracketColumn: predicate.AgeBracketField,
		Format:        pipeline.Aadhaar,
	}
}

var aadhaarKeys = []string{
	"num_unique", "num_duplicates", "num_repeated_twice", "top_dups", "top_dup_counts",
	"num_99", "num_123456789", "num_987654321", "num_starts_1", "num_starts_0", "num_repeat_dig",
}

var scanKeys = []string{
	"num_attempted_scan", "num_valid_2d_scans", "num_valid_1d_scans", "num_invalid_scans",
	"num_mismatch_2d_scan", "num_mismatch_1d_scan", "num_mismatch_bad1d_scan", "num_manually_changed",
	"pct_attempted_scan", "pct_valid_2d_scans", "pct_valid_1d_scans", "pct_invalid_scans", "pct_manually_changed",
}

// Aadhaar flags curiosities in a cleaned set of national identifiers:
// sequences, leading 1 or 0, long digit runs and implausible ages. When
// the raw scan column is present it also breaks down scan outcomes.
func (a *Analyzer) Aadhaar(set *records.Set, cfg AadhaarConfig) (*Report, error) {
	r := &Report{Stats: stats.New()}
	if !set.Has(cfg.Field) {
		a.log.Info("identifier column not found, skipping analysis", zap.String("field", cfg.Field))
		r.Stats.NA(aadhaarKeys...)
		r.Stats.NA(scanKeys...)
		return r, nil
	}
	n := set.Len()
	d := CountDuplicates(set, cfg.Field)
	r.Stats.Set("num_unique", d.Unique)
	r.Stats.Set("num_duplicates", d.Duplicated)
	r.Stats.Set("num_repeated_twice", d.RepeatedTwice)
	r.Stats.Set("top_dups", d.Top)
	r.Stats.Set("top_dup_counts", d.TopCounts)
	a.log.Info("identifier duplicates",
		zap.Int("unique", d.Unique), zap.Int("duplicated", d.Duplicated), zap.Int("pct_unique", stats.Pct(d.Unique, n)))

	if set.Has(cfg.BracketColumn) {
		r.add("num_99", predicate.InBracket(set, cfg.BracketColumn, BadBracket, predicate.TagBadAgeBracket))
	} else {
		r.Stats.NA("num_99")
	}
	asc, desc := Sequences(set, cfg.Field)
	r.add("num_123456789", asc)
	r.add("num_987654321", desc)
	r.add("num_starts_1", predicate.StartsWith(set, cfg.Field, "1", TagStartsWith1))
	r.add("num_starts_0", predicate.StartsWith(set, cfg.Field, "0", TagStartsWith0))
	r.add("num_repeat_dig", RepeatedDigits(set, cfg.Field, RepeatRun))
	for _, f := range r.Flags {
		a.logFlag(f, n)
	}

	if !set.Has(cfg.RawField) {
		a.log.Info("raw scan column not found, skipping scan analysis", zap.String("field", cfg.RawField))
		r.Stats.NA(scanKeys...)
		return r, nil
	}
	if err := a.scans(set, cfg, r); err != nil {
		return nil, err
	}
	return r, nil
}

// scans classifies attempted scans. A 2D barcode returns XML carrying a
// uid attribute; anything else is treated as a 1D barcode and must pass
// the identifier pipeline on its own. A scan whose identifier differs
// from the entered one was changed by hand.
func (a *Analyzer) scans(set *records.Set, cfg AadhaarConfig, r *Report) error {
	attempted := predicate.IsNull(set, cfg.RawField, TagNoRawString).Rest(set)
	invalid2D := predicate.NotContains(attempted, cfg.RawField, uidAttr, TagInvalid2D)
	valid2D := invalid2D.Rest(attempted)

	good1D, bad1D, err := pipeline.New(cfg.RawField, cfg.Format, pipeline.WithLogger(a.log)).
		Validate(attempted.Filter(invalid2D.Mask))
	if err != nil {
		return err
	}
	bad1D = bad1D.Tag(TagInvalid1D)

	entered := func(rec records.Record) string { return rec.Value(cfg.Field).Text() }
	raw := func(rec records.Record) string { return rec.Value(cfg.RawField).Text() }
	changed2D := where(valid2D, TagChanged2D, func(rec records.Record) bool {
		uid, err := normalize.UIDFromScan(raw(rec))
		return err != nil || uid != entered(rec)
	})
	changedGood1D := where(good1D, TagChangedGood1D, func(rec records.Record) bool { return entered(rec) != raw(rec) })
	changedBad1D := where(bad1D, TagChangedBad1D, func(rec records.Record) bool { return entered(rec) != raw(rec) })

	numAttempted := attempted.Len()
	numValid2D := valid2D.Len()
	numValid1D := good1D.Len()
	numInvalid := numAttempted - numValid2D - numValid1D
	changed := changedGood1D.Count + changed2D.Count + changedBad1D.Count

	r.Flags = append(r.Flags, invalid2D, predicate.Result{Tag: TagInvalid1D, Count: bad1D.Len(), Matched: bad1D})
	r.add("num_mismatch_2d_scan", changed2D)
	r.add("num_mismatch_1d_scan", changedGood1D)
	r.add("num_mismatch_bad1d_scan", changedBad1D)
	r.Stats.Set("num_attempted_scan", numAttempted)
	r.Stats.Set("num_valid_2d_scans", numValid2D)
	r.Stats.Set("num_valid_1d_scans", numValid1D)
	r.Stats.Set("num_invalid_scans", numInvalid)
	r.Stats.Set("num_manually_changed", changed)
	r.Stats.Set("pct_attempted_scan", stats.Pct(numAttempted, set.Len()))
	r.Stats.Set("pct_valid_2d_scans", stats.Pct(numValid2D, numAttempted))
	r.Stats.Set("pct_valid_1d_scans", stats.Pct(numValid1D, numAttempted))
	r.Stats.Set("pct_invalid_scans", stats.Pct(numInvalid, numAttempted))
	r.Stats.Set("pct_manually_changed", stats.Pct(changed, numAttempted))
	a.log.Info("scans",
		zap.Int("attempted", numAttempted), zap.Int("valid_2d", numValid2D),
		zap.Int("valid_1d", numValid1D), zap.Int("manually_changed", changed))
	return nil
}

// where flags records by a test that reads more than one field.
func where(set *records.Set, tag string, fn func(records.Record) bool) predicate.Result {
	mask := set.Mask(fn)
	return predicate.Result{Tag: tag, Count: mask.Count(), Matched: set.Filter(mask).Tag(tag), Mask: mask}
}
