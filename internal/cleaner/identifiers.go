package cleaner

import (
	"go.uber.org/zap"

	"github.com/yourorg/case-audit/internal/predicate"
	"github.com/yourorg/case-audit/internal/records"
	"github.com/yourorg/case-audit/internal/stats"
)

// Tags for the identifier cleaners.
const (
	TagUnverified = "unverified_phone"
	TagNonFemale  = "non_female"
	TagOutOfAge   = "out_of_age"
)

// Phone registration age window in years. The form asks for 15 to 49; half
// a year either side allows for the gap between birth date and opening.
const (
	MinPhoneAge = 14.5
	MaxPhoneAge = 49.5
)

// CleanAadhaar removes skipped and blank national identifiers.
func CleanAadhaar(set *records.Set, field string, log *zap.Logger) *Outcome {
	if log == nil {
		log = zap.NewNop()
	}
	out := &Outcome{Stats: stats.New()}
	if !set.Has(field) {
		log.Info("no aadhar number column found, not removing blanks or skips", zap.String("field", field))
		out.Stats.NA("num_blank", "num_skipped")
		out.Clean = set
		out.Stats.Set("num_clean_aadhar_nums", set.Len())
		return out
	}
	skipped := predicate.IsPlaceholder(set, field, predicate.TagSkipped)
	rest := skipped.Rest(set)
	blank := predicate.IsNull(rest, field, predicate.TagBlank)
	rest = blank.Rest(rest)
	out.Removals = []Removal{{Tag: skipped.Tag, Set: skipped.Matched}, {Tag: blank.Tag, Set: blank.Matched}}
	out.Clean = rest
	out.Stats.Set("num_blank", blank.Count)
	out.Stats.Set("num_skipped", skipped.Count)
	out.Stats.Set("num_clean_aadhar_nums", rest.Len())
	log.Info("cases with aadhar numbers",
		zap.Int("clean", rest.Len()), zap.Int("of", set.Len()), zap.Int("pct", stats.Pct(rest.Len(), set.Len())))
	return out
}

// PhoneConfig names the columns CleanPhone reads.
type PhoneConfig struct {
	VerifiedField string
	SexField      string
	DOBField      string
	OpenedField   string
}

func DefaultPhoneConfig() PhoneConfig {
	return PhoneConfig{
		VerifiedField: "contact_phone_number_is_verified",
		SexField:      "sex",
		DOBField:      "dob",
		OpenedField:   "opened_date",
	}
}

// CleanPhone keeps verified numbers of women of registration age.
func CleanPhone(set *records.Set, cfg PhoneConfig, log *zap.Logger) *Outcome {
	if log == nil {
		log = zap.NewNop()
	}
	out := &Outcome{Stats: stats.New()}
	orig := set.Len()

	if set.Has(cfg.VerifiedField) {
		r := predicate.Apply(set, cfg.VerifiedField, TagUnverified, func(v records.Value) bool { return v.Text() != "1" })
		out.Removals = append(out.Removals, Removal{Tag: r.Tag, Set: r.Matched})
		out.Stats.Set("num_unverified", r.Count)
		set = r.Rest(set)
	} else {
		log.Info("verified column not found, not removing unverified numbers")
		out.Stats.NA("num_unverified")
	}

	if set.Has(cfg.SexField) {
		r := predicate.Apply(set, cfg.SexField, TagNonFemale, func(v records.Value) bool { return v.Text() != "F" })
		out.Removals = append(out.Removals, Removal{Tag: r.Tag, Set: r.Matched})
		out.Stats.Set("num_non_female", r.Count)
		set = r.Rest(set)
	} else {
		log.Info("sex column not found, not removing non-female cases")
		out.Stats.NA("num_non_female")
	}

	if set.Has(cfg.DOBField) && set.Has(cfg.OpenedField) {
		spec := predicate.AgeSpec{DOBField: cfg.DOBField, RefField: cfg.OpenedField}
		in := predicate.AgeBetween(set, spec, MinPhoneAge*predicate.DaysPerYear, MaxPhoneAge*predicate.DaysPerYear, "")
		outside := set.Filter(in.Mask.Not()).Tag(TagOutOfAge)
		out.Removals = append(out.Removals, Removal{Tag: TagOutOfAge, Set: outside})
		out.Stats.Set("num_out_of_age", outside.Len())
		set = set.Filter(in.Mask)
	} else {
		log.Info("dob or opened_date not found, not removing cases out of age range")
		out.Stats.NA("num_out_of_age")
	}

	out.Clean = set
	out.Stats.Set("num_clean_phone_nums", set.Len())
	log.Info("clean phone numbers",
		zap.Int("clean", set.Len()), zap.Int("of", orig), zap.Int("pct", stats.Pct(set.Len(), orig)))
	return out
}

