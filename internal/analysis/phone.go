package analysis

import (
	"go.uber.org/zap"

	"github.com/yourorg/case-audit/internal/normalize"
	"github.com/yourorg/case-audit/internal/predicate"
	"github.com/yourorg/case-audit/internal/records"
	"github.com/yourorg/case-audit/internal/stats"
)

// Phone flag tags.
const (
	TagPhoneMismatch = "phone_num_mismatch"
	TagBadLangCode   = "bad_lang_code"
	TagNotTenChar    = "number_not_ten_char"
	TagCountryOnly   = "num_91_only"
)

// LanguageCodes are the codes the messaging service can deliver in.
var LanguageCodes = []string{"hin", "mar", "tel", "en"}

// PhoneConfig names the columns Phone reads. ContactField holds the number
// with its country code, PhoneField the ten digits as entered.
type PhoneConfig struct {
	ContactField string
	PhoneField   string
	LangField    string
	Languages    []string
}

func DefaultPhoneConfig() PhoneConfig {
	return PhoneConfig{
		ContactField: "contact_phone_number",
		PhoneField:   "phone_number",
		LangField:    "language_code",
		Languages:    LanguageCodes,
	}
}

// Phone flags curiosities in a cleaned set of verified phone numbers.
func (a *Analyzer) Phone(set *records.Set, cfg PhoneConfig) *Report {
	r := &Report{Stats: stats.New()}
	if len(cfg.Languages) == 0 {
		cfg.Languages = LanguageCodes
	}
	if !set.Has(cfg.ContactField) {
		a.log.Info("contact number column not found, skipping analysis", zap.String("field", cfg.ContactField))
		r.Stats.NA("unique_phone", "num_duplicates", "top_dups", "top_dup_counts", "num_91_only",
			"num_123456789", "num_987654321", "num_mismatch", "num_bad_lang_code", "num_non_ten_char")
		return r
	}
	n := set.Len()
	d := CountDuplicates(set, cfg.ContactField)
	r.Stats.Set("unique_phone", d.Unique)
	r.Stats.Set("num_duplicates", d.Duplicated)
	r.Stats.Set("top_dups", d.Top)
	r.Stats.Set("top_dup_counts", d.TopCounts)
	a.log.Info("phone duplicates",
		zap.Int("unique", d.Unique), zap.Int("duplicated", d.Duplicated), zap.Int("pct_unique", stats.Pct(d.Unique, n)))

	r.add("num_91_only", predicate.Equal(set, cfg.ContactField, "91", TagCountryOnly))
	asc, desc := Sequences(set, cfg.ContactField)
	r.add("num_123456789", asc)
	r.add("num_987654321", desc)

	if set.Has(cfg.PhoneField) {
		r.add("num_mismatch", where(set, TagPhoneMismatch, func(rec records.Record) bool {
			return normalize.WithCountryCode(rec.Value(cfg.PhoneField).Text()) != rec.Value(cfg.ContactField).Text()
		}))
		r.add("num_non_ten_char", predicate.Length(set, cfg.PhoneField, 10, TagNotTenChar))
	} else {
		r.Stats.NA("num_mismatch", "num_non_ten_char")
	}
	if set.Has(cfg.LangField) {
		r.add("num_bad_lang_code", predicate.NotIn(set, cfg.LangField, cfg.Languages, TagBadLangCode))
	} else {
		r.Stats.NA("num_bad_lang_code")
	}
	for _, f := range r.Flags {
		a.logFlag(f, n)
	}
	return r
}
