package predicate

import "github.com/yourorg/case-audit/internal/records"

// Tags for the blank representations Blank removes.
const (
	TagBlank   = "blank"
	TagSkipped = "skipped"
	TagNaN     = "nan"
)

// BlankResult reports what Blank pruned, one Result per representation.
type BlankResult struct {
	Null      Result
	Skipped   Result
	NaN       Result
	Remaining *records.Set
}

// Removed is the number of records pruned across all three passes.
func (b BlankResult) Removed() int { return b.Null.Count + b.Skipped.Count + b.NaN.Count }

// Ledger concatenates the pruned records in pass order.
func (b BlankResult) Ledger() *records.Set {
	return records.Concat(b.Null.Matched, b.Skipped.Matched, b.NaN.Matched)
}

// Blank prunes nulls, then the "---" placeholder, then literal "nan", each
// pass running on the previous one's survivors. The field itself is left
// in place, so running Blank on its own output removes nothing. A missing
// field removes nothing.
func Blank(set *records.Set, field string) BlankResult {
	var out BlankResult
	out.Null = IsNull(set, field, TagBlank)
	rest := out.Null.Rest(set)
	out.Skipped = IsPlaceholder(rest, field, TagSkipped)
	rest = out.Skipped.Rest(rest)
	out.NaN = IsNaN(rest, field, TagNaN)
	out.Remaining = out.NaN.Rest(rest)
	return out
}
