package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yourorg/case-audit/internal/records"
	"github.com/yourorg/case-audit/internal/stats"
	"github.com/yourorg/case-audit/internal/verhoeff"
)

const field = "aadhar_number"

var schema = records.Schema{{Name: "caseid", Kind: records.KindString}, {Name: field, Kind: records.KindString}}

func idSet(vals ...records.Value) *records.Set {
	rows := make([]records.Row, len(vals))
	for i, v := range vals {
		rows[i] = records.Row{"caseid": records.Int(int64(i)), field: v}
	}
	return records.New(schema, rows...)
}

func str(s string) records.Value { return records.String(s) }

func validID(t *testing.T, body string) string {
	t.Helper()
	id, err := verhoeff.Generate(body)
	require.NoError(t, err)
	return id
}

func tagsOf(set *records.Set) []string {
	out := make([]string, set.Len())
	for i, r := range set.Records() {
		out[i] = r.Error()
	}
	return out
}

func TestEndToEndScenario(t *testing.T) {
	good := validID(t, "23456789012")
	in := idSet(str(good), str("---"), records.Null(), str("12345678901a"), str(good))

	o, err := New(field, Aadhaar).Run(in)
	require.NoError(t, err)

	require.Equal(t, 1, o.Good.Len())
	assert.Equal(t, 0, o.Good.At(0).Index())
	assert.Equal(t, 1, o.Duplicates)

	bad := o.Ledger()
	assert.Equal(t, []string{TagSkipped, TagBlank, TagNonNumeric}, tagsOf(bad))
	assert.Equal(t, []int{1, 2, 3}, bad.Indexes())
	for _, r := range bad.Records() {
		assert.NotEmpty(t, r.Error())
	}

	n, _ := o.Stats.Int("num_duplicates_dropped")
	assert.Equal(t, 1, n)
	n, _ = o.Stats.Int("num_good")
	assert.Equal(t, 1, n)
	n, _ = o.Stats.Int("pct_good")
	assert.Equal(t, 20, n)
}

func TestShortCircuit(t *testing.T) {
	in := idSet(str("12a"), str("1234567890123"), str("123456789013"))
	o, err := New(field, Aadhaar).Run(in)
	require.NoError(t, err)

	assert.Equal(t, []int{0}, o.Rejected(TagNonNumeric).Indexes())
	// "12a" is also the wrong length and fails the checksum but was
	// removed by stage 2.
	assert.Equal(t, []int{1}, o.Rejected(TagLength).Indexes())
	checks := o.Rejected(TagChecksum)
	require.NotNil(t, checks)
	assert.NotContains(t, checks.Indexes(), 0)

	counts := map[int]int{}
	for _, idx := range o.Ledger().Indexes() {
		counts[idx]++
	}
	for idx, c := range counts {
		assert.Equal(t, 1, c, "record %d appears %d times", idx, c)
	}
}

func TestGoodAndBadCoverInput(t *testing.T) {
	a := validID(t, "98765432101")
	b := validID(t, "55555555555")
	in := idSet(str(a), str(b), str(a), str("---"), str("x"), str("12"), str("123456789013"), records.Null(), str(b))

	o, err := New(field, Aadhaar).Run(in)
	require.NoError(t, err)

	covered := map[int]bool{}
	for _, i := range o.Good.Indexes() {
		covered[i] = true
	}
	for _, i := range o.Ledger().Indexes() {
		covered[i] = true
	}
	assert.Equal(t, in.Len(), len(covered)+o.Duplicates)
	assert.Equal(t, in.Len(), o.Good.Len()+o.Rejects()+o.Duplicates)
}

func TestDedupeKeepsLowestIndex(t *testing.T) {
	a := validID(t, "10000000001")
	b := validID(t, "20000000002")
	in := idSet(str(b), str(a), str(b), str(a), str(a))
	o, err := New(field, Aadhaar).Run(in)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, o.Good.Indexes())
	assert.Equal(t, 3, o.Duplicates)
	seen := map[string]bool{}
	for _, v := range o.Good.Column(field) {
		assert.False(t, seen[v.Text()])
		seen[v.Text()] = true
	}
	assert.Equal(t, 0, o.Ledger().Len(), "duplicates are never tagged")
}

func TestPhonePrefixStage(t *testing.T) {
	in := idSet(str("919876543210"), str("449876543210"), str("9198765432"), str("919876543210"))
	o, err := New("contact_phone_number", Phone).Run(relabel(in, "contact_phone_number"))
	require.NoError(t, err)

	assert.Equal(t, []int{0}, o.Good.Indexes())
	assert.Equal(t, []int{1}, o.Rejected("non_91_prefix").Indexes())
	assert.Equal(t, []int{2}, o.Rejected(TagLength).Indexes())
	assert.Nil(t, o.Rejected(TagChecksum))
	_, ok := o.Stats.Get("num_failed_checksum")
	assert.False(t, ok)
}

func TestSplitMatchesFlat(t *testing.T) {
	in := idSet(str("---"), records.Null(), str("1a"), str("12"), str("123456789013"))
	v := New(field, Aadhaar)
	good, rejections, err := v.ValidateSplit(in)
	require.NoError(t, err)
	_, bad, err := v.Validate(in)
	require.NoError(t, err)

	total := 0
	var tags []string
	for _, r := range rejections {
		total += r.Set.Len()
		tags = append(tags, r.Tag)
	}
	assert.Equal(t, bad.Len(), total)
	assert.Equal(t, []string{TagSkipped, TagBlank, TagNonNumeric, TagLength, TagChecksum}, tags)
	assert.Equal(t, 0, good.Len())
}

func TestMissingFieldPassesThrough(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	in := records.New(records.Schema{{Name: "caseid"}}, records.Row{"caseid": str("a")}, records.Row{"caseid": str("b")})

	o, err := New(field, Aadhaar, WithLogger(zap.New(core))).Run(in)
	require.NoError(t, err)

	assert.False(t, o.Applicable)
	assert.Equal(t, in, o.Good)
	assert.Equal(t, 0, o.Ledger().Len())
	for _, k := range o.Stats.Keys() {
		v, _ := o.Stats.Get(k)
		assert.Equal(t, stats.NotApplicable, v, k)
	}
	assert.Contains(t, o.Stats.Keys(), "num_failed_checksum")
	assert.Equal(t, 1, logs.FilterMessage("identifier column not found, passing records through").Len())
}

func TestStatPrefix(t *testing.T) {
	o, err := New(field, Aadhaar, WithStatPrefix("raw_")).Run(idSet(str("1")))
	require.NoError(t, err)
	n, ok := o.Stats.Int("raw_num_non_12_char")
	require.True(t, ok)
	assert.Equal(t, 1, n)
}

func TestEmptySet(t *testing.T) {
	o, err := New(field, Aadhaar).Run(records.Empty(schema))
	require.NoError(t, err)
	assert.Equal(t, 0, o.Good.Len())
	n, _ := o.Stats.Int("pct_failed_checksum")
	assert.Equal(t, 0, n)
}

type failingDeduper struct{}

func (failingDeduper) Seen(string) (bool, error) { return false, errors.New("disk full") }
func (failingDeduper) Close() error              { return nil }

func TestDeduperErrorFailsRun(t *testing.T) {
	v := New(field, Aadhaar, WithDeduper(func() (Deduper, error) { return failingDeduper{}, nil }))
	_, err := v.Run(idSet(str(validID(t, "12345678901"))))
	require.Error(t, err)
}

func TestInvalidFormat(t *testing.T) {
	_, err := New(field, Format{Name: "bad"}).Run(idSet())
	assert.True(t, errors.Is(err, ErrInvalidFormat))
	assert.Error(t, Format{Name: "p", Length: 3, Prefix: "9"}.Validate())
	assert.Error(t, Format{Name: "p", Length: 3, Prefix: "x", PrefixTag: "t"}.Validate())
}

func relabel(set *records.Set, name string) *records.Set {
	return set.WithField(name, records.KindString, func(r records.Record) records.Value { return r.Value(field) })
}
