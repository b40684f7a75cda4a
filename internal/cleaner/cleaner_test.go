package cleaner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/case-audit/internal/records"
	"github.com/yourorg/case-audit/internal/stats"
)

type owner struct {
	loc  Location
	kind string
}

type fakeLookup map[string]owner

func (f fakeLookup) ResolveOwner(id string) (Location, bool) {
	o, ok := f[id]
	return o.loc, ok
}

func (f fakeLookup) ResolveOwnerType(id string) (string, bool) {
	o, ok := f[id]
	return o.kind, ok
}

var lookup = fakeLookup{
	"o1":  {Location{DocID: "o1", AWCName: "AWC 1", StateName: "Bihar"}, "aww"},
	"o2":  {Location{DocID: "o2", AWCName: "AWC 2", StateName: "Test State"}, "aww"},
	"o3":  {Location{DocID: "o3", AWCName: "test awc", StateName: "Bihar"}, "aww"},
	"ls1": {Location{DocID: "ls1", StateName: "Bihar"}, "ls"},
}

func caseRow(closed, name, ownerID, username string) records.Row {
	row := records.Row{
		"closed":   records.String(closed),
		"name":     records.String(name),
		"owner_id": records.String(ownerID),
		"username": records.String(username),
	}
	if name == "" {
		row["name"] = records.Null()
	}
	return row
}

var caseSchema = records.Schema{
	{Name: "closed", Kind: records.KindString},
	{Name: "name", Kind: records.KindString},
	{Name: "owner_id", Kind: records.KindString},
	{Name: "username", Kind: records.KindString},
}

func TestCleanOrder(t *testing.T) {
	in := records.New(caseSchema,
		caseRow("False", "Asha", "o1", "u0"),
		caseRow("True", "Bina", "o1", "u1"),
		caseRow("False", "", "o1", "u2"),
		caseRow("False", "12345", "o1", "u3"),
		caseRow("False", "Rita2", "o1", "u4"),
		caseRow("False", "Sita", "o9", "u5"),
		caseRow("False", "Gita", "o2", "u6"),
		caseRow("False", "Mina", "o1", "test_user7"),
		caseRow("False", "Tara", "ls1", "u8"),
	)
	out := New(lookup, Config{}).Clean(in)

	assert.Equal(t, []int{0, 4}, out.Clean.Indexes())
	assert.Equal(t, "Bihar", out.Clean.At(0).Value(StateNameField).Text())
	assert.Equal(t, "AWC 1", out.Clean.At(0).Value(AWCNameField).Text())

	ledger := out.Ledger()
	assert.Equal(t, []int{1, 2, 3, 5, 6, 7, 8}, ledger.Indexes())
	var tags []string
	for _, r := range ledger.Records() {
		tags = append(tags, r.Error())
	}
	assert.Equal(t, []string{TagClosed, TagBlankName, TagNumericName, TagTestLocation, TagTestLocation, TagTestUser, TagOwnerNotAWC}, tags)

	want := map[string]int{
		"orig_rows": 9, "num_closed": 1, "num_blank_name": 2, "num_numeric_name": 1,
		"num_test_locations": 2, "num_test_users": 1, "non_awc_num": 1, "num_clean_rows": 2,
	}
	for k, v := range want {
		got, ok := out.Stats.Int(k)
		require.True(t, ok, k)
		assert.Equal(t, v, got, k)
	}
	assert.Equal(t, 9, out.Clean.Len()+ledger.Len())
}

func TestUnresolvedOwnerIsExcluded(t *testing.T) {
	in := records.New(caseSchema, caseRow("False", "Asha", "nobody", "u0"))
	out := New(fakeLookup{}, Config{}).Clean(in)
	assert.Equal(t, 0, out.Clean.Len())
	assert.Equal(t, 1, out.Removed(TagTestLocation).Len())
}

func TestMarkerFallsBackToResolvedAWCName(t *testing.T) {
	schema := records.Schema{{Name: "owner_id", Kind: records.KindString}}
	in := records.New(schema,
		records.Row{"owner_id": records.String("o1")},
		records.Row{"owner_id": records.String("o3")},
	)
	out := New(lookup, Config{}).Clean(in)
	assert.Equal(t, []int{0}, out.Clean.Indexes())
	assert.Equal(t, []int{1}, out.Removed(TagTestUser).Indexes())
	na, _ := out.Stats.Get("num_closed")
	assert.Equal(t, stats.NotApplicable, na)
}

func TestMissingColumnsAreNotApplicable(t *testing.T) {
	schema := records.Schema{{Name: "x", Kind: records.KindString}}
	in := records.New(schema, records.Row{"x": records.String("a")}, records.Row{"x": records.Null()})
	out := New(lookup, Config{}).Clean(in)
	assert.Equal(t, 2, out.Clean.Len())
	assert.Equal(t, 0, out.Ledger().Len())
	for _, k := range []string{"num_closed", "num_blank_name", "num_test_locations", "num_test_users", "non_awc_num"} {
		v, ok := out.Stats.Get(k)
		require.True(t, ok, k)
		assert.Equal(t, stats.NotApplicable, v, k)
	}
}

func TestSkipOwnerType(t *testing.T) {
	in := records.New(caseSchema, caseRow("False", "Tara", "ls1", "u8"))
	out := New(lookup, Config{SkipOwnerType: true}).Clean(in)
	assert.Equal(t, 1, out.Clean.Len())
	assert.Nil(t, out.Removed(TagOwnerNotAWC))
}

func TestCleanAadhaar(t *testing.T) {
	schema := records.Schema{{Name: "aadhar_number", Kind: records.KindString}}
	in := records.New(schema,
		records.Row{"aadhar_number": records.String("---")},
		records.Row{"aadhar_number": records.Null()},
		records.Row{"aadhar_number": records.String("1234")},
		records.Row{"aadhar_number": records.String("---")},
	)
	out := CleanAadhaar(in, "aadhar_number", nil)
	assert.Equal(t, []int{2}, out.Clean.Indexes())
	n, _ := out.Stats.Int("num_skipped")
	assert.Equal(t, 2, n)
	n, _ = out.Stats.Int("num_blank")
	assert.Equal(t, 1, n)
	n, _ = out.Stats.Int("num_clean_aadhar_nums")
	assert.Equal(t, 1, n)

	missing := CleanAadhaar(in, "uid", nil)
	assert.Equal(t, 4, missing.Clean.Len())
	v, _ := missing.Stats.Get("num_blank")
	assert.Equal(t, stats.NotApplicable, v)
}

func TestCleanPhone(t *testing.T) {
	day := func(s string) records.Value {
		d, err := time.Parse("2006-01-02", s)
		require.NoError(t, err)
		return records.Date(d)
	}
	schema := records.Schema{
		{Name: "contact_phone_number_is_verified", Kind: records.KindString},
		{Name: "sex", Kind: records.KindString},
		{Name: "dob", Kind: records.KindDate},
		{Name: "opened_date", Kind: records.KindDate},
	}
	row := func(verified records.Value, sex string, dob records.Value) records.Row {
		return records.Row{
			"contact_phone_number_is_verified": verified,
			"sex":                              records.String(sex),
			"dob":                              dob,
			"opened_date":                      day("2017-06-01"),
		}
	}
	in := records.New(schema,
		row(records.String("1"), "F", day("1990-01-01")),
		row(records.String("0"), "F", day("1990-01-01")),
		row(records.Int(1), "M", day("1990-01-01")),
		row(records.String("1"), "F", day("2010-01-01")),
		row(records.String("1"), "F", records.Null()),
	)
	out := CleanPhone(in, DefaultPhoneConfig(), nil)
	assert.Equal(t, []int{0}, out.Clean.Indexes())
	for k, v := range map[string]int{"num_unverified": 1, "num_non_female": 1, "num_out_of_age": 2, "num_clean_phone_nums": 1} {
		got, ok := out.Stats.Int(k)
		require.True(t, ok, k)
		assert.Equal(t, v, got, k)
	}
	assert.Equal(t, []int{3, 4}, out.Removed(TagOutOfAge).Indexes())
}
