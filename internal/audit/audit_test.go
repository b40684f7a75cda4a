package audit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/case-audit/internal/cleaner"
	"github.com/yourorg/case-audit/internal/config"
	"github.com/yourorg/case-audit/internal/db"
	"github.com/yourorg/case-audit/internal/ingest"
	"github.com/yourorg/case-audit/internal/metrics"
	"github.com/yourorg/case-audit/internal/records"
	"github.com/yourorg/case-audit/internal/stats"
	"github.com/yourorg/case-audit/internal/types"
	"github.com/yourorg/case-audit/internal/verhoeff"
)

type fakeLookup struct{}

func (fakeLookup) ResolveOwner(id string) (cleaner.Location, bool) {
	if id != "o1" {
		return cleaner.Location{}, false
	}
	return cleaner.Location{DocID: "o1", AWCName: "AWC 1", StateName: "Bihar"}, true
}

func (fakeLookup) ResolveOwnerType(id string) (string, bool) {
	if id != "o1" {
		return "", false
	}
	return "aww", true
}

type fakeRuns struct {
	db.RunRepository
	runs      []db.Run
	ledgerLen int
	ledgerErr error
}

func (f *fakeRuns) SaveStats(_ context.Context, run db.Run) error {
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeRuns) SaveLedger(_ context.Context, _ uuid.UUID, ledger *records.Set, _ string) (int64, error) {
	if f.ledgerErr != nil {
		return 0, f.ledgerErr
	}
	f.ledgerLen = ledger.Len()
	return int64(ledger.Len()), nil
}

const header = "closed,name,owner_id,username,aadhar_number,contact_phone_number," +
	"contact_phone_number_is_verified,sex,dob,opened_date,phone_number,language_code\n"

func row(closed, name, aadhaar string) string {
	return strings.Join([]string{closed, name, "o1", "u_" + name, aadhaar, "919812345670",
		"1", "F", "1995-01-01", "2020-01-01", "9812345670", "hin"}, ",") + "\n"
}

// writePartition lays out one location folder and returns its path.
func writePartition(t *testing.T) string {
	t.Helper()
	good, err := verhoeff.Generate("23456789012")
	require.NoError(t, err)
	last := good[len(good)-1] - '0'
	bad := good[:len(good)-1] + string(rune('0'+(last+1)%10))

	dir := filepath.Join(t.TempDir(), "cases-br")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	first := header + row("False", "Asha", good) + row("False", "Bina", good) + row("False", "Cara", "---")
	second := header + row("False", "Dina", "2345") + row("True", "Ena", good) + row("False", "Fay", bad)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cases_1.csv"), []byte(first), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cases_2.csv"), []byte(second), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	return dir
}

func tagsIn(t *testing.T, uri string) []string {
	t.Helper()
	f, err := os.Open(uri)
	require.NoError(t, err)
	defer f.Close()
	set, err := ingest.ReadCSV(f, nil)
	require.NoError(t, err)
	var out []string
	for _, r := range set.Records() {
		out = append(out, r.Value(records.ErrorField).Text())
	}
	return out
}

func TestRunPartition(t *testing.T) {
	in := writePartition(t)
	out := filepath.Join(t.TempDir(), "out")
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	before := testutil.ToFloat64(metrics.RecordsIn)

	var stages []string
	a := New(Config{Rules: config.Default(), Lookup: fakeLookup{}, Scratch: t.TempDir()})
	res, err := a.Run(context.Background(), Request{Location: "Bihar", InputURI: in, OutputURI: out, RunDate: date},
		func(s string) { stages = append(stages, s) })
	require.NoError(t, err)

	assert.Equal(t, []string{"read", "clean", "aadhaar", "phone", "write"}, stages)
	assert.NotEqual(t, uuid.Nil, res.RunID)
	assert.Equal(t, 6, res.Records)
	assert.Equal(t, 5, res.Clean)
	assert.Equal(t, 1, res.Good)
	assert.Equal(t, 3, res.Rejects)
	assert.Equal(t, float64(6), testutil.ToFloat64(metrics.RecordsIn)-before)

	for key, want := range map[string]int{
		"orig_rows":                    6,
		"num_closed":                   1,
		"num_skipped":                  1,
		"num_clean_aadhar_nums":        4,
		"num_non_12_char":              1,
		"num_failed_checksum":          1,
		"num_duplicates_dropped":       1,
		"num_good":                     1,
		"num_clean_phone_nums":         5,
		"phone_num_duplicates_dropped": 4,
		"phone_num_good":               1,
		"phone_num_duplicates":         1,
	} {
		got, ok := res.Stats.Int(key)
		require.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}

	assert.Equal(t, filepath.Join(out, "bad_list_Bihar_2024-03-01.csv"), res.BadListURI)
	assert.Equal(t, []string{"skipped", "not_specified_length", "failed_checksum"}, tagsIn(t, res.BadListURI))
	assert.Equal(t, []string{"closed"}, tagsIn(t, res.RemovedURI))
	assert.Empty(t, tagsIn(t, res.PhoneBadListURI))
}

func TestRunPersists(t *testing.T) {
	in := writePartition(t)
	runs := &fakeRuns{}
	id := uuid.New()
	a := New(Config{Rules: config.Default(), Lookup: fakeLookup{}, Runs: runs})
	_, err := a.Run(context.Background(), Request{
		Location: "Bihar", InputURI: in, OutputURI: t.TempDir(), RunDate: time.Now(), RunID: id, Persist: true,
	}, nil)
	require.NoError(t, err)
	require.Len(t, runs.runs, 1)
	assert.Equal(t, id, runs.runs[0].ID)
	assert.Equal(t, "Bihar", runs.runs[0].Location)
	assert.Equal(t, 4, runs.ledgerLen)

	runs.ledgerErr = db.ErrConflict
	_, err = a.Run(context.Background(), Request{
		Location: "Bihar", InputURI: in, OutputURI: t.TempDir(), RunDate: time.Now(), RunID: id, Persist: true,
	}, nil)
	require.NoError(t, err)
}

func TestRunWithoutFiles(t *testing.T) {
	a := New(Config{Rules: config.Default(), Lookup: fakeLookup{}})
	_, err := a.Run(context.Background(), Request{Location: "x", InputURI: t.TempDir(), OutputURI: t.TempDir()}, nil)
	require.ErrorIs(t, err, ingest.ErrNoFiles)
}

func TestFileName(t *testing.T) {
	d := time.Date(2019, 8, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "bad_list_Madhya_Pradesh_2019-08-05.csv", FileName("bad_list", "Madhya Pradesh", d))
}

func TestWriteReport(t *testing.T) {
	bihar := stats.New()
	bihar.Set("orig_rows", 10)
	bihar.Set("num_clean_rows", 8)
	bihar.Set("num_clean_aadhar_nums", 6)
	bihar.Set("num_good", 3)
	bihar.Set("pct_good", 30)
	up := stats.New()
	up.Set("orig_rows", 10)
	up.Set("num_clean_rows", 2)
	up.NA("num_clean_aadhar_nums")

	r := NewReport()
	r.Add("Bihar", bihar)
	r.Add("Uttar Pradesh", up)
	uri := filepath.Join(t.TempDir(), ReportName(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, WriteReport(context.Background(), uri, r))
	assert.True(t, strings.HasSuffix(uri, "report_2024-03-01.csv"))

	b, err := os.ReadFile(uri)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "location,orig_rows,num_clean_rows,num_clean_aadhar_nums,num_good,"+
		"pct_clean_rows,pct_aadhar_good,pct_phone_good", lines[0])
	assert.Equal(t, "Bihar,10,8,6,3,80,50,not applicable", lines[1])
	assert.Equal(t, "Uttar Pradesh,10,2,not applicable,,20,not applicable,not applicable", lines[2])
	assert.Equal(t, "Total,20,10,6,3,50,50,not applicable", lines[3])
}

func TestPartitions(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"cases-up/Cases_1.csv", "cases-up/Cases_2.csv.gz", "cases-zz/Cases_1.csv", "docs/readme.txt"} {
		path := filepath.Join(root, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}
	pattern := config.Default().Pattern()

	parts, err := Partitions(context.Background(), root, pattern, nil)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, types.Partition{URI: filepath.Join(root, "cases-up"), Folder: "cases-up", Location: "Uttar Pradesh"}, parts[0])
	assert.Equal(t, "cases-zz", parts[1].Location)

	parts, err = Partitions(context.Background(), root, pattern, []string{"cases-zz"})
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "cases-zz", parts[0].Folder)
}

func TestParent(t *testing.T) {
	assert.Equal(t, "s3://bkt/cases-mp/", parent("s3://bkt/cases-mp/Cases_1.csv"))
	assert.Equal(t, filepath.Join("data", "cases-mp"), parent(filepath.Join("data", "cases-mp", "Cases_1.csv")))
}
