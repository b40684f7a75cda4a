// Package reference loads the location fixture: one row per anganwadi
// centre with its supervisor, block, district and state.
package reference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/yourorg/case-audit/internal/cleaner"
	"github.com/yourorg/case-audit/internal/iopkg"
	"github.com/yourorg/case-audit/internal/ingest"
	"github.com/yourorg/case-audit/internal/normalize"
	"github.com/yourorg/case-audit/internal/records"
)

var ErrMissingColumn = errors.New("location fixture missing column")

// Owner types, from most to least specific.
const (
	TypeAWW      = "aww"
	TypeLS       = "ls"
	TypeBlock    = "block"
	TypeDistrict = "district"
	TypeState    = "state"
)

// typeColumns map id columns to the owner type they identify, in the order
// they win when an id appears in several.
var typeColumns = []struct{ column, kind string }{
	{"doc_id", TypeAWW},
	{"supervisor_id", TypeLS},
	{"block_id", TypeBlock},
	{"district_id", TypeDistrict},
	{"state_id", TypeState},
}

// Table is an in-memory location fixture. It implements cleaner.Lookup and
// is read-only after Load.
type Table struct {
	byDoc  map[string]cleaner.Location
	bySite map[string]cleaner.Location
	types  map[string]string
}

// Load reads the fixture CSV. Only doc_id is required.
func Load(r io.Reader) (*Table, error) {
	set, err := ingest.ReadCSV(r, nil)
	if err != nil {
		return nil, fmt.Errorf("location fixture: %w", err)
	}
	if !set.Has("doc_id") {
		return nil, fmt.Errorf("%w: doc_id", ErrMissingColumn)
	}
	t := &Table{
		byDoc:  make(map[string]cleaner.Location, set.Len()),
		bySite: make(map[string]cleaner.Location),
		types:  make(map[string]string, set.Len()),
	}
	for _, r := range set.Records() {
		doc := text(r, "doc_id")
		if doc == "" {
			continue
		}
		loc := cleaner.Location{
			DocID:        doc,
			AWCName:      name(r, "awc_name"),
			BlockName:    name(r, "block_name"),
			DistrictName: name(r, "district_name"),
			StateName:    name(r, "state_name"),
		}
		// Later rows win.
		t.byDoc[doc] = loc
		if site := text(r, "awc_site_code"); site != "" {
			t.bySite[site] = loc
		}
	}
	for _, tc := range typeColumns {
		if !set.Has(tc.column) {
			continue
		}
		for _, v := range set.Column(tc.column) {
			if id := cell(v); id != "" {
				if _, seen := t.types[id]; !seen {
					t.types[id] = tc.kind
				}
			}
		}
	}
	return t, nil
}

// LoadURI loads the fixture from a file:// or s3:// URI.
func LoadURI(ctx context.Context, uri string) (*Table, error) {
	rc, _, err := iopkg.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return Load(rc)
}

func cell(v records.Value) string {
	if v.IsNull() {
		return ""
	}
	return strings.TrimSpace(v.Text())
}

func text(r records.Record, field string) string { return cell(r.Value(field)) }

// name reads a location label with its whitespace collapsed.
func name(r records.Record, field string) string { return normalize.Name(text(r, field)) }

// Len is the number of centres.
func (t *Table) Len() int { return len(t.byDoc) }

func (t *Table) ResolveOwner(ownerID string) (cleaner.Location, bool) {
	loc, ok := t.byDoc[strings.TrimSpace(ownerID)]
	return loc, ok
}

func (t *Table) ResolveOwnerType(id string) (string, bool) {
	kind, ok := t.types[strings.TrimSpace(id)]
	return kind, ok
}

// ResolveSite finds the centre a worker username belongs to.
func (t *Table) ResolveSite(username string) (cleaner.Location, bool) {
	loc, ok := t.bySite[normalize.SiteCode(username)]
	return loc, ok
}

// BySite returns a Lookup keyed by worker username, for exports that
// carry no owner id. Every resolved username is a centre worker.
func (t *Table) BySite() cleaner.Lookup { return siteLookup{t} }

type siteLookup struct{ t *Table }

func (s siteLookup) ResolveOwner(username string) (cleaner.Location, bool) {
	return s.t.ResolveSite(username)
}

func (s siteLookup) ResolveOwnerType(username string) (string, bool) {
	if _, ok := s.t.ResolveSite(username); !ok {
		return "", false
	}
	return TypeAWW, true
}

var folderStates = map[string]string{
	"ap":    "Andhra Pradesh",
	"bihar": "Bihar",
	"ch":    "Chhattisgarh",
	"jh":    "Jharkhand",
	"mp":    "Madhya Pradesh",
	"raj":   "Rajasthan",
	"up":    "Uttar Pradesh",
	"mah":   "Maharashtra",
	"user":  "User",
	"test":  "Test",
	"ap2":   "Andhra Pradesh2",
}

// Unknown is the location label for folders without a known suffix.
const Unknown = "None"

// FolderLocation maps a partition folder such as "cases-mp" to its state.
// The suffix is everything after the first hyphen of the last path element.
func FolderLocation(name string) string {
	base := iopkg.Base(name)
	i := strings.IndexByte(base, '-')
	if s, ok := folderStates[base[i+1:]]; ok {
		return s
	}
	return Unknown
}
