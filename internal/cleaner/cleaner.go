// Package cleaner removes structurally invalid records before identifier
// validation. Steps run in a fixed order because later steps read columns
// that earlier ones attach:
//
//	1. closed cases (closed)
//	2. blank or all-numeric names (blank_name, numeric_name)
//	3. owner locations are resolved and attached
//	4. locations outside the allowed states (test_location)
//	5. accounts whose name carries the test marker (test_user)
//	6. owners whose type is not allowed (owner_not_awc)
//
// A step whose input column is missing is skipped and its counter is set
// to "not applicable".
package cleaner

import (
	"regexp"

	"go.uber.org/zap"

	"github.com/yourorg/case-audit/internal/predicate"
	"github.com/yourorg/case-audit/internal/records"
	"github.com/yourorg/case-audit/internal/stats"
)

// Reason tags.
const (
	TagClosed       = "closed"
	TagBlankName    = "blank_name"
	TagNumericName  = "numeric_name"
	TagTestLocation = "test_location"
	TagTestUser     = "test_user"
	TagOwnerNotAWC  = "owner_not_awc"
)

// DefaultStates are the states with real deployments.
var DefaultStates = []string{
	"Uttar Pradesh", "Madhya Pradesh", "Chhattisgarh", "Andhra Pradesh",
	"Bihar", "Jharkhand", "Rajasthan", "Maharashtra",
}

var (
	allNumeric  = regexp.MustCompile(`^\d+$`)
	someNumeric = regexp.MustCompile(`\d`)
)

// Config selects columns and allow-lists. Zero fields take the defaults
// from DefaultConfig.
type Config struct {
	ClosedField string
	NameField   string
	OwnerField  string
	// TypeFields are tried in order for the owner-type lookup.
	TypeFields    []string
	AllowedStates []string
	TestMarker    string
	// MarkerFields are tried in order; the first one present is searched.
	MarkerFields      []string
	AllowedOwnerTypes []string
	// SkipOwnerType disables step 6.
	SkipOwnerType bool
}

func DefaultConfig() Config {
	return Config{
		ClosedField:       "closed",
		NameField:         "name",
		OwnerField:        "owner_id",
		TypeFields:        []string{"commcare_location_id", "owner_id"},
		AllowedStates:     DefaultStates,
		TestMarker:        "test",
		MarkerFields:      []string{"username", AWCNameField, "owner_name"},
		AllowedOwnerTypes: []string{"aww"},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ClosedField == "" {
		c.ClosedField = d.ClosedField
	}
	if c.NameField == "" {
		c.NameField = d.NameField
	}
	if c.OwnerField == "" {
		c.OwnerField = d.OwnerField
	}
	if len(c.TypeFields) == 0 {
		c.TypeFields = d.TypeFields
	}
	if len(c.AllowedStates) == 0 {
		c.AllowedStates = d.AllowedStates
	}
	if c.TestMarker == "" {
		c.TestMarker = d.TestMarker
	}
	if len(c.MarkerFields) == 0 {
		c.MarkerFields = d.MarkerFields
	}
	if len(c.AllowedOwnerTypes) == 0 {
		c.AllowedOwnerTypes = d.AllowedOwnerTypes
	}
	return c
}

// Removal is the set one step took out.
type Removal struct {
	Tag string
	Set *records.Set
}

// Outcome of a cleaning run.
type Outcome struct {
	Clean    *records.Set
	Removals []Removal
	Stats    *stats.Stats
}

// Ledger concatenates the removed records in step order.
func (o *Outcome) Ledger() *records.Set {
	sets := make([]*records.Set, 0, len(o.Removals))
	for _, r := range o.Removals {
		sets = append(sets, r.Set)
	}
	if len(sets) == 0 {
		return records.Empty(o.Clean.Schema()).Tag("")
	}
	return records.Concat(sets...)
}

// Removed returns the records a step removed under tag, or nil.
func (o *Outcome) Removed(tag string) *records.Set {
	var sets []*records.Set
	for _, r := range o.Removals {
		if r.Tag == tag {
			sets = append(sets, r.Set)
		}
	}
	if sets == nil {
		return nil
	}
	return records.Concat(sets...)
}

type Option func(*Cleaner)

func WithLogger(l *zap.Logger) Option {
	return func(c *Cleaner) { c.log = l }
}

// Cleaner applies the structural filters. It holds no per-run state and is
// safe for concurrent use when the Lookup is.
type Cleaner struct {
	cfg    Config
	lookup Lookup
	log    *zap.Logger
}

func New(lookup Lookup, cfg Config, opts ...Option) *Cleaner {
	c := &Cleaner{cfg: cfg.withDefaults(), lookup: lookup, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Clean runs every step over set.
func (c *Cleaner) Clean(set *records.Set) *Outcome {
	out := &Outcome{Stats: stats.New()}
	out.Stats.Set("orig_rows", set.Len())
	c.log.Info("cleaning case data", zap.Int("rows", set.Len()))

	set = c.closed(set, out)
	set = c.names(set, out)
	set = c.locations(set)
	set = c.states(set, out)
	set = c.testUsers(set, out)
	set = c.ownerTypes(set, out)

	out.Clean = set
	out.Stats.Set("num_clean_rows", set.Len())
	c.log.Info("cleaned case data", zap.Int("rows", set.Len()))
	return out
}

func (c *Cleaner) remove(out *Outcome, set *records.Set, r predicate.Result) *records.Set {
	out.Removals = append(out.Removals, Removal{Tag: r.Tag, Set: r.Matched})
	c.log.Debug("removed", zap.String("test", r.Tag), zap.Int("found", r.Count), zap.Int("of", set.Len()))
	return r.Rest(set)
}

func (c *Cleaner) closed(set *records.Set, out *Outcome) *records.Set {
	if !set.Has(c.cfg.ClosedField) {
		c.log.Info("closed column not found, not removing closed cases")
		out.Stats.NA("num_closed")
		return set
	}
	r := predicate.Apply(set, c.cfg.ClosedField, TagClosed, func(v records.Value) bool {
		b, err := v.AsBool()
		return err == nil && b
	})
	out.Stats.Set("num_closed", r.Count)
	return c.remove(out, set, r)
}

func (c *Cleaner) names(set *records.Set, out *Outcome) *records.Set {
	if !set.Has(c.cfg.NameField) {
		c.log.Info("name column not found, not removing blank names")
		out.Stats.NA("num_blank_name", "num_numeric_name")
		return set
	}
	blank := predicate.Blank(set, c.cfg.NameField)
	if blank.Removed() > 0 {
		out.Removals = append(out.Removals, Removal{Tag: TagBlankName, Set: blank.Ledger().Tag(TagBlankName)})
	}
	set = blank.Remaining
	numeric := predicate.Contains(set, c.cfg.NameField, allNumeric, TagNumericName)
	set = c.remove(out, set, numeric)
	// Names with some digits are reported but kept.
	some := predicate.Contains(set, c.cfg.NameField, someNumeric, "")
	out.Stats.Set("num_blank_name", blank.Removed()+numeric.Count)
	out.Stats.Set("num_numeric_name", some.Count)
	return set
}

// locations attaches the owner's location labels. Unresolved owners get
// null labels so the state allow-list excludes them.
func (c *Cleaner) locations(set *records.Set) *records.Set {
	if !set.Has(c.cfg.OwnerField) || c.lookup == nil {
		return set
	}
	resolved := make(map[int]Location, set.Len())
	misses := 0
	for _, r := range set.Records() {
		v := r.Value(c.cfg.OwnerField)
		if v.IsNull() {
			misses++
			continue
		}
		loc, ok := c.lookup.ResolveOwner(v.Text())
		if !ok {
			misses++
			continue
		}
		resolved[r.Index()] = loc
	}
	if misses > 0 {
		c.log.Info("owners without a location", zap.Int("count", misses))
	}
	attach := func(name string, pick func(Location) string) {
		set = set.WithField(name, records.KindString, func(r records.Record) records.Value {
			loc, ok := resolved[r.Index()]
			if !ok || pick(loc) == "" {
				return records.Null()
			}
			return records.String(pick(loc))
		})
	}
	attach(AWCNameField, func(l Location) string { return l.AWCName })
	attach(BlockNameField, func(l Location) string { return l.BlockName })
	attach(DistrictNameField, func(l Location) string { return l.DistrictName })
	attach(StateNameField, func(l Location) string { return l.StateName })
	return set
}

func (c *Cleaner) states(set *records.Set, out *Outcome) *records.Set {
	if !set.Has(c.cfg.OwnerField) || !set.Has(StateNameField) {
		c.log.Info("owner column not found, not removing test locations")
		out.Stats.NA("num_test_locations")
		return set
	}
	r := predicate.NotIn(set, StateNameField, c.cfg.AllowedStates, TagTestLocation)
	out.Stats.Set("num_test_locations", r.Count)
	return c.remove(out, set, r)
}

func (c *Cleaner) testUsers(set *records.Set, out *Outcome) *records.Set {
	marker := regexp.MustCompile(regexp.QuoteMeta(c.cfg.TestMarker))
	for _, f := range c.cfg.MarkerFields {
		if !set.Has(f) {
			continue
		}
		r := predicate.Contains(set, f, marker, TagTestUser)
		out.Stats.Set("num_test_users", r.Count)
		c.log.Debug("test marker column", zap.String("field", f))
		return c.remove(out, set, r)
	}
	c.log.Info("no account name column found, not removing test users")
	out.Stats.NA("num_test_users")
	return set
}

func (c *Cleaner) ownerTypes(set *records.Set, out *Outcome) *records.Set {
	if c.cfg.SkipOwnerType || c.lookup == nil {
		out.Stats.NA("non_awc_num")
		return set
	}
	field := ""
	for _, f := range c.cfg.TypeFields {
		if set.Has(f) {
			field = f
			break
		}
	}
	if field == "" {
		c.log.Info("no owner column found, not removing non-awc owners")
		out.Stats.NA("non_awc_num")
		return set
	}
	typed := set.WithField(OwnerTypeField, records.KindString, func(r records.Record) records.Value {
		v := r.Value(field)
		if v.IsNull() {
			return records.Null()
		}
		t, ok := c.lookup.ResolveOwnerType(v.Text())
		if !ok {
			return records.Null()
		}
		return records.String(t)
	})
	r := predicate.NotIn(typed, OwnerTypeField, c.cfg.AllowedOwnerTypes, TagOwnerNotAWC)
	out.Stats.Set("non_awc_num", r.Count)
	return c.remove(out, typed, r)
}
