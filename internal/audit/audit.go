// Package audit runs the whole check over one location partition: case
// cleaning, identifier validation and analysis, then writes the bad lists
// and optionally stores the run.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourorg/case-audit/internal/analysis"
	"github.com/yourorg/case-audit/internal/cleaner"
	"github.com/yourorg/case-audit/internal/config"
	"github.com/yourorg/case-audit/internal/db"
	"github.com/yourorg/case-audit/internal/dedupe"
	"github.com/yourorg/case-audit/internal/ingest"
	"github.com/yourorg/case-audit/internal/iopkg"
	"github.com/yourorg/case-audit/internal/metrics"
	"github.com/yourorg/case-audit/internal/pipeline"
	"github.com/yourorg/case-audit/internal/predicate"
	"github.com/yourorg/case-audit/internal/records"
	"github.com/yourorg/case-audit/internal/stats"
)

// DateLayout formats run dates in output names.
const DateLayout = "2006-01-02"

// PhonePrefix namespaces phone counters in the run statistics.
const PhonePrefix = "phone_"

// CaseSchema types the case columns read as something other than text.
// Identifiers stay text so leading zeros survive.
var CaseSchema = records.Schema{
	{Name: "dob", Kind: records.KindDate},
	{Name: "opened_date", Kind: records.KindDate},
}

type Config struct {
	Rules  config.Rules
	Lookup cleaner.Lookup
	// Runs stores statistics and bad lists; nil disables persistence.
	Runs db.RunRepository
	// Scratch holds the on-disk duplicate sets. Empty dedupes in memory.
	Scratch string
	Logger  *zap.Logger
}

// Request names one partition run.
type Request struct {
	Location  string
	InputURI  string
	OutputURI string
	RunDate   time.Time
	RunID     uuid.UUID
	Persist   bool
}

type Result struct {
	Location        string
	RunID           uuid.UUID
	Records         int
	Clean           int
	Good            int
	Rejects         int
	BadListURI      string
	PhoneBadListURI string
	RemovedURI      string
	Stats           *stats.Stats
}

// Hook is called after each stage with its name.
type Hook func(stage string)

type Auditor struct {
	cfg      Config
	log      *zap.Logger
	analyzer *analysis.Analyzer
}

func New(cfg Config) *Auditor {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Auditor{cfg: cfg, log: log, analyzer: analysis.New(analysis.WithLogger(log))}
}

// FileName is the output name for kind at location on date.
func FileName(kind, location string, date time.Time) string {
	return fmt.Sprintf("%s_%s_%s.csv", kind, strings.ReplaceAll(location, " ", "_"), date.Format(DateLayout))
}

// Run audits the partition at req.InputURI.
func (a *Auditor) Run(ctx context.Context, req Request, hook Hook) (res *Result, err error) {
	if hook == nil {
		hook = func(string) {}
	}
	if req.RunID == uuid.Nil {
		req.RunID = uuid.New()
	}
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "failed"
		}
		metrics.Partitions.WithLabelValues(outcome).Inc()
	}()
	rules := a.cfg.Rules
	log := a.log.With(zap.String("location", req.Location), zap.String("run_id", req.RunID.String()))

	set, err := ingest.ReadPartition(ctx, req.InputURI, rules.Pattern(), CaseSchema, log)
	if err != nil {
		return nil, err
	}
	metrics.RecordsIn.Add(float64(set.Len()))
	hook("read")

	st := stats.New()
	cases := cleaner.New(a.cfg.Lookup, rules.Cleaner(), cleaner.WithLogger(log)).Clean(set)
	st.Merge(cases.Stats)
	countRemovals(cases.Removals)
	hook("clean")

	bracketed := predicate.AddAgeBracket(cases.Clean, predicate.AgeSpec{RefDate: req.RunDate, Brackets: rules.AgeBrackets})
	ids := cleaner.CleanAadhaar(bracketed, rules.Aadhaar.Field, log)
	st.Merge(ids.Stats)

	aadhaar, err := a.validator(rules.Aadhaar, "", log).Run(bracketed)
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", rules.Aadhaar.Field, err)
	}
	st.Merge(aadhaar.Stats)
	countRejections(aadhaar)

	acfg := analysis.DefaultAadhaarConfig()
	acfg.Field = rules.Aadhaar.Field
	acfg.Format = rules.Aadhaar.Format
	flags, err := a.analyzer.Aadhaar(ids.Clean, acfg)
	if err != nil {
		return nil, fmt.Errorf("analyse %s: %w", rules.Aadhaar.Field, err)
	}
	st.Merge(flags.Stats)
	hook("aadhaar")

	phones := cleaner.CleanPhone(cases.Clean, cleaner.DefaultPhoneConfig(), log)
	st.Merge(phones.Stats)
	countRemovals(phones.Removals)
	phone, err := a.validator(rules.Phone, PhonePrefix, log).Run(phones.Clean)
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", rules.Phone.Field, err)
	}
	st.Merge(phone.Stats)
	countRejections(phone)

	pcfg := analysis.DefaultPhoneConfig()
	pcfg.ContactField = rules.Phone.Field
	pcfg.Languages = rules.Languages
	phoneFlags := a.analyzer.Phone(phones.Clean, pcfg)
	st.MergePrefix(PhonePrefix, phoneFlags.Stats)
	hook("phone")

	res = &Result{
		Location:        req.Location,
		RunID:           req.RunID,
		Records:         set.Len(),
		Clean:           cases.Clean.Len(),
		Good:            aadhaar.Good.Len(),
		Rejects:         aadhaar.Rejects(),
		BadListURI:      iopkg.Join(req.OutputURI, FileName("bad_list", req.Location, req.RunDate)),
		PhoneBadListURI: iopkg.Join(req.OutputURI, FileName("bad_phone_list", req.Location, req.RunDate)),
		RemovedURI:      iopkg.Join(req.OutputURI, FileName("removed", req.Location, req.RunDate)),
		Stats:           st,
	}
	badList := records.Concat(aadhaar.Ledger(), flags.Ledger())
	phoneBadList := records.Concat(phone.Ledger(), phoneFlags.Ledger())
	removed := records.Concat(cases.Ledger(), phones.Ledger())
	for uri, ledger := range map[string]*records.Set{
		res.BadListURI:      badList,
		res.PhoneBadListURI: phoneBadList,
		res.RemovedURI:      removed,
	} {
		if err := ingest.WriteFile(ctx, uri, ledger); err != nil {
			return nil, fmt.Errorf("write %s: %w", uri, err)
		}
	}
	hook("write")

	if req.Persist && a.cfg.Runs != nil {
		if err := a.persist(ctx, req, st, records.Concat(removed, badList, phoneBadList), log); err != nil {
			return nil, err
		}
		hook("persist")
	}
	log.Info("partition audited",
		zap.Int("records", res.Records), zap.Int("clean", res.Clean),
		zap.Int("good", res.Good), zap.Int("rejects", res.Rejects))
	return res, nil
}

func (a *Auditor) validator(id config.Identifier, prefix string, log *zap.Logger) *pipeline.Validator {
	opts := []pipeline.Option{pipeline.WithLogger(log), pipeline.WithStatPrefix(prefix)}
	if a.cfg.Scratch != "" {
		opts = append(opts, pipeline.WithDeduper(dedupe.Factory(a.cfg.Scratch)))
	}
	return pipeline.New(id.Field, id.Format, opts...)
}

// persist stores the run. A retried run whose ledger is already stored
// keeps the stored copy.
func (a *Auditor) persist(ctx context.Context, req Request, st *stats.Stats, ledger *records.Set, log *zap.Logger) error {
	run := db.Run{ID: req.RunID, Location: req.Location, RunDate: req.RunDate, Stats: st}
	if err := a.cfg.Runs.SaveStats(ctx, run); err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	n, err := a.cfg.Runs.SaveLedger(ctx, req.RunID, ledger, a.cfg.Rules.Aadhaar.Field)
	if errors.Is(err, db.ErrConflict) {
		log.Warn("ledger already stored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	log.Info("run stored", zap.Int64("ledger_rows", n))
	return nil
}

func countRemovals(rs []cleaner.Removal) {
	for _, r := range rs {
		if n := r.Set.Len(); n > 0 {
			metrics.RecordsRejected.WithLabelValues(r.Tag).Add(float64(n))
		}
	}
}

func countRejections(o *pipeline.Outcome) {
	for _, r := range o.Rejections {
		if n := r.Set.Len(); n > 0 {
			metrics.RecordsRejected.WithLabelValues(r.Tag).Add(float64(n))
		}
	}
	metrics.DuplicatesDropped.Add(float64(o.Duplicates))
}
