// Command audit runs the case audit once. By default it audits every
// location folder in-process; with -submit it starts AuditWorkflow on
// Temporal and waits for the report. -show prints a stored run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/case-audit/internal/audit"
	"github.com/yourorg/case-audit/internal/cleaner"
	"github.com/yourorg/case-audit/internal/config"
	"github.com/yourorg/case-audit/internal/db"
	"github.com/yourorg/case-audit/internal/iopkg"
	"github.com/yourorg/case-audit/internal/reference"
	"github.com/yourorg/case-audit/internal/types"
	"github.com/yourorg/case-audit/internal/workflow"
)

func main() {
	var (
		in        = flag.String("in", "", "input root holding one folder per location (path, file:// or s3://)")
		out       = flag.String("out", "", "output directory for bad lists and the report")
		date      = flag.String("date", time.Now().Format(audit.DateLayout), "run date, YYYY-MM-DD")
		rulesPath = flag.String("rules", os.Getenv("CA_RULES"), "rules YAML file")
		locations = flag.String("locations", "", "comma-separated folders or states to audit; empty audits all")
		scratch   = flag.String("scratch", os.Getenv("CA_TMP_DIR"), "scratch directory for on-disk dedupe; empty dedupes in memory")
		parallel  = flag.Int("parallel", 4, "partitions audited at once")
		persist   = flag.Bool("persist", false, "store statistics and bad lists in Postgres (DB_* env)")
		submit    = flag.Bool("submit", false, "run on Temporal instead of in-process")
		show      = flag.String("show", "", "print the stored statistics of a run id and exit")
	)
	flag.Parse()

	zl := newZap(getenv("LOG_LEVEL", "info"))
	defer zl.Sync()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *show != "" {
		if err := showRun(ctx, *show); err != nil {
			log.Fatal(err)
		}
		return
	}
	if *in == "" || *out == "" {
		flag.Usage()
		os.Exit(2)
	}
	runDate, err := time.Parse(audit.DateLayout, *date)
	if err != nil {
		log.Fatalf("bad -date: %v", err)
	}
	var only []string
	if *locations != "" {
		only = strings.Split(*locations, ",")
	}

	if *submit {
		p := types.WorkflowParams{
			InputURI:  *in,
			OutputURI: *out,
			RunDate:   runDate.Format(audit.DateLayout),
			Locations: only,
			Persist:   *persist,
		}
		if err := submitRun(ctx, p, zl); err != nil {
			log.Fatal(err)
		}
		return
	}

	rules, err := config.Load(*rulesPath)
	if err != nil {
		log.Fatalf("load rules: %v", err)
	}
	var lookup cleaner.Lookup
	if uri := getenv("CA_LOCATIONS", rules.LocationFixture); uri != "" {
		t, err := reference.LoadURI(ctx, uri)
		if err != nil {
			log.Fatalf("load locations %s: %v", uri, err)
		}
		lookup = t
	} else {
		zl.Warn("no location fixture, location checks are skipped")
	}
	var runs db.RunRepository
	if *persist {
		pool, err := db.Connect(ctx, db.FromEnv())
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pool.Close()
		if err := pool.EnsureSchema(ctx); err != nil {
			log.Fatalf("db schema: %v", err)
		}
		runs = db.NewRunRepo(pool)
	}

	parts, err := audit.Partitions(ctx, *in, rules.Pattern(), only)
	if err != nil {
		log.Fatal(err)
	}
	if len(parts) == 0 {
		log.Fatalf("no partitions under %s", *in)
	}

	au := audit.New(audit.Config{Rules: rules, Lookup: lookup, Runs: runs, Scratch: *scratch, Logger: zl})
	results := make([]*audit.Result, len(parts))
	var (
		mu     sync.Mutex
		failed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*parallel)
	for i, part := range parts {
		g.Go(func() error {
			res, err := au.Run(gctx, audit.Request{
				Location:  part.Location,
				InputURI:  part.URI,
				OutputURI: *out,
				RunDate:   runDate,
				RunID:     uuid.New(),
				Persist:   *persist,
			}, nil)
			if err != nil {
				// one bad partition does not stop the others
				zl.Error("partition failed", zap.String("location", part.Location), zap.Error(err))
				mu.Lock()
				failed = append(failed, part.Location)
				mu.Unlock()
				return gctx.Err()
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}

	rep := audit.NewReport()
	for _, r := range results {
		if r != nil {
			rep.Add(r.Location, r.Stats)
		}
	}
	if len(rep.IDs()) == 0 {
		log.Fatalf("all partitions failed: %s", strings.Join(failed, ", "))
	}
	reportURI := iopkg.Join(*out, audit.ReportName(runDate))
	if err := audit.WriteReport(ctx, reportURI, rep); err != nil {
		log.Fatalf("write report: %v", err)
	}
	zl.Info("audit complete",
		zap.String("report", reportURI), zap.Int("locations", len(rep.IDs())), zap.Strings("failed", failed))
}

// submitRun starts AuditWorkflow and waits for its report.
func submitRun(ctx context.Context, p types.WorkflowParams, zl *zap.Logger) error {
	c, err := client.Dial(client.Options{
		HostPort:  getenv("TEMPORAL_TARGET_HOST", getenv("TEMPORAL_ADDRESS", "localhost:7233")),
		Namespace: getenv("TEMPORAL_NAMESPACE", "default"),
	})
	if err != nil {
		return fmt.Errorf("temporal client: %w", err)
	}
	defer c.Close()

	opts := client.StartWorkflowOptions{
		ID:        "case-audit-" + p.RunDate + "-" + uuid.NewString()[:8],
		TaskQueue: getenv("TEMPORAL_TASK_QUEUE", "case-audit"), // same queue as the worker
	}
	run, err := c.ExecuteWorkflow(ctx, opts, workflow.AuditWorkflow, p)
	if err != nil {
		return fmt.Errorf("start workflow: %w", err)
	}
	zl.Info("workflow started", zap.String("workflow_id", run.GetID()), zap.String("run_id", run.GetRunID()))
	var res types.ReportResult
	if err := run.Get(ctx, &res); err != nil {
		return err
	}
	zl.Info("workflow complete",
		zap.String("report", res.ReportURI), zap.Int("locations", res.Locations), zap.Strings("failed", res.Failed))
	return nil
}

func showRun(ctx context.Context, id string) error {
	runID, err := uuid.Parse(id)
	if err != nil {
		return err
	}
	pool, err := db.Connect(ctx, db.FromEnv())
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()
	run, err := db.NewRunRepo(pool).Get(ctx, runID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"id":         run.ID,
		"location":   run.Location,
		"run_date":   run.RunDate.Format(audit.DateLayout),
		"created_at": run.CreatedAt,
		"stats":      run.Stats,
	})
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func newZap(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
