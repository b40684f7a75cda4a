package main

import (
	"context"
	"log"
	"os"
	"strings"

	tactivity "go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/yourorg/case-audit/internal/activities"
	"github.com/yourorg/case-audit/internal/cleaner"
	"github.com/yourorg/case-audit/internal/config"
	"github.com/yourorg/case-audit/internal/db"
	camet "github.com/yourorg/case-audit/internal/metrics"
	"github.com/yourorg/case-audit/internal/reference"
	"github.com/yourorg/case-audit/internal/workflow"
)

func main() {
	ctx := context.Background()
	// Support both TEMPORAL_TARGET_HOST and TEMPORAL_ADDRESS for compatibility
	taddr := getenv("TEMPORAL_TARGET_HOST", getenv("TEMPORAL_ADDRESS", "localhost:7233"))
	ns := getenv("TEMPORAL_NAMESPACE", "default")
	q := getenv("TEMPORAL_TASK_QUEUE", "case-audit")
	tmpDir := getenv("CA_TMP_DIR", "/var/case-audit")
	// Ensure scratch dir exists and is writable
	_ = os.MkdirAll(tmpDir, 0o777)

	zl := newZap(getenv("LOG_LEVEL", "info"))
	defer zl.Sync()

	rules, err := config.Load(os.Getenv("CA_RULES"))
	if err != nil {
		zl.Fatal("load rules", zap.Error(err))
	}
	var lookup cleaner.Lookup
	if uri := getenv("CA_LOCATIONS", rules.LocationFixture); uri != "" {
		t, err := reference.LoadURI(ctx, uri)
		if err != nil {
			zl.Fatal("load locations", zap.String("uri", uri), zap.Error(err))
		}
		zl.Info("locations loaded", zap.String("uri", uri), zap.Int("rows", t.Len()))
		lookup = t
	} else {
		zl.Warn("no location fixture, location checks are skipped")
	}

	var runs db.RunRepository
	if db.Enabled() {
		pool, err := db.Connect(ctx, db.FromEnv())
		if err != nil {
			zl.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if err := pool.EnsureSchema(ctx); err != nil {
			zl.Fatal("db schema", zap.Error(err))
		}
		runs = db.NewRunRepo(pool)
	}

	camet.Init()
	go func() {
		_ = camet.Serve(camet.AddrFromEnv())
	}()

	c, err := client.Dial(client.Options{HostPort: taddr, Namespace: ns})
	if err != nil {
		log.Fatal("temporal client:", err)
	}
	defer c.Close()

	w := worker.New(c, q, worker.Options{})
	acts := activities.New(activities.Config{
		ScratchDir: tmpDir,
		Rules:      rules,
		Lookup:     lookup,
		Runs:       runs,
		Logger:     zl,
	})
	// Register activities with explicit names matching workflow.ExecuteActivity calls
	w.RegisterActivityWithOptions(acts.ListPartitions, tactivity.RegisterOptions{Name: "Activities.ListPartitions"})
	w.RegisterActivityWithOptions(acts.AuditPartition, tactivity.RegisterOptions{Name: "Activities.AuditPartition"})
	w.RegisterActivityWithOptions(acts.WriteReport, tactivity.RegisterOptions{Name: "Activities.WriteReport"})
	w.RegisterActivityWithOptions(acts.CleanupScratch, tactivity.RegisterOptions{Name: "Activities.CleanupScratch"})
	w.RegisterWorkflow(workflow.AuditWorkflow)

	zl.Info("worker started",
		zap.String("namespace", ns), zap.String("taskQueue", q), zap.String("tmp", tmpDir),
		zap.String("metrics", camet.AddrFromEnv()), zap.Bool("db", runs != nil))
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal("worker failed:", err)
	}
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
