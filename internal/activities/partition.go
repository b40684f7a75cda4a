package activities

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/yourorg/case-audit/internal/audit"
	"github.com/yourorg/case-audit/internal/cleaner"
	"github.com/yourorg/case-audit/internal/config"
	"github.com/yourorg/case-audit/internal/db"
	"github.com/yourorg/case-audit/internal/ingest"
	"github.com/yourorg/case-audit/internal/types"
)

type Config struct {
	ScratchDir string
	Rules      config.Rules
	Lookup     cleaner.Lookup
	// Runs is nil when the worker has no database.
	Runs   db.RunRepository
	Logger *zap.Logger
}

type Activities struct {
	cfg Config
}

func New(cfg Config) *Activities { return &Activities{cfg: cfg} }

// ListPartitions finds the location folders under the input root that hold
// at least one case file.
func (a *Activities) ListPartitions(ctx context.Context, p types.WorkflowParams) (types.PartitionList, error) {
	parts, err := audit.Partitions(ctx, p.InputURI, a.cfg.Rules.Pattern(), p.Locations)
	if err != nil {
		return types.PartitionList{}, err
	}
	activity.GetLogger(ctx).Info("Listed partitions", "input", p.InputURI, "count", len(parts))
	return types.PartitionList{Partitions: parts}, nil
}

// AuditPartition runs the full audit over one location folder.
func (a *Activities) AuditPartition(ctx context.Context, p types.PartitionParams) (types.PartitionResult, error) {
	logger := activity.GetLogger(ctx)
	date, err := time.Parse(audit.DateLayout, p.RunDate)
	if err != nil {
		return types.PartitionResult{}, temporal.NewNonRetryableApplicationError("bad run date", "InvalidParams", err)
	}
	var id uuid.UUID
	if p.RunID != "" {
		if id, err = uuid.Parse(p.RunID); err != nil {
			return types.PartitionResult{}, temporal.NewNonRetryableApplicationError("bad run id", "InvalidParams", err)
		}
	}
	scratch := a.cfg.ScratchDir
	if scratch != "" && p.ScratchSubdir != "" {
		scratch = filepath.Join(scratch, p.ScratchSubdir)
	}

	logger.Info("Auditing partition", "location", p.Partition.Location, "uri", p.Partition.URI)
	au := audit.New(audit.Config{
		Rules:   a.cfg.Rules,
		Lookup:  a.cfg.Lookup,
		Runs:    a.cfg.Runs,
		Scratch: scratch,
		Logger:  a.cfg.Logger,
	})
	res, err := au.Run(ctx, audit.Request{
		Location:  p.Partition.Location,
		InputURI:  p.Partition.URI,
		OutputURI: p.OutputURI,
		RunDate:   date,
		RunID:     id,
		Persist:   p.Persist,
	}, func(stage string) { activity.RecordHeartbeat(ctx, stage) })
	if errors.Is(err, ingest.ErrNoFiles) {
		return types.PartitionResult{}, temporal.NewNonRetryableApplicationError(err.Error(), "NoFiles", err)
	}
	if err != nil {
		return types.PartitionResult{}, err
	}
	logger.Info("Audited partition", "location", res.Location, "records", res.Records, "good", res.Good, "rejects", res.Rejects)
	return types.PartitionResult{
		Location:        res.Location,
		RunID:           res.RunID.String(),
		Records:         res.Records,
		Clean:           res.Clean,
		Good:            res.Good,
		Rejects:         res.Rejects,
		BadListURI:      res.BadListURI,
		PhoneBadListURI: res.PhoneBadListURI,
		Stats:           res.Stats,
	}, nil
}
