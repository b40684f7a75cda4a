package workflow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yourorg/case-audit/internal/types"
)

// DateLayout is the run date format shared with the activities.
const DateLayout = "2006-01-02"

// ErrNoPartitions is returned when the input root holds no case files.
var ErrNoPartitions = errors.New("no partitions found")

// AuditWorkflow audits every location folder under the input root in
// parallel, then writes the summary report. A location that still fails
// after retries is named in the result; the run fails only when every
// location failed.
func AuditWorkflow(ctx workflow.Context, p types.WorkflowParams) (types.ReportResult, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 4 * time.Hour,
		HeartbeatTimeout:    1 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	// Deduping a large partition can run for a while between heartbeats.
	auditAO := ao
	auditAO.HeartbeatTimeout = 5 * time.Minute
	auditCtx := workflow.WithActivityOptions(ctx, auditAO)
	logger := workflow.GetLogger(ctx)

	info := workflow.GetInfo(ctx)
	if p.RunDate == "" {
		p.RunDate = workflow.Now(ctx).UTC().Format(DateLayout)
	}
	if p.ScratchSubdir == "" {
		p.ScratchSubdir = info.WorkflowExecution.ID
	}
	if !p.KeepScratch {
		defer func() {
			// runs on cancellation too
			dctx, _ := workflow.NewDisconnectedContext(ctx)
			cp := types.CleanupParams{ScratchSubdir: p.ScratchSubdir}
			if err := workflow.ExecuteActivity(dctx, "Activities.CleanupScratch", cp).Get(dctx, nil); err != nil {
				logger.Warn("Scratch cleanup failed", "subdir", p.ScratchSubdir, "error", err)
			}
		}()
	}

	var parts types.PartitionList
	if err := workflow.ExecuteActivity(ctx, "Activities.ListPartitions", p).Get(ctx, &parts); err != nil {
		return types.ReportResult{}, err
	}
	if len(parts.Partitions) == 0 {
		return types.ReportResult{}, temporal.NewNonRetryableApplicationError(p.InputURI, "NoPartitions", ErrNoPartitions)
	}

	// fan-out, one activity per location
	futures := make([]workflow.Future, len(parts.Partitions))
	for i, part := range parts.Partitions {
		pp := types.PartitionParams{
			Partition:     part,
			OutputURI:     p.OutputURI,
			RunDate:       p.RunDate,
			RunID:         RunID(info.WorkflowExecution.RunID, part.Folder),
			ScratchSubdir: p.ScratchSubdir,
			Persist:       p.Persist,
		}
		futures[i] = workflow.ExecuteActivity(auditCtx, "Activities.AuditPartition", pp)
	}
	rp := types.ReportParams{OutputURI: p.OutputURI, RunDate: p.RunDate, Params: p}
	var lastErr error
	for i := range futures {
		var res types.PartitionResult
		if err := futures[i].Get(ctx, &res); err != nil {
			loc := parts.Partitions[i].Location
			logger.Error("Partition audit failed", "location", loc, "error", err)
			rp.Failed = append(rp.Failed, loc)
			lastErr = err
			continue
		}
		rp.Results = append(rp.Results, res)
	}
	if len(rp.Results) == 0 {
		return types.ReportResult{}, fmt.Errorf("all partitions failed (%s): %w", strings.Join(rp.Failed, ", "), lastErr)
	}

	var out types.ReportResult
	if err := workflow.ExecuteActivity(ctx, "Activities.WriteReport", rp).Get(ctx, &out); err != nil {
		return types.ReportResult{}, err
	}
	return out, nil
}

// RunID derives a stable run identifier for one partition of a workflow
// run, so a retried activity stores under the same id.
func RunID(workflowRunID, folder string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(workflowRunID+"/"+folder)).String()
}
