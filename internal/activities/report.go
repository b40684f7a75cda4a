package activities

import (
	"context"
	"encoding/json"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/yourorg/case-audit/internal/audit"
	"github.com/yourorg/case-audit/internal/iopkg"
	"github.com/yourorg/case-audit/internal/types"
)

// WriteReport writes the per-location summary with a Total row and a
// manifest describing the run.
func (a *Activities) WriteReport(ctx context.Context, p types.ReportParams) (types.ReportResult, error) {
	date, err := time.Parse(audit.DateLayout, p.RunDate)
	if err != nil {
		return types.ReportResult{}, err
	}
	rep := audit.NewReport()
	for _, r := range p.Results {
		rep.Add(r.Location, r.Stats)
	}
	out := types.ReportResult{
		ReportURI:   iopkg.Join(p.OutputURI, audit.ReportName(date)),
		ManifestURI: iopkg.Join(p.OutputURI, "manifest_"+date.Format(audit.DateLayout)+".json"),
		Locations:   len(p.Results),
		Failed:      p.Failed,
	}
	if err := audit.WriteReport(ctx, out.ReportURI, rep); err != nil {
		return types.ReportResult{}, err
	}
	activity.RecordHeartbeat(ctx, "report")

	type entry struct {
		Location     string `json:"location"`
		RunID        string `json:"run_id"`
		Records      int    `json:"records"`
		Clean        int    `json:"clean"`
		Good         int    `json:"good"`
		Rejects      int    `json:"rejects"`
		BadList      string `json:"bad_list"`
		PhoneBadList string `json:"phone_bad_list"`
	}
	locs := make([]entry, 0, len(p.Results))
	for _, r := range p.Results {
		locs = append(locs, entry{r.Location, r.RunID, r.Records, r.Clean, r.Good, r.Rejects, r.BadListURI, r.PhoneBadListURI})
	}
	man := map[string]any{
		"report":       out.ReportURI,
		"manifest":     out.ManifestURI,
		"params":       p.Params,
		"run_date":     p.RunDate,
		"locations":    locs,
		"failed":       p.Failed,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	}
	mb, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return types.ReportResult{}, err
	}
	mw, cw, err := iopkg.CreateWriter(ctx, out.ManifestURI)
	if err != nil {
		return types.ReportResult{}, err
	}
	if _, err := mw.Write(mb); err != nil {
		cw.Close()
		return types.ReportResult{}, err
	}
	if err := cw.Close(); err != nil {
		return types.ReportResult{}, err
	}
	activity.GetLogger(ctx).Info("Wrote report", "report", out.ReportURI, "locations", out.Locations)
	return out, nil
}
