package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/yourorg/case-audit/internal/iopkg"
	"github.com/yourorg/case-audit/internal/stats"
)

// ReportRatios recompute the headline percentages on every row, Total
// included.
var ReportRatios = []stats.Ratio{
	{Name: "pct_clean_rows", Numerator: "num_clean_rows", Denominator: "orig_rows"},
	{Name: "pct_aadhar_good", Numerator: "num_good", Denominator: "num_clean_aadhar_nums"},
	{Name: "pct_phone_good", Numerator: PhonePrefix + "num_good", Denominator: "num_clean_phone_nums"},
}

// ReportName is the summary file name for date.
func ReportName(date time.Time) string {
	return fmt.Sprintf("report_%s.csv", date.Format(DateLayout))
}

// NewReport returns an empty summary keyed by location.
func NewReport() *stats.Report { return stats.NewReport("location") }

// WriteReport writes r with a Total row to uri. Percentage columns are
// replaced by ReportRatios.
func WriteReport(ctx context.Context, uri string, r *stats.Report) error {
	var cols []string
	for _, c := range r.Columns() {
		if !stats.IsPercent(c) {
			cols = append(cols, c)
		}
	}
	w, c, err := iopkg.CreateWriter(ctx, uri)
	if err != nil {
		return err
	}
	if err := r.WithTotal().WriteCSV(w, cols, ReportRatios); err != nil {
		c.Close()
		return err
	}
	return c.Close()
}
