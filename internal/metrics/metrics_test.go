package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRejectedByStage(t *testing.T) {
	before := testutil.ToFloat64(RecordsRejected.WithLabelValues("failed_checksum"))
	RecordsRejected.WithLabelValues("failed_checksum").Add(3)
	if got := testutil.ToFloat64(RecordsRejected.WithLabelValues("failed_checksum")) - before; got != 3 {
		t.Fatalf("delta=%v; want 3", got)
	}
}

func TestAddrFromEnv(t *testing.T) {
	t.Setenv("METRICS_ADDR", "")
	if got := AddrFromEnv(); got != ":9090" {
		t.Fatalf("default %q", got)
	}
	t.Setenv("METRICS_ADDR", ":9191")
	if got := AddrFromEnv(); got != ":9191" {
		t.Fatalf("override %q", got)
	}
}
