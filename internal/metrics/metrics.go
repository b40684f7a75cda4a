package metrics

import (
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RecordsIn = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "case_audit",
		Name:      "records_in_total",
		Help:      "Total case records read from partitions.",
	})
	RecordsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "case_audit",
		Name:      "records_rejected_total",
		Help:      "Records routed to a bad list, by reason tag.",
	}, []string{"stage"})
	DuplicatesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "case_audit",
		Name:      "duplicates_dropped_total",
		Help:      "Later occurrences of an identifier dropped by dedupe.",
	})
	Partitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "case_audit",
		Name:      "partitions_total",
		Help:      "Partitions audited, by outcome.",
	}, []string{"outcome"})
)

// Init registers collectors; call once from main.
func Init() {
	prometheus.MustRegister(RecordsIn, RecordsRejected, DuplicatesDropped, Partitions)
}

// Serve starts a /metrics server on addr (e.g. ":9090"). Blocks; run it in
// a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}

// AddrFromEnv returns the listen address from METRICS_ADDR or ":9090".
func AddrFromEnv() string {
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		return v
	}
	return ":9090"
}
