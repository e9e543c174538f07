package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	phaseItems    *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	rowsWritten   *prometheus.CounterVec
	deleteRetries *prometheus.CounterVec
	fetchLatency  *prometheus.HistogramVec
	fetchErrors   *prometheus.CounterVec
}

// New registers the recorder on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the recorder on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration panics.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		phaseItems: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secmaster_phase_items_total",
				Help: "Items handled per phase by outcome (processed, skipped, failed)",
			},
			[]string{"phase", "outcome"},
		),
		phaseDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "secmaster_phase_duration_seconds",
				Help:    "Wall time of a full phase run",
				Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
			},
			[]string{"phase"},
		),
		rowsWritten: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secmaster_rows_written_total",
				Help: "Price rows inserted per table and vendor",
			},
			[]string{"table", "vendor"},
		),
		deleteRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secmaster_delete_retries_total",
				Help: "Retried delete-before-replace attempts",
			},
			[]string{"table"},
		),
		fetchLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "secmaster_vendor_fetch_seconds",
				Help:    "Vendor download latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"vendor"},
		),
		fetchErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secmaster_vendor_fetch_errors_total",
				Help: "Vendor downloads that returned an error",
			},
			[]string{"vendor"},
		),
	}
}

// RecordPhaseItems adds n items with the given outcome to a phase.
func (r *Recorder) RecordPhaseItems(phase, outcome string, n int) {
	if n <= 0 {
		return
	}
	r.phaseItems.WithLabelValues(phase, outcome).Add(float64(n))
}

// RecordPhaseDuration observes a phase run time.
func (r *Recorder) RecordPhaseDuration(phase string, seconds float64) {
	r.phaseDuration.WithLabelValues(phase).Observe(seconds)
}

// RecordRows counts inserted rows.
func (r *Recorder) RecordRows(table, vendor string, n int) {
	if n <= 0 {
		return
	}
	r.rowsWritten.WithLabelValues(table, vendor).Add(float64(n))
}

// RecordDeleteRetry counts one retried delete.
func (r *Recorder) RecordDeleteRetry(table string) {
	r.deleteRetries.WithLabelValues(table).Inc()
}

// RecordFetch observes a vendor download.
func (r *Recorder) RecordFetch(vendor string, seconds float64, err error) {
	r.fetchLatency.WithLabelValues(vendor).Observe(seconds)
	if err != nil {
		r.fetchErrors.WithLabelValues(vendor).Inc()
	}
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordPhaseItems(string, string, int) {}
func (Nop) RecordPhaseDuration(string, float64)  {}
func (Nop) RecordRows(string, string, int)       {}
func (Nop) RecordDeleteRetry(string)             {}
func (Nop) RecordFetch(string, float64, error)   {}
