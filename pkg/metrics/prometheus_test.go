package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounters(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordPhaseItems("validate", "processed", 3)
	r.RecordPhaseItems("validate", "processed", 2)
	r.RecordPhaseItems("validate", "failed", 0)
	r.RecordRows("daily", "consensus", 10)
	r.RecordDeleteRetry("daily")
	r.RecordFetch("yahoo", 0.2, errors.New("timeout"))
	r.RecordFetch("yahoo", 0.1, nil)

	if got := testutil.ToFloat64(r.phaseItems.WithLabelValues("validate", "processed")); got != 5 {
		t.Fatalf("processed = %v, want 5", got)
	}
	if got := testutil.ToFloat64(r.phaseItems.WithLabelValues("validate", "failed")); got != 0 {
		t.Fatalf("failed = %v, want 0", got)
	}
	if got := testutil.ToFloat64(r.rowsWritten.WithLabelValues("daily", "consensus")); got != 10 {
		t.Fatalf("rows = %v, want 10", got)
	}
	if got := testutil.ToFloat64(r.fetchErrors.WithLabelValues("yahoo")); got != 1 {
		t.Fatalf("fetch errors = %v, want 1", got)
	}
}
