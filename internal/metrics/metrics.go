// Package metrics provides Prometheus metrics for upload workflows.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Preflight metrics
	preflightVerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_upload_preflight_verdicts_total",
			Help: "Preflight decisions by verdict",
		},
		[]string{"verdict"},
	)

	preflightDegradedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_upload_preflight_degraded_total",
			Help: "Name checks that failed and were treated as not existing",
		},
	)

	conflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_upload_conflicts_total",
			Help: "Name conflicts by how they ended",
		},
		[]string{"event"},
	)

	// Batch transfer metrics
	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_upload_batches_total",
			Help: "Submitted upload batches by status",
		},
		[]string{"status"},
	)

	batchBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_upload_batch_bytes_total",
			Help: "File content bytes sent in successful batches",
		},
	)

	destinationUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_upload_destination_uploads_total",
			Help: "Per-file, per-destination upload outcomes",
		},
		[]string{"destination", "status"},
	)

	verificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_upload_verifications_total",
			Help: "Ledger verifications by verdict",
		},
		[]string{"verdict"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPreflightVerdict counts one preflight decision.
func RecordPreflightVerdict(verdict string) {
	preflightVerdictsTotal.WithLabelValues(verdict).Inc()
}

// RecordPreflightDegraded counts a name check that could not be completed.
func RecordPreflightDegraded() {
	preflightDegradedTotal.Inc()
}

// RecordConflict counts a conflict lifecycle event: opened, renamed,
// cancelled or exhausted.
func RecordConflict(event string) {
	conflictsTotal.WithLabelValues(event).Inc()
}

// RecordBatch counts a finished batch transfer.
func RecordBatch(success bool, bytes int64) {
	status := "success"
	if !success {
		status = "failed"
	}

	batchesTotal.WithLabelValues(status).Inc()

	if success && bytes > 0 {
		batchBytesTotal.Add(float64(bytes))
	}
}

// RecordDestinationUpload counts one file outcome on one destination.
func RecordDestinationUpload(destination string, success bool) {
	status := "success"
	if !success {
		status = "failed"
	}

	destinationUploadsTotal.WithLabelValues(destination, status).Inc()
}

// RecordVerification counts one verification verdict: matched,
// mismatched or error.
func RecordVerification(verdict string) {
	verificationsTotal.WithLabelValues(verdict).Inc()
}
