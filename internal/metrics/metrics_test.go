package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordPreflightVerdict(t *testing.T) {
	before := testutil.ToFloat64(preflightVerdictsTotal.WithLabelValues("skip"))
	RecordPreflightVerdict("skip")
	assert.Equal(t, before+1, testutil.ToFloat64(preflightVerdictsTotal.WithLabelValues("skip")))
}

func TestRecordBatch_SuccessAddsBytes(t *testing.T) {
	okBefore := testutil.ToFloat64(batchesTotal.WithLabelValues("success"))
	bytesBefore := testutil.ToFloat64(batchBytesTotal)

	RecordBatch(true, 1024)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(batchesTotal.WithLabelValues("success")))
	assert.Equal(t, bytesBefore+1024, testutil.ToFloat64(batchBytesTotal))
}

func TestRecordBatch_FailureDoesNotAddBytes(t *testing.T) {
	failedBefore := testutil.ToFloat64(batchesTotal.WithLabelValues("failed"))
	bytesBefore := testutil.ToFloat64(batchBytesTotal)

	RecordBatch(false, 1024)

	assert.Equal(t, failedBefore+1, testutil.ToFloat64(batchesTotal.WithLabelValues("failed")))
	assert.Equal(t, bytesBefore, testutil.ToFloat64(batchBytesTotal))
}

func TestRecordDestinationUpload(t *testing.T) {
	before := testutil.ToFloat64(destinationUploadsTotal.WithLabelValues("azure", "failed"))
	RecordDestinationUpload("azure", false)
	assert.Equal(t, before+1, testutil.ToFloat64(destinationUploadsTotal.WithLabelValues("azure", "failed")))
}

func TestRecordConflictAndVerification(t *testing.T) {
	cBefore := testutil.ToFloat64(conflictsTotal.WithLabelValues("opened"))
	vBefore := testutil.ToFloat64(verificationsTotal.WithLabelValues("matched"))
	dBefore := testutil.ToFloat64(preflightDegradedTotal)

	RecordConflict("opened")
	RecordVerification("matched")
	RecordPreflightDegraded()

	assert.Equal(t, cBefore+1, testutil.ToFloat64(conflictsTotal.WithLabelValues("opened")))
	assert.Equal(t, vBefore+1, testutil.ToFloat64(verificationsTotal.WithLabelValues("matched")))
	assert.Equal(t, dBefore+1, testutil.ToFloat64(preflightDegradedTotal))
}

func TestHandler_ExposesCounters(t *testing.T) {
	RecordConflict("renamed")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ledger_upload_conflicts_total")
}
