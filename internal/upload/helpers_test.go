package upload

import (
	"sync"
	"testing"
	"time"

	"github.com/alexjbarnes/ledger-upload/internal/logging"
	"github.com/alexjbarnes/ledger-upload/internal/models"
	"go.uber.org/mock/gomock"
)

var fixedNow = time.UnixMilli(1700000000000)

func fixedClock() time.Time { return fixedNow }

// recordingHistory captures AppendResults calls.
type recordingHistory struct {
	mu      sync.Mutex
	batches map[string][]models.UploadResult
}

func (h *recordingHistory) AppendResults(id string, results []models.UploadResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.batches == nil {
		h.batches = make(map[string][]models.UploadResult)
	}

	h.batches[id] = results

	return nil
}

func newTestWorkflow(t *testing.T, files ...*models.FileEntry) (*Workflow, *MockBackend, *recordingHistory) {
	t.Helper()

	ctrl := gomock.NewController(t)
	mock := NewMockBackend(ctrl)
	hist := &recordingHistory{}

	w := NewWorkflow(WorkflowConfig{
		Backend: mock,
		Files:   NewFileSet(files...),
		History: hist,
		Logger:  logging.Discard(),
		Now:     fixedClock,
	})

	return w, mock, hist
}

func notExists() *models.RemoteNameRecord {
	return &models.RemoteNameRecord{Exists: false}
}

func s3OK(name string) models.UploadResult {
	return models.UploadResult{
		FileName: name,
		Outcomes: map[models.Destination]models.DestinationOutcome{
			models.DestinationS3: {URL: "https://bucket.s3.amazonaws.com/" + name},
		},
		LedgerTxHash: "0xabc",
	}
}
