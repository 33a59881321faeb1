package mcpserver

import (
	"time"

	"github.com/alexjbarnes/ledger-upload/internal/ledger"
	"github.com/alexjbarnes/ledger-upload/internal/models"
	"github.com/alexjbarnes/ledger-upload/internal/state"
	"github.com/alexjbarnes/ledger-upload/internal/upload"
)

// FileView describes one pending file.
type FileView struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	MIMEType    string `json:"mime_type"`
	Previewable bool   `json:"previewable"`
}

// FileList is the pending file set.
type FileList struct {
	Total int        `json:"total"`
	Files []FileView `json:"files"`
}

// DestinationView is the outcome for one destination.
type DestinationView struct {
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

// ResultView is one file's upload result with an explorer link.
type ResultView struct {
	FileName      string                     `json:"file_name"`
	SHA256        string                     `json:"sha256,omitempty"`
	Destinations  map[string]DestinationView `json:"destinations,omitempty"`
	LedgerTxHash  string                     `json:"ledger_tx_hash,omitempty"`
	LedgerTxURL   string                     `json:"ledger_tx_url,omitempty"`
	SkippedReason string                     `json:"skipped_reason,omitempty"`
	Message       string                     `json:"message,omitempty"`
}

// ConflictView is a paused submission's pending conflict.
type ConflictView struct {
	FileName      string `json:"file_name"`
	SuggestedName string `json:"suggested_name"`
}

// OutcomeView is returned by upload_submit and conflict_resolve.
type OutcomeView struct {
	SubmissionID string        `json:"submission_id"`
	Status       string        `json:"status"`
	Results      []ResultView  `json:"results,omitempty"`
	Conflict     *ConflictView `json:"conflict,omitempty"`
}

// CancelResult is returned by conflict_cancel.
type CancelResult struct {
	Cancelled bool `json:"cancelled"`
	Pending   int  `json:"pending_files"`
}

// ProgressView is returned by upload_progress.
type ProgressView struct {
	Progress models.ProgressState `json:"progress"`
	Busy     bool                 `json:"busy"`
}

// VerificationView is a verification verdict with an explorer link.
type VerificationView struct {
	FileName         string     `json:"file_name"`
	Matched          bool       `json:"matched"`
	ComputedHash     string     `json:"computed_hash,omitempty"`
	OriginalFileName string     `json:"original_file_name,omitempty"`
	UploadedBy       string     `json:"uploaded_by,omitempty"`
	Destinations     []string   `json:"destinations,omitempty"`
	UploadTimestamp  *time.Time `json:"upload_timestamp,omitempty"`
	LedgerTxHash     string     `json:"ledger_tx_hash,omitempty"`
	LedgerTxURL      string     `json:"ledger_tx_url,omitempty"`
	Detail           string     `json:"detail,omitempty"`
}

// HistoryEntry is one recorded upload result.
type HistoryEntry struct {
	SubmissionID string     `json:"submission_id"`
	RecordedAt   time.Time  `json:"recorded_at"`
	Result       ResultView `json:"result"`
}

// VerificationEntry is one recorded verification.
type VerificationEntry struct {
	RecordedAt time.Time        `json:"recorded_at"`
	Result     VerificationView `json:"result"`
}

// HistoryView is returned by results_history.
type HistoryView struct {
	Uploads       []HistoryEntry      `json:"uploads"`
	Verifications []VerificationEntry `json:"verifications"`
}

func listFiles(files *upload.FileSet) *FileList {
	snap := files.Snapshot()
	out := &FileList{Total: len(snap), Files: make([]FileView, 0, len(snap))}

	for i, f := range snap {
		out.Files = append(out.Files, FileView{
			Index:       i,
			Name:        f.Name,
			Size:        f.Size,
			MIMEType:    f.MIMEType,
			Previewable: f.Previewable(),
		})
	}

	return out
}

func newResultView(r models.UploadResult, explorer ledger.Explorer) ResultView {
	v := ResultView{
		FileName:      r.FileName,
		SHA256:        r.ContentHash,
		LedgerTxHash:  r.LedgerTxHash,
		LedgerTxURL:   explorer.TxURL(r.LedgerTxHash),
		SkippedReason: r.SkippedReason,
		Message:       r.Message,
	}

	if len(r.Outcomes) > 0 {
		v.Destinations = make(map[string]DestinationView, len(r.Outcomes))
		for d, o := range r.Outcomes {
			v.Destinations[string(d)] = DestinationView{URL: o.URL, Error: o.Error}
		}
	}

	return v
}

func newOutcomeView(out *upload.Outcome, explorer ledger.Explorer) *OutcomeView {
	v := &OutcomeView{SubmissionID: out.SubmissionID}

	if out.Suspended() {
		v.Status = "awaiting_rename"
		v.Conflict = &ConflictView{
			FileName:      out.Conflict.FileName,
			SuggestedName: out.Conflict.SuggestedName,
		}

		return v
	}

	v.Status = "completed"
	v.Results = make([]ResultView, 0, len(out.Results))

	for _, r := range out.Results {
		v.Results = append(v.Results, newResultView(r, explorer))
	}

	return v
}

func newVerificationView(name string, res *models.VerificationResult, explorer ledger.Explorer) *VerificationView {
	return &VerificationView{
		FileName:         name,
		Matched:          res.Matched,
		ComputedHash:     res.ComputedHash,
		OriginalFileName: res.OriginalFileName,
		UploadedBy:       res.UploadedBy,
		Destinations:     res.Destinations,
		UploadTimestamp:  res.UploadTimestamp,
		LedgerTxHash:     res.LedgerTxHash,
		LedgerTxURL:      explorer.TxURL(res.LedgerTxHash),
		Detail:           res.Detail,
	}
}

func newHistoryView(results []state.ResultRecord, verifications []state.VerificationRecord, explorer ledger.Explorer) *HistoryView {
	v := &HistoryView{
		Uploads:       make([]HistoryEntry, 0, len(results)),
		Verifications: make([]VerificationEntry, 0, len(verifications)),
	}

	for _, r := range results {
		v.Uploads = append(v.Uploads, HistoryEntry{
			SubmissionID: r.SubmissionID,
			RecordedAt:   r.RecordedAt,
			Result:       newResultView(r.Result, explorer),
		})
	}

	for _, r := range verifications {
		res := r.Result
		v.Verifications = append(v.Verifications, VerificationEntry{
			RecordedAt: r.RecordedAt,
			Result:     *newVerificationView(r.FileName, &res, explorer),
		})
	}

	return v
}
