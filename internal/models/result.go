package models

import "time"

// SkipReasonDuplicate is recorded when preflight finds the file's content
// already attested under the same name.
const SkipReasonDuplicate = "File already present in Cloud and Blockchain. Skipping Upload."

// RemoteNameRecord is the remote index's answer for a file name. It is
// fetched fresh for every check and never cached.
type RemoteNameRecord struct {
	Exists      bool     `json:"exists"`
	KnownHashes []string `json:"hashes"`
}

// ConflictState describes a name collision awaiting operator input.
type ConflictState struct {
	PendingFile   *FileEntry `json:"-"`
	FileName      string     `json:"file_name"`
	SuggestedName string     `json:"suggested_name"`
	Open          bool       `json:"open"`
}

// DestinationOutcome is the result of uploading one file to one
// destination. Exactly one of URL or Error is set.
type DestinationOutcome struct {
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

// OK reports whether the upload to this destination succeeded.
func (o DestinationOutcome) OK() bool {
	return o.Error == "" && o.URL != ""
}

// UploadResult records what happened to one file in a submitted batch.
// It is never mutated after creation.
type UploadResult struct {
	FileName       string                             `json:"file_name"`
	ContentHash    string                             `json:"sha256,omitempty"`
	Outcomes       map[Destination]DestinationOutcome `json:"outcomes,omitempty"`
	LedgerTxHash   string                             `json:"ledger_tx_hash,omitempty"`
	LedgerReceipts map[string]string                  `json:"ledger_receipts,omitempty"`
	SkippedReason  string                             `json:"skipped_reason,omitempty"`
	Message        string                             `json:"message,omitempty"`
}

// Skipped reports whether the file was skipped during preflight.
func (r UploadResult) Skipped() bool {
	return r.SkippedReason != ""
}

// Failed returns the destinations that reported an error.
func (r UploadResult) Failed() []Destination {
	var out []Destination

	for _, d := range AllDestinations {
		if o, ok := r.Outcomes[d]; ok && !o.OK() {
			out = append(out, d)
		}
	}

	return out
}

// PartialFailure reports whether at least one destination failed while
// another succeeded.
func (r UploadResult) PartialFailure() bool {
	failed := len(r.Failed())
	return failed > 0 && failed < len(r.Outcomes)
}

// VerificationResult is the backend's verdict on a file's content hash
// compared with the ledger record.
type VerificationResult struct {
	Matched          bool       `json:"matched"`
	ComputedHash     string     `json:"computed_hash"`
	OriginalFileName string     `json:"original_file_name,omitempty"`
	UploadedBy       string     `json:"uploaded_by,omitempty"`
	Destinations     []string   `json:"destinations,omitempty"`
	UploadTimestamp  *time.Time `json:"upload_timestamp,omitempty"`
	LedgerTxHash     string     `json:"ledger_tx_hash,omitempty"`
	Detail           string     `json:"detail,omitempty"`
}

// ProgressState maps a progress key to a percentage in [0,100].
type ProgressState map[string]int
