package backend

import "encoding/json"

// checkFileNameRequest is the payload for POST /check-file-name.
type checkFileNameRequest struct {
	Filename string `json:"filename"`
}

// checkFileNameResponse is returned from POST /check-file-name.
type checkFileNameResponse struct {
	Exists bool     `json:"exists"`
	Hashes []string `json:"hashes"`
}

// uploadItem is one element of the JSON array returned from POST /upload.
// upload_results holds "<dest>" URLs and "<dest>_error" messages.
type uploadItem struct {
	FileName           string            `json:"file_name"`
	SHA256             string            `json:"sha256"`
	UploadResults      map[string]string `json:"upload_results"`
	BlockchainReceipt  *string           `json:"blockchain_receipt"`
	BlockchainReceipts map[string]string `json:"blockchain_receipts"`
	Message            string            `json:"message"`
}

// verifyResponse is returned from POST /verify. Storage has been seen
// both as a list and as a comma-separated string, so it is decoded
// lazily.
type verifyResponse struct {
	Verified   bool            `json:"verified"`
	FileHash   string          `json:"file_hash"`
	Filename   string          `json:"filename"`
	UploadedBy string          `json:"uploaded_by"`
	Storage    json.RawMessage `json:"storage"`
	UploadTime *float64        `json:"upload_time"`
	TxnHash    string          `json:"txn_hash"`
}
