// Package backend talks to the upload service that hashes content, stores
// it on the requested providers, and attests it on the ledger.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/alexjbarnes/ledger-upload/internal/errors"
	"github.com/alexjbarnes/ledger-upload/internal/models"
	"github.com/tidwall/gjson"
)

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// defaultTimeout applies when ClientConfig.Timeout is zero.
	defaultTimeout = 60 * time.Second

	// maxAPIResponseBytes caps response body reads to prevent a
	// misbehaving server from consuming unbounded memory.
	maxAPIResponseBytes = 4 * 1024 * 1024
)

// Endpoints.
const (
	endpointUpload        = "/upload"
	endpointVerify        = "/verify"
	endpointCheckFileName = "/check-file-name"
)

// ProgressFunc receives byte-level transfer progress for a request body.
type ProgressFunc func(sent, total int64)

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL  string
	Timeout  time.Duration
	Uploader string

	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client talks to the backend REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	uploader   string
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates an API client. If cfg.HTTPClient is nil, a client
// with cfg.Timeout and a same-host redirect policy is created.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}

		httpClient = &http.Client{
			Timeout:       timeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		uploader:   cfg.Uploader,
	}
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// errorDetail extracts FastAPI's "detail" field. Validation errors carry
// a list instead of a string, in which case the raw JSON is returned.
func errorDetail(body []byte) (string, bool) {
	if !gjson.ValidBytes(body) {
		return "", false
	}

	detail := gjson.GetBytes(body, "detail")
	if !detail.Exists() {
		return "", false
	}

	if detail.Type == gjson.String {
		return detail.Str, true
	}

	return detail.Raw, true
}

// do sends req and returns the response body for 2xx responses. Non-2xx
// responses become an *APIError when the body carries a detail message
// and a *TransportError otherwise.
func (c *Client) do(req *http.Request, endpoint string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("sending request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if detail, ok := errorDetail(respBody); ok {
			return nil, &APIError{Endpoint: endpoint, Status: resp.StatusCode, Detail: detail}
		}

		return nil, &TransportError{
			Endpoint: endpoint,
			Err:      fmt.Errorf("returned status %d: %s", resp.StatusCode, sanitizeResponseBody(respBody)),
		}
	}

	return respBody, nil
}

// postJSON sends a JSON POST request and decodes the response into result.
func (c *Client) postJSON(ctx context.Context, endpoint string, body, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	respBody, err := c.do(req, endpoint)
	if err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: decoding response from %s: %v", apperrors.ErrAPIResponse, endpoint, err)
		}
	}

	return nil
}

// postMultipart sends a prepared multipart body, reporting upload
// progress to onProgress when non-nil.
func (c *Client) postMultipart(ctx context.Context, endpoint string, form *multipartForm, onProgress ProgressFunc) ([]byte, error) {
	total := int64(form.body.Len())

	var body io.Reader = form.body
	if onProgress != nil {
		body = &progressReader{r: form.body, total: total, fn: onProgress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.ContentLength = total
	req.Header.Set("Content-Type", form.contentType)
	req.Header.Set("Accept", "application/json")

	return c.do(req, endpoint)
}

// CheckFileName asks the remote index whether name is already attested
// and, if so, under which content hashes.
func (c *Client) CheckFileName(ctx context.Context, name string) (*models.RemoteNameRecord, error) {
	var resp checkFileNameResponse
	if err := c.postJSON(ctx, endpointCheckFileName, checkFileNameRequest{Filename: name}, &resp); err != nil {
		return nil, fmt.Errorf("checking file name: %w", err)
	}

	return &models.RemoteNameRecord{
		Exists:      resp.Exists,
		KnownHashes: resp.Hashes,
	}, nil
}

// Verify submits the file content for re-hashing and comparison with the
// ledger record. A 404 with a detail message means the hash is unknown
// and yields an unmatched result rather than an error.
func (c *Client) Verify(ctx context.Context, f *models.FileEntry) (*models.VerificationResult, error) {
	form, err := newMultipartForm(func(w *multipart.Writer) error {
		return writeFilePart(w, "file", f)
	})
	if err != nil {
		return nil, fmt.Errorf("building verify request: %w", err)
	}

	respBody, err := c.postMultipart(ctx, endpointVerify, form, nil)
	if err != nil {
		if ae, ok := AsAPIError(err); ok && ae.Status == http.StatusNotFound {
			return &models.VerificationResult{Matched: false, Detail: ae.Detail}, nil
		}

		return nil, fmt.Errorf("verifying %s: %w", f.Name, err)
	}

	var resp verifyResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding response from %s: %v", apperrors.ErrAPIResponse, endpointVerify, err)
	}

	result := &models.VerificationResult{
		Matched:          resp.Verified,
		ComputedHash:     strings.ToLower(resp.FileHash),
		OriginalFileName: resp.Filename,
		UploadedBy:       resp.UploadedBy,
		Destinations:     parseStorage(resp.Storage),
		LedgerTxHash:     resp.TxnHash,
	}

	if resp.UploadTime != nil {
		sec := int64(*resp.UploadTime)
		ts := time.Unix(sec, 0).UTC()
		result.UploadTimestamp = &ts
	}

	return result, nil
}

// parseStorage accepts ["S3","Azure"], "S3,Azure", or null.
func parseStorage(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	v := gjson.ParseBytes(raw)

	var out []string

	switch {
	case v.IsArray():
		for _, item := range v.Array() {
			if s := strings.TrimSpace(item.String()); s != "" {
				out = append(out, s)
			}
		}
	case v.Type == gjson.String:
		for _, s := range strings.Split(v.Str, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}

	return out
}

// Upload sends the whole batch in one multipart request. The backend fans
// out per destination and returns one result per file. Only the requested
// destinations are recorded on each result.
func (c *Client) Upload(ctx context.Context, files []*models.FileEntry, dests models.Destinations, onProgress ProgressFunc) ([]models.UploadResult, error) {
	form, err := newMultipartForm(func(w *multipart.Writer) error {
		for _, f := range files {
			if err := writeFilePart(w, "files", f); err != nil {
				return err
			}
		}

		if err := w.WriteField("upload_s3", strconv.FormatBool(dests.Has(models.DestinationS3))); err != nil {
			return err
		}

		if err := w.WriteField("upload_azure", strconv.FormatBool(dests.Has(models.DestinationAzure))); err != nil {
			return err
		}

		if c.uploader != "" {
			return w.WriteField("uploader", c.uploader)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("building upload request: %w", err)
	}

	respBody, err := c.postMultipart(ctx, endpointUpload, form, onProgress)
	if err != nil {
		return nil, fmt.Errorf("uploading batch: %w", err)
	}

	// The backend answers 200 with a bare {"detail": ...} object when a
	// file failed on every storage.
	if gjson.ParseBytes(respBody).IsObject() {
		if detail, ok := errorDetail(respBody); ok {
			status := int(gjson.GetBytes(respBody, "status_code").Int())
			if status == 0 {
				status = http.StatusOK
			}

			return nil, fmt.Errorf("uploading batch: %w", &APIError{Endpoint: endpointUpload, Status: status, Detail: detail})
		}
	}

	var items []uploadItem
	if err := json.Unmarshal(respBody, &items); err != nil {
		return nil, fmt.Errorf("%w: decoding response from %s: %v", apperrors.ErrAPIResponse, endpointUpload, err)
	}

	results := make([]models.UploadResult, 0, len(items))
	for _, item := range items {
		results = append(results, toUploadResult(item, dests))
	}

	return results, nil
}

func toUploadResult(item uploadItem, dests models.Destinations) models.UploadResult {
	r := models.UploadResult{
		FileName:       item.FileName,
		ContentHash:    strings.ToLower(item.SHA256),
		Outcomes:       make(map[models.Destination]models.DestinationOutcome, len(dests)),
		LedgerReceipts: item.BlockchainReceipts,
		Message:        item.Message,
	}

	if item.BlockchainReceipt != nil {
		r.LedgerTxHash = *item.BlockchainReceipt
	}

	for _, d := range dests.Sorted() {
		url := item.UploadResults[string(d)]
		errMsg := item.UploadResults[string(d)+"_error"]

		switch {
		case errMsg != "":
			r.Outcomes[d] = models.DestinationOutcome{Error: errMsg}
		case url != "":
			r.Outcomes[d] = models.DestinationOutcome{URL: url}
		default:
			r.Outcomes[d] = models.DestinationOutcome{Error: "no result reported by backend"}
		}
	}

	return r
}

// multipartForm is a fully buffered multipart body. Buffering lets the
// request carry a Content-Length so progress has a known total.
type multipartForm struct {
	body        *bytes.Buffer
	contentType string
}

func newMultipartForm(write func(w *multipart.Writer) error) (*multipartForm, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	if err := write(w); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return &multipartForm{body: buf, contentType: w.FormDataContentType()}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeFilePart(w *multipart.Writer, field string, f *models.FileEntry) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(f.Name)))

	contentType := f.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating part for %s: %w", f.Name, err)
	}

	if _, err := part.Write(f.Content); err != nil {
		return fmt.Errorf("writing part for %s: %w", f.Name, err)
	}

	return nil
}

// progressReader reports cumulative bytes read from r.
type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.fn(p.sent, p.total)
	}

	return n, err
}
