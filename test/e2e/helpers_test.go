package e2e_test

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alexjbarnes/ledger-upload/internal/auth"
	"github.com/alexjbarnes/ledger-upload/internal/backend"
	"github.com/alexjbarnes/ledger-upload/internal/ledger"
	"github.com/alexjbarnes/ledger-upload/internal/logging"
	"github.com/alexjbarnes/ledger-upload/internal/mcpserver"
	"github.com/alexjbarnes/ledger-upload/internal/models"
	"github.com/alexjbarnes/ledger-upload/internal/server"
	"github.com/alexjbarnes/ledger-upload/internal/state"
	"github.com/alexjbarnes/ledger-upload/internal/upload"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

const (
	testUsername = "testuser"
	testPassword = "testpass-e2e"
	testKeyUser  = "ci-bot"
)

var testAPIKey = auth.APIKeyPrefix + strings.Repeat("0f", 16)

// harness holds the full e2e test stack: a fake upload backend and a
// real HTTP server with auth, MCP tools and the progress feed.
type harness struct {
	URL      string
	Client   *http.Client
	Backend  *fakeBackend
	Workflow *upload.Workflow
}

// newHarness wires the same components as the serve command against a
// fake backend and starts an httptest server.
func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := logging.Discard()

	fb := &fakeBackend{attested: make(map[string][]string)}
	backendSrv := httptest.NewServer(fb)
	t.Cleanup(backendSrv.Close)

	st, err := state.LoadAt(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	wf := upload.NewWorkflow(upload.WorkflowConfig{
		Backend: backend.NewClient(backend.ClientConfig{BaseURL: backendSrv.URL, Uploader: "e2e"}),
		History: st,
		Logger:  logger,
	})

	explorer, _ := ledger.ExplorerFor("sepolia")

	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "ledger-upload-e2e", Version: "test"},
		nil,
	)
	mcpserver.RegisterTools(mcpServer, mcpserver.Deps{
		Workflow: wf,
		History:  st,
		Explorer: explorer,
		Defaults: models.NewDestinations(models.DestinationS3),
		Logger:   logger,
	})

	mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	hash, err := auth.HashPassword(testPassword)
	require.NoError(t, err)

	authenticator, err := auth.NewAuthenticator(
		[]auth.APIKey{{UserID: testKeyUser, Key: testAPIKey}},
		auth.UserCredentials{testUsername: hash},
		logger,
	)
	require.NoError(t, err)

	ts := httptest.NewServer(server.NewMux(server.MuxConfig{
		Auth:       authenticator,
		MCPHandler: mcpHandler,
		Progress:   wf.Progress(),
		Logger:     logger,
	}))
	t.Cleanup(ts.Close)

	return &harness{
		URL:      ts.URL,
		Client:   ts.Client(),
		Backend:  fb,
		Workflow: wf,
	}
}

// mcpSession creates an MCP client session that sends the given
// Authorization header. Uses the MCP SDK's StreamableClientTransport with
// a custom HTTP RoundTripper that injects the header.
func (h *harness) mcpSession(t *testing.T, authorization string) *mcp.ClientSession {
	t.Helper()

	transport := &mcp.StreamableClientTransport{
		Endpoint: h.URL + "/mcp",
		HTTPClient: &http.Client{
			Transport: &authTransport{
				value: authorization,
				base:  h.Client.Transport,
			},
		},
		DisableStandaloneSSE: true,
	}

	client := mcp.NewClient(
		&mcp.Implementation{Name: "e2e-test-client", Version: "test"},
		nil,
	)

	session, err := client.Connect(t.Context(), transport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session
}

// doGet performs a GET request with t.Context().
func (h *harness) doGet(t *testing.T, path, authorization string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), "GET", h.URL+path, nil)
	require.NoError(t, err)

	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := h.Client.Do(req)
	require.NoError(t, err)

	return resp
}

func bearer(key string) string { return "Bearer " + key }

func basic(user, password string) string {
	req, _ := http.NewRequest("GET", "/", nil)
	req.SetBasicAuth(user, password)

	return req.Header.Get("Authorization")
}

// authTransport is an http.RoundTripper that sets the Authorization
// header on every request.
type authTransport struct {
	value string
	base  http.RoundTripper
}

func (at *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", at.value)

	return at.base.RoundTrip(req)
}

// fakeBackend answers /check-file-name, /verify and /upload from an
// in-memory name to hash index.
type fakeBackend struct {
	mu       sync.Mutex
	attested map[string][]string
	uploads  int
}

func sha256Hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func (f *fakeBackend) attest(name string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attested[name] = append(f.attested[name], sha256Hex(content))
}

func (f *fakeBackend) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.uploads
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/check-file-name":
		var req struct {
			Filename string `json:"filename"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		hashes, ok := f.attested[req.Filename]
		_ = json.NewEncoder(w).Encode(map[string]any{"exists": ok, "hashes": hashes})

	case "/verify":
		file, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		content, _ := io.ReadAll(file)
		sum := sha256Hex(content)

		for _, h := range f.attested[hdr.Filename] {
			if h == sum {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"verified":  true,
					"file_hash": sum,
					"filename":  hdr.Filename,
					"storage":   "S3",
					"txn_hash":  "0xabc",
				})

				return
			}
		}

		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"detail": "File hash not found on blockchain"})

	case "/upload":
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		f.uploads++

		var items []map[string]any

		for _, fh := range r.MultipartForm.File["files"] {
			file, _ := fh.Open()
			content, _ := io.ReadAll(file)
			file.Close()

			sum := sha256Hex(content)
			f.attested[fh.Filename] = append(f.attested[fh.Filename], sum)

			items = append(items, map[string]any{
				"file_name":          fh.Filename,
				"sha256":             sum,
				"upload_results":     map[string]string{"s3": "https://s3.example/" + fh.Filename},
				"blockchain_receipt": "0xabc",
			})
		}

		_ = json.NewEncoder(w).Encode(items)

	default:
		http.NotFound(w, r)
	}
}
