package e2e_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alexjbarnes/ledger-upload/internal/models"
	"github.com/alexjbarnes/ledger-upload/internal/upload"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- API key ---

func TestAPIKey_AddAndSubmit(t *testing.T) {
	h := newHarness(t)
	session := h.mcpSession(t, bearer(testAPIKey))

	result := callTool(t, session, "files_add", map[string]any{"name": "contract.pdf", "content": "signed"})
	assert.False(t, result.IsError)

	result = callTool(t, session, "upload_submit", nil)
	require.False(t, result.IsError)

	text := extractTextContent(t, result)
	assert.Contains(t, text, `"status": "completed"`)
	assert.Contains(t, text, "https://s3.example/contract.pdf")
	assert.Contains(t, text, "https://sepolia.etherscan.io/tx/0xabc")
	assert.Equal(t, 1, h.Backend.uploadCount())
}

func TestAPIKey_ConflictRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.Backend.attest("contract.pdf", []byte("original"))
	session := h.mcpSession(t, bearer(testAPIKey))

	callTool(t, session, "files_add", map[string]any{"name": "contract.pdf", "content": "amended"})

	text := extractTextContent(t, callTool(t, session, "upload_submit", nil))
	assert.Contains(t, text, `"status": "awaiting_rename"`)
	assert.Equal(t, 0, h.Backend.uploadCount())

	text = extractTextContent(t, callTool(t, session, "conflict_resolve", map[string]any{"name": "contract-amended"}))
	assert.Contains(t, text, `"status": "completed"`)
	assert.Contains(t, text, "contract-amended.pdf")
	assert.Equal(t, 1, h.Backend.uploadCount())
}

// --- Basic auth ---

func TestBasicAuth_VerifyTool(t *testing.T) {
	h := newHarness(t)
	h.Backend.attest("a.txt", []byte("hello"))
	session := h.mcpSession(t, basic(testUsername, testPassword))

	callTool(t, session, "files_add", map[string]any{"name": "a.txt", "content": "hello"})

	text := extractTextContent(t, callTool(t, session, "file_verify", map[string]any{"index": 0}))
	assert.Contains(t, text, `"matched": true`)
}

// --- unauthenticated and invalid credentials ---

func TestUnauthenticated_Returns401(t *testing.T) {
	h := newHarness(t)

	req, err := http.NewRequestWithContext(t.Context(), "POST", h.URL+"/mcp", strings.NewReader("{}"))
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	wwwAuth := resp.Header.Get("WWW-Authenticate")
	assert.Contains(t, wwwAuth, "Bearer")
	assert.Contains(t, wwwAuth, "Basic")
}

func TestInvalidAPIKey_Returns401(t *testing.T) {
	h := newHarness(t)

	resp := h.doGet(t, "/progress", bearer(testAPIKey[:len(testAPIKey)-2]+"ff"))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWrongPassword_Returns401(t *testing.T) {
	h := newHarness(t)

	resp := h.doGet(t, "/progress", basic(testUsername, "not-the-password"))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// --- open endpoints ---

func TestHealthz(t *testing.T) {
	h := newHarness(t)

	resp := h.doGet(t, "/healthz", "")
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestMetrics_ExposeUploadCounters(t *testing.T) {
	h := newHarness(t)
	session := h.mcpSession(t, bearer(testAPIKey))

	callTool(t, session, "files_add", map[string]any{"name": "m.txt", "content": "metrics"})
	callTool(t, session, "upload_submit", nil)

	resp := h.doGet(t, "/metrics", "")
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "ledger_upload_")
}

// --- progress feed ---

func TestProgressFeed_ReportsCompletion(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, strings.Replace(h.URL, "http", "ws", 1)+"/progress", &websocket.DialOptions{
		HTTPClient: h.Client,
		HTTPHeader: http.Header{"Authorization": []string{bearer(testAPIKey)}},
	})
	require.NoError(t, err)
	defer conn.CloseNow()

	var first models.ProgressState
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	assert.Zero(t, first[upload.TotalKey])

	session := h.mcpSession(t, bearer(testAPIKey))
	callTool(t, session, "files_add", map[string]any{"name": "p.bin", "content": strings.Repeat("x", 4096)})
	require.False(t, callTool(t, session, "upload_submit", nil).IsError)

	for {
		var p models.ProgressState
		require.NoError(t, wsjson.Read(ctx, conn, &p))

		if p[upload.TotalKey] == 100 {
			break
		}
	}
}

// --- helpers ---

func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()

	result, err := session.CallTool(t.Context(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)

	return result
}

// extractTextContent pulls the text from the first TextContent in a
// CallToolResult. MCP tools return JSON-serialized results as TextContent.
func extractTextContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()

	require.NotEmpty(t, result.Content, "tool result has no content")

	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			require.True(t, json.Valid([]byte(tc.Text)), "tool text is not JSON: %s", tc.Text)
			return tc.Text
		}
	}

	t.Fatal("no TextContent found in tool result")

	return ""
}
