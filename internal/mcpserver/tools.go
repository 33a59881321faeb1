// Package mcpserver registers MCP tools that expose the upload workflow.
// It adapts the upload package to the MCP SDK's tool handler interface.
package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alexjbarnes/ledger-upload/internal/auth"
	"github.com/alexjbarnes/ledger-upload/internal/ledger"
	"github.com/alexjbarnes/ledger-upload/internal/models"
	"github.com/alexjbarnes/ledger-upload/internal/state"
	"github.com/alexjbarnes/ledger-upload/internal/upload"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// defaultHistoryLimit applies when results_history is called without a
// limit.
const defaultHistoryLimit = 20

// History is the subset of state.State the tools read and write.
type History interface {
	Results(limit int) ([]state.ResultRecord, error)
	Verifications(limit int) ([]state.VerificationRecord, error)
	RecordVerification(fileName string, res models.VerificationResult) error
}

// Deps are the collaborators the tools operate on.
type Deps struct {
	Workflow *upload.Workflow
	History  History
	Explorer ledger.Explorer

	// Defaults apply when upload_submit names no destinations.
	Defaults models.Destinations
	Logger   *slog.Logger
}

// RegisterTools adds all upload tools to the given MCP server.
func RegisterTools(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "files_add",
		Description: "Add a file to the pending upload set. Pass text in content or binary data in content_base64. Returns the pending set.",
	}, addHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "files_list",
		Description: "List pending files with their index, size, MIME type, and whether they can be previewed.",
	}, listHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "files_remove",
		Description: "Remove the pending file at the given index.",
	}, removeHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "upload_submit",
		Description: "Submit every pending file to the chosen destinations (s3, azure). Files already attested with identical content are skipped. If a different file with the same name exists the submission pauses and returns a conflict with a suggested name; call conflict_resolve or conflict_cancel.",
	}, submitHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "conflict_resolve",
		Description: "Resume a paused submission by renaming the conflicting file. An empty name accepts the suggestion. The original extension is kept. The submission restarts from the first file.",
	}, resolveHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "conflict_cancel",
		Description: "Abandon a paused submission. Pending files are left unchanged.",
	}, cancelHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "upload_progress",
		Description: "Current upload progress as a percentage under the key \"total\".",
	}, progressHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "file_verify",
		Description: "Check the pending file at the given index against its ledger record. Returns whether the content hash matches and the recorded provenance.",
	}, verifyHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "results_history",
		Description: "Recent upload results and verification verdicts recorded by this client, newest first.",
	}, historyHandler(d))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// AddInput holds parameters for files_add.
type AddInput struct {
	Name          string `json:"name" jsonschema:"required,file name including extension"`
	Content       string `json:"content,omitempty" jsonschema:"text content"`
	ContentBase64 string `json:"content_base64,omitempty" jsonschema:"binary content, base64 encoded; takes precedence over content"`
}

// ListInput has no parameters.
type ListInput struct{}

// IndexInput selects a pending file.
type IndexInput struct {
	Index int `json:"index" jsonschema:"zero-based index from files_list"`
}

// SubmitInput holds parameters for upload_submit.
type SubmitInput struct {
	Destinations []string `json:"destinations,omitempty" jsonschema:"any of s3 and azure; defaults to the configured destinations"`
}

// ResolveInput holds parameters for conflict_resolve.
type ResolveInput struct {
	Name string `json:"name,omitempty" jsonschema:"new file name; empty accepts the suggestion"`
}

// CancelInput has no parameters.
type CancelInput struct{}

// ProgressInput has no parameters.
type ProgressInput struct{}

// HistoryInput holds parameters for results_history.
type HistoryInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum records of each kind, defaults to 20"`
}

// --- Handlers ---

func addHandler(d Deps) mcp.ToolHandlerFor[AddInput, *FileList] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input AddInput) (*mcp.CallToolResult, *FileList, error) {
		name := models.NormalizeName(input.Name)
		if name == "" {
			return nil, nil, fmt.Errorf("name is required")
		}

		content := []byte(input.Content)

		if input.ContentBase64 != "" {
			decoded, err := base64.StdEncoding.DecodeString(input.ContentBase64)
			if err != nil {
				return nil, nil, fmt.Errorf("decoding content_base64: %w", err)
			}

			content = decoded
		}

		d.Workflow.Files().Add(models.NewFileEntry(name, content))

		d.Logger.Info("file added",
			slog.String("file", name),
			slog.Int("bytes", len(content)),
			slog.String("user_id", auth.RequestUserID(ctx)),
			slog.String("ip", auth.RequestRemoteIP(ctx)),
		)

		result := listFiles(d.Workflow.Files())

		return textResult(result), result, nil
	}
}

func listHandler(d Deps) mcp.ToolHandlerFor[ListInput, *FileList] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ ListInput) (*mcp.CallToolResult, *FileList, error) {
		result := listFiles(d.Workflow.Files())
		return textResult(result), result, nil
	}
}

func removeHandler(d Deps) mcp.ToolHandlerFor[IndexInput, *FileList] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input IndexInput) (*mcp.CallToolResult, *FileList, error) {
		files := d.Workflow.Files()

		f, ok := files.At(input.Index)
		if !ok {
			return nil, nil, fmt.Errorf("no pending file at index %d", input.Index)
		}

		files.Remove(f)

		result := listFiles(files)

		return textResult(result), result, nil
	}
}

func submitHandler(d Deps) mcp.ToolHandlerFor[SubmitInput, *OutcomeView] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SubmitInput) (*mcp.CallToolResult, *OutcomeView, error) {
		dests := d.Defaults

		if len(input.Destinations) > 0 {
			parsed, err := models.ParseDestinations(input.Destinations)
			if err != nil {
				return nil, nil, err
			}

			dests = parsed
		}

		out, err := d.Workflow.Submit(ctx, dests)
		if err != nil {
			return nil, nil, err
		}

		result := newOutcomeView(out, d.Explorer)

		return textResult(result), result, nil
	}
}

func resolveHandler(d Deps) mcp.ToolHandlerFor[ResolveInput, *OutcomeView] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ResolveInput) (*mcp.CallToolResult, *OutcomeView, error) {
		out, err := d.Workflow.Resolve(ctx, input.Name)
		if err != nil {
			return nil, nil, err
		}

		result := newOutcomeView(out, d.Explorer)

		return textResult(result), result, nil
	}
}

func cancelHandler(d Deps) mcp.ToolHandlerFor[CancelInput, *CancelResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ CancelInput) (*mcp.CallToolResult, *CancelResult, error) {
		if err := d.Workflow.Cancel(); err != nil {
			return nil, nil, err
		}

		result := &CancelResult{Cancelled: true, Pending: d.Workflow.Files().Len()}

		return textResult(result), result, nil
	}
}

func progressHandler(d Deps) mcp.ToolHandlerFor[ProgressInput, *ProgressView] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ ProgressInput) (*mcp.CallToolResult, *ProgressView, error) {
		result := &ProgressView{Progress: d.Workflow.Progress().Snapshot(), Busy: d.Workflow.Busy()}
		return textResult(result), result, nil
	}
}

func verifyHandler(d Deps) mcp.ToolHandlerFor[IndexInput, *VerificationView] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input IndexInput) (*mcp.CallToolResult, *VerificationView, error) {
		var selected []*models.FileEntry
		if f, ok := d.Workflow.Files().At(input.Index); ok {
			selected = append(selected, f)
		}

		res, err := d.Workflow.Verify(ctx, selected)
		if err != nil {
			return nil, nil, err
		}

		if d.History != nil {
			if err := d.History.RecordVerification(selected[0].Name, *res); err != nil {
				d.Logger.Warn("recording verification", slog.String("error", err.Error()))
			}
		}

		result := newVerificationView(selected[0].Name, res, d.Explorer)

		return textResult(result), result, nil
	}
}

func historyHandler(d Deps) mcp.ToolHandlerFor[HistoryInput, *HistoryView] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, *HistoryView, error) {
		if d.History == nil {
			return nil, nil, fmt.Errorf("history is not enabled")
		}

		limit := input.Limit
		if limit <= 0 {
			limit = defaultHistoryLimit
		}

		results, err := d.History.Results(limit)
		if err != nil {
			return nil, nil, fmt.Errorf("reading results: %w", err)
		}

		verifications, err := d.History.Verifications(limit)
		if err != nil {
			return nil, nil, fmt.Errorf("reading verifications: %w", err)
		}

		result := newHistoryView(results, verifications, d.Explorer)

		return textResult(result), result, nil
	}
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
