package upload

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alexjbarnes/ledger-upload/internal/models"
)

// Prompter asks the operator for a new name when a submission is
// suspended on a conflict. Returning ok=false cancels the submission.
type Prompter interface {
	PromptRename(ctx context.Context, c models.ConflictState) (name string, ok bool, err error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, c models.ConflictState) (string, bool, error)

func (f PrompterFunc) PromptRename(ctx context.Context, c models.ConflictState) (string, bool, error) {
	return f(ctx, c)
}

// AcceptSuggestion confirms every conflict with its suggested name.
var AcceptSuggestion Prompter = PrompterFunc(func(_ context.Context, c models.ConflictState) (string, bool, error) {
	return c.SuggestedName, true, nil
})

// CancelOnConflict cancels the submission at the first conflict.
var CancelOnConflict Prompter = PrompterFunc(func(context.Context, models.ConflictState) (string, bool, error) {
	return "", false, nil
})

// TerminalPrompter reads new names line by line. A blank line accepts
// the suggestion; end of input cancels.
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalPrompter returns a prompter reading from in and writing
// prompts to out.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out}
}

func (t *TerminalPrompter) PromptRename(ctx context.Context, c models.ConflictState) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	fmt.Fprintf(t.out, "A different file named %q already exists.\nNew name [%s]: ", c.FileName, c.SuggestedName)

	line, err := t.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, fmt.Errorf("reading name: %w", err)
	}

	if errors.Is(err, io.EOF) && line == "" {
		fmt.Fprintln(t.out)
		return "", false, nil
	}

	name := strings.TrimSpace(line)
	if name == "" {
		name = c.SuggestedName
	}

	return name, true, nil
}
