package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexjbarnes/ledger-upload/internal/auth"
	"github.com/alexjbarnes/ledger-upload/internal/backend"
	"github.com/alexjbarnes/ledger-upload/internal/config"
	apperrors "github.com/alexjbarnes/ledger-upload/internal/errors"
	"github.com/alexjbarnes/ledger-upload/internal/logging"
	"github.com/alexjbarnes/ledger-upload/internal/manifest"
	"github.com/alexjbarnes/ledger-upload/internal/models"
	"github.com/alexjbarnes/ledger-upload/internal/state"
	"github.com/alexjbarnes/ledger-upload/internal/upload"
	"golang.org/x/term"
)

var Version = "dev"

// errNotVerified exits with status 3 so scripts can tell a mismatch from
// a failure.
var errNotVerified = errors.New("file does not match its ledger record")

const usage = `usage: ledger-upload <command> [flags]

commands:
  upload [-s3] [-azure] [-manifest file] [files...]
  verify <file>
  history [-n limit]
  serve
  hash-password
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// Handle hash-password subcommand before config loading.
	if os.Args[1] == "hash-password" {
		hashPassword()
		return
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, errNotVerified) {
			os.Exit(3)
		}

		if errors.Is(err, apperrors.ErrSubmissionCancelled) {
			fmt.Fprintln(os.Stderr, "cancelled")
			os.Exit(130)
		}

		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func hashPassword() {
	fmt.Fprint(os.Stderr, "Enter password: ")

	var password string

	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)

		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		password = string(b)
	} else {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			fmt.Fprintln(os.Stderr, "no input")
			os.Exit(1)
		}

		password = scanner.Text()
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hash)
}

// app holds what every command needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	client *backend.Client
	state  *state.State
}

func run(cmd string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appState, err := state.LoadAt(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer appState.Close()

	a := &app{
		cfg:    cfg,
		logger: logger,
		client: backend.NewClient(backend.ClientConfig{
			BaseURL:  cfg.BackendURL,
			Timeout:  cfg.HTTPTimeout,
			Uploader: cfg.UploaderID,
		}),
		state: appState,
	}

	switch cmd {
	case "upload":
		return a.upload(ctx, args)
	case "verify":
		return a.verify(ctx, args)
	case "history":
		return a.history(args)
	case "serve":
		return a.serve(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) newWorkflow(files *upload.FileSet, progress *upload.ProgressTracker) *upload.Workflow {
	return upload.NewWorkflow(upload.WorkflowConfig{
		Backend:     a.client,
		Files:       files,
		Progress:    progress,
		History:     a.state,
		MaxRestarts: a.cfg.MaxConflictRetries,
		Logger:      a.logger,
	})
}

// upload submits files named on the command line and in an optional
// manifest, prompting on the terminal for conflicting names.
func (a *app) upload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	s3 := fs.Bool("s3", false, "upload to S3")
	azure := fs.Bool("azure", false, "upload to Azure")
	manifestPath := fs.String("manifest", "", "YAML manifest listing files and destinations")

	if err := fs.Parse(args); err != nil {
		return err
	}

	var dests models.Destinations
	if *s3 {
		dests = dests.With(models.DestinationS3)
	}

	if *azure {
		dests = dests.With(models.DestinationAzure)
	}

	files := upload.NewFileSet()

	if *manifestPath != "" {
		m, err := manifest.Load(*manifestPath)
		if err != nil {
			return err
		}

		entries, err := m.Entries()
		if err != nil {
			return err
		}

		for _, e := range entries {
			files.Add(e)
		}

		if dests.Empty() {
			if dests, err = m.DestinationSet(); err != nil {
				return err
			}
		}
	}

	for _, p := range fs.Args() {
		e, err := manifest.ReadFile(p, "")
		if err != nil {
			return err
		}

		files.Add(e)
	}

	if dests.Empty() {
		dests = a.cfg.DefaultDestinations()
	}

	progress := upload.NewProgressTracker()
	wf := a.newWorkflow(files, progress)

	updates, cancel := progress.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		showProgress(os.Stderr, updates)
	}()

	results, err := wf.Run(ctx, dests, upload.NewTerminalPrompter(os.Stdin, os.Stderr))

	cancel()
	<-done

	if err != nil {
		return err
	}

	printResults(os.Stdout, results, a.cfg.Explorer())

	return nil
}

// verify checks one local file against its ledger record.
func (a *app) verify(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return apperrors.ErrVerifyFileCount
	}

	e, err := manifest.ReadFile(args[0], "")
	if err != nil {
		return err
	}

	wf := a.newWorkflow(nil, nil)

	res, err := wf.Verify(ctx, []*models.FileEntry{e})
	if err != nil {
		return err
	}

	if err := a.state.RecordVerification(e.Name, *res); err != nil {
		a.logger.Warn("recording verification", slog.String("error", err.Error()))
	}

	printVerification(os.Stdout, e.Name, res, a.cfg.Explorer())

	if !res.Matched {
		return errNotVerified
	}

	return nil
}

// history prints recent results and verifications, newest first.
func (a *app) history(args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("n", 20, "records of each kind to show")

	if err := fs.Parse(args); err != nil {
		return err
	}

	results, err := a.state.Results(*limit)
	if err != nil {
		return fmt.Errorf("reading results: %w", err)
	}

	verifications, err := a.state.Verifications(*limit)
	if err != nil {
		return fmt.Errorf("reading verifications: %w", err)
	}

	printHistory(os.Stdout, results, verifications, a.cfg.Explorer())

	return nil
}
