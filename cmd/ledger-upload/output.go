package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alexjbarnes/ledger-upload/internal/ledger"
	"github.com/alexjbarnes/ledger-upload/internal/models"
	"github.com/alexjbarnes/ledger-upload/internal/state"
	"github.com/alexjbarnes/ledger-upload/internal/upload"
)

// showProgress redraws a single status line until updates is closed.
func showProgress(w io.Writer, updates <-chan models.ProgressState) {
	drawn := false

	for p := range updates {
		pct, ok := p[upload.TotalKey]
		if !ok {
			continue
		}

		fmt.Fprintf(w, "\rUploading: %3d%%", pct)
		drawn = true
	}

	if drawn {
		fmt.Fprintln(w)
	}
}

func printResults(w io.Writer, results []models.UploadResult, explorer ledger.Explorer) {
	for _, r := range results {
		printResult(w, r, explorer)
	}
}

func printResult(w io.Writer, r models.UploadResult, explorer ledger.Explorer) {
	fmt.Fprintln(w, r.FileName)

	if r.Skipped() {
		fmt.Fprintf(w, "  skipped: %s\n", r.SkippedReason)
		return
	}

	for _, d := range models.AllDestinations {
		o, ok := r.Outcomes[d]
		if !ok {
			continue
		}

		if o.OK() {
			fmt.Fprintf(w, "  %-6s %s\n", d.Label(), o.URL)
		} else {
			fmt.Fprintf(w, "  %-6s failed: %s\n", d.Label(), o.Error)
		}
	}

	if r.ContentHash != "" {
		fmt.Fprintf(w, "  sha256 %s\n", r.ContentHash)
	}

	if link := explorer.TxURL(r.LedgerTxHash); link != "" {
		fmt.Fprintf(w, "  ledger %s\n", link)
	}

	if r.Message != "" {
		fmt.Fprintf(w, "  %s\n", r.Message)
	}
}

func printVerification(w io.Writer, name string, res *models.VerificationResult, explorer ledger.Explorer) {
	if !res.Matched {
		fmt.Fprintf(w, "%s: NOT VERIFIED\n", name)

		if res.Detail != "" {
			fmt.Fprintf(w, "  %s\n", res.Detail)
		}

		return
	}

	fmt.Fprintf(w, "%s: verified\n", name)
	fmt.Fprintf(w, "  sha256      %s\n", res.ComputedHash)

	if res.OriginalFileName != "" {
		fmt.Fprintf(w, "  uploaded as %s\n", res.OriginalFileName)
	}

	if res.UploadedBy != "" {
		fmt.Fprintf(w, "  uploaded by %s\n", res.UploadedBy)
	}

	if res.UploadTimestamp != nil {
		fmt.Fprintf(w, "  uploaded at %s\n", res.UploadTimestamp.Format(time.RFC3339))
	}

	if len(res.Destinations) > 0 {
		fmt.Fprintf(w, "  stored in   %s\n", strings.Join(res.Destinations, ", "))
	}

	if link := explorer.TxURL(res.LedgerTxHash); link != "" {
		fmt.Fprintf(w, "  ledger      %s\n", link)
	}
}

func printHistory(w io.Writer, results []state.ResultRecord, verifications []state.VerificationRecord, explorer ledger.Explorer) {
	fmt.Fprintf(w, "Uploads (%d)\n", len(results))

	for _, r := range results {
		fmt.Fprintf(w, "%s  ", r.RecordedAt.Local().Format(time.DateTime))
		printResult(w, r.Result, explorer)
	}

	fmt.Fprintf(w, "\nVerifications (%d)\n", len(verifications))

	for _, v := range verifications {
		verdict := "mismatch"
		if v.Result.Matched {
			verdict = "verified"
		}

		fmt.Fprintf(w, "%s  %s: %s\n", v.RecordedAt.Local().Format(time.DateTime), v.FileName, verdict)
	}
}
