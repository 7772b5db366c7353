// Package report folds worker outcomes into the final sync report and
// renders it for people and machines.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"skusync/internal/worker"
)

// Failure is one failed identifier
type Failure struct {
	SKU      string `json:"sku"`
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason"`
}

// SyncReport is the result of one batch. NotFound and Failures are in
// input order regardless of completion order.
type SyncReport struct {
	RunID       string           `json:"run_id,omitempty"`
	Total       int              `json:"total"`
	Downloaded  int              `json:"downloaded"`
	Skipped     int              `json:"skipped_existing"`
	NotFound    int              `json:"not_found"`
	Failed      int              `json:"failed"`
	Unprocessed int              `json:"unprocessed"`
	DryRun      bool             `json:"dry_run"`
	Aborted     bool             `json:"aborted"`
	Fatal       string           `json:"fatal,omitempty"`
	NotFoundIDs []string         `json:"not_found_skus"`
	Failures    []Failure        `json:"failures"`
	Outcomes    []worker.Outcome `json:"outcomes"`
}

// Success is true when no identifier failed and the batch was not aborted.
// Not-found identifiers do not affect success.
func (r *SyncReport) Success() bool {
	return !r.Aborted && r.Failed == 0
}

// Abort marks the report as ended by a batch-level error
func (r *SyncReport) Abort(err error) {
	r.Aborted = true
	if err != nil {
		r.Fatal = err.Error()
	}
}

// Summary renders the human-readable summary
func (r *SyncReport) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "SKU sync summary")
	if r.DryRun {
		b.WriteString(" (dry run)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "  total:       %d\n", r.Total)
	fmt.Fprintf(&b, "  downloaded:  %d\n", r.Downloaded)
	fmt.Fprintf(&b, "  skipped:     %d\n", r.Skipped)
	fmt.Fprintf(&b, "  not found:   %d\n", r.NotFound)
	fmt.Fprintf(&b, "  failed:      %d\n", r.Failed)
	if r.Unprocessed > 0 {
		fmt.Fprintf(&b, "  unprocessed: %d\n", r.Unprocessed)
	}

	if len(r.NotFoundIDs) > 0 {
		fmt.Fprintf(&b, "not found: %s\n", strings.Join(r.NotFoundIDs, ", "))
	}
	if len(r.Failures) > 0 {
		fmt.Fprintf(&b, "%d SKUs failed to sync:\n", len(r.Failures))
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "  %s (%d attempts): %s\n", f.SKU, f.Attempts, f.Reason)
		}
	}

	switch {
	case r.Aborted:
		fmt.Fprintf(&b, "ABORTED: %s\n", r.Fatal)
	case r.Success():
		b.WriteString("All SKUs synced successfully.\n")
	}

	return b.String()
}

// WriteJSON writes the full report
func (r *SyncReport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteNotFound writes one not-found identifier per line
func (r *SyncReport) WriteNotFound(w io.Writer) error {
	for _, sku := range r.NotFoundIDs {
		if _, err := fmt.Fprintln(w, sku); err != nil {
			return err
		}
	}
	return nil
}

// WriteFailures writes failures as CSV with a header row
func (r *SyncReport) WriteFailures(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sku", "attempts", "reason"}); err != nil {
		return err
	}
	for _, f := range r.Failures {
		if err := cw.Write([]string{f.SKU, strconv.Itoa(f.Attempts), f.Reason}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
