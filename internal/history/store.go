package history

import (
	"time"
)

// Run is the summary row of one sync batch
type Run struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Bucket      string    `json:"bucket"`
	LocalRoot   string    `json:"local_root"`
	DryRun      bool      `json:"dry_run"`
	Total       int       `json:"total"`
	Downloaded  int       `json:"downloaded"`
	Skipped     int       `json:"skipped_existing"`
	NotFound    int       `json:"not_found"`
	Failed      int       `json:"failed"`
	Unprocessed int       `json:"unprocessed"`
	Aborted     bool      `json:"aborted"`
	Fatal       string    `json:"fatal,omitempty"`
}

// OutcomeRecord is one identifier's result within a run
type OutcomeRecord struct {
	RunID    string `json:"run_id"`
	Position int    `json:"position"`
	SKU      string `json:"sku"`
	State    string `json:"state"`
	Key      string `json:"key,omitempty"`
	Path     string `json:"path,omitempty"`
	Bytes    int64  `json:"bytes"`
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason,omitempty"`
}

// Store is an append-only ledger of past runs
type Store interface {
	SaveRun(run Run, outcomes []OutcomeRecord) error
	ListRuns(limit int) ([]Run, error)
	ListOutcomes(runID, state string) ([]OutcomeRecord, error)

	Close() error
}
