package worker

import (
	"time"

	"skusync/internal/retry"
)

// Task is one identifier to synchronise. Index is its position in the
// deduplicated input and drives report ordering.
type Task struct {
	SKU   string `json:"sku"`
	Index int    `json:"index"`
}

// State is the terminal state of a task
type State string

const (
	StateDownloaded      State = "downloaded"
	StateSkippedExisting State = "skipped_existing"
	StateNotFound        State = "not_found"
	StateFailed          State = "failed"
)

// ResolvedObject is the remote object matched for an identifier
type ResolvedObject struct {
	SKU       string
	Key       string
	Extension string
	Size      int64
	Found     bool
}

// Outcome is the single terminal result of a task
type Outcome struct {
	SKU       string        `json:"sku"`
	Index     int           `json:"index"`
	State     State         `json:"state"`
	Key       string        `json:"key,omitempty"`
	Extension string        `json:"extension,omitempty"`
	LocalPath string        `json:"local_path,omitempty"`
	Bytes     int64         `json:"bytes,omitempty"`
	Attempts  int           `json:"attempts"`
	DryRun    bool          `json:"dry_run,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	Err       error         `json:"-"`
}

// Config contains worker configuration
type Config struct {
	Bucket       string
	Prefix       string
	LocalRoot    string
	Extensions   []string
	CallTimeout  time.Duration
	Retry        retry.Policy
	DryRun       bool
	SkipExisting bool
}
