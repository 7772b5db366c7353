package report

import (
	"sync"

	"skusync/internal/worker"
)

// Aggregator accumulates outcomes behind a single lock. Outcomes are slotted
// by task index so the final report follows input order.
type Aggregator struct {
	mu       sync.Mutex
	total    int
	dryRun   bool
	outcomes []*worker.Outcome
}

// NewAggregator creates an aggregator for a batch of total tasks
func NewAggregator(total int, dryRun bool) *Aggregator {
	return &Aggregator{
		total:    total,
		dryRun:   dryRun,
		outcomes: make([]*worker.Outcome, total),
	}
}

// Add records an outcome. Out-of-range indices and repeats of an index
// already recorded are ignored and reported as false.
func (a *Aggregator) Add(o worker.Outcome) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if o.Index < 0 || o.Index >= a.total || a.outcomes[o.Index] != nil {
		return false
	}
	a.outcomes[o.Index] = &o
	return true
}

// Collect consumes the stream until it is closed and returns the report
func (a *Aggregator) Collect(outcomes <-chan worker.Outcome) *SyncReport {
	for o := range outcomes {
		a.Add(o)
	}
	return a.Report()
}

// Report builds the report from what has been recorded so far
func (a *Aggregator) Report() *SyncReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := &SyncReport{
		Total:       a.total,
		DryRun:      a.dryRun,
		NotFoundIDs: []string{},
		Failures:    []Failure{},
		Outcomes:    []worker.Outcome{},
	}

	for _, o := range a.outcomes {
		if o == nil {
			r.Unprocessed++
			continue
		}

		r.Outcomes = append(r.Outcomes, *o)
		switch o.State {
		case worker.StateDownloaded:
			r.Downloaded++
		case worker.StateSkippedExisting:
			r.Skipped++
		case worker.StateNotFound:
			r.NotFound++
			r.NotFoundIDs = append(r.NotFoundIDs, o.SKU)
		case worker.StateFailed:
			r.Failed++
			r.Failures = append(r.Failures, Failure{SKU: o.SKU, Attempts: o.Attempts, Reason: o.Reason})
		}
	}

	return r
}
