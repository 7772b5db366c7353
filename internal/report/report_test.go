package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"skusync/internal/worker"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOutcomes() []worker.Outcome {
	return []worker.Outcome{
		{SKU: "A", Index: 0, State: worker.StateDownloaded, Key: "A.pdf", Bytes: 10, Attempts: 1},
		{SKU: "B", Index: 1, State: worker.StateNotFound, Attempts: 1},
		{SKU: "C", Index: 2, State: worker.StateFailed, Attempts: 3, Reason: "storage get C.pdf: 503 service unavailable"},
		{SKU: "D", Index: 3, State: worker.StateSkippedExisting},
		{SKU: "E", Index: 4, State: worker.StateNotFound, Attempts: 1},
	}
}

func collect(outcomes []worker.Outcome) *SyncReport {
	agg := NewAggregator(len(outcomes), false)
	ch := make(chan worker.Outcome, len(outcomes))
	for _, o := range outcomes {
		ch <- o
	}
	close(ch)
	return agg.Collect(ch)
}

func TestAggregatorRestoresInputOrder(t *testing.T) {
	want := collect(sampleOutcomes())

	for i := 0; i < 20; i++ {
		shuffled := sampleOutcomes()
		rand.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := collect(shuffled)
		assert.Equal(t, want, got)
	}

	assert.Equal(t, []string{"B", "E"}, want.NotFoundIDs)
	require.Len(t, want.Failures, 1)
	assert.Equal(t, Failure{SKU: "C", Attempts: 3, Reason: "storage get C.pdf: 503 service unavailable"}, want.Failures[0])
	assert.Equal(t, 1, want.Downloaded)
	assert.Equal(t, 1, want.Skipped)
	assert.Equal(t, 2, want.NotFound)
	assert.Equal(t, 1, want.Failed)
	assert.False(t, want.Success())
}

func TestAggregatorConcurrentAdds(t *testing.T) {
	const n = 200
	agg := NewAggregator(n, false)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			agg.Add(worker.Outcome{SKU: "S", Index: i, State: worker.StateDownloaded})
		}(i)
	}
	wg.Wait()

	r := agg.Report()
	assert.Equal(t, n, r.Downloaded)
	assert.Zero(t, r.Unprocessed)
	assert.True(t, r.Success())
}

func TestAggregatorRejectsDuplicates(t *testing.T) {
	agg := NewAggregator(2, false)
	assert.True(t, agg.Add(worker.Outcome{SKU: "A", Index: 0, State: worker.StateDownloaded}))
	assert.False(t, agg.Add(worker.Outcome{SKU: "A", Index: 0, State: worker.StateFailed}))
	assert.False(t, agg.Add(worker.Outcome{SKU: "Z", Index: 5}))

	r := agg.Report()
	assert.Equal(t, 1, r.Downloaded)
	assert.Zero(t, r.Failed)
	assert.Equal(t, 1, r.Unprocessed)
}

func TestNotFoundDoesNotAffectSuccess(t *testing.T) {
	r := collect([]worker.Outcome{
		{SKU: "A", Index: 0, State: worker.StateDownloaded},
		{SKU: "B", Index: 1, State: worker.StateNotFound},
	})
	assert.True(t, r.Success())
	assert.Contains(t, r.Summary(), "All SKUs synced successfully.")
}

func TestAbortedReportNeverSucceeds(t *testing.T) {
	r := NewAggregator(3, false).Report()
	assert.True(t, r.Success())

	r.Abort(errors.New("fatal: AccessDenied"))
	assert.False(t, r.Success())
	assert.Equal(t, 3, r.Unprocessed)
}

func TestSummaryGolden(t *testing.T) {
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, "summary", []byte(collect(sampleOutcomes()).Summary()))

	agg := NewAggregator(4, true)
	agg.Add(worker.Outcome{SKU: "A", Index: 0, State: worker.StateDownloaded, DryRun: true})
	r := agg.Report()
	r.Abort(errors.New("fatal error while processing B: AccessDenied"))
	g.Assert(t, "summary_aborted", []byte(r.Summary()))
}

func TestWriters(t *testing.T) {
	r := collect(sampleOutcomes())

	var buf bytes.Buffer
	require.NoError(t, r.WriteNotFound(&buf))
	assert.Equal(t, "B\nE\n", buf.String())

	buf.Reset()
	require.NoError(t, r.WriteFailures(&buf))
	assert.Equal(t, "sku,attempts,reason\nC,3,storage get C.pdf: 503 service unavailable\n", buf.String())

	buf.Reset()
	require.NoError(t, r.WriteJSON(&buf))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, float64(5), decoded["total"])
	assert.Equal(t, []any{"B", "E"}, decoded["not_found_skus"])
	assert.Len(t, decoded["outcomes"], 5)
	assert.True(t, strings.Contains(buf.String(), `"state": "skipped_existing"`))
}
