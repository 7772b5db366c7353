package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"skusync/internal/config"
	"skusync/internal/history"
	"skusync/internal/report"
	"skusync/internal/retry"
	"skusync/internal/storage"
	"skusync/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"
)

// countingClient counts HEAD calls, can deny access to one key and can
// pretend the bucket does not exist
type countingClient struct {
	storage.Client
	deny          string
	missingBucket bool
	heads         atomic.Int64
}

func (c *countingClient) CheckBucket(ctx context.Context, bucket string) error {
	if c.missingBucket {
		return &storage.Error{Kind: storage.KindFatal, Op: "check bucket", Key: bucket, Err: storage.ErrBucketNotFound}
	}
	return c.Client.CheckBucket(ctx, bucket)
}

func (c *countingClient) HeadObject(ctx context.Context, bucket, key string) (storage.ObjectInfo, error) {
	c.heads.Add(1)
	if key == c.deny {
		return storage.ObjectInfo{}, &storage.Error{Kind: storage.KindFatal, Op: "head", Key: key, Err: errors.New("AccessDenied")}
	}
	return c.Client.HeadObject(ctx, bucket, key)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Driver = storage.DriverBlob
	cfg.Sync.Bucket = "assets"
	cfg.Sync.LocalRoot = filepath.Join(t.TempDir(), "out")
	cfg.Sync.Extensions = []string{".pdf", ".txt"}
	cfg.Sync.RetryBackoffMs = 1
	cfg.Sync.MaxBackoffMs = 5
	cfg.Sync.Jitter = false
	cfg.Sync.CallTimeout = 5 * time.Second
	cfg.Sync.ShowProgress = false
	return cfg
}

func newBucket(t *testing.T, objects map[string]string) *blob.Bucket {
	t.Helper()
	bucket := memblob.OpenBucket(nil)
	ctx := context.Background()
	for key, body := range objects {
		require.NoError(t, bucket.WriteAll(ctx, key, []byte(body), nil))
	}
	return bucket
}

func newSyncer(t *testing.T, cfg *config.Config, objects map[string]string) (*Syncer, *countingClient) {
	t.Helper()
	client := &countingClient{Client: storage.NewBlobClient(newBucket(t, objects))}
	s, err := NewWithClient(cfg, client, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, client
}

func states(rep *report.SyncReport) map[string]worker.State {
	out := make(map[string]worker.State, len(rep.Outcomes))
	for _, o := range rep.Outcomes {
		out[o.SKU] = o.State
	}
	return out
}

func TestRunMixedExtensions(t *testing.T) {
	cfg := testConfig(t)
	s, _ := newSyncer(t, cfg, map[string]string{"A.pdf": "pdf-A", "C.txt": "text-C"})

	rep, err := s.Run(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)

	require.Len(t, rep.Outcomes, 3)
	assert.Equal(t, worker.StateDownloaded, rep.Outcomes[0].State)
	assert.Equal(t, ".pdf", rep.Outcomes[0].Extension)
	assert.Equal(t, worker.StateNotFound, rep.Outcomes[1].State)
	assert.Equal(t, worker.StateDownloaded, rep.Outcomes[2].State)
	assert.Equal(t, ".txt", rep.Outcomes[2].Extension)
	assert.True(t, rep.Success())
	assert.Equal(t, []string{"B"}, rep.NotFoundIDs)
	assert.NotEmpty(t, rep.RunID)

	data, err := os.ReadFile(filepath.Join(cfg.Sync.LocalRoot, "C.txt"))
	require.NoError(t, err)
	assert.Equal(t, "text-C", string(data))
}

func TestRunFatalOnFirstCheck(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.Concurrency = 1
	s, client := newSyncer(t, cfg, map[string]string{"A.pdf": "a", "C.txt": "c"})
	client.deny = "A.pdf"

	rep, err := s.Run(context.Background(), []string{"A", "B", "C"})
	require.Error(t, err)

	var fatal *retry.FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "A", fatal.SKU)

	require.NotNil(t, rep)
	assert.Empty(t, rep.Outcomes)
	assert.True(t, rep.Aborted)
	assert.False(t, rep.Success())
	assert.Equal(t, 3, rep.Unprocessed)
	assert.Contains(t, rep.Summary(), "ABORTED")
	assert.NotContains(t, rep.Summary(), "synced successfully")
	assert.Equal(t, int64(1), client.heads.Load())
}

func TestRunMissingBucketAborts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Report.HistoryDB = filepath.Join(t.TempDir(), "history.db")
	s, client := newSyncer(t, cfg, map[string]string{"A.pdf": "a"})
	client.missingBucket = true

	rep, err := s.Run(context.Background(), []string{"A", "B", "C"})
	require.Error(t, err)

	var fatal *retry.FatalError
	require.ErrorAs(t, err, &fatal)
	require.ErrorIs(t, err, storage.ErrBucketNotFound)

	require.NotNil(t, rep)
	assert.True(t, rep.Aborted)
	assert.False(t, rep.Success())
	assert.Empty(t, rep.Outcomes)
	assert.Zero(t, rep.NotFound)
	assert.Equal(t, 3, rep.Unprocessed)
	assert.Contains(t, rep.Fatal, "bucket not found")
	assert.Zero(t, client.heads.Load())

	_, statErr := os.Stat(cfg.Sync.LocalRoot)
	assert.True(t, os.IsNotExist(statErr), "no local files before the bucket is verified")

	require.NoError(t, s.Close())
	store, err := history.NewSQLiteStore(cfg.Report.HistoryDB)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Aborted)
}

func TestRunDeterministicAcrossWorkerCounts(t *testing.T) {
	objects := map[string]string{}
	var skus []string
	for i := 0; i < 60; i++ {
		sku := fmt.Sprintf("SKU-%02d", i)
		skus = append(skus, sku)
		switch i % 3 {
		case 0:
			objects[sku+".pdf"] = sku
		case 1:
			objects[sku+".txt"] = sku
		}
	}

	type result struct {
		notFound []string
		states   []worker.State
	}
	var results []result

	for _, workers := range []int{1, 4, 16} {
		cfg := testConfig(t)
		cfg.Sync.Concurrency = workers
		s, _ := newSyncer(t, cfg, objects)

		rep, err := s.Run(context.Background(), skus)
		require.NoError(t, err)
		require.Len(t, rep.Outcomes, len(skus))

		r := result{notFound: rep.NotFoundIDs}
		for i, o := range rep.Outcomes {
			require.Equal(t, skus[i], o.SKU)
			r.states = append(r.states, o.State)
		}
		results = append(results, r)
	}

	assert.Len(t, results[0].notFound, 20)
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[0], results[2])
}

func TestRunDryRunMatchesRealRun(t *testing.T) {
	objects := map[string]string{"A.pdf": "a", "C.txt": "c"}

	dry := testConfig(t)
	dry.Sync.DryRun = true
	s, _ := newSyncer(t, dry, objects)
	dryRep, err := s.Run(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)

	_, statErr := os.Stat(dry.Sync.LocalRoot)
	assert.True(t, os.IsNotExist(statErr), "dry run must not create the local root")

	live := testConfig(t)
	s, _ = newSyncer(t, live, objects)
	liveRep, err := s.Run(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)

	assert.Equal(t, states(liveRep), states(dryRep))
	assert.True(t, dryRep.DryRun)
	for _, o := range dryRep.Outcomes {
		assert.Zero(t, o.Bytes)
	}
}

func TestRunSkipExistingMakesNoCalls(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Sync.LocalRoot, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Sync.LocalRoot, "A.txt"), []byte("old"), 0o644))

	s, client := newSyncer(t, cfg, map[string]string{"A.pdf": "new"})
	rep, err := s.Run(context.Background(), []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, worker.StateSkippedExisting, rep.Outcomes[0].State)
	assert.Zero(t, client.heads.Load())

	cfg.Sync.SkipExisting = false
	s, client = newSyncer(t, cfg, map[string]string{"A.pdf": "new"})
	rep, err = s.Run(context.Background(), []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, worker.StateDownloaded, rep.Outcomes[0].State)
	assert.Equal(t, int64(1), client.heads.Load())
}

func TestRunDeduplicatesAndRejectsUnsafe(t *testing.T) {
	cfg := testConfig(t)
	s, client := newSyncer(t, cfg, map[string]string{"A.pdf": "a"})

	rep, err := s.Run(context.Background(), []string{"A", "../escape", "A", ""})
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Total)
	require.Len(t, rep.Outcomes, 2)
	assert.Equal(t, worker.StateDownloaded, rep.Outcomes[0].State)
	assert.Equal(t, worker.StateFailed, rep.Outcomes[1].State)
	assert.Contains(t, rep.Outcomes[1].Reason, "unsafe path")
	assert.False(t, rep.Success())
	assert.Equal(t, int64(1), client.heads.Load())
}

func TestRunWritesArtifactsAndHistory(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	cfg.Report.File = filepath.Join(dir, "reports", "report.json")
	cfg.Report.NotFoundFile = filepath.Join(dir, "reports", "not_found.txt")
	cfg.Report.FailedFile = filepath.Join(dir, "reports", "failed.csv")
	cfg.Report.HistoryDB = filepath.Join(dir, "history.db")

	s, _ := newSyncer(t, cfg, map[string]string{"A.pdf": "a"})
	rep, err := s.Run(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	data, err := os.ReadFile(cfg.Report.File)
	require.NoError(t, err)
	var decoded report.SyncReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, rep.RunID, decoded.RunID)
	assert.Equal(t, 1, decoded.NotFound)

	data, err = os.ReadFile(cfg.Report.NotFoundFile)
	require.NoError(t, err)
	assert.Equal(t, "B\n", string(data))

	data, err = os.ReadFile(cfg.Report.FailedFile)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("sku,attempts,reason\n")))

	store, err := history.NewSQLiteStore(cfg.Report.HistoryDB)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.ListRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rep.RunID, runs[0].ID)
	assert.Equal(t, 1, runs[0].Downloaded)

	outcomes, err := store.ListOutcomes(rep.RunID, "not_found")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "B", outcomes[0].SKU)
}

func TestRunCancelled(t *testing.T) {
	cfg := testConfig(t)
	s, _ := newSyncer(t, cfg, map[string]string{"A.pdf": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := s.Run(ctx, []string{"A", "B"})
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, rep.Aborted)
	assert.False(t, rep.Success())
}

func TestBuildTasks(t *testing.T) {
	tasks, dups := BuildTasks([]string{"B", "A", "B", "", "C", "A"})
	assert.Equal(t, []worker.Task{{SKU: "B", Index: 0}, {SKU: "A", Index: 1}, {SKU: "C", Index: 2}}, tasks)
	assert.Equal(t, []string{"B", "A"}, dups)
}

func TestLoadSKUs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skus.csv")
	require.NoError(t, os.WriteFile(path, []byte("Code\nX\nY\n"), 0o644))

	skus, err := LoadSKUs(config.InputConfig{File: path, Column: "Code"})
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Y"}, skus)

	_, err = LoadSKUs(config.InputConfig{})
	require.Error(t, err)
}
