package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"skusync/internal/history"
	"skusync/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	fatal := fmt.Errorf("run: %w", &retry.FatalError{SKU: "A", Err: errors.New("AccessDenied")})

	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitFailed, exitCode(errSyncFailed))
	assert.Equal(t, exitFailed, exitCode(errors.New("failed to load config")))
	assert.Equal(t, exitFatal, exitCode(fatal))
	assert.Equal(t, exitFatal, exitCode(context.Canceled))
}

func TestHistoryCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	store, err := history.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.SaveRun(history.Run{
		ID:         "run-1",
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		Bucket:     "assets",
		LocalRoot:  "/data",
		Total:      2,
		Downloaded: 1,
		Failed:     1,
	}, []history.OutcomeRecord{
		{Position: 0, SKU: "A", State: "downloaded", Attempts: 1, Bytes: 3},
		{Position: 1, SKU: "B", State: "failed", Attempts: 3, Reason: "503"},
	}))
	require.NoError(t, store.Close())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"history", "--db", dbPath})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "run-1")
	assert.Contains(t, out.String(), "failed")

	out.Reset()
	rootCmd.SetArgs([]string{"history", "--db", dbPath, "--run", "run-1", "--state", "failed"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "B")
	assert.Contains(t, out.String(), "503")
	assert.NotContains(t, out.String(), "downloaded")
}
