package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"skusync/internal/config"
	"skusync/internal/history"
	"skusync/internal/metrics"
	"skusync/internal/progress"
	"skusync/internal/report"
	"skusync/internal/retry"
	"skusync/internal/storage"
	"skusync/internal/worker"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Syncer represents the main sync application
type Syncer struct {
	cfg         *config.Config
	logger      *zap.Logger
	client      storage.Client
	history     history.Store
	metrics     *metrics.Collector
	progressOut io.Writer
}

// New creates a syncer with the storage client selected by cfg
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Syncer, error) {
	client, err := storage.New(ctx, cfg.StorageConfig(), cfg.Sync.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	s, err := NewWithClient(cfg, client, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// NewWithClient creates a syncer around an existing storage client. The
// syncer takes ownership of client and closes it in Close.
func NewWithClient(cfg *config.Config, client storage.Client, logger *zap.Logger) (*Syncer, error) {
	s := &Syncer{
		cfg:         cfg,
		logger:      logger,
		client:      client,
		metrics:     metrics.New(),
		progressOut: os.Stderr,
	}

	if cfg.Report.HistoryDB != "" {
		store, err := history.NewSQLiteStore(cfg.Report.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
		s.history = store
	}

	return s, nil
}

// Metrics returns the syncer's metrics collector
func (s *Syncer) Metrics() *metrics.Collector {
	return s.metrics
}

// Run synchronises skus and returns the report. The report is returned even
// when the batch aborts; the error is then the fatal error (a
// *retry.FatalError) or the context's error.
func (s *Syncer) Run(ctx context.Context, skus []string) (*report.SyncReport, error) {
	started := time.Now()
	runID := uuid.NewString()
	wc := s.cfg.WorkerConfig()

	tasks, duplicates := BuildTasks(skus)
	if len(duplicates) > 0 {
		s.logger.Warn("Ignoring duplicate SKUs",
			zap.Int("count", len(duplicates)),
			zap.Strings("skus", duplicates),
		)
	}

	s.logger.Info("Starting sync",
		zap.String("run_id", runID),
		zap.String("bucket", wc.Bucket),
		zap.String("prefix", wc.Prefix),
		zap.String("local_root", wc.LocalRoot),
		zap.Strings("extensions", wc.Extensions),
		zap.Int("skus", len(tasks)),
		zap.Int("concurrency", s.cfg.Sync.Concurrency),
		zap.Bool("dry_run", wc.DryRun),
	)

	if err := s.checkBucket(ctx, wc); err != nil {
		rep := report.NewAggregator(len(tasks), wc.DryRun).Report()
		rep.RunID = runID
		return rep, s.finish(rep, started, err)
	}

	if !wc.DryRun {
		if err := os.MkdirAll(wc.LocalRoot, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create local root: %w", err)
		}
	}

	s.metrics.SetTotal(int64(len(tasks)))

	if s.cfg.MetricsAddr != "" {
		err := s.metrics.StartServer(s.cfg.MetricsAddr, func(err error) {
			s.logger.Error("Metrics server failed", zap.Error(err))
		})
		if err != nil {
			s.logger.Error("Failed to start metrics server", zap.String("addr", s.cfg.MetricsAddr), zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				s.metrics.Shutdown(shutdownCtx)
			}()
		}
	}

	// Create progress display if enabled and supported and not in dry-run mode
	var progressDisplay *progress.Display
	if s.cfg.Sync.ShowProgress && !wc.DryRun && progress.IsTerminalSupported() {
		progressDisplay = progress.NewDisplay(s.metrics.GetProgressTracker(), 2*time.Second, s.progressOut)
		progressDisplay.Start()
	} else {
		s.logger.Debug("Progress display disabled",
			zap.Bool("show_progress", s.cfg.Sync.ShowProgress),
			zap.Bool("dry_run", wc.DryRun),
		)
	}

	pool := worker.NewPool(s.cfg.Sync.Concurrency, wc, s.client, s.metrics, s.logger)
	aggregator := report.NewAggregator(len(tasks), wc.DryRun)

	outcomes := make(chan worker.Outcome, s.cfg.Sync.Concurrency)
	collected := make(chan *report.SyncReport, 1)
	go func() {
		collected <- aggregator.Collect(outcomes)
	}()

	runErr := pool.Run(ctx, tasks, outcomes)
	rep := <-collected
	rep.RunID = runID

	if progressDisplay != nil {
		progressDisplay.Stop()
	}

	return rep, s.finish(rep, started, runErr)
}

// checkBucket fails the run up front when the bucket is missing or
// unreadable. Object lookups cannot tell a missing bucket from a missing key.
func (s *Syncer) checkBucket(ctx context.Context, wc worker.Config) error {
	_, err := retry.Do(ctx, wc.Retry, func(ctx context.Context, attempt int) error {
		if wc.CallTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, wc.CallTimeout)
			defer cancel()
		}
		return s.client.CheckBucket(ctx, wc.Bucket)
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &retry.FatalError{Err: err}
}

// finish logs the end of the run, writes the report artifacts and the
// history entry, and returns the error Run reports
func (s *Syncer) finish(rep *report.SyncReport, started time.Time, runErr error) error {
	if runErr != nil {
		rep.Abort(runErr)
		s.logger.Error("Sync aborted",
			zap.String("run_id", rep.RunID),
			zap.Int("unprocessed", rep.Unprocessed),
			zap.Error(runErr),
		)
	} else {
		s.logger.Info("Sync completed",
			zap.String("run_id", rep.RunID),
			zap.Int("downloaded", rep.Downloaded),
			zap.Int("skipped_existing", rep.Skipped),
			zap.Int("not_found", rep.NotFound),
			zap.Int("failed", rep.Failed),
			zap.Duration("duration", time.Since(started)),
		)
	}

	artifactErr := s.writeArtifacts(rep)
	if err := s.recordHistory(rep, started, time.Now()); err != nil {
		artifactErr = errors.Join(artifactErr, err)
	}
	if artifactErr != nil {
		s.logger.Error("Failed to write run artifacts", zap.Error(artifactErr))
		if runErr == nil {
			runErr = artifactErr
		}
	}

	return runErr
}

// Close cleans up resources
func (s *Syncer) Close() error {
	var errs []error
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	if s.client != nil {
		errs = append(errs, s.client.Close())
	}
	return errors.Join(errs...)
}
