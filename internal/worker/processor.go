package worker

import (
	"context"
	"errors"
	"time"

	"skusync/internal/metrics"
	"skusync/internal/retry"
	"skusync/internal/storage"

	"go.uber.org/zap"
)

// TaskProcessor runs resolve and download for one identifier under the
// retry policy and turns the result into an Outcome
type TaskProcessor struct {
	config     Config
	resolver   *Resolver
	downloader *Downloader
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// NewTaskProcessor creates a processor backed by client
func NewTaskProcessor(config Config, client storage.Client, metricsCollector *metrics.Collector, logger *zap.Logger) *TaskProcessor {
	return &TaskProcessor{
		config:     config,
		resolver:   NewResolver(client, config, logger),
		downloader: NewDownloader(client, config, logger),
		metrics:    metricsCollector,
		logger:     logger,
	}
}

// Process processes a single task. A non-nil error is always a
// *retry.FatalError and means the batch must stop; the Outcome is then
// meaningless and must not be recorded.
func (p *TaskProcessor) Process(ctx context.Context, task Task) (Outcome, error) {
	startTime := time.Now()
	outcome := Outcome{SKU: task.SKU, Index: task.Index}

	if _, err := p.downloader.LocalPath(task.SKU, ""); err != nil {
		return p.fail(outcome, 0, err, startTime), nil
	}

	if p.config.SkipExisting {
		if path, ext, ok := p.downloader.Existing(task.SKU); ok {
			p.logger.Debug("Skipping existing file", zap.String("sku", task.SKU), zap.String("path", path))
			outcome.State = StateSkippedExisting
			outcome.LocalPath = path
			outcome.Extension = ext
			outcome.Duration = time.Since(startTime)
			p.metrics.IncSkipped()
			p.metrics.ObserveDuration(outcome.Duration)
			return outcome, nil
		}
	}

	var (
		resolved ResolvedObject
		result   DownloadResult
	)
	attempts, err := retry.Do(ctx, p.config.Retry, func(ctx context.Context, attempt int) error {
		var err error
		resolved, err = p.resolver.Resolve(ctx, task.SKU)
		if err != nil || !resolved.Found {
			return err
		}

		result, err = p.downloader.Download(ctx, resolved)
		if err != nil {
			p.logger.Warn("Download attempt failed",
				zap.String("sku", task.SKU),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return err
	})
	p.metrics.AddAttempts(attempts)
	outcome.Attempts = attempts
	outcome.Duration = time.Since(startTime)

	if err != nil {
		if retry.Classify(err) == retry.ClassFatal {
			return Outcome{}, &retry.FatalError{SKU: task.SKU, Err: err}
		}
		return p.fail(outcome, attempts, err, startTime), nil
	}

	if !resolved.Found {
		p.logger.Info("No remote object for SKU",
			zap.String("sku", task.SKU),
			zap.Strings("extensions", p.config.Extensions),
		)
		outcome.State = StateNotFound
		p.metrics.IncNotFound()
		p.metrics.ObserveDuration(outcome.Duration)
		return outcome, nil
	}

	outcome.State = StateDownloaded
	outcome.Key = resolved.Key
	outcome.Extension = resolved.Extension
	outcome.LocalPath = result.Path
	outcome.Bytes = result.Bytes
	outcome.DryRun = result.DryRun

	p.metrics.IncDownloaded(result.Bytes)
	p.metrics.ObserveDuration(outcome.Duration)
	p.logger.Info("SKU downloaded",
		zap.String("sku", task.SKU),
		zap.String("key", resolved.Key),
		zap.String("path", result.Path),
		zap.Int64("bytes", result.Bytes),
		zap.Int("attempts", attempts),
		zap.Bool("dry_run", result.DryRun),
		zap.Duration("duration", outcome.Duration),
	)
	return outcome, nil
}

func (p *TaskProcessor) fail(outcome Outcome, attempts int, err error, startTime time.Time) Outcome {
	outcome.State = StateFailed
	outcome.Attempts = attempts
	outcome.Err = err
	outcome.Reason = err.Error()
	outcome.Duration = time.Since(startTime)

	p.metrics.IncFailed()
	p.metrics.ObserveDuration(outcome.Duration)

	fields := []zap.Field{zap.String("sku", outcome.SKU), zap.Int("attempts", attempts), zap.Error(err)}
	if errors.Is(err, ErrUnsafePath) {
		p.logger.Error("Refusing SKU with unsafe path", fields...)
	} else {
		p.logger.Error("SKU failed", fields...)
	}
	return outcome
}
