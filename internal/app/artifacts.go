package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"skusync/internal/history"
	"skusync/internal/report"

	"go.uber.org/zap"
)

// writeArtifacts writes every configured report file. All files are
// attempted; the errors are joined.
func (s *Syncer) writeArtifacts(rep *report.SyncReport) error {
	var errs []error
	write := func(path string, fn func(io.Writer) error) {
		if path == "" {
			return
		}
		if err := writeFile(path, fn); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", path, err))
			return
		}
		s.logger.Info("Report written", zap.String("path", path))
	}

	write(s.cfg.Report.File, rep.WriteJSON)
	write(s.cfg.Report.NotFoundFile, rep.WriteNotFound)
	write(s.cfg.Report.FailedFile, rep.WriteFailures)

	return errors.Join(errs...)
}

func writeFile(path string, fn func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Syncer) recordHistory(rep *report.SyncReport, started, finished time.Time) error {
	if s.history == nil {
		return nil
	}

	run := history.Run{
		ID:          rep.RunID,
		StartedAt:   started,
		FinishedAt:  finished,
		Bucket:      s.cfg.Sync.Bucket,
		LocalRoot:   s.cfg.Sync.LocalRoot,
		DryRun:      rep.DryRun,
		Total:       rep.Total,
		Downloaded:  rep.Downloaded,
		Skipped:     rep.Skipped,
		NotFound:    rep.NotFound,
		Failed:      rep.Failed,
		Unprocessed: rep.Unprocessed,
		Aborted:     rep.Aborted,
		Fatal:       rep.Fatal,
	}

	records := make([]history.OutcomeRecord, 0, len(rep.Outcomes))
	for _, o := range rep.Outcomes {
		records = append(records, history.OutcomeRecord{
			RunID:    rep.RunID,
			Position: o.Index,
			SKU:      o.SKU,
			State:    string(o.State),
			Key:      o.Key,
			Path:     o.LocalPath,
			Bytes:    o.Bytes,
			Attempts: o.Attempts,
			Reason:   o.Reason,
		})
	}

	if err := s.history.SaveRun(run, records); err != nil {
		return fmt.Errorf("failed to record run %s: %w", rep.RunID, err)
	}
	return nil
}
