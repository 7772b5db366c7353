package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"skusync/internal/storage"

	"go.uber.org/zap"
)

// ErrUnsafePath is returned for identifiers that would land outside the local root
var ErrUnsafePath = errors.New("unsafe path")

// DownloadResult describes a completed (or simulated) transfer
type DownloadResult struct {
	Path   string
	Bytes  int64
	DryRun bool
}

// Downloader writes resolved objects under the local root
type Downloader struct {
	client     storage.Client
	bucket     string
	root       string
	extensions []string
	timeout    time.Duration
	dryRun     bool
	logger     *zap.Logger
}

// NewDownloader creates a downloader for the configured local root
func NewDownloader(client storage.Client, config Config, logger *zap.Logger) *Downloader {
	return &Downloader{
		client:     client,
		bucket:     config.Bucket,
		root:       config.LocalRoot,
		extensions: config.Extensions,
		timeout:    config.CallTimeout,
		dryRun:     config.DryRun,
		logger:     logger,
	}
}

// LocalPath returns root/<sku><ext>, refusing paths that escape root
func (d *Downloader) LocalPath(sku, ext string) (string, error) {
	name := filepath.FromSlash(sku + ext)
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, sku)
	}

	dest := filepath.Join(d.root, name)
	rel, err := filepath.Rel(d.root, dest)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, sku)
	}
	return dest, nil
}

// Existing returns the first local file matching sku with any candidate
// extension. It never touches the network.
func (d *Downloader) Existing(sku string) (string, string, bool) {
	for _, ext := range d.extensions {
		path, err := d.LocalPath(sku, ext)
		if err != nil {
			return "", "", false
		}
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, ext, true
		}
	}
	return "", "", false
}

// Download transfers obj to its local path. The body is written to a
// temporary file in the destination directory and renamed into place only
// after a complete copy, so a failed transfer leaves nothing behind.
func (d *Downloader) Download(ctx context.Context, obj ResolvedObject) (DownloadResult, error) {
	dest, err := d.LocalPath(obj.SKU, obj.Extension)
	if err != nil {
		return DownloadResult{}, err
	}

	if d.dryRun {
		d.logger.Info("Would download object",
			zap.String("sku", obj.SKU),
			zap.String("key", obj.Key),
			zap.String("path", dest),
			zap.Int64("size", obj.Size),
		)
		return DownloadResult{Path: dest, DryRun: true}, nil
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return DownloadResult{}, fmt.Errorf("create directory: %w", err)
	}

	body, err := d.open(ctx, obj.Key)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("fetch %s: %w", obj.Key, err)
	}
	defer body.Close()

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return DownloadResult{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, body)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return DownloadResult{}, fmt.Errorf("write %s: %w", obj.Key, err)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return DownloadResult{}, fmt.Errorf("move into place: %w", err)
	}

	return DownloadResult{Path: dest, Bytes: n}, nil
}

// open requests the object. The call timeout bounds only the wait for the
// response; the body then streams for as long as ctx allows.
func (d *Downloader) open(ctx context.Context, key string) (io.ReadCloser, error) {
	if d.timeout <= 0 {
		return d.client.GetObject(ctx, d.bucket, key)
	}

	callCtx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(d.timeout, cancel)
	body, err := d.client.GetObject(callCtx, d.bucket, key)
	if timer.Stop() {
		if err != nil {
			cancel()
			return nil, err
		}
		return &cancelOnClose{ReadCloser: body, cancel: cancel}, nil
	}

	// the timer fired and callCtx is gone, so body is unusable
	if body != nil {
		body.Close()
	}
	cancel()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return nil, fmt.Errorf("no response within %s: %w", d.timeout, context.DeadlineExceeded)
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
