package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Client defines the read-only object storage operations the sync engine needs
type Client interface {
	// HeadObject returns object metadata without transferring the body.
	// A missing object yields an *Error of KindNotFound.
	HeadObject(ctx context.Context, bucket, key string) (ObjectInfo, error)

	// GetObject opens the object body for streaming. The caller closes it.
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// CheckBucket verifies the bucket exists and is readable. A missing
	// bucket yields an *Error of KindFatal wrapping ErrBucketNotFound.
	CheckBucket(ctx context.Context, bucket string) error

	Close() error
}

// ObjectInfo contains object metadata
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string
}

// Config contains client configuration
type Config struct {
	Driver    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Region    string
	URL       string
}

// Kind tells the caller how a storage failure should be treated
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindTransient
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ErrNotFound is wrapped by every KindNotFound error
var ErrNotFound = errors.New("object not found")

// ErrBucketNotFound is wrapped by the error CheckBucket returns for a missing bucket
var ErrBucketNotFound = errors.New("bucket not found")

// Error is returned by every backend operation that fails
type Error struct {
	Kind Kind
	Op   string
	Key  string
	Err  error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of a storage error, or KindUnknown
func KindOf(err error) Kind {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err means the object does not exist
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound || errors.Is(err, ErrNotFound)
}

func newError(op, key string, kind Kind, err error) *Error {
	if kind == KindNotFound && !errors.Is(err, ErrNotFound) {
		err = fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return &Error{Kind: kind, Op: op, Key: key, Err: err}
}

// bucketError builds the CheckBucket error. A missing bucket cannot be
// fixed by retrying, so not-found becomes fatal.
func bucketError(bucket string, kind Kind, err error) *Error {
	if kind == KindNotFound {
		if !errors.Is(err, ErrBucketNotFound) {
			err = fmt.Errorf("%w: %v", ErrBucketNotFound, err)
		}
		return &Error{Kind: KindFatal, Op: "check bucket", Key: bucket, Err: err}
	}
	return &Error{Kind: kind, Op: "check bucket", Key: bucket, Err: err}
}

// transportKind classifies errors that never reached the service
func transportKind(err error) Kind {
	if errors.Is(err, context.Canceled) {
		return KindFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return KindTransient
	}
	return KindUnknown
}

// statusKind maps an HTTP status code returned by an S3-compatible service
func statusKind(status int) Kind {
	switch {
	case status == 404:
		return KindNotFound
	case status == 401 || status == 403:
		return KindFatal
	case status == 408 || status == 429 || status >= 500:
		return KindTransient
	default:
		return KindUnknown
	}
}

// classifyingReader wraps a body so that mid-stream failures carry a Kind
type classifyingReader struct {
	io.ReadCloser
	key      string
	classify func(error) Kind
}

func (r *classifyingReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		return n, newError("read", r.key, r.classify(err), err)
	}
	return n, err
}
