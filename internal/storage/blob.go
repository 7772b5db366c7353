package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// BlobClient implements the Client interface on a portable gocloud bucket.
// The bucket is fixed by the URL it was opened with, so the bucket argument
// of each call is ignored.
type BlobClient struct {
	bucket *blob.Bucket
}

// OpenBlobClient opens a bucket URL such as s3://name?region=eu-west-1,
// gs://name, file:///var/data or mem://. Drivers must be linked in by the
// caller with blank imports.
func OpenBlobClient(ctx context.Context, bucketURL string) (*BlobClient, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	return &BlobClient{bucket: bucket}, nil
}

// NewBlobClient wraps an already opened bucket
func NewBlobClient(bucket *blob.Bucket) *BlobClient {
	return &BlobClient{bucket: bucket}
}

// HeadObject gets object metadata
func (c *BlobClient) HeadObject(ctx context.Context, _, key string) (ObjectInfo, error) {
	attrs, err := c.bucket.Attributes(ctx, key)
	if err != nil {
		return ObjectInfo{}, newError("head", key, blobKind(err), err)
	}

	return ObjectInfo{
		Key:          key,
		Size:         attrs.Size,
		ETag:         attrs.ETag,
		LastModified: attrs.ModTime,
		ContentType:  attrs.ContentType,
	}, nil
}

// GetObject opens the object body for streaming
func (c *BlobClient) GetObject(ctx context.Context, _, key string) (io.ReadCloser, error) {
	r, err := c.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, newError("get", key, blobKind(err), err)
	}
	return &classifyingReader{ReadCloser: r, key: key, classify: blobKind}, nil
}

// CheckBucket verifies the opened bucket is reachable. The bucket argument
// is ignored like in every other call.
func (c *BlobClient) CheckBucket(ctx context.Context, bucket string) error {
	ok, err := c.bucket.IsAccessible(ctx)
	if err != nil {
		return bucketError(bucket, blobKind(err), err)
	}
	if !ok {
		return bucketError(bucket, KindNotFound, ErrBucketNotFound)
	}
	return nil
}

// Close closes the underlying bucket
func (c *BlobClient) Close() error {
	return c.bucket.Close()
}

func blobKind(err error) Kind {
	if errors.Is(err, context.Canceled) {
		return KindFatal
	}

	switch gcerrors.Code(err) {
	case gcerrors.NotFound:
		return KindNotFound
	case gcerrors.PermissionDenied, gcerrors.InvalidArgument, gcerrors.FailedPrecondition:
		return KindFatal
	case gcerrors.DeadlineExceeded, gcerrors.ResourceExhausted, gcerrors.Internal:
		return KindTransient
	case gcerrors.Canceled:
		return KindFatal
	}

	return transportKind(err)
}
