package storage

import (
	"context"
	"fmt"

	// Bucket URL schemes accepted by the blob driver.
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

const (
	DriverMinIO = "minio"
	DriverS3    = "s3"
	DriverBlob  = "blob"
)

// New creates the client selected by cfg.Driver
func New(ctx context.Context, cfg Config, bucket string) (Client, error) {
	switch cfg.Driver {
	case DriverMinIO, "":
		return NewMinIOClient(cfg)
	case DriverS3:
		return NewS3Client(ctx, cfg)
	case DriverBlob:
		bucketURL := cfg.URL
		if bucketURL == "" {
			bucketURL = "s3://" + bucket
		}
		return OpenBlobClient(ctx, bucketURL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
