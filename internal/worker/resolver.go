package worker

import (
	"context"
	"fmt"
	"time"

	"skusync/internal/storage"

	"go.uber.org/zap"
)

// Resolver finds which candidate key exists for an identifier
type Resolver struct {
	client     storage.Client
	bucket     string
	prefix     string
	extensions []string
	timeout    time.Duration
	logger     *zap.Logger
}

// NewResolver creates a resolver trying extensions in order
func NewResolver(client storage.Client, config Config, logger *zap.Logger) *Resolver {
	return &Resolver{
		client:     client,
		bucket:     config.Bucket,
		prefix:     config.Prefix,
		extensions: config.Extensions,
		timeout:    config.CallTimeout,
		logger:     logger,
	}
}

// Resolve checks prefix+sku+ext for each extension and returns the first
// object that exists. No match is a normal result with Found=false; any
// other storage failure is returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, sku string) (ResolvedObject, error) {
	for _, ext := range r.extensions {
		key := r.prefix + sku + ext

		info, err := r.head(ctx, key)
		if err != nil {
			if storage.IsNotFound(err) {
				r.logger.Debug("Candidate not found", zap.String("sku", sku), zap.String("key", key))
				continue
			}
			return ResolvedObject{}, fmt.Errorf("resolve %s: %w", key, err)
		}

		return ResolvedObject{
			SKU:       sku,
			Key:       key,
			Extension: ext,
			Size:      info.Size,
			Found:     true,
		}, nil
	}

	return ResolvedObject{SKU: sku}, nil
}

func (r *Resolver) head(ctx context.Context, key string) (storage.ObjectInfo, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.client.HeadObject(ctx, r.bucket, key)
}
