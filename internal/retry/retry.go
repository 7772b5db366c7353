// Package retry holds the single retry policy and failure classification
// shared by every storage call the sync engine makes.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"math/rand"
	"net"
	"os"
	"strings"
	"time"

	"skusync/internal/storage"
)

// Class is how a failure is handled by the executor
type Class int

const (
	// ClassTransient failures are retried until the policy is exhausted.
	ClassTransient Class = iota
	// ClassPermanent failures end the identifier as Failed without retry.
	ClassPermanent
	// ClassNotFound means no remote object exists; never retried.
	ClassNotFound
	// ClassFatal failures abort the whole batch.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassNotFound:
		return "not_found"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Policy configures bounded exponential backoff
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Jitter      bool
}

// DefaultPolicy returns the policy used when nothing is configured
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
	}
}

// Backoff returns the delay after the given failed attempt (1-based):
// BaseDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	delay := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

func (p Policy) wait(attempt int) time.Duration {
	d := p.Backoff(attempt)
	if p.Jitter {
		// 0.5 to 1.5 of the computed backoff
		d = time.Duration(float64(d) * (0.5 + rand.Float64()))
	}
	return d
}

// FatalError marks a failure that must stop the whole batch
type FatalError struct {
	SKU string
	Err error
}

func (e *FatalError) Error() string {
	if e.SKU == "" {
		return fmt.Sprintf("fatal: %v", e.Err)
	}
	return fmt.Sprintf("fatal error while processing %s: %v", e.SKU, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Classify decides how err is treated. Storage errors carry their own kind;
// anything else falls back to inspecting the error chain.
func Classify(err error) Class {
	if err == nil {
		return ClassPermanent
	}

	var fatal *FatalError
	if errors.As(err, &fatal) || errors.Is(err, context.Canceled) {
		return ClassFatal
	}

	switch storage.KindOf(err) {
	case storage.KindNotFound:
		return ClassNotFound
	case storage.KindTransient:
		return ClassTransient
	case storage.KindFatal:
		return ClassFatal
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	// local filesystem failures belong to one identifier only
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	if errors.As(err, &pathErr) || errors.As(err, &linkErr) {
		return ClassPermanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	if isRetriableMessage(err) {
		return ClassTransient
	}
	return ClassPermanent
}

func isRetriableMessage(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "temporary") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout")
}

// Do runs fn until it succeeds, fails with a non-transient error or the
// policy's attempts are used up. It returns the number of attempts made and
// the last error. Backoff sleeps return early when ctx is done.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}

		if Classify(lastErr) != ClassTransient {
			return attempt, lastErr
		}

		if attempt < maxAttempts {
			timer := time.NewTimer(p.wait(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return maxAttempts, lastErr
}
