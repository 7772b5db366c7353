package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"skusync/internal/metrics"
	"skusync/internal/retry"
	"skusync/internal/storage"

	"go.uber.org/zap/zaptest"
)

// fakeClient is an in-memory storage.Client with scripted failures.
// Errors queued for a key are returned (in order) before normal behaviour.
type fakeClient struct {
	mu       sync.Mutex
	objects  map[string]string
	headErrs map[string][]error
	getErrs  map[string][]error
	heads    map[string]int
	gets     map[string]int
	// breakBody makes GetObject return a body that fails after a few bytes
	breakBody map[string]bool
}

func newFakeClient(objects map[string]string) *fakeClient {
	return &fakeClient{
		objects:   objects,
		headErrs:  map[string][]error{},
		getErrs:   map[string][]error{},
		heads:     map[string]int{},
		gets:      map[string]int{},
		breakBody: map[string]bool{},
	}
}

func (c *fakeClient) HeadObject(_ context.Context, _, key string) (storage.ObjectInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.heads[key]++
	if errs := c.headErrs[key]; len(errs) > 0 {
		c.headErrs[key] = errs[1:]
		return storage.ObjectInfo{}, errs[0]
	}
	body, ok := c.objects[key]
	if !ok {
		return storage.ObjectInfo{}, &storage.Error{Kind: storage.KindNotFound, Op: "head", Key: key, Err: storage.ErrNotFound}
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(body))}, nil
}

func (c *fakeClient) GetObject(_ context.Context, _, key string) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gets[key]++
	if errs := c.getErrs[key]; len(errs) > 0 {
		c.getErrs[key] = errs[1:]
		return nil, errs[0]
	}
	body, ok := c.objects[key]
	if !ok {
		return nil, &storage.Error{Kind: storage.KindNotFound, Op: "get", Key: key, Err: storage.ErrNotFound}
	}
	if c.breakBody[key] {
		return io.NopCloser(io.MultiReader(bytes.NewReader([]byte(body)), errReader{transientErr(key)})), nil
	}
	return io.NopCloser(bytes.NewReader([]byte(body))), nil
}

func (c *fakeClient) CheckBucket(context.Context, string) error { return nil }

func (c *fakeClient) Close() error { return nil }

func (c *fakeClient) calls(key string) (heads, gets int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heads[key], c.gets[key]
}

func (c *fakeClient) totalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.heads {
		n += v
	}
	for _, v := range c.gets {
		n += v
	}
	return n
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func transientErr(key string) error {
	return &storage.Error{Kind: storage.KindTransient, Op: "get", Key: key, Err: errors.New("503 service unavailable")}
}

func fatalErr(key string) error {
	return &storage.Error{Kind: storage.KindFatal, Op: "head", Key: key, Err: errors.New("AccessDenied")}
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Bucket:       "bucket",
		LocalRoot:    t.TempDir(),
		Extensions:   []string{".pdf"},
		CallTimeout:  time.Second,
		Retry:        retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond},
		SkipExisting: true,
	}
}

func newTestProcessor(t *testing.T, config Config, client storage.Client) *TaskProcessor {
	t.Helper()
	return NewTaskProcessor(config, client, metrics.New(), zaptest.NewLogger(t))
}
