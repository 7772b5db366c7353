package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"skusync/internal/progress"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes sync metrics. Each collector owns its
// registry so several engines can live in one process.
type Collector struct {
	registry        *prometheus.Registry
	outcomesTotal   *prometheus.CounterVec
	attemptsTotal   prometheus.Counter
	bytesTotal      prometheus.Counter
	inflightWorkers prometheus.Gauge
	duration        prometheus.Histogram
	progressTracker *progress.Tracker
	server          *http.Server
}

// New creates a new metrics collector
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		outcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skusync_outcomes_total",
				Help: "Total number of identifiers by terminal state",
			},
			[]string{"state"},
		),
		attemptsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "skusync_attempts_total",
				Help: "Total number of resolve/download attempts",
			},
		),
		bytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "skusync_bytes_total",
				Help: "Total bytes downloaded",
			},
		),
		inflightWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "skusync_inflight_workers",
				Help: "Number of workers currently processing an identifier",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "skusync_identifier_duration_seconds",
				Help:    "Time taken to process one identifier",
				Buckets: prometheus.DefBuckets,
			},
		),
		progressTracker: progress.NewTracker(),
	}

	c.registry.MustRegister(c.outcomesTotal, c.attemptsTotal, c.bytesTotal, c.inflightWorkers, c.duration)

	return c
}

// IncDownloaded records a downloaded identifier
func (c *Collector) IncDownloaded(bytes int64) {
	c.outcomesTotal.WithLabelValues("downloaded").Inc()
	c.bytesTotal.Add(float64(bytes))
	c.progressTracker.AddDownloaded(bytes)
}

// IncSkipped records an identifier skipped because it exists locally
func (c *Collector) IncSkipped() {
	c.outcomesTotal.WithLabelValues("skipped_existing").Inc()
	c.progressTracker.AddSkipped()
}

// IncNotFound records an identifier with no remote object
func (c *Collector) IncNotFound() {
	c.outcomesTotal.WithLabelValues("not_found").Inc()
	c.progressTracker.AddNotFound()
}

// IncFailed records a failed identifier
func (c *Collector) IncFailed() {
	c.outcomesTotal.WithLabelValues("failed").Inc()
	c.progressTracker.AddFailed()
}

// AddAttempts adds to the attempt counter
func (c *Collector) AddAttempts(n int) {
	c.attemptsTotal.Add(float64(n))
}

// WorkerBusy adjusts the inflight gauge
func (c *Collector) WorkerBusy(busy bool) {
	if busy {
		c.inflightWorkers.Inc()
		return
	}
	c.inflightWorkers.Dec()
}

// ObserveDuration observes per-identifier processing time
func (c *Collector) ObserveDuration(duration time.Duration) {
	c.duration.Observe(duration.Seconds())
}

// Registry exposes the collector's registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the HTTP routes served by the metrics server
func (c *Collector) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return r
}

// StartServer listens on addr and serves metrics in the background. Serve
// errors after a successful listen are passed to onErr.
func (c *Collector) StartServer(addr string, onErr func(error)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	c.server = &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && onErr != nil {
			onErr(err)
		}
	}()
	return nil
}

// Shutdown stops the metrics server if it was started
func (c *Collector) Shutdown(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

// GetProgressTracker returns the progress tracker
func (c *Collector) GetProgressTracker() *progress.Tracker {
	return c.progressTracker
}

// SetTotal sets the number of identifiers for progress tracking
func (c *Collector) SetTotal(skus int64) {
	c.progressTracker.SetTotal(skus)
}
