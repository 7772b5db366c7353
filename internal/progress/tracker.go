package progress

import (
	"fmt"
	"sync"
	"time"
)

// Status is a snapshot of batch progress
type Status struct {
	TotalSKUs      int64
	ProcessedSKUs  int64
	Downloaded     int64
	Skipped        int64
	NotFound       int64
	Failed         int64
	Bytes          int64
	StartTime      time.Time
	LastUpdateTime time.Time
	AverageSpeed   float64 // bytes/second
	SKURate        float64 // identifiers/second
	ETA            time.Duration
}

// Tracker tracks batch progress
type Tracker struct {
	mu     sync.RWMutex
	status Status
	now    func() time.Time
}

// NewTracker creates a new progress tracker
func NewTracker() *Tracker {
	now := time.Now()
	return &Tracker{
		status: Status{
			StartTime:      now,
			LastUpdateTime: now,
		},
		now: time.Now,
	}
}

// SetTotal sets the number of identifiers in the batch
func (t *Tracker) SetTotal(skus int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.TotalSKUs = skus
}

// AddDownloaded records a completed transfer
func (t *Tracker) AddDownloaded(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Downloaded++
	t.status.Bytes += bytes
	t.processed()
}

// AddSkipped records an identifier skipped because it exists locally
func (t *Tracker) AddSkipped() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Skipped++
	t.processed()
}

// AddNotFound records an identifier with no remote object
func (t *Tracker) AddNotFound() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.NotFound++
	t.processed()
}

// AddFailed records a failed identifier
func (t *Tracker) AddFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Failed++
	t.processed()
}

// processed updates derived figures (must be called with lock held)
func (t *Tracker) processed() {
	now := t.now()
	t.status.ProcessedSKUs++
	t.status.LastUpdateTime = now

	elapsed := now.Sub(t.status.StartTime).Seconds()
	if elapsed <= 0 {
		return
	}
	t.status.AverageSpeed = float64(t.status.Bytes) / elapsed
	t.status.SKURate = float64(t.status.ProcessedSKUs) / elapsed

	remaining := t.status.TotalSKUs - t.status.ProcessedSKUs
	if remaining <= 0 || t.status.SKURate == 0 {
		t.status.ETA = 0
		return
	}
	t.status.ETA = time.Duration(float64(remaining)/t.status.SKURate) * time.Second
}

// GetStatus returns the current status (thread-safe)
func (t *Tracker) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.status
}

// GetProgressPercent returns the share of identifiers processed
func (t *Tracker) GetProgressPercent() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.status.TotalSKUs == 0 {
		return 0
	}

	return float64(t.status.ProcessedSKUs) / float64(t.status.TotalSKUs) * 100
}

// FormatSpeed formats speed in human readable format
func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond < 1024 {
		return fmt.Sprintf("%.1f B/s", bytesPerSecond)
	} else if bytesPerSecond < 1024*1024 {
		return fmt.Sprintf("%.1f KB/s", bytesPerSecond/1024)
	} else if bytesPerSecond < 1024*1024*1024 {
		return fmt.Sprintf("%.1f MB/s", bytesPerSecond/(1024*1024))
	}
	return fmt.Sprintf("%.1f GB/s", bytesPerSecond/(1024*1024*1024))
}

// FormatBytes formats bytes in human readable format
func FormatBytes(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	} else if bytes < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	} else if bytes < 1024*1024*1024 {
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	}
	return fmt.Sprintf("%.1f GB", float64(bytes)/(1024*1024*1024))
}

// FormatDuration formats duration in human readable format
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "calculating..."
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
