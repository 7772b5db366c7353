package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Display periodically renders tracker status to a writer
type Display struct {
	tracker  *Tracker
	interval time.Duration
	out      io.Writer
	stopCh   chan struct{}
	done     chan struct{}
	once     sync.Once
}

// NewDisplay creates a new progress display
func NewDisplay(tracker *Tracker, interval time.Duration, out io.Writer) *Display {
	if out == nil {
		out = os.Stderr
	}
	return &Display{
		tracker:  tracker,
		interval: interval,
		out:      out,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start starts the progress display
func (d *Display) Start() {
	go d.displayLoop()
}

// Stop stops the display and waits for the final render
func (d *Display) Stop() {
	d.once.Do(func() {
		close(d.stopCh)
		<-d.done
	})
}

func (d *Display) displayLoop() {
	defer close(d.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fmt.Fprintln(d.out, d.line(d.tracker.GetStatus()))
		case <-d.stopCh:
			fmt.Fprintln(d.out, d.line(d.tracker.GetStatus()))
			return
		}
	}
}

func (d *Display) line(status Status) string {
	percent := d.tracker.GetProgressPercent()
	return fmt.Sprintf("%s %d/%d (%.1f%%) | downloaded %d, skipped %d, not found %d, failed %d | %s at %s | eta %s",
		progressBar(percent, 30),
		status.ProcessedSKUs, status.TotalSKUs, percent,
		status.Downloaded, status.Skipped, status.NotFound, status.Failed,
		FormatBytes(status.Bytes), FormatSpeed(status.AverageSpeed),
		FormatDuration(status.ETA),
	)
}

func progressBar(percent float64, width int) string {
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}

	filled := int(percent * float64(width) / 100)
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

// IsTerminalSupported checks whether stdout is a terminal
func IsTerminalSupported() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fileInfo.Mode()&os.ModeCharDevice != 0
}
