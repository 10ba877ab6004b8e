package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/tickfire/internal/metrics"
	"github.com/torosent/tickfire/internal/scheduler"
)

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	collector *metrics.Collector
	snapshot  func() scheduler.Snapshot
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
	start     time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval. snapshot may be nil when no scheduler state is available.
func NewProgressReporter(collector *metrics.Collector, snapshot func() scheduler.Snapshot, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		snapshot:  snapshot,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
		start:     time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and ends the line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, p.line())
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line() string {
	stats := p.collector.Stats(time.Since(p.start))
	line := fmt.Sprintf("\rSessions: %d | Successes: %d | Failures: %d | SPS: %.1f | P99: %.1fms",
		stats.Total, stats.Successes, stats.Failures, stats.SessionsPerSec, stats.P99LatencyMs)
	if stats.Suppressed > 0 {
		line += fmt.Sprintf(" | Suppressed: %d", stats.Suppressed)
	}
	if p.snapshot != nil {
		snap := p.snapshot()
		line += fmt.Sprintf(" | Tick: %d | Active: %d", snap.Ticks, snap.Active)
	}
	return line
}
