package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/torosent/tickfire/internal/metrics"
	"github.com/torosent/tickfire/internal/scheduler"
	"github.com/torosent/tickfire/internal/session"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressReporterStopWithoutStart(t *testing.T) {
	reporter := NewProgressReporter(metrics.NewCollector(), nil, 100*time.Millisecond, nil)
	if reporter == nil {
		t.Fatal("Expected non-nil reporter")
	}
	reporter.Stop()
}

func TestProgressReporterFormatting(t *testing.T) {
	collector := metrics.NewCollector()
	collector.Start()
	collector.Record(session.Outcome{Payload: "mind", Reply: "mind", Latency: 50 * time.Millisecond})
	collector.Record(session.Outcome{Payload: "wire", Err: &session.Error{Kind: session.KindBackpressure}})

	snapshot := func() scheduler.Snapshot {
		return scheduler.Snapshot{State: scheduler.Running, Ticks: 7, Active: 3}
	}

	var buf syncBuffer
	reporter := NewProgressReporter(collector, snapshot, 20*time.Millisecond, &buf)
	reporter.Start()
	reporter.Start()

	time.Sleep(80 * time.Millisecond)
	reporter.Stop()
	reporter.Stop()

	output := buf.String()
	for _, want := range []string{"Sessions: 1", "Successes: 1", "Suppressed: 1", "Tick: 7", "Active: 3"} {
		if !strings.Contains(output, want) {
			t.Errorf("progress output missing %q: %q", want, output)
		}
	}
	if !strings.HasSuffix(output, "\n") {
		t.Error("Stop should terminate the progress line")
	}
}
