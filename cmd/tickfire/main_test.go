package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/torosent/tickfire/internal/config"
	"github.com/torosent/tickfire/internal/output"
	"github.com/torosent/tickfire/internal/session"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{7, maxRetryDelay},
		{40, maxRetryDelay},
	}
	for _, tt := range tests {
		if got := backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestNewRetryPolicy(t *testing.T) {
	policy := newRetryPolicy(3)
	if policy.MaxAttempts != 4 {
		t.Fatalf("MaxAttempts = %d, want 4", policy.MaxAttempts)
	}
	if policy.ShouldRetry == nil || policy.DelayFunc == nil {
		t.Fatal("expected ShouldRetry and DelayFunc to be set")
	}
	for attempt := 1; attempt <= 3; attempt++ {
		d := policy.DelayFunc(attempt, session.Outcome{})
		base := backoff(attempt)
		if d < base || d >= base+base/2+1 {
			t.Errorf("attempt %d delay = %v, want within [%v, %v]", attempt, d, base, base+base/2)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := newLogger(&config.Config{LogLevel: "info", LogFormat: config.LogFormatJSON}, zapcore.AddSync(&buf))
		if err != nil {
			t.Fatalf("newLogger: %v", err)
		}
		log.Debug("hidden")
		log.Info("visible", zap.Int("n", 3))
		_ = log.Sync()

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 1 {
			t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
			t.Fatalf("line is not JSON: %v", err)
		}
		if entry["msg"] != "visible" || entry["n"] != float64(3) {
			t.Errorf("unexpected entry: %v", entry)
		}
	})

	t.Run("console", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := newLogger(&config.Config{LogLevel: "debug", LogFormat: config.LogFormatConsole}, zapcore.AddSync(&buf))
		if err != nil {
			t.Fatalf("newLogger: %v", err)
		}
		log.Debug("starting")
		_ = log.Sync()
		if !strings.Contains(buf.String(), "starting") || strings.HasPrefix(buf.String(), "{") {
			t.Errorf("unexpected console output: %q", buf.String())
		}
	})

	t.Run("bad level", func(t *testing.T) {
		if _, err := newLogger(&config.Config{LogLevel: "loud"}, zapcore.AddSync(io.Discard)); err == nil {
			t.Fatal("expected error for unknown level")
		}
	})
}

func TestBuildSinks(t *testing.T) {
	t.Run("quiet without outputs", func(t *testing.T) {
		cfg := &config.Config{Quiet: true, SinkBuffer: 0}
		rs, err := buildSinks(cfg, "run", "ws://x", &bytes.Buffer{}, &bytes.Buffer{}, zap.NewNop())
		if err != nil {
			t.Fatalf("buildSinks: %v", err)
		}
		defer rs.close()
		if rs.async != nil || rs.jsonl != nil || rs.prom != nil {
			t.Errorf("unexpected sinks: %+v", rs)
		}
		if rs.dropped() != 0 {
			t.Errorf("dropped = %d, want 0", rs.dropped())
		}
	})

	t.Run("all outputs", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "outcomes.jsonl")
		cfg := &config.Config{
			OutputFile:  path,
			MetricsAddr: "127.0.0.1:0",
			SinkBuffer:  8,
			LogFormat:   config.LogFormatConsole,
		}
		var stdout bytes.Buffer
		rs, err := buildSinks(cfg, "run", "ws://x", &stdout, &bytes.Buffer{}, zap.NewNop())
		if err != nil {
			t.Fatalf("buildSinks: %v", err)
		}
		if rs.async == nil || rs.jsonl == nil || rs.prom == nil {
			t.Fatalf("expected buffered, file and metrics sinks: %+v", rs)
		}

		rs.sink.Record(session.Outcome{ID: "01", Payload: "ping", Reply: "pong", Started: time.Now()})
		rs.close()

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read outcomes: %v", err)
		}
		if !strings.Contains(string(data), `"payload":"ping"`) {
			t.Errorf("outcome file = %q", data)
		}
		if !strings.Contains(stdout.String(), "ping") {
			t.Errorf("console output = %q", stdout.String())
		}
	})

	t.Run("json summary moves console to stderr", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		rs, err := buildSinks(&config.Config{JSONOutput: true}, "run", "ws://x", &stdout, &stderr, zap.NewNop())
		if err != nil {
			t.Fatalf("buildSinks: %v", err)
		}
		rs.sink.Record(session.Outcome{ID: "01", Payload: "ping", Reply: "pong", Started: time.Now()})
		rs.close()
		if stdout.Len() != 0 {
			t.Errorf("stdout = %q, want empty", stdout.String())
		}
		if !strings.Contains(stderr.String(), "ping") {
			t.Errorf("stderr = %q", stderr.String())
		}
	})
}

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"--help"}, &stdout, &stderr); err != nil {
		t.Fatalf("run --help: %v", err)
	}
}

func TestRunValidation(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--target", "ws://localhost:1"}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "corpus") {
		t.Fatalf("err = %v, want corpus validation error", err)
	}
}

func newTestServer(t *testing.T, handler func(*websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRunEcho(t *testing.T) {
	endpoint := newTestServer(t, func(conn *websocket.Conn) {
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	})

	var stdout, stderr bytes.Buffer
	args := []string{
		"--target", endpoint,
		"--corpus", "hello",
		"--ticks", "2",
		"-c", "2",
		"--tick-interval", "20ms",
		"--think-max", "0",
		"--json-output",
	}
	if err := run(context.Background(), args, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	var sum output.Summary
	if err := json.Unmarshal(stdout.Bytes(), &sum); err != nil {
		t.Fatalf("stdout is not a JSON summary: %v\n%s", err, stdout.String())
	}
	if sum.Ticks != 2 || sum.Launched != 4 {
		t.Errorf("ticks=%d launched=%d, want 2 and 4", sum.Ticks, sum.Launched)
	}
	if sum.Stats.Successes != 4 || sum.Stats.Failures != 0 {
		t.Errorf("successes=%d failures=%d, want 4 and 0", sum.Stats.Successes, sum.Stats.Failures)
	}
	if sum.RunID == "" {
		t.Error("expected run id")
	}
}

func TestRunReportsFailures(t *testing.T) {
	endpoint := newTestServer(t, func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
	})

	var stdout, stderr bytes.Buffer
	args := []string{
		"--target", endpoint,
		"--corpus", "hello",
		"--ticks", "1",
		"--tick-interval", "20ms",
		"--response-timeout", "200ms",
		"--think-max", "0",
		"--quiet",
	}
	err := run(context.Background(), args, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "sessions failed") {
		t.Fatalf("err = %v, want sessions failed", err)
	}
	if !strings.Contains(stdout.String(), "Load Test Results") {
		t.Errorf("expected text report, got %q", stdout.String())
	}
}

func TestRunThresholds(t *testing.T) {
	endpoint := newTestServer(t, func(conn *websocket.Conn) {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteMessage(mt, msg)
	})
	base := []string{
		"--target", endpoint,
		"--corpus", "hello",
		"--ticks", "1",
		"--tick-interval", "20ms",
		"--think-max", "0",
		"--quiet",
	}

	t.Run("pass", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		args := append(append([]string{}, base...), "--threshold", "sessions:count == 2")
		if err := run(context.Background(), args, &stdout, &stderr); err != nil {
			t.Fatalf("run: %v", err)
		}
		if !strings.Contains(stdout.String(), "PASS sessions:count == 2") {
			t.Errorf("report = %q", stdout.String())
		}
	})

	t.Run("fail", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		args := append(append([]string{}, base...), "--threshold", "sessions:count > 100")
		err := run(context.Background(), args, &stdout, &stderr)
		if err == nil || !strings.Contains(err.Error(), "1 of 1 thresholds failed") {
			t.Fatalf("err = %v, want threshold failure", err)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		args := append(append([]string{}, base...), "--threshold", "latency < 5")
		err := run(context.Background(), args, &stdout, &stderr)
		if err == nil || !strings.Contains(err.Error(), "invalid thresholds") {
			t.Fatalf("err = %v, want parse error", err)
		}
	})
}

// serialWriter records whether two Write calls ever overlapped.
type serialWriter struct {
	inflight   atomic.Int32
	overlapped atomic.Bool

	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *serialWriter) Write(p []byte) (int, error) {
	if w.inflight.Add(1) > 1 {
		w.overlapped.Store(true)
	}
	defer w.inflight.Add(-1)
	time.Sleep(100 * time.Microsecond)

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func TestRunSerializesStderrWriters(t *testing.T) {
	endpoint := newTestServer(t, func(conn *websocket.Conn) {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteMessage(mt, msg)
	})

	var stdout bytes.Buffer
	stderr := &serialWriter{}
	args := []string{
		"--target", endpoint,
		"--corpus", "hello",
		"--ticks", "5",
		"-c", "8",
		"--tick-interval", "10ms",
		"--think-max", "0",
		"--json-output",
		"--progress",
		"--log-level", "debug",
	}
	if err := run(context.Background(), args, &stdout, stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if stderr.overlapped.Load() {
		t.Error("log, console and progress writes overlapped on stderr")
	}
	stderr.mu.Lock()
	defer stderr.mu.Unlock()
	if !strings.Contains(stderr.buf.String(), "hello") {
		t.Errorf("console lines missing from stderr: %q", stderr.buf.String())
	}
}
