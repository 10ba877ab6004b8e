package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/tickfire/internal/session"
)

// Collector records per-session metrics in a thread-safe manner.
type Collector struct {
	mu         sync.Mutex
	hist       *hdrhistogram.Histogram
	successes  int64
	failures   int64
	suppressed int64
	minLatency time.Duration
	maxLatency time.Duration
	sumLatency time.Duration
	sumThink   time.Duration
	byKind     map[session.ErrorKind]int64
	payloads   map[string]*payloadCounter
	start      time.Time
}

type payloadCounter struct {
	hist      *hdrhistogram.Histogram
	successes int64
	failures  int64
}

// Stats represents aggregated metrics.
type Stats struct {
	Total          int64         `json:"total"`
	Successes      int64         `json:"successes"`
	Failures       int64         `json:"failures"`
	Suppressed     int64         `json:"suppressed"`
	MinLatency     time.Duration `json:"-"`
	MaxLatency     time.Duration `json:"-"`
	MeanLatency    time.Duration `json:"-"`
	P50Latency     time.Duration `json:"-"`
	P90Latency     time.Duration `json:"-"`
	P99Latency     time.Duration `json:"-"`
	MeanThinkTime  time.Duration `json:"-"`
	Duration       time.Duration `json:"-"`
	SessionsPerSec float64       `json:"sessions_per_sec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs    float64 `json:"min_latency_ms"`
	MaxLatencyMs    float64 `json:"max_latency_ms"`
	MeanLatencyMs   float64 `json:"mean_latency_ms"`
	P50LatencyMs    float64 `json:"p50_latency_ms"`
	P90LatencyMs    float64 `json:"p90_latency_ms"`
	P99LatencyMs    float64 `json:"p99_latency_ms"`
	MeanThinkTimeMs float64 `json:"mean_think_time_ms"`
	DurationMs      float64 `json:"duration_ms"`

	Errors   map[string]int          `json:"errors,omitempty"`
	Payloads map[string]PayloadStats `json:"payloads,omitempty"`
}

// PayloadStats is the per-payload slice of Stats.
type PayloadStats struct {
	Total        int64         `json:"total"`
	Successes    int64         `json:"successes"`
	Failures     int64         `json:"failures"`
	P99Latency   time.Duration `json:"-"`
	P99LatencyMs float64       `json:"p99_latency_ms"`
}

func newHistogram() *hdrhistogram.Histogram {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	return hdrhistogram.New(1, 60_000_000, 3)
}

func NewCollector() *Collector {
	return &Collector{
		hist:     newHistogram(),
		byKind:   make(map[session.ErrorKind]int64),
		payloads: make(map[string]*payloadCounter),
		start:    time.Now(),
	}
}

// Start resets the reference time used for rate calculations.
func (c *Collector) Start() {
	c.mu.Lock()
	c.start = time.Now()
	c.mu.Unlock()
}

// Elapsed returns the time since Start (or construction).
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

// Record implements the result sink contract.
func (c *Collector) Record(o session.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o.Kind() == session.KindBackpressure {
		c.suppressed++
		c.byKind[session.KindBackpressure]++
		return
	}

	recordLatency(c.hist, o.Latency)
	c.sumLatency += o.Latency
	if c.minLatency == 0 || o.Latency < c.minLatency {
		c.minLatency = o.Latency
	}
	if o.Latency > c.maxLatency {
		c.maxLatency = o.Latency
	}

	pc := c.payloads[o.Payload]
	if pc == nil {
		pc = &payloadCounter{hist: newHistogram()}
		c.payloads[o.Payload] = pc
	}
	recordLatency(pc.hist, o.Latency)

	if o.OK() {
		c.successes++
		c.sumThink += o.ThinkTime
		pc.successes++
	} else {
		c.failures++
		c.byKind[o.Kind()]++
		pc.failures++
	}
}

func recordLatency(h *hdrhistogram.Histogram, latency time.Duration) {
	if latency <= 0 {
		return
	}
	us := latency.Microseconds()
	if us < h.LowestTrackableValue() {
		us = h.LowestTrackableValue()
	}
	if us > h.HighestTrackableValue() {
		us = h.HighestTrackableValue()
	}
	_ = h.RecordValue(us)
}

func quantile(h *hdrhistogram.Histogram, q float64) time.Duration {
	if h.TotalCount() == 0 {
		return 0
	}
	return time.Duration(h.ValueAtQuantile(q)) * time.Microsecond
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	stats := Stats{
		Total:      total,
		Successes:  c.successes,
		Failures:   c.failures,
		Suppressed: c.suppressed,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
		P50Latency: quantile(c.hist, 50),
		P90Latency: quantile(c.hist, 90),
		P99Latency: quantile(c.hist, 99),
		Duration:   elapsed,
	}
	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
	}
	if c.successes > 0 {
		stats.MeanThinkTime = time.Duration(int64(c.sumThink) / c.successes)
	}
	if elapsed > 0 && total > 0 {
		stats.SessionsPerSec = float64(total) / elapsed.Seconds()
	}

	stats.MinLatencyMs = ms(stats.MinLatency)
	stats.MaxLatencyMs = ms(stats.MaxLatency)
	stats.MeanLatencyMs = ms(stats.MeanLatency)
	stats.P50LatencyMs = ms(stats.P50Latency)
	stats.P90LatencyMs = ms(stats.P90Latency)
	stats.P99LatencyMs = ms(stats.P99Latency)
	stats.MeanThinkTimeMs = ms(stats.MeanThinkTime)
	stats.DurationMs = ms(elapsed)

	if len(c.byKind) > 0 {
		stats.Errors = make(map[string]int, len(c.byKind))
		for k, v := range c.byKind {
			stats.Errors[k.String()] = int(v)
		}
	}
	if len(c.payloads) > 0 {
		stats.Payloads = make(map[string]PayloadStats, len(c.payloads))
		for p, pc := range c.payloads {
			p99 := quantile(pc.hist, 99)
			stats.Payloads[p] = PayloadStats{
				Total:        pc.successes + pc.failures,
				Successes:    pc.successes,
				Failures:     pc.failures,
				P99Latency:   p99,
				P99LatencyMs: ms(p99),
			}
		}
	}
	return stats
}
