// Package threshold evaluates pass/fail assertions such as
// "session_latency:p99 < 250" against the end-of-run statistics.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/torosent/tickfire/internal/metrics"
)

// Threshold is one parsed assertion.
type Threshold struct {
	Metric    string // session_latency, session_failed, sessions, sessions_suppressed
	Aggregate string // p50, p90, p99, avg, min, max, rate, count
	Operator  string // <, <=, >, >=, ==
	Value     float64
	Raw       string
}

// Result is the outcome of checking one Threshold.
type Result struct {
	Threshold Threshold `json:"-"`
	Expr      string    `json:"threshold"`
	Actual    float64   `json:"actual"`
	Pass      bool      `json:"pass"`
}

func (r Result) String() string {
	status := "PASS"
	if !r.Pass {
		status = "FAIL"
	}
	return fmt.Sprintf("%s %s (actual %.2f)", status, r.Threshold.Raw, r.Actual)
}

type extractor func(metrics.Stats) float64

// Latencies are in milliseconds, rates per second except session_failed:rate
// which is the failed fraction of completed sessions.
var extractors = map[string]map[string]extractor{
	"session_latency": {
		"p50": func(s metrics.Stats) float64 { return s.P50LatencyMs },
		"p90": func(s metrics.Stats) float64 { return s.P90LatencyMs },
		"p99": func(s metrics.Stats) float64 { return s.P99LatencyMs },
		"avg": func(s metrics.Stats) float64 { return s.MeanLatencyMs },
		"min": func(s metrics.Stats) float64 { return s.MinLatencyMs },
		"max": func(s metrics.Stats) float64 { return s.MaxLatencyMs },
	},
	"session_failed": {
		"count": func(s metrics.Stats) float64 { return float64(s.Failures) },
		"rate": func(s metrics.Stats) float64 {
			if s.Total == 0 {
				return 0
			}
			return float64(s.Failures) / float64(s.Total)
		},
	},
	"sessions": {
		"count": func(s metrics.Stats) float64 { return float64(s.Total) },
		"rate":  func(s metrics.Stats) float64 { return s.SessionsPerSec },
	},
	"sessions_suppressed": {
		"count": func(s metrics.Stats) float64 { return float64(s.Suppressed) },
	},
}

var (
	thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*(<=|>=|==|<|>)\s*([0-9]+(?:\.[0-9]+)?)$`)
	operators        = map[string]bool{"<": true, "<=": true, ">": true, ">=": true, "==": true}
)

// Parse parses "metric:aggregate operator value".
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold")
	}
	m := thresholdPattern.FindStringSubmatch(s)
	if m == nil {
		return Threshold{}, fmt.Errorf("invalid threshold %q (want metric:aggregate operator value, e.g. 'session_latency:p99 < 250')", s)
	}

	metric, aggregate, op := m[1], m[2], m[3]
	aggs, ok := extractors[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric %q (supported: %s)", metric, strings.Join(keys(extractors), ", "))
	}
	if _, ok := aggs[aggregate]; !ok {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(keys(aggs), ", "))
	}
	if !operators[op] {
		return Threshold{}, fmt.Errorf("unsupported operator %q", op)
	}
	value, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %w", m[4], err)
	}

	return Threshold{Metric: metric, Aggregate: aggregate, Operator: op, Value: value, Raw: s}, nil
}

// ParseAll parses every expression and reports all failures together.
func ParseAll(exprs []string) ([]Threshold, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	out := make([]Threshold, 0, len(exprs))
	var issues []string
	for i, s := range exprs {
		t, err := Parse(s)
		if err != nil {
			issues = append(issues, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		out = append(out, t)
	}
	if len(issues) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(issues, "; "))
	}
	return out, nil
}

// Evaluate checks each threshold against stats in order.
func Evaluate(thresholds []Threshold, stats metrics.Stats) []Result {
	if len(thresholds) == 0 {
		return nil
	}
	results := make([]Result, 0, len(thresholds))
	for _, t := range thresholds {
		actual := extractors[t.Metric][t.Aggregate](stats)
		results = append(results, Result{
			Threshold: t,
			Expr:      t.Raw,
			Actual:    actual,
			Pass:      compare(actual, t.Operator, t.Value),
		})
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Pass {
			out = append(out, r)
		}
	}
	return out
}

const epsilon = 1e-9

func compare(actual float64, op string, expected float64) bool {
	equal := math.Abs(actual-expected) < epsilon
	switch op {
	case "<":
		return actual < expected && !equal
	case "<=":
		return actual < expected || equal
	case ">":
		return actual > expected && !equal
	case ">=":
		return actual > expected || equal
	case "==":
		return equal
	}
	return false
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
