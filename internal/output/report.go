package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/torosent/tickfire/internal/metrics"
	"github.com/torosent/tickfire/internal/threshold"
)

// Summary is everything the end-of-run report shows.
type Summary struct {
	RunID     string        `json:"run_id"`
	Endpoint  string        `json:"endpoint"`
	Ticks     int64         `json:"ticks"`
	Launched  int64         `json:"launched"`
	Cancelled int64         `json:"cancelled_at_shutdown"`
	Dropped   int64         `json:"dropped_outcomes"`
	Stats     metrics.Stats `json:"stats"`

	Thresholds []threshold.Result `json:"thresholds,omitempty"`
}

type styles struct {
	title   lipgloss.Style
	section lipgloss.Style
	bad     lipgloss.Style
	good    lipgloss.Style
}

// newStyles binds styles to w so colour is only emitted on terminals.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("208")),
		section: r.NewStyle().Bold(true),
		bad:     r.NewStyle().Foreground(lipgloss.Color("9")),
		good:    r.NewStyle().Foreground(lipgloss.Color("10")),
	}
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, sum Summary) {
	st := newStyles(w)
	stats := sum.Stats

	fmt.Fprintln(w, "\n"+st.title.Render("--- Load Test Results ---"))
	if sum.RunID != "" {
		fmt.Fprintf(w, "Run:               %s\n", sum.RunID)
	}
	if sum.Endpoint != "" {
		fmt.Fprintf(w, "Endpoint:          %s\n", sum.Endpoint)
	}
	fmt.Fprintf(w, "Ticks:             %d\n", sum.Ticks)
	fmt.Fprintf(w, "Sessions:          %d\n", stats.Total)
	fmt.Fprintf(w, "Successful:        %d\n", stats.Successes)
	failed := fmt.Sprintf("%d", stats.Failures)
	if stats.Failures > 0 {
		failed = st.bad.Render(failed)
	}
	fmt.Fprintf(w, "Failed:            %s\n", failed)
	if stats.Suppressed > 0 {
		fmt.Fprintf(w, "Suppressed:        %d\n", stats.Suppressed)
	}
	if sum.Cancelled > 0 {
		fmt.Fprintf(w, "Cancelled at stop: %d\n", sum.Cancelled)
	}
	if sum.Dropped > 0 {
		fmt.Fprintf(w, "Dropped outcomes:  %d\n", sum.Dropped)
	}
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Sessions/sec:      %.2f\n", stats.SessionsPerSec)

	fmt.Fprintln(w, "\n"+st.section.Render("Latency:"))
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)
	fmt.Fprintf(w, "  Mean think time: %s\n", stats.MeanThinkTime)

	if rows := metrics.FlattenErrors(stats.Errors); len(rows) > 0 {
		fmt.Fprintln(w, "\n"+st.section.Render("Errors:"))
		for _, row := range rows {
			fmt.Fprintf(w, "  %-18s %d\n", row.Kind+":", row.Count)
		}
	}

	if len(stats.Payloads) > 1 {
		fmt.Fprintln(w, "\n"+st.section.Render("Payload Breakdown:"))
		for _, name := range metrics.SortedPayloads(stats.Payloads) {
			p := stats.Payloads[name]
			share := 0.0
			if stats.Total > 0 {
				share = (float64(p.Total) / float64(stats.Total)) * 100
			}
			fmt.Fprintf(w, "  - %q: total=%d (%.1f%%), successes=%d, failures=%d, p99=%s\n",
				name, p.Total, share, p.Successes, p.Failures, p.P99Latency)
		}
	}

	if len(sum.Thresholds) > 0 {
		fmt.Fprintln(w, "\n"+st.section.Render("Thresholds:"))
		for _, r := range sum.Thresholds {
			line := r.String()
			if r.Pass {
				line = st.good.Render(line)
			} else {
				line = st.bad.Render(line)
			}
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, sum Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}
