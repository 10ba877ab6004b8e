package sink

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torosent/tickfire/internal/session"
)

// Prometheus exports outcome counters and a latency histogram on its own
// registry.
type Prometheus struct {
	registry *prometheus.Registry
	outcomes *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	think    prometheus.Histogram
	bytes    *prometheus.CounterVec
}

// NewPrometheus builds the collectors. constLabels are attached to every
// series (typically the run ID and target).
func NewPrometheus(constLabels prometheus.Labels) *Prometheus {
	reg := prometheus.NewRegistry()
	p := &Prometheus{
		registry: reg,
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "tickfire",
			Name:        "session_outcomes_total",
			Help:        "Session outcomes by result kind.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "tickfire",
			Name:        "session_latency_seconds",
			Help:        "Time from dial start to reply or failure.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"result"}),
		think: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "tickfire",
			Name:        "session_think_time_seconds",
			Help:        "Sampled dwell before disconnect.",
			ConstLabels: constLabels,
			Buckets:     prometheus.LinearBuckets(0, 0.5, 12),
		}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "tickfire",
			Name:        "session_bytes_total",
			Help:        "Payload bytes moved by sessions, by direction.",
			ConstLabels: constLabels,
		}, []string{"direction"}),
	}
	reg.MustRegister(p.outcomes, p.latency, p.think, p.bytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, k := range append([]session.ErrorKind{session.KindNone}, session.Kinds()...) {
		p.outcomes.WithLabelValues(resultLabel(k))
	}
	return p
}

// RegisterActiveSessions exposes a gauge backed by fn.
func (p *Prometheus) RegisterActiveSessions(fn func() float64) {
	p.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "tickfire",
		Name:      "active_sessions",
		Help:      "Sessions currently in flight.",
	}, fn))
}

func (p *Prometheus) Record(o session.Outcome) {
	label := resultLabel(o.Kind())
	p.outcomes.WithLabelValues(label).Inc()
	if o.Kind() == session.KindBackpressure {
		return
	}
	p.latency.WithLabelValues(label).Observe(o.Latency.Seconds())
	p.bytes.WithLabelValues("sent").Add(float64(o.BytesSent))
	p.bytes.WithLabelValues("received").Add(float64(o.BytesReceived))
	if o.OK() {
		p.think.Observe(o.ThinkTime.Seconds())
	}
}

// Registry returns the registry backing this sink.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func resultLabel(k session.ErrorKind) string {
	if k == session.KindNone {
		return "ok"
	}
	return k.String()
}
