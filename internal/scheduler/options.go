package scheduler

import (
	"time"

	"go.uber.org/zap"

	"github.com/torosent/tickfire/internal/session"
	"github.com/torosent/tickfire/internal/sink"
	"github.com/torosent/tickfire/internal/target"
)

// DefaultGracePeriod bounds how long in-flight sessions may run after stop.
const DefaultGracePeriod = 5 * time.Second

// Ticker abstracts time.Ticker so tests can drive tick boundaries by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Options configure the Scheduler.
type Options struct {
	Target      *target.Descriptor           // what to hit and how often (required)
	Sampler     *target.Sampler              // payload source; defaults to a clock-seeded sampler
	Executor    session.Executor             // runs one session (required)
	Sink        sink.Sink                    // receives every outcome; defaults to sink.Discard
	MaxTicks    int                          // stop after this many ticks (0 means unlimited)
	Duration    time.Duration                // overall time limit (0 means no cap)
	GracePeriod time.Duration                // drain window after stop (0 = default, negative = cancel immediately)
	NewTicker   func(d time.Duration) Ticker // optional injection for tests
	Logger      *zap.Logger                  // lifecycle logging; defaults to a no-op logger
}

func (o *Options) normalize() {
	if o.Sampler == nil && o.Target != nil {
		o.Sampler = target.NewSampler(o.Target, 0)
	}
	if o.Sink == nil {
		o.Sink = sink.Discard
	}
	if o.MaxTicks < 0 {
		o.MaxTicks = 0
	}
	if o.Duration < 0 {
		o.Duration = 0
	}
	if o.GracePeriod == 0 {
		o.GracePeriod = DefaultGracePeriod
	}
	if o.NewTicker == nil {
		o.NewTicker = newTimeTicker
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

type timeTicker struct{ t *time.Ticker }

func newTimeTicker(d time.Duration) Ticker { return timeTicker{t: time.NewTicker(d)} }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }
