package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/torosent/tickfire/internal/session"
)

// ErrAlreadyStarted is returned by Run when the scheduler was run before.
var ErrAlreadyStarted = errors.New("scheduler already started")

// State is the scheduler lifecycle state.
type State int32

const (
	Running State = iota
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Result captures execution summary.
type Result struct {
	Ticks      int64
	Launched   int64
	Suppressed int64
	Completed  int64
	Cancelled  int64 // sessions still in flight when the grace period expired
	Duration   time.Duration
}

// Snapshot is a point-in-time view of a running scheduler.
type Snapshot struct {
	State      State
	Ticks      int64
	Launched   int64
	Suppressed int64
	Completed  int64
	Active     int64
}

// Scheduler fires ConcurrencyPerTick sessions on every tick until stopped.
type Scheduler struct {
	opt Options

	state   atomic.Int32
	started atomic.Bool
	stopCh  chan struct{}
	stopped sync.Once

	ticks      atomic.Int64
	launched   atomic.Int64
	suppressed atomic.Int64
	completed  atomic.Int64
	active     atomic.Int64
}

// New returns a Running scheduler with defaults applied to opt.
func New(opt Options) *Scheduler {
	opt.normalize()
	return &Scheduler{opt: opt, stopCh: make(chan struct{})}
}

// State reports Running until Stop is called or Run finishes its tick loop.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// ActiveSessions reports sessions launched and not yet recorded.
func (s *Scheduler) ActiveSessions() int64 { return s.active.Load() }

// Snapshot reads the counters without stopping the loop.
func (s *Scheduler) Snapshot() Snapshot {
	return Snapshot{
		State:      s.State(),
		Ticks:      s.ticks.Load(),
		Launched:   s.launched.Load(),
		Suppressed: s.suppressed.Load(),
		Completed:  s.completed.Load(),
		Active:     s.active.Load(),
	}
}

// Stop transitions to Stopped. No session is launched after Stop returns.
// Safe to call more than once and from any goroutine.
func (s *Scheduler) Stop() {
	s.stopped.Do(func() {
		s.state.Store(int32(Stopped))
		close(s.stopCh)
	})
}

// Run drives the tick loop until ctx ends, Stop is called, MaxTicks fire or
// Duration elapses, then drains in-flight sessions and returns the summary.
func (s *Scheduler) Run(ctx context.Context) (Result, error) {
	if s.opt.Target == nil || s.opt.Executor == nil {
		return Result{}, errors.New("scheduler: target and executor are required")
	}
	if !s.started.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyStarted
	}
	start := time.Now()
	log := s.opt.Logger

	// Sessions outlive the tick loop by up to the grace period, so they get
	// their own cancellation while keeping ctx values.
	sessionCtx, cancelSessions := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelSessions()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.opt.Duration > 0 {
		deadlineCtx, deadlineCancel := context.WithTimeout(ctx, s.opt.Duration)
		ctx = deadlineCtx
		defer deadlineCancel()
	}

	ticker := s.opt.NewTicker(s.opt.Target.TickInterval())
	log.Info("scheduler started",
		zap.String("endpoint", s.opt.Target.Endpoint()),
		zap.Int("concurrency_per_tick", s.opt.Target.ConcurrencyPerTick()),
		zap.Duration("tick_interval", s.opt.Target.TickInterval()),
		zap.Int("max_concurrent_sessions", s.opt.Target.MaxConcurrentSessions()),
	)

	var wg sync.WaitGroup
	reason := s.loop(ctx, ticker, sessionCtx, &wg)
	ticker.Stop()
	s.Stop()
	log.Info("scheduler stopping",
		zap.String("reason", reason),
		zap.Int64("ticks", s.ticks.Load()),
		zap.Int64("in_flight", s.active.Load()),
	)

	cancelled := s.drain(&wg, cancelSessions)

	return Result{
		Ticks:      s.ticks.Load(),
		Launched:   s.launched.Load(),
		Suppressed: s.suppressed.Load(),
		Completed:  s.completed.Load(),
		Cancelled:  cancelled,
		Duration:   time.Since(start),
	}, nil
}

func (s *Scheduler) loop(ctx context.Context, ticker Ticker, sessionCtx context.Context, wg *sync.WaitGroup) string {
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "duration elapsed"
			}
			return "context cancelled"
		case <-s.stopCh:
			return "stop requested"
		case <-ticker.C():
			// A tick racing with stop loses.
			if ctx.Err() != nil || s.State() == Stopped {
				continue
			}
			n := s.ticks.Add(1)
			s.fire(ctx, sessionCtx, wg)
			if s.opt.MaxTicks > 0 && n >= int64(s.opt.MaxTicks) {
				return "tick limit reached"
			}
		}
	}
}

// fire launches one tick's batch. Only the loop goroutine launches, so the
// cap check and the increment of active cannot interleave with another launch.
func (s *Scheduler) fire(ctx, sessionCtx context.Context, wg *sync.WaitGroup) {
	limit := int64(s.opt.Target.MaxConcurrentSessions())
	for _, payload := range s.opt.Sampler.Payloads(s.opt.Target.ConcurrencyPerTick()) {
		if ctx.Err() != nil || s.State() == Stopped {
			return
		}
		if limit > 0 && s.active.Load() >= limit {
			s.suppress(payload)
			continue
		}
		s.active.Add(1)
		s.launched.Add(1)
		wg.Add(1)
		go s.execute(sessionCtx, payload, wg)
	}
}

func (s *Scheduler) execute(ctx context.Context, payload string, wg *sync.WaitGroup) {
	defer wg.Done()
	defer s.active.Add(-1)

	out := s.runGuarded(ctx, payload)
	s.opt.Sink.Record(out)
	s.completed.Add(1)
}

// runGuarded turns an executor panic into a failed outcome so one bad
// session cannot take the harness down.
func (s *Scheduler) runGuarded(ctx context.Context, payload string) (out session.Outcome) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.opt.Logger.Error("session panicked", zap.Any("panic", r), zap.String("payload", payload))
			out = session.Outcome{
				ID:      ulid.Make().String(),
				Payload: payload,
				Started: started,
				Latency: time.Since(started),
				Err:     &session.Error{Kind: session.KindReceiveFailed, Cause: fmt.Errorf("session panic: %v", r)},
			}
		}
	}()
	return s.opt.Executor.Run(ctx, payload)
}

func (s *Scheduler) suppress(payload string) {
	s.suppressed.Add(1)
	s.opt.Sink.Record(session.Outcome{
		ID:      ulid.Make().String(),
		Payload: payload,
		Started: time.Now(),
		Err:     &session.Error{Kind: session.KindBackpressure},
	})
}

// drain waits for in-flight sessions, cancelling them once the grace period
// expires. It returns how many were still running at that point.
func (s *Scheduler) drain(wg *sync.WaitGroup, cancelSessions context.CancelFunc) int64 {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if s.opt.GracePeriod < 0 {
		remaining := s.active.Load()
		cancelSessions()
		<-done
		return remaining
	}

	timer := time.NewTimer(s.opt.GracePeriod)
	defer timer.Stop()
	select {
	case <-done:
		return 0
	case <-timer.C:
		remaining := s.active.Load()
		s.opt.Logger.Warn("grace period expired, cancelling in-flight sessions",
			zap.Duration("grace_period", s.opt.GracePeriod),
			zap.Int64("in_flight", remaining),
		)
		cancelSessions()
		<-done
		return remaining
	}
}
