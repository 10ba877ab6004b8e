package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/tickfire/internal/config"
	"github.com/torosent/tickfire/internal/corpus"
	"github.com/torosent/tickfire/internal/metrics"
	"github.com/torosent/tickfire/internal/output"
	"github.com/torosent/tickfire/internal/scheduler"
	"github.com/torosent/tickfire/internal/session"
	"github.com/torosent/tickfire/internal/sink"
	"github.com/torosent/tickfire/internal/target"
	"github.com/torosent/tickfire/internal/threshold"
	"github.com/torosent/tickfire/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	thresholds, err := threshold.ParseAll(cfg.Thresholds)
	if err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}

	// Logs, console lines and the progress line all share this writer.
	errw := zapcore.Lock(zapcore.AddSync(stderr))

	log, err := newLogger(cfg, errw)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	payloads, err := corpus.Load(cfg.CorpusSource())
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}
	desc, err := target.New(cfg.TargetOptions(payloads))
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	log = log.With(zap.String("run_id", runID))

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	sampler := target.NewSampler(desc, cfg.Seed)
	var exec session.Executor = session.NewRunner(desc, sampler,
		session.WithTracer(tp.Tracer()),
		session.WithPropagation(tp.ShouldPropagate()),
	)
	if cfg.Retries > 0 {
		exec = session.WithRetry(exec, newRetryPolicy(cfg.Retries))
	}

	outs, err := buildSinks(cfg, runID, desc.Endpoint(), stdout, errw, log)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	sched := scheduler.New(scheduler.Options{
		Target:      desc,
		Sampler:     sampler,
		Executor:    exec,
		Sink:        sink.Multi(collector, outs.sink),
		MaxTicks:    cfg.Ticks,
		Duration:    cfg.Duration,
		GracePeriod: cfg.GracePeriod,
		Logger:      log,
	})
	if outs.prom != nil {
		outs.prom.RegisterActiveSessions(func() float64 { return float64(sched.ActiveSessions()) })
	}

	var progress *output.ProgressReporter
	if cfg.Progress {
		progress = output.NewProgressReporter(collector, sched.Snapshot, progressInterval, errw)
		progress.Start()
	}

	collector.Start()
	result, runErr := runScheduler(ctx, sched, cfg.MetricsAddr, outs.prom, log)
	if progress != nil {
		progress.Stop()
	}
	outs.close()

	summary := output.Summary{
		RunID:     runID,
		Endpoint:  desc.Endpoint(),
		Ticks:     result.Ticks,
		Launched:  result.Launched,
		Cancelled: result.Cancelled,
		Dropped:   outs.dropped(),
		Stats:     collector.Stats(result.Duration),
	}
	summary.Thresholds = threshold.Evaluate(thresholds, summary.Stats)
	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, summary); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, summary)
	}

	if runErr != nil {
		return runErr
	}
	if failed := threshold.Failed(summary.Thresholds); len(failed) > 0 {
		return fmt.Errorf("%d of %d thresholds failed", len(failed), len(summary.Thresholds))
	}
	if summary.Stats.Failures > 0 {
		return fmt.Errorf("%d of %d sessions failed", summary.Stats.Failures, summary.Stats.Total)
	}
	return nil
}

// runScheduler runs the scheduler and, when addr is set, the metrics server
// for the same lifetime. A server failure stops the run.
func runScheduler(ctx context.Context, sched *scheduler.Scheduler, addr string, prom *sink.Prometheus, log *zap.Logger) (scheduler.Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	runCtx, stopRun := context.WithCancel(gctx)
	defer stopRun()

	var result scheduler.Result
	g.Go(func() error {
		defer stopRun()
		var err error
		result, err = sched.Run(runCtx)
		return err
	})

	if addr != "" && prom != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			log.Info("serving metrics", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	return result, err
}

func newRetryPolicy(retries int) session.RetryPolicy {
	source := newJitterSource()
	return session.RetryPolicy{
		MaxAttempts: retries + 1,
		ShouldRetry: session.DefaultShouldRetry,
		DelayFunc: func(attempt int, _ session.Outcome) time.Duration {
			return backoff(attempt) + source.jitter(backoff(attempt)/2)
		},
	}
}
