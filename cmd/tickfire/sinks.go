package main

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/torosent/tickfire/internal/config"
	"github.com/torosent/tickfire/internal/sink"
)

// runSinks is the set of outcome consumers besides the summary collector.
type runSinks struct {
	sink  sink.Sink
	async *sink.Async
	jsonl *sink.JSONLines
	path  string
	prom  *sink.Prometheus
	log   *zap.Logger
}

// buildSinks wires the configured sinks. Console lines go to stdout unless
// the summary is JSON, in which case they go to stderr. Structured failure
// logging replaces console lines when the run is quiet or logs as JSON.
func buildSinks(cfg *config.Config, runID, endpoint string, stdout, stderr io.Writer, log *zap.Logger) (*runSinks, error) {
	rs := &runSinks{log: log}
	var sinks []sink.Sink

	if !cfg.Quiet {
		w := stdout
		if cfg.JSONOutput {
			w = stderr
		}
		sinks = append(sinks, sink.NewConsole(w, cfg.FailuresOnly))
	}
	if cfg.Quiet || cfg.LogFormat == config.LogFormatJSON {
		sinks = append(sinks, sink.NewLogger(log, time.Second))
	}
	if cfg.OutputFile != "" {
		jsonl, err := sink.NewJSONLines(cfg.OutputFile)
		if err != nil {
			return nil, err
		}
		rs.jsonl = jsonl
		rs.path = cfg.OutputFile
		sinks = append(sinks, jsonl)
	}
	if cfg.MetricsAddr != "" {
		rs.prom = sink.NewPrometheus(prometheus.Labels{"run_id": runID, "target": endpoint})
		sinks = append(sinks, rs.prom)
	}

	rs.sink = sink.Multi(sinks...)
	if cfg.SinkBuffer > 0 && len(sinks) > 0 {
		rs.async = sink.NewAsync(rs.sink, cfg.SinkBuffer)
		rs.sink = rs.async
	}
	return rs, nil
}

// close drains buffered outcomes and releases the outcome file.
func (rs *runSinks) close() {
	if rs.async != nil {
		rs.async.Close()
	}
	if rs.jsonl != nil {
		if err := rs.jsonl.Err(); err != nil {
			rs.log.Warn("some outcomes were not written", zap.String("file", rs.path), zap.Error(err))
		}
		if err := rs.jsonl.Close(); err != nil {
			rs.log.Warn("closing outcome file failed", zap.Error(err))
		}
	}
}

func (rs *runSinks) dropped() int64 {
	if rs.async == nil {
		return 0
	}
	return rs.async.Dropped()
}
