// Package metrics aggregates session outcomes for the end-of-run summary and
// the live progress line.
//
// The [Collector] is itself a result sink: pass it wherever a sink is
// accepted and it will count outcomes by error kind, track latency quantiles
// in an HDR histogram, and keep a per-payload breakdown.
//
//	collector := metrics.NewCollector()
//	collector.Start()
//	// ... sessions call collector.Record(outcome) ...
//	stats := collector.Stats(elapsed)
//
// Launches suppressed by the concurrency cap are reported as
// [Stats.Suppressed] and never enter the latency histogram.
package metrics
