package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/torosent/tickfire/internal/corpus"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tickfire",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Target flags
	flags.String("target", "", "WebSocket endpoint to load (ws://, wss://, http:// or https://)")
	flags.StringSlice("header", nil, "Additional handshake header in key=value form")
	flags.StringArray("corpus", nil, "Payload to sample from (repeatable)")
	flags.String("corpus-file", "", "Path to a corpus file")
	flags.String("corpus-format", "", "Corpus file format: lines, json, yaml or csv (inferred from extension)")
	flags.String("corpus-path", "", "gjson path selecting payloads inside a JSON corpus")
	flags.String("corpus-column", "", "CSV column holding payloads (name or zero-based index)")

	// Load control flags
	flags.IntP("concurrency", "c", DefaultConcurrency, "Sessions launched per tick")
	flags.Duration("tick-interval", DefaultTickInterval, "Time between ticks")
	flags.Duration("think-min", 0, "Minimum dwell after a reply before closing")
	flags.Duration("think-max", DefaultThinkMax, "Maximum dwell after a reply before closing")
	flags.Int("max-sessions", 0, "Cap on concurrently active sessions (0 means unbounded)")
	flags.Duration("connect-timeout", DefaultConnectTimeout, "WebSocket handshake timeout")
	flags.Duration("response-timeout", DefaultResponseTimeout, "Time to wait for the reply")
	flags.Duration("grace-period", DefaultGracePeriod, "Max time to wait for in-flight sessions after stop (negative cancels immediately)")
	flags.DurationP("duration", "d", 0, "How long to run (0 means until interrupted)")
	flags.IntP("ticks", "t", 0, "Number of ticks to run (0 means until interrupted)")
	flags.Int("retries", 0, "Retries per session on transport failures")
	flags.Int64("seed", 0, "Random seed for payload and think-time sampling (0 means time based)")

	// Output flags
	flags.BoolP("quiet", "q", false, "Do not print a line per session")
	flags.Bool("failures-only", false, "Print only failed sessions")
	flags.Bool("json-output", false, "Emit the end-of-run summary as JSON")
	flags.Bool("progress", false, "Print a periodic progress line to stderr")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", string(LogFormatConsole), "Log format: console or json")
	flags.String("output-file", "", "Append every outcome as a JSON line to this file")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.Int("sink-buffer", DefaultSinkBuffer, "Outcome buffer in front of slow sinks (0 disables buffering)")
	flags.StringArray("threshold", nil, "Pass/fail assertion such as 'session_latency:p99 < 250' (repeatable)")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (host:port)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Export spans without TLS")
	flags.Float64("tracing-sample-rate", DefaultSampleRate, "Fraction of sessions traced (0.0 to 1.0)")
	flags.String("tracing-service-name", "", "service.name resource attribute")
	flags.Bool("tracing-propagate", false, "Send W3C trace context in handshake headers (defaults to on when tracing is enabled)")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("target") {
		val, err := fs.GetString("target")
		if err != nil {
			return err
		}
		cfg.TargetURL = strings.TrimSpace(val)
	}
	if fs.Changed("corpus") {
		val, err := fs.GetStringArray("corpus")
		if err != nil {
			return err
		}
		cfg.Corpus = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringArray("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"corpus-file", &cfg.CorpusFile},
		{"corpus-path", &cfg.CorpusPath},
		{"corpus-column", &cfg.CorpusColumn},
		{"log-level", &cfg.LogLevel},
		{"output-file", &cfg.OutputFile},
		{"metrics-addr", &cfg.MetricsAddr},
		{"tracing-endpoint", &cfg.Tracing.Endpoint},
		{"tracing-protocol", &cfg.Tracing.Protocol},
		{"tracing-service-name", &cfg.Tracing.ServiceName},
	}
	for _, s := range strs {
		if !fs.Changed(s.name) {
			continue
		}
		val, err := fs.GetString(s.name)
		if err != nil {
			return err
		}
		*s.dst = strings.TrimSpace(val)
	}
	if fs.Changed("corpus-format") {
		val, err := fs.GetString("corpus-format")
		if err != nil {
			return err
		}
		cfg.CorpusFormat = corpus.Format(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("log-format") {
		val, err := fs.GetString("log-format")
		if err != nil {
			return err
		}
		cfg.LogFormat = LogFormat(strings.ToLower(strings.TrimSpace(val)))
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"concurrency", &cfg.Concurrency},
		{"max-sessions", &cfg.MaxSessions},
		{"ticks", &cfg.Ticks},
		{"retries", &cfg.Retries},
		{"sink-buffer", &cfg.SinkBuffer},
	}
	for _, i := range ints {
		if !fs.Changed(i.name) {
			continue
		}
		val, err := fs.GetInt(i.name)
		if err != nil {
			return err
		}
		*i.dst = val
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Seed = val
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"tick-interval", &cfg.TickInterval},
		{"think-min", &cfg.ThinkMin},
		{"think-max", &cfg.ThinkMax},
		{"connect-timeout", &cfg.ConnectTimeout},
		{"response-timeout", &cfg.ResponseTimeout},
		{"grace-period", &cfg.GracePeriod},
		{"duration", &cfg.Duration},
	}
	for _, d := range durations {
		if !fs.Changed(d.name) {
			continue
		}
		val, err := fs.GetDuration(d.name)
		if err != nil {
			return err
		}
		*d.dst = val
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"quiet", &cfg.Quiet},
		{"failures-only", &cfg.FailuresOnly},
		{"json-output", &cfg.JSONOutput},
		{"progress", &cfg.Progress},
		{"tracing-insecure", &cfg.Tracing.Insecure},
	}
	for _, b := range bools {
		if !fs.Changed(b.name) {
			continue
		}
		val, err := fs.GetBool(b.name)
		if err != nil {
			return err
		}
		*b.dst = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	return nil
}
