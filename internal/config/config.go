package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/torosent/tickfire/internal/corpus"
	"github.com/torosent/tickfire/internal/target"
)

// Defaults for a run with no config file and no flags beyond --target and --corpus.
const (
	DefaultConcurrency     = 2
	DefaultTickInterval    = time.Second
	DefaultThinkMax        = 5 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultResponseTimeout = 10 * time.Second
	DefaultGracePeriod     = 5 * time.Second
	DefaultSinkBuffer      = 1024
	DefaultSampleRate      = 1.0
)

type LogFormat string

const (
	LogFormatConsole LogFormat = "console"
	LogFormatJSON    LogFormat = "json"
)

type Config struct {
	TargetURL       string            `mapstructure:"target"`
	Corpus          []string          `mapstructure:"corpus"`
	CorpusFile      string            `mapstructure:"corpus_file"`
	CorpusFormat    corpus.Format     `mapstructure:"corpus_format"`
	CorpusPath      string            `mapstructure:"corpus_path"`
	CorpusColumn    string            `mapstructure:"corpus_column"`
	Headers         map[string]string `mapstructure:"headers"`
	Concurrency     int               `mapstructure:"concurrency"`
	TickInterval    time.Duration     `mapstructure:"tick_interval"`
	ThinkMin        time.Duration     `mapstructure:"think_min"`
	ThinkMax        time.Duration     `mapstructure:"think_max"`
	MaxSessions     int               `mapstructure:"max_sessions"`
	ConnectTimeout  time.Duration     `mapstructure:"connect_timeout"`
	ResponseTimeout time.Duration     `mapstructure:"response_timeout"`
	GracePeriod     time.Duration     `mapstructure:"grace_period"`
	Duration        time.Duration     `mapstructure:"duration"`
	Ticks           int               `mapstructure:"ticks"`
	Retries         int               `mapstructure:"retries"`
	Seed            int64             `mapstructure:"seed"`
	Quiet           bool              `mapstructure:"quiet"`
	FailuresOnly    bool              `mapstructure:"failures_only"`
	JSONOutput      bool              `mapstructure:"json_output"`
	Progress        bool              `mapstructure:"progress"`
	LogLevel        string            `mapstructure:"log_level"`
	LogFormat       LogFormat         `mapstructure:"log_format"`
	OutputFile      string            `mapstructure:"output_file"`
	MetricsAddr     string            `mapstructure:"metrics_addr"`
	SinkBuffer      int               `mapstructure:"sink_buffer"`
	Thresholds      []string          `mapstructure:"thresholds"`
	Tracing         TracingConfig     `mapstructure:"tracing"`
	ConfigFile      string            `mapstructure:"-"`
}

// TracingConfig configures OpenTelemetry export for session spans.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`     // OTLP collector address (host:port)
	Protocol    string  `mapstructure:"protocol"`     // "grpc" (default) or "http"
	Insecure    bool    `mapstructure:"insecure"`     // plaintext export
	SampleRate  float64 `mapstructure:"sample_rate"`  // 0.0 to 1.0
	ServiceName string  `mapstructure:"service_name"` // resource service.name
	Propagate   *bool   `mapstructure:"propagate"`    // nil means follow Enabled
}

// Enabled reports whether an exporter endpoint is configured, either here or
// through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether W3C trace context is sent in handshake headers.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// defaults returns a Config with every documented default applied.
func defaults() *Config {
	return &Config{
		Headers:         map[string]string{},
		Concurrency:     DefaultConcurrency,
		TickInterval:    DefaultTickInterval,
		ThinkMax:        DefaultThinkMax,
		ConnectTimeout:  DefaultConnectTimeout,
		ResponseTimeout: DefaultResponseTimeout,
		GracePeriod:     DefaultGracePeriod,
		LogLevel:        "info",
		LogFormat:       LogFormatConsole,
		SinkBuffer:      DefaultSinkBuffer,
		Tracing:         TracingConfig{Protocol: "grpc", SampleRate: DefaultSampleRate},
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.TargetURL) == "" {
		issues = append(issues, "target is required")
	}
	if len(c.Corpus) == 0 && strings.TrimSpace(c.CorpusFile) == "" {
		issues = append(issues, "corpus or corpus-file is required")
	}
	if c.CorpusFormat != "" && !c.CorpusFormat.Valid() {
		issues = append(issues, fmt.Sprintf("corpus format %q is not supported", c.CorpusFormat))
	}
	if c.Concurrency < 1 {
		issues = append(issues, "concurrency must be at least 1")
	}
	if c.TickInterval <= 0 {
		issues = append(issues, "tick-interval must be greater than zero")
	}
	if c.ThinkMin < 0 {
		issues = append(issues, "think-min must be non-negative")
	}
	if c.ThinkMax < c.ThinkMin {
		issues = append(issues, "think-max must not be less than think-min")
	}
	if c.MaxSessions < 0 {
		issues = append(issues, "max-sessions must be non-negative")
	}
	if c.ConnectTimeout <= 0 {
		issues = append(issues, "connect-timeout must be greater than zero")
	}
	if c.ResponseTimeout <= 0 {
		issues = append(issues, "response-timeout must be greater than zero")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be non-negative")
	}
	if c.Ticks < 0 {
		issues = append(issues, "ticks must be non-negative")
	}
	if c.Retries < 0 {
		issues = append(issues, "retries must be non-negative")
	}
	if c.SinkBuffer < 0 {
		issues = append(issues, "sink-buffer must be non-negative")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		issues = append(issues, fmt.Sprintf("log-level %q is not supported", c.LogLevel))
	}
	switch c.LogFormat {
	case "", LogFormatConsole, LogFormatJSON:
	default:
		issues = append(issues, fmt.Sprintf("log-format %q is not supported", c.LogFormat))
	}
	issues = append(issues, validateTracing(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing protocol %q is not supported", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing sample-rate must be between 0.0 and 1.0")
	}
	return issues
}

// CorpusSource describes where payloads come from.
func (c Config) CorpusSource() corpus.Source {
	return corpus.Source{
		Inline: c.Corpus,
		File:   c.CorpusFile,
		Format: c.CorpusFormat,
		Path:   c.CorpusPath,
		Column: c.CorpusColumn,
	}
}

// TargetOptions converts the run settings plus a loaded corpus into the
// options a target.Descriptor is built from.
func (c Config) TargetOptions(payloads []string) target.Options {
	return target.Options{
		Endpoint:              c.TargetURL,
		Corpus:                payloads,
		ConcurrencyPerTick:    c.Concurrency,
		TickInterval:          c.TickInterval,
		ThinkTime:             target.ThinkTime{Min: c.ThinkMin, Max: c.ThinkMax},
		ConnectTimeout:        c.ConnectTimeout,
		ResponseTimeout:       c.ResponseTimeout,
		MaxConcurrentSessions: c.MaxSessions,
		Headers:               c.Headers,
	}
}
