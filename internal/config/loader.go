package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/torosent/tickfire/internal/corpus"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a Config.
// Flags override values read from the config file, which override defaults.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	// If no arguments provided and no config file, show help/usage
	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.TargetURL = strings.TrimSpace(cfg.TargetURL)
	cfg.CorpusFile = strings.TrimSpace(cfg.CorpusFile)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(cfg.Tracing.Protocol))

	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "target"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		cfg.TargetURL = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "corpus"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("corpus: %w", err)
		}
		cfg.Corpus = val
	}

	if raw, ok := lookupSetting(settings, "corpusfile", "corpus_file", "corpus-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("corpusFile: %w", err)
		}
		cfg.CorpusFile = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "corpusformat", "corpus_format", "corpus-format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("corpusFormat: %w", err)
		}
		cfg.CorpusFormat = corpus.Format(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "corpuspath", "corpus_path", "corpus-path"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("corpusPath: %w", err)
		}
		cfg.CorpusPath = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "corpuscolumn", "corpus_column", "corpus-column"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("corpusColumn: %w", err)
		}
		cfg.CorpusColumn = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if err := applyInt(settings, &cfg.Concurrency, "concurrency"); err != nil {
		return err
	}
	if err := applyInt(settings, &cfg.MaxSessions, "maxsessions", "max_sessions", "max-sessions"); err != nil {
		return err
	}
	if err := applyInt(settings, &cfg.Ticks, "ticks"); err != nil {
		return err
	}
	if err := applyInt(settings, &cfg.Retries, "retries"); err != nil {
		return err
	}
	if err := applyInt(settings, &cfg.SinkBuffer, "sinkbuffer", "sink_buffer", "sink-buffer"); err != nil {
		return err
	}

	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asInt64(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		cfg.Seed = val
	}

	durations := []struct {
		dst  *time.Duration
		name string
		keys []string
	}{
		{&cfg.TickInterval, "tickInterval", []string{"tickinterval", "tick_interval", "tick-interval"}},
		{&cfg.ThinkMin, "thinkMin", []string{"thinkmin", "think_min", "think-min"}},
		{&cfg.ThinkMax, "thinkMax", []string{"thinkmax", "think_max", "think-max"}},
		{&cfg.ConnectTimeout, "connectTimeout", []string{"connecttimeout", "connect_timeout", "connect-timeout"}},
		{&cfg.ResponseTimeout, "responseTimeout", []string{"responsetimeout", "response_timeout", "response-timeout"}},
		{&cfg.GracePeriod, "gracePeriod", []string{"graceperiod", "grace_period", "grace-period"}},
		{&cfg.Duration, "duration", []string{"duration"}},
	}
	for _, d := range durations {
		if raw, ok := lookupSetting(settings, d.keys...); ok {
			dur, err := asDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", d.name, err)
			}
			*d.dst = dur
		}
	}

	bools := []struct {
		dst  *bool
		name string
		keys []string
	}{
		{&cfg.Quiet, "quiet", []string{"quiet"}},
		{&cfg.FailuresOnly, "failuresOnly", []string{"failuresonly", "failures_only", "failures-only"}},
		{&cfg.JSONOutput, "jsonOutput", []string{"jsonoutput", "json_output", "json-output"}},
		{&cfg.Progress, "progress", []string{"progress"}},
	}
	for _, b := range bools {
		if raw, ok := lookupSetting(settings, b.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", b.name, err)
			}
			*b.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "loglevel", "log_level", "log-level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("logLevel: %w", err)
		}
		cfg.LogLevel = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "logformat", "log_format", "log-format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("logFormat: %w", err)
		}
		cfg.LogFormat = LogFormat(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "outputfile", "output_file", "output-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("outputFile: %w", err)
		}
		cfg.OutputFile = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "metricsaddr", "metrics_addr", "metrics-addr"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("metricsAddr: %w", err)
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = val
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

func applyInt(settings map[string]interface{}, dst *int, keys ...string) error {
	raw, ok := lookupSetting(settings, keys...)
	if !ok {
		return nil
	}
	val, err := asInt(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", keys[0], err)
	}
	*dst = val
	return nil
}

func applyTracingSettings(t *TracingConfig, value interface{}) error {
	if value == nil {
		return nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		t.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		t.Protocol = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		t.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		t.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		t.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		t.Propagate = &val
	}
	return nil
}
