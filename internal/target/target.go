// Package target describes the service under test: where to connect, what to
// send, and how hard to push.
package target

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ThinkTime bounds the dwell between receiving a reply and closing the connection.
type ThinkTime struct {
	Min time.Duration
	Max time.Duration
}

// Options carries the raw values used to build a Descriptor.
type Options struct {
	Endpoint              string
	Corpus                []string
	ConcurrencyPerTick    int
	TickInterval          time.Duration
	ThinkTime             ThinkTime
	ConnectTimeout        time.Duration
	ResponseTimeout       time.Duration
	MaxConcurrentSessions int // 0 means unbounded
	Headers               map[string]string
}

// Descriptor is the validated, immutable description of a load target.
// It is safe for concurrent readers.
type Descriptor struct {
	endpoint        string
	corpus          []string
	perTick         int
	tickInterval    time.Duration
	think           ThinkTime
	connectTimeout  time.Duration
	responseTimeout time.Duration
	maxSessions     int
	headers         http.Header
}

// ConfigError reports every constraint a set of Options violates.
type ConfigError struct {
	issues []string
}

func (e *ConfigError) Error() string {
	if len(e.issues) == 0 {
		return "invalid target configuration"
	}
	return fmt.Sprintf("invalid target configuration: %s", strings.Join(e.issues, "; "))
}

// Issues returns a copy of the individual validation failures.
func (e *ConfigError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// New validates opts and returns a Descriptor, or a *ConfigError.
func New(opts Options) (*Descriptor, error) {
	var issues []string

	endpoint, err := normalizeEndpoint(opts.Endpoint)
	if err != nil {
		issues = append(issues, err.Error())
	}
	if len(opts.Corpus) == 0 {
		issues = append(issues, "corpus must contain at least one payload")
	}
	if opts.ConcurrencyPerTick < 1 {
		issues = append(issues, "concurrency per tick must be at least 1")
	}
	if opts.TickInterval <= 0 {
		issues = append(issues, "tick interval must be greater than zero")
	}
	if opts.ThinkTime.Min < 0 {
		issues = append(issues, "think time minimum must not be negative")
	}
	if opts.ThinkTime.Max < opts.ThinkTime.Min {
		issues = append(issues, "think time maximum must not be less than the minimum")
	}
	if opts.ConnectTimeout <= 0 {
		issues = append(issues, "connect timeout must be greater than zero")
	}
	if opts.ResponseTimeout <= 0 {
		issues = append(issues, "response timeout must be greater than zero")
	}
	if opts.MaxConcurrentSessions < 0 {
		issues = append(issues, "max concurrent sessions must not be negative")
	}

	if len(issues) > 0 {
		return nil, &ConfigError{issues: issues}
	}

	headers := make(http.Header, len(opts.Headers))
	for k, v := range opts.Headers {
		headers.Set(k, v)
	}

	return &Descriptor{
		endpoint:        endpoint,
		corpus:          append([]string(nil), opts.Corpus...),
		perTick:         opts.ConcurrencyPerTick,
		tickInterval:    opts.TickInterval,
		think:           opts.ThinkTime,
		connectTimeout:  opts.ConnectTimeout,
		responseTimeout: opts.ResponseTimeout,
		maxSessions:     opts.MaxConcurrentSessions,
		headers:         headers,
	}, nil
}

func normalizeEndpoint(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("endpoint %q is not a valid URI: %v", raw, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "":
		return "", fmt.Errorf("endpoint %q is missing a scheme (expected ws:// or wss://)", raw)
	default:
		return "", fmt.Errorf("endpoint %q has unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint %q is missing a host", raw)
	}
	return u.String(), nil
}

func (d *Descriptor) Endpoint() string               { return d.endpoint }
func (d *Descriptor) ConcurrencyPerTick() int        { return d.perTick }
func (d *Descriptor) TickInterval() time.Duration    { return d.tickInterval }
func (d *Descriptor) ThinkTime() ThinkTime           { return d.think }
func (d *Descriptor) ConnectTimeout() time.Duration  { return d.connectTimeout }
func (d *Descriptor) ResponseTimeout() time.Duration { return d.responseTimeout }

// MaxConcurrentSessions returns the in-flight cap, or 0 when unbounded.
func (d *Descriptor) MaxConcurrentSessions() int { return d.maxSessions }

// Corpus returns a copy of the payload corpus.
func (d *Descriptor) Corpus() []string {
	return append([]string(nil), d.corpus...)
}

// CorpusSize returns the number of payloads without copying them.
func (d *Descriptor) CorpusSize() int { return len(d.corpus) }

// Payload returns the i-th corpus entry.
func (d *Descriptor) Payload(i int) string { return d.corpus[i] }

// Headers returns a copy of the handshake headers.
func (d *Descriptor) Headers() http.Header {
	return d.headers.Clone()
}
