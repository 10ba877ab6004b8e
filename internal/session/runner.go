package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/tickfire/internal/target"
	"github.com/torosent/tickfire/internal/tracing"
	"github.com/torosent/tickfire/internal/websocket"
)

// Executor runs one session for a payload and always returns an Outcome.
type Executor interface {
	Run(ctx context.Context, payload string) Outcome
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, payload string) Outcome

func (f ExecutorFunc) Run(ctx context.Context, payload string) Outcome { return f(ctx, payload) }

// Conn is the per-session connection used by a Runner.
type Conn interface {
	SendText(ctx context.Context, data []byte) error
	ReceiveMessage(ctx context.Context) (websocket.Message, error)
	Metrics() websocket.Metrics
	Close() error
}

// DialFunc opens a connection to endpoint. ctx carries the connect timeout.
type DialFunc func(ctx context.Context, endpoint string, headers http.Header) (Conn, error)

// Option customises a Runner.
type Option func(*Runner)

// WithDialer replaces the WebSocket dialer.
func WithDialer(dial DialFunc) Option {
	return func(r *Runner) {
		if dial != nil {
			r.dial = dial
		}
	}
}

// WithTracer records one client span per session.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithPropagation injects W3C trace context into the handshake headers.
func WithPropagation(enabled bool) Option {
	return func(r *Runner) { r.propagate = enabled }
}

// Runner executes connect, send, receive, think, close against a target.
// It holds no per-session state and is safe to share between goroutines.
type Runner struct {
	target  *target.Descriptor
	sampler *target.Sampler
	dial    DialFunc
	tracer  trace.Tracer

	propagate bool
}

// NewRunner builds a Runner. A nil sampler gets a clock-seeded one.
func NewRunner(desc *target.Descriptor, sampler *target.Sampler, opts ...Option) *Runner {
	if sampler == nil {
		sampler = target.NewSampler(desc, 0)
	}
	r := &Runner{
		target:  desc,
		sampler: sampler,
		tracer:  noop.NewTracerProvider().Tracer("tickfire"),
	}
	r.dial = r.dialWebSocket
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) dialWebSocket(ctx context.Context, endpoint string, headers http.Header) (Conn, error) {
	client := websocket.NewClient(websocket.Config{
		URL:              endpoint,
		Headers:          headers,
		HandshakeTimeout: r.target.ConnectTimeout(),
		WriteTimeout:     r.target.ResponseTimeout(),
	})
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// Run performs one session. The connection is released on every path, and
// a panic inside the session is reported as a receive failure.
func (r *Runner) Run(ctx context.Context, payload string) (out Outcome) {
	out = Outcome{
		ID:       ulid.Make().String(),
		Payload:  payload,
		Started:  time.Now(),
		Attempts: 1,
	}

	ctx, span := tracing.StartSessionSpan(ctx, r.tracer, r.target.Endpoint(), out.ID)
	defer func() {
		if rec := recover(); rec != nil {
			out.Reply = ""
			out.Latency = time.Since(out.Started)
			out.Err = &Error{Kind: KindReceiveFailed, Cause: fmt.Errorf("session panic: %v", rec)}
		}
		var err error
		if out.Err != nil {
			err = out.Err
		}
		tracing.EndSpan(span, err,
			attribute.String("tickfire.error_kind", out.Kind().String()),
			attribute.Int64("tickfire.latency_us", out.Latency.Microseconds()),
			attribute.Int64("tickfire.think_time_ms", out.ThinkTime.Milliseconds()),
			attribute.Int64("tickfire.bytes_sent", out.BytesSent),
			attribute.Int64("tickfire.bytes_received", out.BytesReceived),
		)
	}()

	headers := r.target.Headers()
	if r.propagate {
		tracing.InjectHTTPHeaders(ctx, headers)
	}
	dialCtx, cancelDial := context.WithTimeout(ctx, r.target.ConnectTimeout())
	conn, err := r.dial(dialCtx, r.target.Endpoint(), headers)
	cancelDial()
	if err != nil {
		out.Latency = time.Since(out.Started)
		out.Err = classify(ctx, KindConnectFailed, err)
		return out
	}
	defer func() {
		_ = conn.Close()
		m := conn.Metrics()
		out.BytesSent, out.BytesReceived = m.BytesSent, m.BytesReceived
	}()

	if err := conn.SendText(ctx, []byte(payload)); err != nil {
		out.Latency = time.Since(out.Started)
		out.Err = classify(ctx, KindSendFailed, err)
		return out
	}

	recvCtx, cancelRecv := context.WithTimeout(ctx, r.target.ResponseTimeout())
	msg, err := conn.ReceiveMessage(recvCtx)
	cancelRecv()
	out.Latency = time.Since(out.Started)
	if err != nil {
		kind := KindReceiveFailed
		if websocket.IsTimeout(err) {
			kind = KindResponseTimeout
		}
		out.Err = classify(ctx, kind, err)
		return out
	}
	if len(msg.Data) == 0 {
		out.Err = &Error{Kind: KindEmptyReply}
		return out
	}
	out.Reply = string(msg.Data)

	// Dwell before disconnecting. Cancellation cuts the dwell short but keeps the reply.
	out.ThinkTime = r.sampler.ThinkTime()
	sleep(ctx, out.ThinkTime)
	return out
}

// classify maps a step failure to its kind, preferring Cancelled when the
// session context itself has ended.
func classify(ctx context.Context, kind ErrorKind, err error) *Error {
	if ctx.Err() != nil {
		return &Error{Kind: KindCancelled, Cause: err}
	}
	return &Error{Kind: kind, Cause: err}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
