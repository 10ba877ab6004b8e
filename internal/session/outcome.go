package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// ErrorKind classifies why a session did not produce a reply.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindConnectFailed
	KindSendFailed
	KindResponseTimeout
	KindReceiveFailed
	KindEmptyReply
	KindCancelled
	KindBackpressure
)

var kindNames = map[ErrorKind]string{
	KindNone:            "none",
	KindConnectFailed:   "connect_failed",
	KindSendFailed:      "send_failed",
	KindResponseTimeout: "response_timeout",
	KindReceiveFailed:   "receive_failed",
	KindEmptyReply:      "empty_reply",
	KindCancelled:       "cancelled",
	KindBackpressure:    "backpressure",
}

// Kinds lists every failure kind in a stable order.
func Kinds() []ErrorKind {
	return []ErrorKind{
		KindConnectFailed,
		KindSendFailed,
		KindResponseTimeout,
		KindReceiveFailed,
		KindEmptyReply,
		KindCancelled,
		KindBackpressure,
	}
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error is the failure carried by an Outcome. Cause keeps the transport error
// so callers can inspect it with errors.Is and errors.As.
type Error struct {
	Kind  ErrorKind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Outcome is the single report produced by one session, or by one launch
// suppressed through backpressure. Exactly one of Reply and Err is set.
type Outcome struct {
	ID        string
	Payload   string
	Reply     string
	Started   time.Time
	Latency   time.Duration // dial start to reply or failure, excluding think-time
	ThinkTime time.Duration
	Attempts  int
	Err       *Error

	// Data-frame payload bytes moved before the connection closed.
	BytesSent     int64
	BytesReceived int64
}

// OK reports whether the session received a reply.
func (o Outcome) OK() bool { return o.Err == nil }

// Kind returns the failure kind, or KindNone on success.
func (o Outcome) Kind() ErrorKind {
	if o.Err == nil {
		return KindNone
	}
	return o.Err.Kind
}

type outcomeJSON struct {
	ID          string    `json:"id"`
	Payload     string    `json:"payload"`
	Reply       string    `json:"reply,omitempty"`
	Started     time.Time `json:"started"`
	LatencyMs   float64   `json:"latency_ms"`
	ThinkTimeMs float64   `json:"think_time_ms"`
	Attempts    int       `json:"attempts,omitempty"`
	BytesSent   int64     `json:"bytes_sent,omitempty"`
	BytesRecv   int64     `json:"bytes_received,omitempty"`
	Error       ErrorKind `json:"error"`
	Detail      string    `json:"detail,omitempty"`
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	out := outcomeJSON{
		ID:          o.ID,
		Payload:     o.Payload,
		Reply:       o.Reply,
		Started:     o.Started,
		LatencyMs:   float64(o.Latency) / float64(time.Millisecond),
		ThinkTimeMs: float64(o.ThinkTime) / float64(time.Millisecond),
		Attempts:    o.Attempts,
		BytesSent:   o.BytesSent,
		BytesRecv:   o.BytesReceived,
		Error:       o.Kind(),
	}
	if o.Err != nil && o.Err.Cause != nil {
		out.Detail = o.Err.Cause.Error()
	}
	return json.Marshal(out)
}
