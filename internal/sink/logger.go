package sink

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/torosent/tickfire/internal/session"
)

// Logger writes structured log entries: failures at warn level and successes
// at debug level. Backpressure entries are throttled to one per interval,
// because a saturated cap produces one per suppressed launch.
type Logger struct {
	log          *zap.Logger
	backpressure rate.Sometimes
}

// NewLogger wraps log. throttle bounds backpressure logging; zero means one
// entry per second.
func NewLogger(log *zap.Logger, throttle time.Duration) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	if throttle <= 0 {
		throttle = time.Second
	}
	return &Logger{
		log:          log.Named("session"),
		backpressure: rate.Sometimes{First: 1, Interval: throttle},
	}
}

func (l *Logger) Record(o session.Outcome) {
	switch {
	case o.OK():
		if ce := l.log.Check(zap.DebugLevel, "session completed"); ce != nil {
			ce.Write(
				zap.String("id", o.ID),
				zap.String("payload", o.Payload),
				zap.Int("reply_bytes", len(o.Reply)),
				zap.Duration("latency", o.Latency),
				zap.Duration("think_time", o.ThinkTime),
			)
		}
	case o.Kind() == session.KindBackpressure:
		l.backpressure.Do(func() {
			l.log.Warn("session launch suppressed by concurrency cap",
				zap.String("payload", o.Payload),
			)
		})
	default:
		fields := []zap.Field{
			zap.String("id", o.ID),
			zap.String("payload", o.Payload),
			zap.Stringer("kind", o.Kind()),
			zap.Duration("latency", o.Latency),
		}
		if o.Attempts > 1 {
			fields = append(fields, zap.Int("attempts", o.Attempts))
		}
		if o.Err.Cause != nil {
			fields = append(fields, zap.NamedError("cause", o.Err.Cause))
		}
		l.log.Warn("session failed", fields...)
	}
}
