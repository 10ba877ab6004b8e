package sink

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/torosent/tickfire/internal/session"
)

// Console writes one line per outcome: the reply for successes, the error
// kind and cause for failures.
type Console struct {
	mu           sync.Mutex
	w            io.Writer
	failuresOnly bool
}

// NewConsole returns a Console writing to w. With failuresOnly set,
// successful outcomes are not printed.
func NewConsole(w io.Writer, failuresOnly bool) *Console {
	if w == nil {
		w = io.Discard
	}
	return &Console{w: w, failuresOnly: failuresOnly}
}

func (c *Console) Record(o session.Outcome) {
	if o.OK() && c.failuresOnly {
		return
	}
	line := formatLine(o)

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, line)
}

func formatLine(o session.Outcome) string {
	latency := o.Latency.Round(time.Microsecond)
	if o.OK() {
		return fmt.Sprintf("%q -> %s (%s)", o.Payload, o.Reply, latency)
	}
	if o.Kind() == session.KindBackpressure {
		return fmt.Sprintf("%q !! %s", o.Payload, o.Err)
	}
	return fmt.Sprintf("%q !! %s (%s)", o.Payload, o.Err, latency)
}
