package sink

import (
	"sync"
	"sync/atomic"

	"github.com/torosent/tickfire/internal/session"
)

// DefaultBufferSize is used when NewAsync is given a non-positive size.
const DefaultBufferSize = 1024

// Async decouples callers from a slow sink. Record only appends to a bounded
// buffer; when the buffer is full the oldest buffered outcome is dropped.
// A single goroutine forwards buffered outcomes in arrival order.
type Async struct {
	next Sink
	size int

	mu     sync.Mutex
	queue  []session.Outcome
	closed bool

	wake    chan struct{}
	done    chan struct{}
	dropped atomic.Int64
}

// NewAsync starts forwarding to next. Call Close to drain and stop.
func NewAsync(next Sink, size int) *Async {
	if size <= 0 {
		size = DefaultBufferSize
	}
	a := &Async{
		next:  next,
		size:  size,
		queue: make([]session.Outcome, 0, size),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Record(o session.Outcome) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.dropped.Add(1)
		return
	}
	if len(a.queue) >= a.size {
		a.queue = a.queue[1:]
		a.dropped.Add(1)
	}
	a.queue = append(a.queue, o)
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Dropped returns how many outcomes were discarded due to overflow or a
// Record after Close.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Close stops accepting outcomes and blocks until the buffer is drained.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return
	}
	a.closed = true
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
	<-a.done
}

func (a *Async) run() {
	defer close(a.done)
	for {
		<-a.wake
		for {
			a.mu.Lock()
			if len(a.queue) == 0 {
				closed := a.closed
				a.mu.Unlock()
				if closed {
					return
				}
				break
			}
			batch := a.queue
			a.queue = make([]session.Outcome, 0, a.size)
			a.mu.Unlock()

			for _, o := range batch {
				a.next.Record(o)
			}
		}
	}
}
