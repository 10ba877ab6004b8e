// Package sink receives session outcomes. Every Sink must be safe for
// concurrent use and must return from Record within a bounded time, because
// sessions call it directly from their own goroutines.
package sink

import (
	"github.com/torosent/tickfire/internal/session"
)

// Sink consumes outcomes.
type Sink interface {
	Record(o session.Outcome)
}

// Func adapts a function to Sink. The function must be concurrency-safe.
type Func func(o session.Outcome)

func (f Func) Record(o session.Outcome) { f(o) }

// Discard drops every outcome.
var Discard Sink = Func(func(session.Outcome) {})

type multi []Sink

// Multi fans each outcome out to every sink in order. Nil sinks are skipped.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (m multi) Record(o session.Outcome) {
	for _, s := range m {
		s.Record(o)
	}
}
