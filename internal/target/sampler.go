package target

import (
	"math/rand"
	"sync"
	"time"
)

// Sampler draws payloads and think-times for a Descriptor. It is safe for
// concurrent use; each draw is independent (sampling with replacement).
type Sampler struct {
	desc *Descriptor

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSampler returns a Sampler seeded with seed. A zero seed uses the clock.
func NewSampler(desc *Descriptor, seed int64) *Sampler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Sampler{desc: desc, rnd: rand.New(rand.NewSource(seed))}
}

// Payloads draws n payloads independently.
func (s *Sampler) Payloads(n int) []string {
	out := make([]string, n)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range out {
		out[i] = s.desc.Payload(s.rnd.Intn(s.desc.CorpusSize()))
	}
	return out
}

// ThinkTime picks a duration uniformly in [Min, Max].
func (s *Sampler) ThinkTime() time.Duration {
	tt := s.desc.ThinkTime()
	span := int64(tt.Max - tt.Min)
	if span <= 0 {
		return tt.Min
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Int63n is exclusive, so widen by one to make Max reachable.
	if span == 1<<63-1 {
		return tt.Min + time.Duration(s.rnd.Int63n(span))
	}
	return tt.Min + time.Duration(s.rnd.Int63n(span+1))
}
