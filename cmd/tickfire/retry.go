package main

import (
	"math/rand"
	"sync"
	"time"
)

const (
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

type jitterSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newJitterSource() *jitterSource {
	return &jitterSource{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// backoff doubles from baseRetryDelay per attempt, capped at maxRetryDelay.
func backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		return maxRetryDelay
	}
	d := time.Duration(1<<uint(attempt-1)) * baseRetryDelay
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}

func (j *jitterSource) jitter(max time.Duration) time.Duration {
	if j == nil || max <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.rnd.Int63n(int64(max)))
}
