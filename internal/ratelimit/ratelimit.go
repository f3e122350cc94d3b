package ratelimit

import (
	"sync"
	"time"
)

// Limiter enforces a minimum interval between accepted operations per Steam
// id. It is an in-memory, single-instance limiter: each operation category
// (submit, fetch, like) owns its own Limiter.
//
// Unlike a token bucket there is no burst: an identity gets at most one
// accepted operation per interval, which is the contract the game client is
// written against.
type Limiter struct {
	mu   sync.Mutex
	last map[int64]time.Time

	interval time.Duration

	now func() time.Time

	stop chan struct{} // closed by Stop(); nil until StartGC is called
}

// New returns a limiter with the given minimum interval between accepted
// operations. A non-positive interval disables limiting.
func New(interval time.Duration) *Limiter {
	return &Limiter{
		last:     make(map[int64]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

// Interval returns the configured minimum interval (used for Retry-After hints).
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Allow reports whether an operation for id may proceed right now.
// The check and the timestamp update are a single critical section, so two
// concurrent calls at the interval boundary can never both be accepted.
// A rejected call does not mutate state.
func (l *Limiter) Allow(id int64) bool {
	if l.interval <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	last, ok := l.last[id]
	if ok && now.Sub(last) < l.interval {
		return false
	}
	l.last[id] = now
	return true
}

// Reset forgets the record for id, so its next operation is accepted as if it
// had never been attempted.
func (l *Limiter) Reset(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.last, id)
}

// StartGC starts a background goroutine that sweeps the table every interval,
// dropping entries idle longer than maxIdle. Dropping an entry is safe: an
// absent record means "never attempted", which only makes the limiter more
// permissive for identities that were already past their interval.
func (l *Limiter) StartGC(interval, maxIdle time.Duration) {
	l.stop = make(chan struct{})
	go l.gcLoop(interval, maxIdle)
}

// Stop terminates the GC goroutine started by StartGC. Safe to call even if
// StartGC was never called.
func (l *Limiter) Stop() {
	if l.stop != nil {
		select {
		case <-l.stop:
			// already closed
		default:
			close(l.stop)
		}
	}
}

func (l *Limiter) gcLoop(interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep(maxIdle)
		}
	}
}

func (l *Limiter) sweep(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, last := range l.last {
		if now.Sub(last) > maxIdle {
			delete(l.last, id)
		}
	}
}

// Len returns the current number of tracked identities (for testing/monitoring).
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.last)
}
