package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestLimiter_Allow_FirstOperationAlwaysAllowed(t *testing.T) {
	t.Parallel()

	l := New(10 * time.Second)
	if !l.Allow(111) {
		t.Fatalf("expected first operation to be allowed")
	}
}

func TestLimiter_Allow_MinimumInterval(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(time.Second)
	l.now = func() time.Time { return now }

	if !l.Allow(111) {
		t.Fatalf("expected first allow")
	}
	if l.Allow(111) {
		t.Fatalf("expected immediate retry to be limited")
	}

	now = now.Add(999 * time.Millisecond)
	if l.Allow(111) {
		t.Fatalf("expected retry just under the interval to be limited")
	}

	now = now.Add(1 * time.Millisecond)
	if !l.Allow(111) {
		t.Fatalf("expected allow exactly at the interval boundary")
	}
	if l.Allow(111) {
		t.Fatalf("expected to be limited again after acceptance")
	}
}

func TestLimiter_Allow_RejectionDoesNotExtendTheWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(time.Second)
	l.now = func() time.Time { return now }

	if !l.Allow(111) {
		t.Fatalf("expected first allow")
	}

	// Hammering while limited must not push the next acceptance further out.
	for i := 0; i < 5; i++ {
		now = now.Add(100 * time.Millisecond)
		if l.Allow(111) {
			t.Fatalf("expected rejection at +%dms", (i+1)*100)
		}
	}

	now = now.Add(500 * time.Millisecond) // 1s after the accepted call
	if !l.Allow(111) {
		t.Fatalf("expected allow one interval after the accepted call")
	}
}

func TestLimiter_Allow_IndependentIdentities(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(time.Second)
	l.now = func() time.Time { return now }

	if !l.Allow(111) {
		t.Fatalf("expected allow for 111")
	}
	if !l.Allow(222) {
		t.Fatalf("expected allow for 222: identities are independent")
	}
	if l.Allow(111) || l.Allow(222) {
		t.Fatalf("expected both identities to be limited on retry")
	}
}

func TestLimiter_Allow_DisabledWhenIntervalNonPositive(t *testing.T) {
	t.Parallel()

	l := New(0)
	for i := 0; i < 10; i++ {
		if !l.Allow(111) {
			t.Fatalf("expected disabled limiter to always allow")
		}
	}
	if l.Len() != 0 {
		t.Fatalf("expected disabled limiter to track nothing, got %d", l.Len())
	}
}

func TestLimiter_Allow_ExactlyOneWinnerUnderContention(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(time.Second)
	l.now = func() time.Time { return now }

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if l.Allow(111) {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("expected exactly one accepted operation, got %d", accepted)
	}
}

func TestLimiter_Reset(t *testing.T) {
	t.Parallel()

	l := New(time.Hour)
	if !l.Allow(111) {
		t.Fatalf("expected first allow")
	}
	if l.Allow(111) {
		t.Fatalf("expected to be limited")
	}

	l.Reset(111)
	if !l.Allow(111) {
		t.Fatalf("expected allow after reset")
	}
}

func TestLimiter_Sweep_DropsIdleEntries(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(time.Second)
	l.now = func() time.Time { return now }

	l.Allow(111)
	l.Allow(222)
	if l.Len() != 2 {
		t.Fatalf("expected 2 tracked identities, got %d", l.Len())
	}

	now = now.Add(5 * time.Minute)
	l.Allow(222) // refresh one entry

	l.sweep(1 * time.Minute)
	if l.Len() != 1 {
		t.Fatalf("expected 1 tracked identity after sweep, got %d", l.Len())
	}

	// A swept identity behaves as never attempted.
	if !l.Allow(111) {
		t.Fatalf("expected allow for swept identity")
	}
}
