package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(limit int, window time.Duration) (*Limiter, *fakeClock) {
	clock := newFakeClock()
	l := New(limit, window, 5*window)
	l.now = clock.now
	return l, clock
}

func TestAllowUpToLimitThenReject(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		d := l.Allow("10.0.0.1")
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if want := 3 - (i + 1); d.Remaining != want {
			t.Errorf("request %d: remaining = %d, want %d", i+1, d.Remaining, want)
		}
	}

	d := l.Allow("10.0.0.1")
	if d.Allowed {
		t.Fatal("4th request within the window should be rejected")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, want within (0, 1m]", d.RetryAfter)
	}
}

func TestWindowSlidesInsteadOfResetting(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)

	l.Allow("k") // t=0
	clock.advance(40 * time.Second)
	l.Allow("k") // t=40s

	// t=50s: both stamps still inside the window
	clock.advance(10 * time.Second)
	if l.Allow("k").Allowed {
		t.Fatal("should be rejected while both stamps are in the window")
	}

	// t=70s: the t=0 stamp has slid out, the t=40s one has not
	clock.advance(20 * time.Second)
	if !l.Allow("k").Allowed {
		t.Fatal("should be allowed after the oldest stamp slides out")
	}
	if l.Allow("k").Allowed {
		t.Fatal("window is full again")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	if !l.Allow("a").Allowed {
		t.Fatal("first request for key a should be allowed")
	}
	if l.Allow("a").Allowed {
		t.Fatal("second request for key a should be rejected")
	}
	if !l.Allow("b").Allowed {
		t.Fatal("key b has its own window")
	}
}

func TestRetryAfterPointsAtOldestStamp(t *testing.T) {
	l, clock := newTestLimiter(1, time.Minute)

	l.Allow("k")
	clock.advance(15 * time.Second)
	d := l.Allow("k")
	if d.Allowed {
		t.Fatal("should be rejected")
	}
	if d.RetryAfter != 45*time.Second {
		t.Errorf("RetryAfter = %v, want 45s", d.RetryAfter)
	}
}

func TestSweepDropsIdleKeys(t *testing.T) {
	l, clock := newTestLimiter(5, time.Minute)

	l.Allow("idle")
	l.Allow("busy")
	clock.advance(4 * time.Minute)
	l.Allow("busy")
	clock.advance(2 * time.Minute) // "idle" now idle for 6m > 5m TTL

	l.sweep()
	if got := l.Len(); got != 1 {
		t.Errorf("tracked keys after sweep = %d, want 1", got)
	}
	if !l.Allow("idle").Allowed {
		t.Fatal("a swept key starts a fresh window")
	}
}

func TestConcurrentAllowAdmitsExactlyLimit(t *testing.T) {
	l, _ := newTestLimiter(50, time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("admitted %d concurrent requests, want exactly 50", allowed)
	}
}
