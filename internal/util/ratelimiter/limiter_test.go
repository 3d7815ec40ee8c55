package ratelimiter

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is advanced manually by tests
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestLimiter_Allow(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		delays   []time.Duration // clock advance before each Allow() call
		want     []bool          // expected Allow() results
	}{
		{
			name:     "first call always allowed",
			interval: 100 * time.Millisecond,
			delays:   []time.Duration{0},
			want:     []bool{true},
		},
		{
			name:     "second call immediately after is blocked",
			interval: 100 * time.Millisecond,
			delays:   []time.Duration{0, 0},
			want:     []bool{true, false},
		},
		{
			name:     "call after interval is allowed",
			interval: 50 * time.Millisecond,
			delays:   []time.Duration{0, 60 * time.Millisecond},
			want:     []bool{true, true},
		},
		{
			name:     "call exactly at interval is allowed",
			interval: 50 * time.Millisecond,
			delays:   []time.Duration{0, 50 * time.Millisecond},
			want:     []bool{true, true},
		},
		{
			name:     "zero interval allows everything",
			interval: 0,
			delays:   []time.Duration{0, 0, 0},
			want:     []bool{true, true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{t: time.Unix(1000, 0)}
			limiter := NewWithClock(tt.interval, clock.Now)

			for i, delay := range tt.delays {
				clock.Advance(delay)

				allowed, waitTime := limiter.Allow()
				if allowed != tt.want[i] {
					t.Errorf("call %d: Allow() = %v, want %v", i, allowed, tt.want[i])
				}

				if !allowed && waitTime <= 0 {
					t.Errorf("call %d: blocked but waitTime = %v, want > 0", i, waitTime)
				}

				if allowed && waitTime != 0 {
					t.Errorf("call %d: allowed but waitTime = %v, want 0", i, waitTime)
				}
			}
		})
	}
}

func TestLimiter_Mark(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	limiter := NewWithClock(time.Second, clock.Now)

	limiter.Mark()

	if allowed, wait := limiter.Allow(); allowed || wait != time.Second {
		t.Fatalf("after Mark: Allow() = (%v, %v), want (false, 1s)", allowed, wait)
	}

	clock.Advance(time.Second)
	if allowed, _ := limiter.Allow(); !allowed {
		t.Fatal("call one interval after Mark should be allowed")
	}
}

func TestLimiter_Reset(t *testing.T) {
	limiter := New(time.Second)

	if allowed, _ := limiter.Allow(); !allowed {
		t.Fatal("first call should be allowed")
	}

	if allowed, _ := limiter.Allow(); allowed {
		t.Fatal("second call should be blocked")
	}

	limiter.Reset()

	if allowed, _ := limiter.Allow(); !allowed {
		t.Fatal("call after reset should be allowed")
	}
}

func TestLimiter_SetInterval(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	limiter := NewWithClock(time.Hour, clock.Now)

	limiter.Allow()
	limiter.SetInterval(10 * time.Millisecond)
	clock.Advance(10 * time.Millisecond)

	if got := limiter.Interval(); got != 10*time.Millisecond {
		t.Errorf("Interval() = %v, want 10ms", got)
	}
	if allowed, _ := limiter.Allow(); !allowed {
		t.Error("call after shortened interval should be allowed")
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter := New(100 * time.Millisecond)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, _ := limiter.Allow()
			if allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if allowedCount != 1 {
		t.Errorf("concurrent calls: %d allowed, want exactly 1", allowedCount)
	}
}
