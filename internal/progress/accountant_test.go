package progress

import (
	"testing"
	"time"

	"github.com/vertextoedge/dlhelper/internal/domain"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestAccountant_Percent(t *testing.T) {
	tests := []struct {
		name   string
		total  int64
		chunks []int
		want   float64
		done   bool
	}{
		{
			name:   "half way",
			total:  200,
			chunks: []int{50, 50},
			want:   50,
		},
		{
			name:   "complete",
			total:  100,
			chunks: []int{60, 40},
			want:   100,
			done:   true,
		},
		{
			name:   "unknown total",
			total:  domain.UnknownSize,
			chunks: []int{10, 10},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &clock{t: time.Unix(0, 0)}
			a := NewWithClock(time.Second, c.now)
			a.Reset(tt.total)
			a.Begin()

			for _, n := range tt.chunks {
				a.Add(n)
			}

			stats := a.Stats("file.bin")
			if stats.Progress != tt.want {
				t.Errorf("Progress = %v, want %v", stats.Progress, tt.want)
			}
			if a.Done() != tt.done {
				t.Errorf("Done() = %v, want %v", a.Done(), tt.done)
			}
			if stats.Name != "file.bin" {
				t.Errorf("Name = %q, want file.bin", stats.Name)
			}
		})
	}
}

func TestAccountant_SpeedSampling(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	a := NewWithClock(time.Second, c.now)
	a.Reset(10000)
	a.Begin()

	a.Add(100)
	if got := a.Stats("").Speed; got != 0 {
		t.Errorf("speed inside the first window = %d, want 0", got)
	}

	c.advance(1100 * time.Millisecond)
	a.Add(400)
	if got := a.Stats("").Speed; got != 500 {
		t.Errorf("speed after window = %d, want 500", got)
	}

	c.advance(200 * time.Millisecond)
	a.Add(1000)
	if got := a.Stats("").Speed; got != 500 {
		t.Errorf("speed must hold until the next window, got %d", got)
	}
}

func TestAccountant_Throttle(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	a := NewWithClock(time.Second, c.now)
	a.Reset(1000)
	a.Begin()

	if a.Add(10) {
		t.Error("throttled event due right after Begin")
	}

	c.advance(500 * time.Millisecond)
	if a.Add(10) {
		t.Error("throttled event due before the interval elapsed")
	}

	c.advance(500 * time.Millisecond)
	if !a.Add(10) {
		t.Error("throttled event not due after the interval")
	}

	if !a.Add(970) {
		t.Error("completion must always produce a throttled event")
	}
}

func TestAccountant_Restore(t *testing.T) {
	a := New(DefaultThrottle)
	a.Restore(400, 100)

	if a.Downloaded() != 100 || a.Remaining() != 300 {
		t.Errorf("Restore: downloaded=%d remaining=%d", a.Downloaded(), a.Remaining())
	}
	if got := a.Stats("").Progress; got != 25 {
		t.Errorf("Progress = %v, want 25", got)
	}

	a.Reset(domain.UnknownSize)
	if a.Remaining() != -1 || a.Downloaded() != 0 {
		t.Errorf("Reset: downloaded=%d remaining=%d", a.Downloaded(), a.Remaining())
	}
}
