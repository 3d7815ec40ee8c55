// Package progress accumulates received bytes into completion, throughput
// and throttled notification decisions for a single download.
package progress

import (
	"time"

	"github.com/vertextoedge/dlhelper/internal/domain"
	"github.com/vertextoedge/dlhelper/internal/util/ratelimiter"
)

// DefaultThrottle is the default interval between throttled progress notifications
const DefaultThrottle = time.Second

// speedWindow is the sampling period for the throughput estimate
const speedWindow = time.Second

// Accountant tracks received bytes. It is not safe for concurrent use; the
// owning session serializes access.
type Accountant struct {
	now      func() time.Time
	throttle *ratelimiter.Limiter

	total      int64
	downloaded int64
	progress   float64

	speed     int64
	prevBytes int64
	sampledAt time.Time
}

// New creates an accountant emitting throttled updates at most once per interval
func New(throttle time.Duration) *Accountant {
	return NewWithClock(throttle, time.Now)
}

// NewWithClock creates an accountant reading the time from now
func NewWithClock(throttle time.Duration, now func() time.Time) *Accountant {
	if now == nil {
		now = time.Now
	}
	return &Accountant{
		now:      now,
		throttle: ratelimiter.NewWithClock(throttle, now),
		total:    domain.UnknownSize,
	}
}

// SetThrottle changes the throttled notification interval
func (a *Accountant) SetThrottle(d time.Duration) {
	a.throttle.SetInterval(d)
}

// Reset starts a fresh count against total (domain.UnknownSize if unknown)
func (a *Accountant) Reset(total int64) {
	a.Restore(total, 0)
}

// Restore continues a count from an already received byte offset
func (a *Accountant) Restore(total, downloaded int64) {
	a.total = total
	a.downloaded = downloaded
	a.prevBytes = downloaded
	a.speed = 0
	a.progress = a.percent()
	a.sampledAt = time.Time{}
}

// Begin marks the start of a stream phase for both the speed sample and the
// throttle window
func (a *Accountant) Begin() {
	a.sampledAt = a.now()
	a.throttle.Mark()
}

// Add accounts for n received bytes and reports whether a throttled
// notification is due
func (a *Accountant) Add(n int) bool {
	if n <= 0 {
		return false
	}

	now := a.now()
	a.downloaded += int64(n)
	a.progress = a.percent()

	done := a.Done()
	if done || now.Sub(a.sampledAt) > speedWindow {
		a.sampledAt = now
		a.speed = a.downloaded - a.prevBytes
		a.prevBytes = a.downloaded
	}

	if done {
		a.throttle.Mark()
		return true
	}
	allowed, _ := a.throttle.Allow()
	return allowed
}

// Done reports whether the known total has been received
func (a *Accountant) Done() bool {
	return a.total >= 0 && a.downloaded == a.total
}

// Remaining returns how many bytes are still expected, or -1 if unknown
func (a *Accountant) Remaining() int64 {
	if a.total < 0 {
		return -1
	}
	return a.total - a.downloaded
}

// Total returns the expected size
func (a *Accountant) Total() int64 { return a.total }

// Downloaded returns the received byte count
func (a *Accountant) Downloaded() int64 { return a.downloaded }

// Stats returns a snapshot labelled with name
func (a *Accountant) Stats(name string) domain.Stats {
	return domain.Stats{
		Total:      a.total,
		Name:       name,
		Downloaded: a.downloaded,
		Progress:   a.progress,
		Speed:      a.speed,
	}
}

func (a *Accountant) percent() float64 {
	if a.total <= 0 {
		return 0
	}
	return float64(a.downloaded) / float64(a.total) * 100
}
