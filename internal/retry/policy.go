// Package retry decides whether a failed download attempt is re-issued.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/vertextoedge/dlhelper/internal/domain"
)

// Policy bounds retries. A nil *Policy disables retrying.
type Policy struct {
	MaxRetries int
	Delay      time.Duration
}

// Action is the outcome of a retry decision
type Action int

const (
	// Fail propagates the error
	Fail Action = iota
	// Restart re-issues the request from byte zero
	Restart
	// Resume re-issues the request as a ranged continuation
	Resume
)

// String returns the action name
func (a Action) String() string {
	switch a {
	case Restart:
		return "restart"
	case Resume:
		return "resume"
	default:
		return "fail"
	}
}

// Validate checks the policy shape
func (p *Policy) Validate() error {
	if p == nil {
		return nil
	}
	if p.MaxRetries < 0 {
		return &domain.ConfigurationError{Option: "retry", Err: errors.New("max retries must not be negative")}
	}
	if p.Delay < 0 {
		return &domain.ConfigurationError{Option: "retry", Err: errors.New("delay must not be negative")}
	}
	return nil
}

// Decide returns what to do after err given the retries already spent and the
// bytes already on disk. When the action is Fail, the returned error is the
// one to surface.
func Decide(p *Policy, retryCount int, downloaded int64, err error) (Action, error) {
	if p == nil {
		return Fail, err
	}
	if verr := p.Validate(); verr != nil {
		return Fail, verr
	}
	if retryCount >= p.MaxRetries {
		if err == nil {
			err = errors.New("reached the maximum retries")
		}
		return Fail, err
	}
	if downloaded > 0 {
		return Resume, nil
	}
	return Restart, nil
}

// Wait sleeps for the policy delay, returning early with the context error
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
