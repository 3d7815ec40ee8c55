package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vertextoedge/dlhelper/internal/domain"
)

func TestDecide(t *testing.T) {
	cause := errors.New("connection reset")

	tests := []struct {
		name       string
		policy     *Policy
		retryCount int
		downloaded int64
		want       Action
		wantErr    error
		wantConfig bool
	}{
		{
			name:    "retry disabled",
			policy:  nil,
			want:    Fail,
			wantErr: cause,
		},
		{
			name:   "fresh restart when nothing received",
			policy: &Policy{MaxRetries: 3, Delay: time.Millisecond},
			want:   Restart,
		},
		{
			name:       "ranged resume when bytes received",
			policy:     &Policy{MaxRetries: 3, Delay: time.Millisecond},
			retryCount: 2,
			downloaded: 10,
			want:       Resume,
		},
		{
			name:       "budget exhausted",
			policy:     &Policy{MaxRetries: 3, Delay: time.Millisecond},
			retryCount: 3,
			want:       Fail,
			wantErr:    cause,
		},
		{
			name:       "malformed policy",
			policy:     &Policy{MaxRetries: -1},
			want:       Fail,
			wantConfig: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decide(tt.policy, tt.retryCount, tt.downloaded, cause)
			if got != tt.want {
				t.Errorf("Decide() action = %v, want %v", got, tt.want)
			}
			if tt.wantConfig {
				if !domain.IsConfiguration(err) {
					t.Errorf("Decide() err = %v, want configuration error", err)
				}
				return
			}
			if err != tt.wantErr {
				t.Errorf("Decide() err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecide_NilErrorAtBudget(t *testing.T) {
	_, err := Decide(&Policy{MaxRetries: 0}, 0, 0, nil)
	if err == nil {
		t.Fatal("Decide() returned nil error at exhausted budget")
	}
}

func TestValidate(t *testing.T) {
	var nilPolicy *Policy
	if err := nilPolicy.Validate(); err != nil {
		t.Errorf("nil policy Validate() = %v", err)
	}
	if err := (&Policy{MaxRetries: 1, Delay: -time.Second}).Validate(); !domain.IsConfiguration(err) {
		t.Errorf("negative delay Validate() = %v, want configuration error", err)
	}
	if err := (&Policy{MaxRetries: 0, Delay: 0}).Validate(); err != nil {
		t.Errorf("zero policy Validate() = %v", err)
	}
}

func TestWait(t *testing.T) {
	start := time.Now()
	if err := Wait(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("Wait() = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Wait() returned after %v, want >= 20ms", elapsed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() on cancelled context = %v, want context.Canceled", err)
	}
}
