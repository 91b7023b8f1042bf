package provider

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeTime struct {
	mu      sync.Mutex
	current time.Time
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

func newTestTracker(cfg HealthConfig) (*healthTracker, *fakeTime) {
	h := newHealthTracker(cfg)
	ft := &fakeTime{current: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	h.now = ft.Now
	return h, ft
}

func TestHealthTracker_BackoffDoublesAndCaps(t *testing.T) {
	t.Parallel()

	h, _ := newTestTracker(HealthConfig{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, MaxFailures: 10})

	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
	for i, w := range want {
		h.RecordFailure()
		if got := h.CurrentBackoff(); got != w {
			t.Errorf("failure %d: backoff = %v, want %v", i+1, got, w)
		}
	}
}

func TestHealthTracker_CooldownExpires(t *testing.T) {
	t.Parallel()

	h, ft := newTestTracker(HealthConfig{InitialBackoff: time.Second})
	h.RecordFailure()

	if h.IsAvailable() {
		t.Error("should be unavailable during cooldown")
	}
	ft.Advance(time.Second)
	if !h.IsAvailable() || !h.ShouldHealthCheck() {
		t.Error("should be available and probe-eligible at expiry")
	}
}

func TestHealthTracker_DeadAfterMaxFailures(t *testing.T) {
	t.Parallel()

	h, ft := newTestTracker(HealthConfig{MaxFailures: 2})
	h.RecordFailure()
	h.RecordFailure()

	if h.State() != stateDead {
		t.Fatalf("state = %v, want dead", h.State())
	}
	ft.Advance(time.Hour)
	if h.IsAvailable() {
		t.Error("dead provider must stay unavailable until a success")
	}

	h.RecordSuccess()
	if h.State() != stateHealthy || h.Failures() != 0 {
		t.Errorf("after success: state=%v failures=%d", h.State(), h.Failures())
	}
}

func TestHealthTracker_StateChangeCallback(t *testing.T) {
	t.Parallel()

	h, _ := newTestTracker(HealthConfig{MaxFailures: 2})
	var transitions []string
	h.onStateChange = func(from, to healthState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}

	h.RecordFailure()
	h.RecordFailure()
	h.RecordSuccess()

	want := []string{"healthy->cooldown", "cooldown->dead", "dead->healthy"}
	if fmt.Sprint(transitions) != fmt.Sprint(want) {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{ErrRateLimit, true},
		{fmt.Errorf("wrapped: %w", ErrProviderDown), true},
		{ErrContextLength, false},
		{ErrAuth, false},
		{errors.New("other"), false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
