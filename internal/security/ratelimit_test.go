package security

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_PerKeyLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(3)
	for i := range 3 {
		if err := rl.Allow("alice"); err != nil {
			t.Fatalf("Allow(%d): %v", i, err)
		}
	}
	if err := rl.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := rl.Allow("bob"); err != nil {
		t.Errorf("other key limited: %v", err)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2)
	rl.now = func() time.Time { return now }

	_ = rl.Allow("u")
	_ = rl.Allow("u")
	if err := rl.Allow("u"); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected rate limit")
	}

	now = now.Add(61 * time.Second)
	if err := rl.Allow("u"); err != nil {
		t.Fatalf("expected allow after window, got %v", err)
	}
}

func TestRateLimiter_DisabledIsNil(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0)
	if rl != nil {
		t.Fatal("expected nil limiter")
	}
	for range 100 {
		if err := rl.Allow("u"); err != nil {
			t.Fatalf("nil limiter denied: %v", err)
		}
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(50)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("u") == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}
