package ratelimiter

import (
	"testing"
	"time"
)

func TestFixedWindowLimits(t *testing.T) {
	rl := NewFixedWindowLimiter(2, time.Minute)
	defer rl.Stop()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := rl.Allow("1.2.3.4"); !ok {
			t.Fatalf("request %d rejected", i+1)
		}
	}

	now = now.Add(20 * time.Second)
	ok, retry := rl.Allow("1.2.3.4")
	if ok || retry != 40*time.Second {
		t.Fatalf("third request: ok=%v retry=%v", ok, retry)
	}

	if ok, _ := rl.Allow("5.6.7.8"); !ok {
		t.Fatal("other client should not be limited")
	}

	now = now.Add(40 * time.Second)
	if ok, _ := rl.Allow("1.2.3.4"); !ok {
		t.Fatal("new window should allow requests")
	}
}

var _ Limiter = (*FixedWindowRateLimiter)(nil)
