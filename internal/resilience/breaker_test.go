package resilience

import (
	"errors"
	"testing"
	"time"
)

var errDown = errors.New("gateway down")

func fail() error { return errDown }
func ok() error   { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		if err := b.Execute(fail); !errors.Is(err, errDown) {
			t.Fatalf("call %d: got %v", i, err)
		}
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn must not run while open")
	}
	if b.State() != "open" {
		t.Errorf("state = %s", b.State())
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(2, time.Minute)

	_ = b.Execute(fail)
	_ = b.Execute(ok)
	_ = b.Execute(fail)

	if b.State() != "closed" {
		t.Fatalf("non-consecutive failures should not trip, state = %s", b.State())
	}
}

func TestBreakerHalfOpenTrial(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker(1, time.Second)
	b.now = func() time.Time { return now }

	_ = b.Execute(fail)
	if err := b.Execute(ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open, got %v", err)
	}

	now = now.Add(2 * time.Second)
	if err := b.Execute(fail); !errors.Is(err, errDown) {
		t.Fatalf("trial call should run, got %v", err)
	}
	if b.State() != "open" {
		t.Fatalf("failed trial should re-open, state = %s", b.State())
	}

	now = now.Add(2 * time.Second)
	if err := b.Execute(ok); err != nil {
		t.Fatalf("trial call: %v", err)
	}
	if b.State() != "closed" {
		t.Fatalf("successful trial should close, state = %s", b.State())
	}
}

func TestBreakerIgnoredErrorsDoNotTrip(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	declined := errors.New("declined")

	for i := 0; i < 3; i++ {
		err := b.Execute(func() error { return declined }, func(err error) bool { return errors.Is(err, declined) })
		if !errors.Is(err, declined) {
			t.Fatalf("got %v", err)
		}
	}
	if b.State() != "closed" {
		t.Errorf("state = %s", b.State())
	}
}
