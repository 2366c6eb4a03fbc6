package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"makao/internal/payments"
)

var fastPoll = PollConfig{Interval: time.Millisecond, Timeout: 2 * time.Second}

func sequence(states ...payments.State) (CheckFunc, *atomic.Int32) {
	var calls atomic.Int32
	return func(context.Context) (payments.PaymentVerifyResponse, error) {
		n := int(calls.Add(1)) - 1
		s := states[len(states)-1]
		if n < len(states) {
			s = states[n]
		}
		return payments.PaymentVerifyResponse{State: s, Terminal: s.Terminal(), Success: s == payments.StateCompleted}, nil
	}, &calls
}

func TestPollStopsAtFirstTerminalState(t *testing.T) {
	check, calls := sequence(payments.StatePending, payments.StatePending, payments.StateCompleted, payments.StateFailed)

	res, outcome := Poll(context.Background(), fastPoll, check, nil)
	if outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s", outcome)
	}
	if !res.Success {
		t.Error("expected success response")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("checks = %d, want 3", n)
	}
}

func TestPollFailureStates(t *testing.T) {
	tests := map[payments.State]Outcome{
		payments.StateFailed:    OutcomeFailed,
		payments.StateCancelled: OutcomeCancelled,
	}
	for state, want := range tests {
		check, _ := sequence(payments.StatePending, state)
		if _, got := Poll(context.Background(), fastPoll, check, nil); got != want {
			t.Errorf("%s: outcome = %s, want %s", state, got, want)
		}
	}
}

func TestPollTimesOutWhilePending(t *testing.T) {
	check, calls := sequence(payments.StatePending)
	cfg := PollConfig{Interval: 2 * time.Millisecond, Timeout: 30 * time.Millisecond}

	start := time.Now()
	_, outcome := Poll(context.Background(), cfg, check, nil)
	if outcome != OutcomeTimeout {
		t.Fatalf("outcome = %s", outcome)
	}
	if elapsed := time.Since(start); elapsed < cfg.Timeout {
		t.Errorf("returned after %v, before the timeout", elapsed)
	}
	if calls.Load() == 0 {
		t.Error("expected at least one check before timing out")
	}
}

func TestPollContinuesAfterTransientErrors(t *testing.T) {
	var calls atomic.Int32
	var errs atomic.Int32
	check := func(context.Context) (payments.PaymentVerifyResponse, error) {
		if calls.Add(1) <= 3 {
			return payments.PaymentVerifyResponse{}, errors.New("connection reset")
		}
		return payments.PaymentVerifyResponse{State: payments.StateCompleted, Terminal: true, Success: true}, nil
	}

	_, outcome := Poll(context.Background(), fastPoll, check, func(error) { errs.Add(1) })
	if outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s", outcome)
	}
	if errs.Load() != 3 {
		t.Errorf("errors reported = %d, want 3", errs.Load())
	}
}

func TestPollAbortsOnCancel(t *testing.T) {
	check, _ := sequence(payments.StatePending)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, outcome := Poll(ctx, PollConfig{Interval: time.Millisecond, Timeout: time.Minute}, check, nil)
	if outcome != OutcomeAborted {
		t.Fatalf("outcome = %s", outcome)
	}
}

func TestPollWaitsOneIntervalBeforeFirstCheck(t *testing.T) {
	check, calls := sequence(payments.StateCompleted)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, outcome := Poll(ctx, PollConfig{Interval: time.Hour, Timeout: time.Hour}, check, nil)
	if outcome != OutcomeAborted || calls.Load() != 0 {
		t.Fatalf("outcome = %s, checks = %d", outcome, calls.Load())
	}
}

func TestPollKeepsGoingOnUnpaidDescriptions(t *testing.T) {
	for _, desc := range []string{"INVALID", "REVERSED"} {
		var calls atomic.Int32
		check := func(context.Context) (payments.PaymentVerifyResponse, error) {
			calls.Add(1)
			s := payments.ClassifyStatus(desc)
			return payments.PaymentVerifyResponse{State: s, Terminal: s.Terminal()}, nil
		}
		cfg := PollConfig{Interval: 2 * time.Millisecond, Timeout: 30 * time.Millisecond}

		if _, outcome := Poll(context.Background(), cfg, check, nil); outcome != OutcomeTimeout {
			t.Errorf("%s: outcome = %s, want timeout", desc, outcome)
		}
		if n := calls.Load(); n < 2 {
			t.Errorf("%s: checks = %d, want polling to continue", desc, n)
		}
	}
}
