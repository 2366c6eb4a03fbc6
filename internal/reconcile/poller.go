// Package reconcile drives pending payments to a terminal state. A poll loop
// per payment and the gateway's callbacks feed one Tracker, which settles
// each payment exactly once.
package reconcile

import (
	"context"
	"time"

	"makao/internal/payments"
)

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeAborted   Outcome = "aborted"
)

func outcomeFor(s payments.State) Outcome {
	switch s {
	case payments.StateCompleted:
		return OutcomeCompleted
	case payments.StateCancelled:
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}

type PollConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

func DefaultPollConfig() PollConfig {
	return PollConfig{Interval: 3 * time.Second, Timeout: 300 * time.Second}
}

type CheckFunc func(ctx context.Context) (payments.PaymentVerifyResponse, error)

// Poll calls check once per interval until it reports a terminal state, the
// timeout elapses, or ctx is cancelled. Check errors are passed to onError and
// polling continues.
func Poll(ctx context.Context, cfg PollConfig, check CheckFunc, onError func(error)) (payments.PaymentVerifyResponse, Outcome) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	deadline := time.NewTimer(cfg.Timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return payments.PaymentVerifyResponse{}, OutcomeAborted
		case <-deadline.C:
			return payments.PaymentVerifyResponse{}, OutcomeTimeout
		case <-ticker.C:
			if ctx.Err() != nil {
				return payments.PaymentVerifyResponse{}, OutcomeAborted
			}
			res, err := check(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return payments.PaymentVerifyResponse{}, OutcomeAborted
				}
				if onError != nil {
					onError(err)
				}
				continue
			}
			if res.Terminal {
				return res, outcomeFor(res.State)
			}
		}
	}
}
