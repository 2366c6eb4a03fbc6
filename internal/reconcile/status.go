package reconcile

import "makao/internal/domain/paymentsrepo"

// Update is one status transition pushed to stream subscribers.
type Update struct {
	PaymentID int64  `json:"payment_id"`
	Status    string `json:"status"`
	Type      string `json:"type"` // success, error or pending
	Message   string `json:"message"`
	Terminal  bool   `json:"terminal"`
	TimedOut  bool   `json:"timed_out,omitempty"`
}

const timeoutMessage = "Payment confirmation is taking longer than expected. Your balance will update once PesaPal confirms the payment."

// Describe renders a stored payment as the status object shown to payers.
func Describe(p *paymentsrepo.Payment) Update {
	u := Update{PaymentID: p.ID, Status: p.Status, Terminal: paymentsrepo.IsTerminal(p.Status)}
	switch p.Status {
	case paymentsrepo.StatusCompleted:
		u.Type, u.Message = "success", "Payment completed successfully"
	case paymentsrepo.StatusFailed:
		u.Type, u.Message = "error", "Payment failed"
		if p.FailureReason != nil && *p.FailureReason != "" {
			u.Message = "Payment failed: " + *p.FailureReason
		}
	case paymentsrepo.StatusCancelled:
		u.Type, u.Message = "error", "Payment was cancelled"
	default:
		u.Type, u.Message = "pending", "Waiting for payment confirmation"
	}
	return u
}

func timedOut(p *paymentsrepo.Payment) Update {
	u := Describe(p)
	u.TimedOut = true
	u.Message = timeoutMessage
	return u
}
