package payments

import "strings"

const ProviderPesapal = "pesapal"

type PaymentRequest struct {
	Reference   string
	AmountCents int64
	Currency    string
	Description string
	CallbackURL string
	Phone       string
	Email       string
}

type PaymentResponse struct {
	TrackingID  string
	Reference   string
	RedirectURL string
	Raw         any
}

type PaymentVerifyRequest struct {
	TrackingID string
}

// State is the provider-independent view of a payment.
type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

func (s State) Terminal() bool { return s != StatePending }

type PaymentVerifyResponse struct {
	Success     bool
	State       State
	Terminal    bool
	Description string // provider's own status text
	Receipt     string // M-Pesa/card confirmation code
	Method      string
	AmountCents int64
	Raw         any
}

// ClassifyStatus maps a provider status description onto State. Anything
// else, including PesaPal's INVALID for an order not yet paid, stays pending
// so polling continues.
func ClassifyStatus(description string) State {
	switch strings.ToLower(strings.TrimSpace(description)) {
	case "completed", "success", "successful":
		return StateCompleted
	case "failed":
		return StateFailed
	case "cancelled", "canceled":
		return StateCancelled
	default:
		return StatePending
	}
}
