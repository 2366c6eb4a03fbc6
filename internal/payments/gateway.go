package payments

import "context"

// PaymentGateway is a hosted-checkout provider: InitiatePayment returns a URL
// the payer completes the payment on, VerifyPayment asks the provider for the
// authoritative state of that payment.
type PaymentGateway interface {
	InitiatePayment(ctx context.Context, req PaymentRequest) (PaymentResponse, error)
	VerifyPayment(ctx context.Context, req PaymentVerifyRequest) (PaymentVerifyResponse, error)
}
