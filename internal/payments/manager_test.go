package payments

import (
	"context"
	"errors"
	"testing"
)

type stubGateway struct{ name string }

func (g stubGateway) InitiatePayment(context.Context, PaymentRequest) (PaymentResponse, error) {
	return PaymentResponse{Reference: g.name}, nil
}

func (g stubGateway) VerifyPayment(context.Context, PaymentVerifyRequest) (PaymentVerifyResponse, error) {
	return PaymentVerifyResponse{Description: g.name}, nil
}

func TestPaymentManagerRouting(t *testing.T) {
	m := NewPaymentManager()
	m.RegisterGateway("PesaPal", stubGateway{name: "pesapal"})
	m.RegisterGateway("other", stubGateway{name: "other"})

	tests := []struct {
		provider string
		want     string
	}{
		{ProviderPesapal, "pesapal"},
		{" OTHER ", "other"},
		{"", "pesapal"},
	}
	for _, tt := range tests {
		res, err := m.VerifyPayment(context.Background(), tt.provider, PaymentVerifyRequest{TrackingID: "t"})
		if err != nil {
			t.Fatalf("provider %q: %v", tt.provider, err)
		}
		if res.Description != tt.want {
			t.Errorf("provider %q routed to %q, want %q", tt.provider, res.Description, tt.want)
		}
	}

	if _, err := m.InitiatePayment(context.Background(), "mpesa", PaymentRequest{}); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("unknown provider error = %v, want ErrUnknownProvider", err)
	}
}
