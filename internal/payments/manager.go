package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownProvider = errors.New("payment provider not registered")

// PaymentManager routes calls to a registered gateway by provider name. The
// first gateway registered also serves payments stored without a provider.
type PaymentManager struct {
	gateways map[string]PaymentGateway
	fallback string
}

func NewPaymentManager() *PaymentManager {
	return &PaymentManager{gateways: make(map[string]PaymentGateway)}
}

func (m *PaymentManager) RegisterGateway(name string, gateway PaymentGateway) {
	name = strings.ToLower(strings.TrimSpace(name))
	if m.fallback == "" {
		m.fallback = name
	}
	m.gateways[name] = gateway
}

func (m *PaymentManager) Gateway(name string) (PaymentGateway, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = m.fallback
	}
	g, ok := m.gateways[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return g, nil
}

func (m *PaymentManager) InitiatePayment(ctx context.Context, provider string, req PaymentRequest) (PaymentResponse, error) {
	g, err := m.Gateway(provider)
	if err != nil {
		return PaymentResponse{}, err
	}
	return g.InitiatePayment(ctx, req)
}

// VerifyPayment asks the payment's provider for its current state.
func (m *PaymentManager) VerifyPayment(ctx context.Context, provider string, req PaymentVerifyRequest) (PaymentVerifyResponse, error) {
	g, err := m.Gateway(provider)
	if err != nil {
		return PaymentVerifyResponse{}, err
	}
	return g.VerifyPayment(ctx, req)
}
