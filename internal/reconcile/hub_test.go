package reconcile

import (
	"testing"

	"makao/internal/domain/paymentsrepo"
)

func TestHubDeliversOnlyToPaymentSubscribers(t *testing.T) {
	h := NewHub()
	a, unsubA := h.Subscribe(1)
	b, unsubB := h.Subscribe(2)
	defer unsubB()

	h.Publish(Update{PaymentID: 1, Status: "completed"})

	if u := <-a; u.Status != "completed" {
		t.Errorf("got %+v", u)
	}
	select {
	case u := <-b:
		t.Errorf("unexpected update %+v", u)
	default:
	}

	unsubA()
	unsubA()
	if _, open := <-a; open {
		t.Error("channel should be closed after unsubscribe")
	}
	if h.Subscribers(1) != 0 {
		t.Error("subscriber not removed")
	}
}

func TestHubCloseEndsSubscriptions(t *testing.T) {
	h := NewHub()
	a, unsubA := h.Subscribe(1)
	b, unsubB := h.Subscribe(2)

	h.Close()
	if _, open := <-a; open {
		t.Error("subscription to payment 1 still open")
	}
	if _, open := <-b; open {
		t.Error("subscription to payment 2 still open")
	}
	unsubA()
	unsubB()
	h.Publish(Update{PaymentID: 1})

	late, unsub := h.Subscribe(3)
	defer unsub()
	if _, open := <-late; open {
		t.Error("subscription after Close should be closed")
	}
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	h := NewHub()
	_, unsub := h.Subscribe(1)
	defer unsub()

	for i := 0; i < 100; i++ {
		h.Publish(Update{PaymentID: 1})
	}
}

func TestDescribe(t *testing.T) {
	reason := "Insufficient funds"
	tests := []struct {
		p        paymentsrepo.Payment
		kind     string
		terminal bool
		message  string
	}{
		{paymentsrepo.Payment{Status: paymentsrepo.StatusCompleted}, "success", true, "Payment completed successfully"},
		{paymentsrepo.Payment{Status: paymentsrepo.StatusFailed, FailureReason: &reason}, "error", true, "Payment failed: Insufficient funds"},
		{paymentsrepo.Payment{Status: paymentsrepo.StatusCancelled}, "error", true, "Payment was cancelled"},
		{paymentsrepo.Payment{Status: paymentsrepo.StatusPending}, "pending", false, "Waiting for payment confirmation"},
	}
	for _, tt := range tests {
		u := Describe(&tt.p)
		if u.Type != tt.kind || u.Terminal != tt.terminal || u.Message != tt.message {
			t.Errorf("Describe(%s) = %+v", tt.p.Status, u)
		}
	}
}
