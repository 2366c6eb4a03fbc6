package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLocalBusDeliversToSubscribers(t *testing.T) {
	bus := NewLocalBus(zap.NewNop().Sugar())
	got := make(chan PaymentSettled, 1)

	stop, err := bus.Subscribe(context.Background(), SubjectPaymentSettled, "test", func(_ context.Context, _ string, data []byte) error {
		var ev PaymentSettled
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		got <- ev
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	if err := bus.Publish(context.Background(), SubjectPaymentSettled, PaymentSettled{PaymentID: 7, Status: "completed"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case ev := <-got:
		if ev.PaymentID != 7 || ev.Status != "completed" {
			t.Errorf("got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	_ = bus.Close()
}

func TestLocalBusStoppedSubscriberGetsNothing(t *testing.T) {
	bus := NewLocalBus(zap.NewNop().Sugar())
	called := make(chan struct{}, 1)

	stop, _ := bus.Subscribe(context.Background(), SubjectReportCreated, "test", func(context.Context, string, []byte) error {
		called <- struct{}{}
		return nil
	})
	stop()

	_ = bus.Publish(context.Background(), SubjectReportCreated, ReportCreated{ReportID: 1})
	_ = bus.Close()

	select {
	case <-called:
		t.Fatal("stopped subscriber was called")
	default:
	}
}

func TestLocalBusOtherSubjectIgnored(t *testing.T) {
	bus := NewLocalBus(zap.NewNop().Sugar())
	called := make(chan struct{}, 1)

	_, _ = bus.Subscribe(context.Background(), SubjectPaymentSettled, "test", func(context.Context, string, []byte) error {
		called <- struct{}{}
		return nil
	})
	_ = bus.Publish(context.Background(), SubjectReportCreated, ReportCreated{ReportID: 1})
	_ = bus.Close()

	if len(called) != 0 {
		t.Fatal("handler called for a different subject")
	}
}
