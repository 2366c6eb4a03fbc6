package main

import (
	"encoding/json"
	"net/http"
	"testing"

	"makao/internal/domain/paymentsrepo"
)

func TestPesapalIPN(t *testing.T) {
	env := newTestApplication(t)
	env.payments.byID[1] = &paymentsrepo.Payment{ID: 1, TenantID: 2, Status: paymentsrepo.StatusCompleted,
		OrderTrackingID: func() *string { s := "track-1"; return &s }()}

	decodeAck := func(t *testing.T, body []byte) ipnAck {
		t.Helper()
		var ack ipnAck
		if err := json.Unmarshal(body, &ack); err != nil {
			t.Fatal(err)
		}
		return ack
	}

	t.Run("missing tracking id", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/v1/payments/pesapal/ipn", "", nil)
		checkResponseCode(t, http.StatusBadRequest, rr)
	})

	t.Run("known order is acknowledged", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/v1/payments/pesapal/ipn?OrderTrackingId=track-1&OrderMerchantReference=RENT-1", "", nil)
		checkResponseCode(t, http.StatusOK, rr)

		ack := decodeAck(t, rr.Body.Bytes())
		if ack.OrderTrackingID != "track-1" || ack.Status != http.StatusOK || ack.OrderNotificationType != "IPNCHANGE" {
			t.Errorf("ack = %+v", ack)
		}
	})

	t.Run("unknown order is acknowledged", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/v1/payments/pesapal/ipn?OrderTrackingId=nope", "", nil)
		checkResponseCode(t, http.StatusOK, rr)
	})

	t.Run("processing failure asks for a retry", func(t *testing.T) {
		env.tracker.refresh = errBoom
		defer func() { env.tracker.refresh = nil }()

		rr := env.do(t, http.MethodGet, "/v1/payments/pesapal/ipn?OrderTrackingId=track-1", "", nil)
		checkResponseCode(t, http.StatusInternalServerError, rr)
		if ack := decodeAck(t, rr.Body.Bytes()); ack.Status != http.StatusInternalServerError {
			t.Errorf("ack status = %d", ack.Status)
		}
	})
}
