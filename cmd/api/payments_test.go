package main

import (
	"net/http"
	"testing"

	"makao/internal/domain/paymentsrepo"
	"makao/internal/domain/users"
)

func TestCreateRentPayment(t *testing.T) {
	newEnv := func(t *testing.T) (*testEnv, string) {
		env := newTestApplication(t)
		tenant := env.addUser(t, 2, "tenant@example.com", users.Tenant)
		env.addUser(t, 1, "landlord@example.com", users.Landlord)
		env.addProperty(10, 1)
		env.addUnit(100, 10, 1, int64p(2))
		return env, env.token(t, tenant)
	}

	t.Run("opens a checkout with the fee added", func(t *testing.T) {
		env, tok := newEnv(t)
		rr := env.do(t, http.MethodPost, "/v1/payments/rent/100", tok, RentPaymentPayload{
			AmountCents: 500_000, PhoneNumber: "0712345678",
		})
		checkResponseCode(t, http.StatusCreated, rr)

		var res PaymentInitResponse
		decodeData(t, rr, &res)
		if res.FeeCents != 17_500 || res.TotalCents != 517_500 {
			t.Errorf("fee/total = %d/%d, want 17500/517500", res.FeeCents, res.TotalCents)
		}
		if res.RedirectURL == "" || res.OrderTrackingID == "" {
			t.Errorf("expected redirect and tracking id, got %+v", res)
		}

		if len(env.gateway.reqs) != 1 {
			t.Fatalf("gateway called %d times", len(env.gateway.reqs))
		}
		req := env.gateway.reqs[0]
		if req.AmountCents != 517_500 || req.Phone != "254712345678" {
			t.Errorf("gateway request = %+v", req)
		}

		if len(env.tracker.markers) != 1 {
			t.Fatalf("expected one tracked marker, got %d", len(env.tracker.markers))
		}
		m := env.tracker.markers[0]
		if m.PaymentID != res.PaymentID || m.UnitID != 100 || m.PaymentType != paymentsrepo.TypeRent {
			t.Errorf("marker = %+v", m)
		}

		p := env.payments.byID[res.PaymentID]
		if p.AmountCents != 500_000 || p.Status != paymentsrepo.StatusPending {
			t.Errorf("stored payment = %+v", p)
		}
	})

	t.Run("months fix the amount", func(t *testing.T) {
		env, tok := newEnv(t)
		rr := env.do(t, http.MethodPost, "/v1/payments/rent/100", tok, RentPaymentPayload{
			AmountCents: 123, Months: 2, PhoneNumber: "0712345678",
		})
		checkResponseCode(t, http.StatusBadRequest, rr)
		if len(env.gateway.reqs) != 0 {
			t.Error("gateway must not be called")
		}
	})

	t.Run("amount above the balance is refused", func(t *testing.T) {
		env, tok := newEnv(t)
		rr := env.do(t, http.MethodPost, "/v1/payments/rent/100", tok, RentPaymentPayload{
			AmountCents: 2_000_000, PhoneNumber: "0712345678",
		})
		checkResponseCode(t, http.StatusBadRequest, rr)
	})

	t.Run("someone else's unit is forbidden", func(t *testing.T) {
		env, _ := newEnv(t)
		other := env.addUser(t, 3, "other@example.com", users.Tenant)
		rr := env.do(t, http.MethodPost, "/v1/payments/rent/100", env.token(t, other), RentPaymentPayload{
			AmountCents: 100_000, PhoneNumber: "0712345678",
		})
		checkResponseCode(t, http.StatusForbidden, rr)
	})

	t.Run("gateway refusal marks the payment failed", func(t *testing.T) {
		env, tok := newEnv(t)
		env.gateway.err = errBoom
		rr := env.do(t, http.MethodPost, "/v1/payments/rent/100", tok, RentPaymentPayload{
			AmountCents: 100_000, PhoneNumber: "0712345678",
		})
		checkResponseCode(t, http.StatusBadRequest, rr)

		if len(env.tracker.markers) != 0 {
			t.Error("failed payment must not be tracked")
		}
		p := env.payments.byID[1]
		if p == nil || p.Status != paymentsrepo.StatusFailed {
			t.Fatalf("payment = %+v, want failed", p)
		}
		if p.FailureReason == nil || *p.FailureReason != "boom" {
			t.Errorf("failure reason = %v", p.FailureReason)
		}
	})
}

func TestCreateDepositPayment(t *testing.T) {
	env := newTestApplication(t)
	env.addUser(t, 1, "landlord@example.com", users.Landlord)
	tenant := env.addUser(t, 2, "tenant@example.com", users.Tenant)
	env.addProperty(10, 1)
	env.addUnit(100, 10, 1, nil)
	env.addUnit(101, 10, 1, int64p(9))
	tok := env.token(t, tenant)

	rr := env.do(t, http.MethodPost, "/v1/payments/deposit", tok, DepositPaymentPayload{UnitID: 101, PhoneNumber: "0712345678"})
	checkResponseCode(t, http.StatusConflict, rr)

	rr = env.do(t, http.MethodPost, "/v1/payments/deposit", tok, DepositPaymentPayload{UnitID: 100, PhoneNumber: "0712345678"})
	checkResponseCode(t, http.StatusCreated, rr)
	if len(env.tracker.markers) != 1 || env.tracker.markers[0].PaymentType != paymentsrepo.TypeDeposit {
		t.Errorf("markers = %+v", env.tracker.markers)
	}
}

func TestPaymentVisibility(t *testing.T) {
	env := newTestApplication(t)
	env.addUser(t, 1, "landlord@example.com", users.Landlord)
	tenant := env.addUser(t, 2, "tenant@example.com", users.Tenant)
	stranger := env.addUser(t, 3, "stranger@example.com", users.Tenant)
	otherLandlord := env.addUser(t, 4, "other@example.com", users.Landlord)
	env.addProperty(10, 1)
	env.addUnit(100, 10, 1, int64p(2))
	env.payments.byID[1] = &paymentsrepo.Payment{ID: 1, TenantID: 2, UnitID: int64p(100),
		Type: paymentsrepo.TypeRent, Status: paymentsrepo.StatusCompleted}

	cases := []struct {
		name string
		user *users.User
		want int
	}{
		{"payer", tenant, http.StatusOK},
		{"landlord of the unit", env.users.byID[1], http.StatusOK},
		{"another tenant", stranger, http.StatusForbidden},
		{"another landlord", otherLandlord, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, "/v1/payments/1/status", env.token(t, tc.user), nil)
			checkResponseCode(t, tc.want, rr)
		})
	}

	rr := env.do(t, http.MethodGet, "/v1/payments/99/status", env.token(t, tenant), nil)
	checkResponseCode(t, http.StatusNotFound, rr)
}
