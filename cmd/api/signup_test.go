package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"makao/internal/cache"
	"makao/internal/domain/paymentsrepo"
	"makao/internal/onboarding"
)

func withWizard(t *testing.T, env *testEnv) {
	t.Helper()
	kv, err := cache.New(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(kv.Close)

	codes, err := onboarding.NewCodeGenerator("test-salt")
	if err != nil {
		t.Fatal(err)
	}
	env.app.wizard = onboarding.NewWizard(kv, env.app.store.Users, env.app.store.Units)
	env.app.codes = codes
}

func TestLandlordSignup(t *testing.T) {
	env := newTestApplication(t)
	withWizard(t, env)

	rr := env.do(t, http.MethodPost, "/v1/signup", "", StartSignupPayload{UserType: "landlord"})
	checkResponseCode(t, http.StatusCreated, rr)
	var s onboarding.Session
	decodeData(t, rr, &s)

	step := func(n int, body string) *onboarding.Session {
		t.Helper()
		rr := env.do(t, http.MethodPost, fmt.Sprintf("/v1/signup/%s/steps/%d", s.ID, n), "", json.RawMessage(body))
		checkResponseCode(t, http.StatusOK, rr)
		var out onboarding.Session
		decodeData(t, rr, &out)
		return &out
	}

	rr = env.do(t, http.MethodPost, fmt.Sprintf("/v1/signup/%s/steps/%d", s.ID, onboarding.LandlordStepProperties), "",
		json.RawMessage(`{"properties":[]}`))
	checkResponseCode(t, http.StatusConflict, rr)

	step(onboarding.LandlordStepPersonal, `{"full_name":"Lana Landlord","national_id":"AB1234567","mpesa_till_number":"123456",
		"email":"lana@example.com","phone_number":"0712345678","address":"Moi Avenue","password":"Passw0rd","confirm_password":"Passw0rd"}`)
	step(onboarding.LandlordStepProperties, `{"properties":[
		{"name":"Sunrise","address":"Thika Rd","units":[{"unit_number":"A1","rent_cents":1500000},{"unit_number":"A2","rent_cents":1500000}]}]}`)
	last := step(onboarding.LandlordStepPayment, `{"mpesa_phone":"0712345678"}`)
	if !last.Complete {
		t.Fatalf("session not complete: %+v", last)
	}

	rr = env.do(t, http.MethodPost, "/v1/signup/"+s.ID+"/complete", "", nil)
	checkResponseCode(t, http.StatusCreated, rr)

	var res CompleteSignupResponse
	decodeData(t, rr, &res)
	if res.User == nil || res.User.LandlordCode == nil || res.AccessToken == "" {
		t.Fatalf("response = %+v", res)
	}
	if res.Payment == nil || res.PaymentError != "" {
		t.Fatalf("subscription checkout not opened: %q", res.PaymentError)
	}
	if res.Payment.AmountCents != 200_000 {
		t.Errorf("subscription amount = %d, want starter price", res.Payment.AmountCents)
	}

	if len(env.props.byID) != 1 || len(env.units.byID) != 2 {
		t.Errorf("portfolio = %d properties, %d units", len(env.props.byID), len(env.units.byID))
	}
	if m := env.tracker.markers; len(m) != 1 || m[0].PaymentType != paymentsrepo.TypeSubscription || m[0].UnitID != 0 {
		t.Errorf("markers = %+v", m)
	}

	rr = env.do(t, http.MethodGet, "/v1/signup/"+s.ID, "", nil)
	checkResponseCode(t, http.StatusNotFound, rr)
}

func TestSubscriptionPlans(t *testing.T) {
	env := newTestApplication(t)
	rr := env.do(t, http.MethodGet, "/v1/signup/plans", "", nil)
	checkResponseCode(t, http.StatusOK, rr)
}
