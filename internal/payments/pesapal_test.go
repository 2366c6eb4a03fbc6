package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"makao/internal/resilience"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type memCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = map[string][]byte{}
	}
	c.m[key] = value
	return nil
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache full")
}

type fakePesapal struct {
	authCalls  atomic.Int32
	ipnCalls   atomic.Int32
	lastOrder  map[string]any
	status     string
	orderError bool
	statusCode int
	mu         sync.Mutex
}

func (f *fakePesapal) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/Auth/RequestToken", func(w http.ResponseWriter, r *http.Request) {
		f.authCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "tok-1", "status": "200"})
	})
	mux.HandleFunc("POST /api/URLSetup/RegisterIPN", func(w http.ResponseWriter, r *http.Request) {
		f.ipnCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			t.Errorf("register ipn: missing bearer token")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ipn_id": "ipn-9"})
	})
	mux.HandleFunc("POST /api/Transactions/SubmitOrderRequest", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.lastOrder = body
		f.mu.Unlock()
		if f.orderError {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":  map[string]string{"code": "invalid_amount", "message": "Amount is invalid"},
				"status": "500",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"order_tracking_id":  "trk-1",
			"merchant_reference": body["id"],
			"redirect_url":       "https://pay.example/iframe/trk-1",
			"status":             "200",
		})
	})
	mux.HandleFunc("GET /api/Transactions/GetTransactionStatus", func(w http.ResponseWriter, r *http.Request) {
		if f.statusCode != 0 {
			w.WriteHeader(f.statusCode)
			return
		}
		if r.URL.Query().Get("orderTrackingId") != "trk-1" {
			t.Errorf("unexpected tracking id %q", r.URL.Query().Get("orderTrackingId"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"payment_method":             "MpesaKE",
			"amount":                     1035.0,
			"confirmation_code":          "QWE123RTY",
			"payment_status_description": f.status,
			"status_code":                1,
		})
	})
	return mux
}

func newTestAdapter(t *testing.T, f *fakePesapal) *PesapalAdapter {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	cfg := PesapalConfig{ConsumerKey: " key ", ConsumerSecret: "secret", IPNURL: "https://api.example/ipn", CallbackURL: "https://api.example/return"}
	return NewPesapalAdapter(cfg, &memCache{}, zap.NewNop().Sugar()).WithBaseURL(srv.URL)
}

func TestPesapalInitiateCachesTokenAndIPN(t *testing.T) {
	f := &fakePesapal{}
	a := newTestAdapter(t, f)
	ctx := context.Background()

	req := PaymentRequest{Reference: "RENT-1-ABCDEF12", AmountCents: 1035_00, Description: "Rent", Phone: "254712345678", Email: "t@example.com"}
	for i := 0; i < 2; i++ {
		res, err := a.InitiatePayment(ctx, req)
		if err != nil {
			t.Fatalf("InitiatePayment: %v", err)
		}
		if res.TrackingID != "trk-1" || res.RedirectURL == "" {
			t.Fatalf("unexpected response %+v", res)
		}
	}

	if n := f.authCalls.Load(); n != 1 {
		t.Errorf("auth calls = %d, want 1", n)
	}
	if n := f.ipnCalls.Load(); n != 1 {
		t.Errorf("ipn registrations = %d, want 1", n)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastOrder["notification_id"] != "ipn-9" {
		t.Errorf("notification_id = %v", f.lastOrder["notification_id"])
	}
	if f.lastOrder["amount"] != 1035.0 {
		t.Errorf("amount = %v", f.lastOrder["amount"])
	}
	if f.lastOrder["currency"] != "KES" {
		t.Errorf("currency = %v", f.lastOrder["currency"])
	}
	billing, _ := f.lastOrder["billing_address"].(map[string]any)
	if billing["phone_number"] != "254712345678" || billing["country_code"] != "KE" {
		t.Errorf("billing = %v", billing)
	}
}

func TestPesapalLogsCacheWriteFailures(t *testing.T) {
	srv := httptest.NewServer((&fakePesapal{}).handler(t))
	t.Cleanup(srv.Close)
	core, logs := observer.New(zapcore.WarnLevel)

	cfg := PesapalConfig{ConsumerKey: "key", ConsumerSecret: "secret", IPNURL: "https://api.example/ipn"}
	a := NewPesapalAdapter(cfg, failingCache{}, zap.New(core).Sugar()).WithBaseURL(srv.URL)

	if _, err := a.InitiatePayment(context.Background(), PaymentRequest{Reference: "RENT-1-X", AmountCents: 100_00}); err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}
	for _, msg := range []string{"pesapal token not cached", "pesapal ipn id not cached"} {
		if logs.FilterMessage(msg).Len() != 1 {
			t.Errorf("expected warning %q, got %v", msg, logs.All())
		}
	}
}

func TestPesapalInitiateRejected(t *testing.T) {
	f := &fakePesapal{orderError: true}
	a := newTestAdapter(t, f)

	_, err := a.InitiatePayment(context.Background(), PaymentRequest{Reference: "R", AmountCents: 100_00})
	var ge *GatewayError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if ge.Message != "Amount is invalid" {
		t.Errorf("message = %q", ge.Message)
	}
	if a.breaker.State() != "closed" {
		t.Errorf("declined orders must not trip the breaker")
	}
}

func TestPesapalVerify(t *testing.T) {
	tests := []struct {
		status   string
		state    State
		terminal bool
	}{
		{"Completed", StateCompleted, true},
		{"FAILED", StateFailed, true},
		{"INVALID", StatePending, false},
		{"PENDING", StatePending, false},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			a := newTestAdapter(t, &fakePesapal{status: tt.status})
			res, err := a.VerifyPayment(context.Background(), PaymentVerifyRequest{TrackingID: "trk-1"})
			if err != nil {
				t.Fatalf("VerifyPayment: %v", err)
			}
			if res.State != tt.state || res.Terminal != tt.terminal {
				t.Errorf("got state=%s terminal=%v", res.State, res.Terminal)
			}
			if res.Success != (tt.state == StateCompleted) {
				t.Errorf("success = %v", res.Success)
			}
			if res.Receipt != "QWE123RTY" || res.AmountCents != 1035_00 {
				t.Errorf("receipt=%q amount=%d", res.Receipt, res.AmountCents)
			}
		})
	}
}

func TestPesapalServerErrorsTripBreaker(t *testing.T) {
	a := newTestAdapter(t, &fakePesapal{statusCode: http.StatusBadGateway})
	a.breaker = resilience.NewBreaker(2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := a.VerifyPayment(ctx, PaymentVerifyRequest{TrackingID: "trk-1"}); err == nil {
			t.Fatal("expected error")
		}
	}
	_, err := a.VerifyPayment(ctx, PaymentVerifyRequest{TrackingID: "trk-1"})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
}

func TestPesapalVerifyRequiresTrackingID(t *testing.T) {
	a := newTestAdapter(t, &fakePesapal{})
	if _, err := a.VerifyPayment(context.Background(), PaymentVerifyRequest{}); err == nil {
		t.Fatal("expected error")
	}
}
