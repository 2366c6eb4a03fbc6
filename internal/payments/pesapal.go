package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"makao/internal/resilience"

	"go.uber.org/zap"
)

const (
	PesapalSandboxURL = "https://cybqa.pesapal.com/pesapalv3"
	PesapalLiveURL    = "https://pay.pesapal.com/v3"

	pesapalTokenKey = "pesapal:token"
	pesapalTokenTTL = 4 * time.Minute // tokens live for 5
	pesapalIPNTTL   = 24 * time.Hour
)

// KVCache is the subset of the shared cache the adapter needs.
type KVCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// GatewayError is a request PesaPal answered but refused. It does not count
// against the circuit breaker.
type GatewayError struct {
	Op         string
	HTTPStatus int
	Code       string
	Message    string
}

func (e *GatewayError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("pesapal %s failed: http=%d", e.Op, e.HTTPStatus)
	}
	return fmt.Sprintf("pesapal %s failed: %s", e.Op, e.Message)
}

func isGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

type PesapalConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	Env            string // sandbox or live
	IPNURL         string
	CallbackURL    string
}

type PesapalAdapter struct {
	cfg        PesapalConfig
	baseURL    string
	httpClient *http.Client
	cache      KVCache
	breaker    *resilience.Breaker
	logger     *zap.SugaredLogger
}

func NewPesapalAdapter(cfg PesapalConfig, cache KVCache, logger *zap.SugaredLogger) *PesapalAdapter {
	base := PesapalSandboxURL
	if strings.EqualFold(strings.TrimSpace(cfg.Env), "live") {
		base = PesapalLiveURL
	}
	cfg.ConsumerKey = strings.TrimSpace(cfg.ConsumerKey)
	cfg.ConsumerSecret = strings.TrimSpace(cfg.ConsumerSecret)

	return &PesapalAdapter{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
		breaker:    resilience.NewBreaker(5, 30*time.Second),
		logger:     logger,
	}
}

// WithBaseURL points the adapter at another host. Used by tests.
func (p *PesapalAdapter) WithBaseURL(u string) *PesapalAdapter {
	p.baseURL = strings.TrimRight(u, "/")
	return p
}

type pesapalError struct {
	ErrorType string `json:"error_type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (e *pesapalError) empty() bool {
	return e == nil || (e.Code == "" && e.Message == "")
}

// do sends one JSON request through the breaker and decodes the response
// into out. Non-2xx answers become a GatewayError.
func (p *PesapalAdapter) do(ctx context.Context, op, method, path, token string, body, out any) error {
	return p.breaker.Execute(func() error {
		var rdr io.Reader
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("pesapal %s encode: %w", op, err)
			}
			rdr = bytes.NewReader(b)
		}

		req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, rdr)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("pesapal %s request: %w", op, err)
		}
		defer resp.Body.Close()

		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if resp.StatusCode >= 500 {
			return fmt.Errorf("pesapal %s: http=%d body=%s", op, resp.StatusCode, string(raw))
		}
		if resp.StatusCode != http.StatusOK {
			return &GatewayError{Op: op, HTTPStatus: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("pesapal %s decode: %w body=%s", op, err, string(raw))
		}
		return nil
	}, isGatewayError)
}

func (p *PesapalAdapter) accessToken(ctx context.Context) (string, error) {
	if b, ok, _ := p.cache.Get(ctx, pesapalTokenKey); ok && len(b) > 0 {
		return string(b), nil
	}

	var res struct {
		Token      string        `json:"token"`
		ExpiryDate string        `json:"expiryDate"`
		Error      *pesapalError `json:"error"`
	}
	err := p.do(ctx, "auth", http.MethodPost, "/api/Auth/RequestToken", "", map[string]string{
		"consumer_key":    p.cfg.ConsumerKey,
		"consumer_secret": p.cfg.ConsumerSecret,
	}, &res)
	if err != nil {
		return "", err
	}
	if res.Token == "" {
		msg := "no token in response"
		if !res.Error.empty() {
			msg = res.Error.Message
		}
		return "", &GatewayError{Op: "auth", HTTPStatus: http.StatusOK, Message: msg}
	}

	if err := p.cache.Set(ctx, pesapalTokenKey, []byte(res.Token), pesapalTokenTTL); err != nil {
		p.logger.Warnw("pesapal token not cached", "error", err)
	}
	return res.Token, nil
}

// ipnID registers the IPN URL on first use and caches the id PesaPal issues.
func (p *PesapalAdapter) ipnID(ctx context.Context, token string) (string, error) {
	key := "pesapal:ipn:" + p.cfg.IPNURL
	if b, ok, _ := p.cache.Get(ctx, key); ok && len(b) > 0 {
		return string(b), nil
	}

	var res struct {
		IPNID string        `json:"ipn_id"`
		URL   string        `json:"url"`
		Error *pesapalError `json:"error"`
	}
	err := p.do(ctx, "register ipn", http.MethodPost, "/api/URLSetup/RegisterIPN", token, map[string]string{
		"url":                   p.cfg.IPNURL,
		"ipn_notification_type": "GET",
	}, &res)
	if err != nil {
		return "", err
	}
	if res.IPNID == "" {
		return "", &GatewayError{Op: "register ipn", HTTPStatus: http.StatusOK, Message: "no ipn_id in response"}
	}

	p.logger.Infow("pesapal IPN registered", "ipn_id", res.IPNID, "url", p.cfg.IPNURL)
	if err := p.cache.Set(ctx, key, []byte(res.IPNID), pesapalIPNTTL); err != nil {
		p.logger.Warnw("pesapal ipn id not cached", "error", err)
	}
	return res.IPNID, nil
}

func (p *PesapalAdapter) InitiatePayment(ctx context.Context, req PaymentRequest) (PaymentResponse, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return PaymentResponse{}, err
	}
	ipn, err := p.ipnID(ctx, token)
	if err != nil {
		return PaymentResponse{}, err
	}

	currency := req.Currency
	if currency == "" {
		currency = "KES"
	}
	callback := req.CallbackURL
	if callback == "" {
		callback = p.cfg.CallbackURL
	}

	billing := map[string]string{"country_code": "KE"}
	if req.Phone != "" {
		billing["phone_number"] = req.Phone
	}
	if req.Email != "" {
		billing["email_address"] = req.Email
	}

	payload := map[string]any{
		"id":              req.Reference,
		"currency":        currency,
		"amount":          float64(req.AmountCents) / 100,
		"description":     req.Description,
		"callback_url":    callback,
		"notification_id": ipn,
		"billing_address": billing,
	}

	var res struct {
		OrderTrackingID   string        `json:"order_tracking_id"`
		MerchantReference string        `json:"merchant_reference"`
		RedirectURL       string        `json:"redirect_url"`
		Status            string        `json:"status"`
		Error             *pesapalError `json:"error"`
	}
	if err := p.do(ctx, "submit order", http.MethodPost, "/api/Transactions/SubmitOrderRequest", token, payload, &res); err != nil {
		return PaymentResponse{}, err
	}
	if !res.Error.empty() || res.OrderTrackingID == "" || res.RedirectURL == "" {
		msg := "order was not accepted"
		code := ""
		if !res.Error.empty() {
			msg, code = res.Error.Message, res.Error.Code
		}
		return PaymentResponse{}, &GatewayError{Op: "submit order", HTTPStatus: http.StatusOK, Code: code, Message: msg}
	}

	return PaymentResponse{
		TrackingID:  res.OrderTrackingID,
		Reference:   res.MerchantReference,
		RedirectURL: res.RedirectURL,
		Raw:         res,
	}, nil
}

func (p *PesapalAdapter) VerifyPayment(ctx context.Context, req PaymentVerifyRequest) (PaymentVerifyResponse, error) {
	trackingID := strings.TrimSpace(req.TrackingID)
	if trackingID == "" {
		return PaymentVerifyResponse{}, fmt.Errorf("pesapal verify requires order tracking id")
	}

	token, err := p.accessToken(ctx)
	if err != nil {
		return PaymentVerifyResponse{}, err
	}

	var res struct {
		PaymentMethod            string        `json:"payment_method"`
		Amount                   float64       `json:"amount"`
		ConfirmationCode         string        `json:"confirmation_code"`
		PaymentStatusDescription string        `json:"payment_status_description"`
		Description              string        `json:"description"`
		StatusCode               int           `json:"status_code"`
		MerchantReference        string        `json:"merchant_reference"`
		Currency                 string        `json:"currency"`
		Error                    *pesapalError `json:"error"`
	}
	path := "/api/Transactions/GetTransactionStatus?orderTrackingId=" + url.QueryEscape(trackingID)
	if err := p.do(ctx, "transaction status", http.MethodGet, path, token, nil, &res); err != nil {
		return PaymentVerifyResponse{}, err
	}

	state := ClassifyStatus(res.PaymentStatusDescription)
	desc := res.PaymentStatusDescription
	if state != StateCompleted && res.Description != "" {
		desc = res.Description
	}

	return PaymentVerifyResponse{
		Success:     state == StateCompleted,
		State:       state,
		Terminal:    state.Terminal(),
		Description: desc,
		Receipt:     res.ConfirmationCode,
		Method:      res.PaymentMethod,
		AmountCents: int64(res.Amount*100 + 0.5),
		Raw:         res,
	}, nil
}
