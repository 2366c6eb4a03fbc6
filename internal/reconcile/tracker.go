package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"makao/internal/domain/paymentsrepo"
	"makao/internal/events"
	"makao/internal/payments"

	"go.uber.org/zap"
)

// Settlement is a terminal result reported by the gateway.
type Settlement struct {
	PaymentID int64          `json:"payment_id"`
	State     payments.State `json:"state"`
	Receipt   string         `json:"receipt,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Method    string         `json:"method,omitempty"`
	Source    string         `json:"source"`
}

const (
	SourcePoll   = "poll"
	SourceIPN    = "ipn"
	SourceReturn = "return"
	SourceStatus = "status"
)

// Ledger persists payment state. Settle must apply the transition and its
// effects atomically and report applied=false when the payment was already
// terminal.
type Ledger interface {
	Payment(ctx context.Context, id int64) (*paymentsrepo.Payment, error)
	PaymentByTrackingID(ctx context.Context, trackingID string) (*paymentsrepo.Payment, error)
	Settle(ctx context.Context, s Settlement) (p *paymentsrepo.Payment, applied bool, err error)
	PutMarker(ctx context.Context, m paymentsrepo.Marker) (prev int64, err error)
	DropMarker(ctx context.Context, paymentID int64) error
	Markers(ctx context.Context) ([]paymentsrepo.Marker, error)
	Log(ctx context.Context, paymentID int64, logType string, payload any) error
}

// Verifier is satisfied by payments.PaymentManager.
type Verifier interface {
	VerifyPayment(ctx context.Context, provider string, req payments.PaymentVerifyRequest) (payments.PaymentVerifyResponse, error)
}

type markerKey struct{ tenantID, unitID int64 }

type poll struct {
	paymentID int64
	key       markerKey
	cancel    context.CancelFunc
}

const (
	settleTimeout = 15 * time.Second
	guardTTL      = time.Hour
)

type Tracker struct {
	ledger   Ledger
	verifier Verifier
	bus      events.Bus
	hub      *Hub
	logger   *zap.SugaredLogger
	cfg      PollConfig
	now      func() time.Time

	root       context.Context
	cancelRoot context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.Mutex
	polls   map[int64]*poll
	keys    map[markerKey]*poll
	settled map[int64]time.Time
}

func NewTracker(ledger Ledger, verifier Verifier, bus events.Bus, hub *Hub, cfg PollConfig, logger *zap.SugaredLogger) *Tracker {
	root, cancel := context.WithCancel(context.Background())
	return &Tracker{
		ledger:     ledger,
		verifier:   verifier,
		bus:        bus,
		hub:        hub,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
		root:       root,
		cancelRoot: cancel,
		polls:      make(map[int64]*poll),
		keys:       make(map[markerKey]*poll),
		settled:    make(map[int64]time.Time),
	}
}

func (t *Tracker) Hub() *Hub { return t.hub }

// Track records m as the payer's in-flight payment and starts polling it. A
// poll already running for the same tenant and unit is cancelled first.
func (t *Tracker) Track(ctx context.Context, m paymentsrepo.Marker) error {
	prev, err := t.ledger.PutMarker(ctx, m)
	if err != nil {
		return err
	}
	if prev != 0 {
		t.logger.Infow("pending payment marker replaced", "tenant_id", m.TenantID, "unit_id", m.UnitID,
			"previous_payment_id", prev, "payment_id", m.PaymentID)
	}
	t.start(m)
	return nil
}

// Resume restarts polls for markers left by a previous process.
func (t *Tracker) Resume(ctx context.Context) (int, error) {
	markers, err := t.ledger.Markers(ctx)
	if err != nil {
		return 0, err
	}
	for _, m := range markers {
		t.start(m)
	}
	return len(markers), nil
}

// Active reports whether paymentID is currently being polled.
func (t *Tracker) Active(paymentID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.polls[paymentID]
	return ok
}

func (t *Tracker) start(m paymentsrepo.Marker) {
	key := markerKey{m.TenantID, m.UnitID}

	t.mu.Lock()
	if existing, ok := t.keys[key]; ok {
		if existing.paymentID == m.PaymentID {
			t.mu.Unlock()
			return
		}
		existing.cancel()
		delete(t.polls, existing.paymentID)
	}
	ctx, cancel := context.WithCancel(t.root)
	p := &poll{paymentID: m.PaymentID, key: key, cancel: cancel}
	t.polls[m.PaymentID] = p
	t.keys[key] = p
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.release(p)
		t.run(ctx, m.PaymentID)
	}()
}

func (t *Tracker) release(p *poll) {
	p.cancel()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.polls[p.paymentID] == p {
		delete(t.polls, p.paymentID)
	}
	if t.keys[p.key] == p {
		delete(t.keys, p.key)
	}
}

func (t *Tracker) run(ctx context.Context, paymentID int64) {
	log := t.logger.With("payment_id", paymentID)

	p, err := t.ledger.Payment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, paymentsrepo.ErrNotFound) {
			_ = t.ledger.DropMarker(context.WithoutCancel(ctx), paymentID)
		}
		log.Warnw("poll not started", "error", err)
		return
	}
	if paymentsrepo.IsTerminal(p.Status) || p.OrderTrackingID == nil {
		_ = t.ledger.DropMarker(ctx, paymentID)
		return
	}

	check := func(ctx context.Context) (payments.PaymentVerifyResponse, error) {
		return t.verifier.VerifyPayment(ctx, p.Provider, payments.PaymentVerifyRequest{TrackingID: *p.OrderTrackingID})
	}
	onErr := func(err error) { log.Warnw("payment status check failed", "error", err) }

	res, outcome := Poll(ctx, t.cfg, check, onErr)
	switch outcome {
	case OutcomeAborted:
		return
	case OutcomeTimeout:
		t.timeout(ctx, p)
	default:
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
		defer cancel()
		if _, err := t.settle(sctx, settlementFrom(p.ID, res, SourcePoll)); err != nil {
			log.Errorw("settle after poll failed", "outcome", outcome, "error", err)
		}
	}
}

func (t *Tracker) timeout(ctx context.Context, p *paymentsrepo.Payment) {
	ctx = context.WithoutCancel(ctx)
	t.logger.Infow("payment poll timed out", "payment_id", p.ID, "after", t.cfg.Timeout)

	_ = t.ledger.Log(ctx, p.ID, paymentsrepo.LogPoll, map[string]any{"outcome": OutcomeTimeout})
	if err := t.ledger.DropMarker(ctx, p.ID); err != nil {
		t.logger.Warnw("drop marker after timeout", "payment_id", p.ID, "error", err)
	}

	t.hub.Publish(timedOut(p))
	ev := events.PaymentTimedOut{PaymentID: p.ID, TenantID: p.TenantID, OccurredAt: t.now()}
	if err := t.bus.Publish(ctx, events.SubjectPaymentTimeout, ev); err != nil {
		t.logger.Warnw("publish payment timeout", "payment_id", p.ID, "error", err)
	}
}

func settlementFrom(paymentID int64, res payments.PaymentVerifyResponse, source string) Settlement {
	s := Settlement{PaymentID: paymentID, State: res.State, Receipt: res.Receipt, Method: res.Method, Source: source}
	if res.State != payments.StateCompleted {
		s.Reason = res.Description
	}
	return s
}

// Refresh asks the gateway for the current state of a pending payment and
// settles it if the gateway reports a terminal state. Terminal payments are
// returned as stored.
func (t *Tracker) Refresh(ctx context.Context, paymentID int64, source string) (*paymentsrepo.Payment, error) {
	p, err := t.ledger.Payment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return t.refresh(ctx, p, source)
}

// RefreshByTrackingID is Refresh keyed by the gateway's order tracking id,
// as delivered by IPN and browser-return callbacks.
func (t *Tracker) RefreshByTrackingID(ctx context.Context, trackingID, source string) (*paymentsrepo.Payment, error) {
	p, err := t.ledger.PaymentByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, err
	}
	return t.refresh(ctx, p, source)
}

func (t *Tracker) refresh(ctx context.Context, p *paymentsrepo.Payment, source string) (*paymentsrepo.Payment, error) {
	if paymentsrepo.IsTerminal(p.Status) || p.OrderTrackingID == nil {
		return p, nil
	}

	res, err := t.verifier.VerifyPayment(ctx, p.Provider, payments.PaymentVerifyRequest{TrackingID: *p.OrderTrackingID})
	if err != nil {
		return p, err
	}
	if !res.Terminal {
		return p, nil
	}
	return t.settle(ctx, settlementFrom(p.ID, res, source))
}

// settle is the single path to a terminal state. The in-memory guard turns
// repeated signals into reads; the ledger's row lock covers other processes.
func (t *Tracker) settle(ctx context.Context, s Settlement) (*paymentsrepo.Payment, error) {
	now := t.now()

	t.mu.Lock()
	if _, done := t.settled[s.PaymentID]; done {
		t.mu.Unlock()
		return t.ledger.Payment(ctx, s.PaymentID)
	}
	t.settled[s.PaymentID] = now
	for id, at := range t.settled {
		if now.Sub(at) > guardTTL {
			delete(t.settled, id)
		}
	}
	t.mu.Unlock()

	p, applied, err := t.ledger.Settle(ctx, s)
	if err != nil {
		t.mu.Lock()
		delete(t.settled, s.PaymentID)
		t.mu.Unlock()
		return nil, err
	}

	t.stopPoll(s.PaymentID)
	if !applied {
		return p, nil
	}

	t.logger.Infow("payment settled", "payment_id", p.ID, "status", p.Status, "source", s.Source)
	t.hub.Publish(Describe(p))

	ev := events.PaymentSettled{
		PaymentID:   p.ID,
		TenantID:    p.TenantID,
		UnitID:      p.UnitID,
		Type:        p.Type,
		Status:      p.Status,
		AmountCents: p.AmountCents,
		Receipt:     s.Receipt,
		Reason:      s.Reason,
		OccurredAt:  now,
	}
	if p.Reference != nil {
		ev.Reference = *p.Reference
	}
	if err := t.bus.Publish(context.WithoutCancel(ctx), events.SubjectPaymentSettled, ev); err != nil {
		t.logger.Errorw("publish payment settled", "payment_id", p.ID, "error", err)
	}
	return p, nil
}

func (t *Tracker) stopPoll(paymentID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.polls[paymentID]; ok {
		p.cancel()
	}
}

// Shutdown cancels every poll and waits for the goroutines to exit. Markers
// are kept so the next process resumes them.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.cancelRoot()
	defer t.hub.Close()
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
