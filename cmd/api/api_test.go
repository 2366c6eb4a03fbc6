package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"makao/internal/auth"
	"makao/internal/domain/paymentsrepo"
	"makao/internal/domain/properties"
	"makao/internal/domain/pushtokens"
	"makao/internal/domain/reports"
	"makao/internal/domain/storage"
	"makao/internal/domain/subscriptions"
	"makao/internal/domain/units"
	"makao/internal/domain/users"
	"makao/internal/events"
	"makao/internal/mailer"
	"makao/internal/notifications"
	"makao/internal/payments"
	"makao/internal/reconcile"

	"go.uber.org/zap"
)

type memUsers struct {
	users.Store
	mu      sync.Mutex
	byID    map[int64]*users.User
	tenants map[int64][]users.TenantRow
	refresh map[int64]string
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, users.ErrNotFound
}

func (m *memUsers) Create(_ context.Context, u *users.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.byID {
		if other.Email == u.Email {
			return users.ErrDuplicateEmail
		}
	}
	u.ID = int64(len(m.byID) + 100)
	u.IsActive = true
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUsers) SetLandlordCode(_ context.Context, userID int64, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[userID].LandlordCode = &code
	return nil
}

func (m *memUsers) SaveRefreshToken(_ context.Context, userID int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[userID] = token
	return nil
}

func (m *memUsers) DeleteRefreshToken(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, userID)
	return nil
}

func (m *memUsers) ListTenantsByLandlord(_ context.Context, landlordID int64) ([]users.TenantRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tenants[landlordID], nil
}

type memProperties struct {
	properties.Store
	mu   sync.Mutex
	byID map[int64]*properties.Property
}

func (m *memProperties) GetByID(_ context.Context, id int64) (*properties.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, properties.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProperties) Create(_ context.Context, p *properties.Property) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = int64(len(m.byID) + 1000)
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *memProperties) ListByLandlord(_ context.Context, landlordID int64) ([]properties.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []properties.Property
	for _, p := range m.byID {
		if p.LandlordID == landlordID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memProperties) Update(_ context.Context, id int64, in properties.UpdatePropertyInput) (*properties.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, properties.ErrNotFound
	}
	if in.UnitCount != nil {
		p.UnitCount = *in.UnitCount
	}
	cp := *p
	return &cp, nil
}

type memUnits struct {
	units.Store
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*units.Unit
}

func (m *memUnits) get(id int64) (*units.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, units.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUnits) GetByID(_ context.Context, id int64) (*units.Unit, error) { return m.get(id) }

func (m *memUnits) GetByIDForUpdate(_ context.Context, id int64) (*units.Unit, error) {
	return m.get(id)
}

func (m *memUnits) GetByTenant(_ context.Context, tenantID int64) (*units.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.HasTenant(tenantID) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, units.ErrNotFound
}

func (m *memUnits) ListByLandlord(_ context.Context, landlordID int64) ([]units.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []units.Unit
	for _, u := range m.byID {
		if u.LandlordID == landlordID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *memUnits) Create(_ context.Context, u *units.Unit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.byID {
		if other.PropertyID == u.PropertyID && other.UnitNumber == u.UnitNumber {
			return units.ErrDuplicateNumber
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.RentRemainingCents = u.RentCents
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUnits) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return units.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memUnits) AssignTenant(_ context.Context, unitID, tenantID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[unitID]
	if !ok {
		return units.ErrNotFound
	}
	if u.TenantID != nil {
		return units.ErrOccupied
	}
	for _, other := range m.byID {
		if other.HasTenant(tenantID) {
			return units.ErrTenantHasUnit
		}
	}
	u.TenantID = &tenantID
	u.IsAvailable = false
	return nil
}

func (m *memUnits) RemoveTenant(_ context.Context, unitID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[unitID]
	if !ok {
		return units.ErrNotFound
	}
	if u.TenantID == nil {
		return units.ErrNoTenant
	}
	u.TenantID = nil
	u.IsAvailable = true
	u.RentPaidCents = 0
	u.RentRemainingCents = u.RentCents
	return nil
}

type memReports struct {
	reports.Store
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*reports.Report
}

func (m *memReports) Create(_ context.Context, r *reports.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	r.ReportedAt = time.Now()
	cp := *r
	m.byID[r.ID] = &cp
	return nil
}

func (m *memReports) ListByTenant(_ context.Context, tenantID int64) ([]reports.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []reports.Report
	for _, r := range m.byID {
		if r.TenantID == tenantID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memReports) ListByLandlord(context.Context, int64, reports.Filter) ([]reports.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []reports.Report
	for _, r := range m.byID {
		out = append(out, *r)
	}
	return out, nil
}

func (m *memReports) Stats(context.Context, int64) (*reports.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &reports.Stats{Total: len(m.byID)}, nil
}

type memPayments struct {
	paymentsrepo.Store
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*paymentsrepo.Payment
}

func (m *memPayments) Create(_ context.Context, p *paymentsrepo.Payment) (*paymentsrepo.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cp := *p
	cp.ID = m.nextID
	cp.CreatedAt = time.Now()
	m.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memPayments) GetByID(_ context.Context, id int64) (*paymentsrepo.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, paymentsrepo.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPayments) SetReference(_ context.Context, id int64, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id].Reference = &ref
	return nil
}

func (m *memPayments) SetGatewayRef(_ context.Context, id int64, trackingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id].OrderTrackingID = &trackingID
	return nil
}

func (m *memPayments) MarkFailed(_ context.Context, id int64, status, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id].Status = status
	m.byID[id].FailureReason = &reason
	return nil
}

func (m *memPayments) List(_ context.Context, f paymentsrepo.ListFilter, limit, offset int) ([]*paymentsrepo.Payment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*paymentsrepo.Payment
	for _, p := range m.byID {
		if f.TenantID != 0 && p.TenantID != f.TenantID {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *memPayments) Summary(context.Context, paymentsrepo.ListFilter) (*paymentsrepo.Summary, error) {
	return &paymentsrepo.Summary{}, nil
}

type memLogs struct {
	paymentsrepo.LogsStore
	mu    sync.Mutex
	types []string
}

func (m *memLogs) InsertPaymentLog(_ context.Context, _ int64, logType string, _ any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types = append(m.types, logType)
	return nil
}

type noSubscriptions struct{ subscriptions.Store }

func (noSubscriptions) Get(context.Context, int64) (*subscriptions.Subscription, error) {
	return nil, subscriptions.ErrNotFound
}

type memPushTokens struct {
	pushtokens.Store
	mu     sync.Mutex
	tokens map[int64][]string
}

func (m *memPushTokens) AddOrUpdatePushToken(_ context.Context, userID int64, token string, _ json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[userID] = append(m.tokens[userID], token)
	return nil
}

func (m *memPushTokens) RemoveAllForUser(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, userID)
	return nil
}

type fakeGateway struct {
	mu   sync.Mutex
	reqs []payments.PaymentRequest
	err  error
}

func (g *fakeGateway) InitiatePayment(_ context.Context, _ string, req payments.PaymentRequest) (payments.PaymentResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	if g.err != nil {
		return payments.PaymentResponse{}, g.err
	}
	return payments.PaymentResponse{
		TrackingID:  "track-" + req.Reference,
		Reference:   req.Reference,
		RedirectURL: "https://pay.example/checkout/" + req.Reference,
	}, nil
}

type fakeTracker struct {
	mu       sync.Mutex
	hub      *reconcile.Hub
	markers  []paymentsrepo.Marker
	payments *memPayments
	refresh  error
}

func (f *fakeTracker) Track(_ context.Context, m paymentsrepo.Marker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markers = append(f.markers, m)
	return nil
}

func (f *fakeTracker) Refresh(ctx context.Context, paymentID int64, _ string) (*paymentsrepo.Payment, error) {
	return f.payments.GetByID(ctx, paymentID)
}

func (f *fakeTracker) RefreshByTrackingID(_ context.Context, trackingID, _ string) (*paymentsrepo.Payment, error) {
	if f.refresh != nil {
		return nil, f.refresh
	}
	f.payments.mu.Lock()
	defer f.payments.mu.Unlock()
	for _, p := range f.payments.byID {
		if p.OrderTrackingID != nil && *p.OrderTrackingID == trackingID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, paymentsrepo.ErrNotFound
}

func (f *fakeTracker) Hub() *reconcile.Hub { return f.hub }

func (f *fakeTracker) Shutdown(context.Context) error { return nil }

type testEnv struct {
	app      *application
	users    *memUsers
	props    *memProperties
	units    *memUnits
	reports  *memReports
	payments *memPayments
	logs     *memLogs
	tokens   *memPushTokens
	gateway  *fakeGateway
	tracker  *fakeTracker
	bus      *events.LocalBus
}

func newTestApplication(t *testing.T) *testEnv {
	t.Helper()

	logger := zap.NewNop().Sugar()
	env := &testEnv{
		users:    &memUsers{byID: map[int64]*users.User{}, tenants: map[int64][]users.TenantRow{}, refresh: map[int64]string{}},
		props:    &memProperties{byID: map[int64]*properties.Property{}},
		units:    &memUnits{byID: map[int64]*units.Unit{}},
		reports:  &memReports{byID: map[int64]*reports.Report{}},
		payments: &memPayments{byID: map[int64]*paymentsrepo.Payment{}},
		logs:     &memLogs{},
		tokens:   &memPushTokens{tokens: map[int64][]string{}},
		gateway:  &fakeGateway{},
		bus:      events.NewLocalBus(logger),
	}
	env.tracker = &fakeTracker{hub: reconcile.NewHub(), payments: env.payments}

	repos := storage.Repos{
		Users:         env.users,
		Properties:    env.props,
		Units:         env.units,
		Reports:       env.reports,
		Subscriptions: noSubscriptions{},
		PushTokens:    env.tokens,
		Payments:      storage.Payments{Payments: env.payments, Logs: env.logs},
	}
	store := storage.NewStaticContainer(repos)

	cfg := config{
		addr:        ":8080",
		env:         "test",
		frontendURL: "http://localhost:3000",
		auth: authConfig{
			basic: basicConfig{user: "admin", pass: "secret"},
			token: tokenConfig{secret: "access-secret", refreshSecret: "refresh-secret", iss: "Makao",
				accessTokenExp: time.Hour, refreshTokenExp: 24 * time.Hour},
		},
	}

	mail := mailer.NewLogMailer(logger)
	env.app = &application{
		config:   cfg,
		store:    store,
		logger:   logger,
		payments: env.gateway,
		tracker:  env.tracker,
		bus:      env.bus,
		uploads:  noUploader{},
		mailer:   mail,
		push:     notifications.NopSender{},
		notifier: notifications.NewNotifier(repos, mail, notifications.NopSender{}, logger),
		authenticator: auth.NewJWTAuthenticator(cfg.auth.token.secret, cfg.auth.token.refreshSecret,
			cfg.auth.token.iss, cfg.auth.token.iss, cfg.auth.token.accessTokenExp, cfg.auth.token.refreshTokenExp),
	}
	return env
}

func (e *testEnv) addUser(t *testing.T, id int64, email string, userType users.UserType) *users.User {
	t.Helper()
	u := &users.User{ID: id, Email: email, FullName: "User " + email, UserType: userType, IsActive: true}
	if err := u.Password.Set("password123"); err != nil {
		t.Fatal(err)
	}
	e.users.byID[id] = u
	return u
}

func (e *testEnv) addProperty(id, landlordID int64) *properties.Property {
	p := &properties.Property{ID: id, LandlordID: landlordID, Name: "Sunrise Court", City: "Nairobi"}
	e.props.byID[id] = p
	return p
}

func (e *testEnv) addUnit(id, propertyID, landlordID int64, tenantID *int64) *units.Unit {
	u := &units.Unit{
		ID:                 id,
		PropertyID:         propertyID,
		PropertyName:       "Sunrise Court",
		LandlordID:         landlordID,
		UnitNumber:         "A1",
		RentCents:          1_000_000,
		DepositCents:       1_000_000,
		RentRemainingCents: 1_000_000,
		TenantID:           tenantID,
		IsAvailable:        tenantID == nil,
	}
	e.units.byID[id] = u
	if id > e.units.nextID {
		e.units.nextID = id
	}
	return u
}

func (e *testEnv) token(t *testing.T, u *users.User) string {
	t.Helper()
	access, _, err := e.app.authenticator.GenerateTokens(u.ID, string(u.UserType))
	if err != nil {
		t.Fatal(err)
	}
	return access
}

// do sends a request through the full router.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	e.app.mount().ServeHTTP(rr, req)
	return rr
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	env := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func checkResponseCode(t *testing.T, expected int, rr *httptest.ResponseRecorder) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected the response code to be %d, got %d: %s", expected, rr.Code, rr.Body.String())
	}
}

func int64p(v int64) *int64 { return &v }

var errBoom = errors.New("boom")

func newRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func serve(e *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.app.mount().ServeHTTP(rr, req)
	return rr
}
