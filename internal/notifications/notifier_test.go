package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"makao/internal/domain/pushtokens"
	"makao/internal/domain/reports"
	"makao/internal/domain/storage"
	"makao/internal/domain/units"
	"makao/internal/domain/users"
	"makao/internal/events"
	"makao/internal/mailer"

	"github.com/9ssi7/exponent"
	"go.uber.org/zap"
)

type sentMail struct {
	template, name, email string
	data                  map[string]any
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail map[string]bool
}

func (m *fakeMailer) Send(templateFile, username, email string, data any) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[email] {
		return -1, errors.New("smtp down")
	}
	d, _ := data.(map[string]any)
	m.sent = append(m.sent, sentMail{templateFile, username, email, d})
	return 200, nil
}

func (m *fakeMailer) templates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.sent {
		out = append(out, s.template)
	}
	return out
}

type fakePush struct {
	mu   sync.Mutex
	msgs []*exponent.Message
}

func (p *fakePush) Publish(_ context.Context, msgs []*exponent.Message) ([]*exponent.MessageResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msgs...)
	return nil, nil
}

func (p *fakePush) PublishSingle(ctx context.Context, msg *exponent.Message) ([]*exponent.MessageResponse, error) {
	return p.Publish(ctx, []*exponent.Message{msg})
}

type fakeTokens struct {
	pushtokens.Store
	tokens map[int64][]string
}

func (f *fakeTokens) GetTokensByUserIDs(_ context.Context, ids []int64) (map[int64][]string, error) {
	out := map[int64][]string{}
	for _, id := range ids {
		out[id] = f.tokens[id]
	}
	return out, nil
}

type fakeUsers struct {
	users.Store
	byID     map[int64]*users.User
	landlord *users.User
	tenants  []users.TenantRow
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*users.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetLandlordByUnit(context.Context, int64) (*users.User, error) {
	return f.landlord, nil
}

func (f *fakeUsers) ListTenantsByLandlord(context.Context, int64) ([]users.TenantRow, error) {
	return f.tenants, nil
}

type fakeUnits struct {
	units.Store
	unit    *units.Unit
	due     []units.Unit
	overdue []units.Unit
	asOf    time.Time
}

func (f *fakeUnits) GetByID(context.Context, int64) (*units.Unit, error) { return f.unit, nil }

func (f *fakeUnits) ListDueBetween(context.Context, time.Time, time.Time) ([]units.Unit, error) {
	return f.due, nil
}

func (f *fakeUnits) ListOverdue(_ context.Context, asOf time.Time) ([]units.Unit, error) {
	f.asOf = asOf
	return f.overdue, nil
}

type fakeReports struct {
	reports.Store
	report *reports.Report
}

func (f *fakeReports) GetByID(context.Context, int64) (*reports.Report, error) { return f.report, nil }

func newTestNotifier() (*Notifier, *fakeMailer, *fakePush) {
	landlord := &users.User{ID: 1, FullName: "Lana Landlord", Email: "lana@example.com", UserType: users.Landlord}
	tenant := &users.User{ID: 2, FullName: "Tom Tenant", Email: "tom@example.com", UserType: users.Tenant}
	tenantID := int64(2)
	due := time.Now().AddDate(0, 0, 2)

	repos := storage.Repos{
		Users: &fakeUsers{
			byID:     map[int64]*users.User{1: landlord, 2: tenant},
			landlord: landlord,
			tenants: []users.TenantRow{
				{User: *tenant, UnitID: 10},
				{User: users.User{ID: 3, FullName: "Tia", Email: "tia@example.com"}, UnitID: 11},
			},
		},
		Units: &fakeUnits{
			unit: &units.Unit{ID: 10, UnitNumber: "A1", RentRemainingCents: 0, TenantID: &tenantID},
			due:  []units.Unit{{ID: 10, UnitNumber: "A1", PropertyName: "Sunrise", TenantID: &tenantID, RentRemainingCents: 500000, RentDueDate: &due}},
		},
		Reports: &fakeReports{report: &reports.Report{
			ID: 7, UnitID: 10, TenantName: "Tom Tenant", UnitNumber: "A1", IssueTitle: "Leak", Priority: "urgent",
		}},
		PushTokens: &fakeTokens{tokens: map[int64][]string{
			1: {"ExponentPushToken[landlord]"},
			2: {"ExponentPushToken[tenant]", "ExponentPushToken[tenant]"},
		}},
	}

	m := &fakeMailer{fail: map[string]bool{}}
	p := &fakePush{}
	return NewNotifier(repos, m, p, zap.NewNop().Sugar()), m, p
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestHandlePaymentSettledCompleted(t *testing.T) {
	n, m, p := newTestNotifier()
	unitID := int64(10)
	ev := events.PaymentSettled{PaymentID: 5, TenantID: 2, UnitID: &unitID, Type: "rent", Status: "completed", AmountCents: 500000, Receipt: "QWE123"}

	if err := n.HandlePaymentSettled(context.Background(), events.SubjectPaymentSettled, mustJSON(t, ev)); err != nil {
		t.Fatal(err)
	}

	got := m.templates()
	if len(got) != 2 || got[0] != mailer.PaymentReceiptTemplate || got[1] != mailer.RentReceivedTemplate {
		t.Fatalf("templates = %v", got)
	}
	if m.sent[0].data["Amount"] != "5,000.00" {
		t.Errorf("amount = %v", m.sent[0].data["Amount"])
	}
	// duplicate tenant token is sent once
	if len(p.msgs) != 2 {
		t.Errorf("pushes = %d, want 2", len(p.msgs))
	}
}

func TestHandlePaymentSettledFailed(t *testing.T) {
	n, m, p := newTestNotifier()
	ev := events.PaymentSettled{PaymentID: 5, TenantID: 2, Type: "rent", Status: "failed", Reason: "Insufficient funds"}

	if err := n.HandlePaymentSettled(context.Background(), "", mustJSON(t, ev)); err != nil {
		t.Fatal(err)
	}
	if got := m.templates(); len(got) != 1 || got[0] != mailer.PaymentFailedTemplate {
		t.Fatalf("templates = %v", got)
	}
	if len(p.msgs) != 1 || p.msgs[0].Data["status"] != "failed" {
		t.Fatalf("unexpected push %+v", p.msgs)
	}
}

func TestHandlePaymentSettledUnknownPayer(t *testing.T) {
	n, _, _ := newTestNotifier()
	ev := events.PaymentSettled{PaymentID: 5, TenantID: 99, Status: "completed"}
	if err := n.HandlePaymentSettled(context.Background(), "", mustJSON(t, ev)); !errors.Is(err, users.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestHandleReportCreatedNotifiesLandlord(t *testing.T) {
	n, m, p := newTestNotifier()
	ev := events.ReportCreated{ReportID: 7, TenantID: 2, UnitID: 10}
	if err := n.HandleReportCreated(context.Background(), "", mustJSON(t, ev)); err != nil {
		t.Fatal(err)
	}
	if len(m.sent) != 1 || m.sent[0].email != "lana@example.com" {
		t.Fatalf("sent = %+v", m.sent)
	}
	if len(p.msgs) != 1 || p.msgs[0].Data["report_id"] != "7" {
		t.Fatalf("push = %+v", p.msgs)
	}
}

func TestSendRentReminders(t *testing.T) {
	n, m, _ := newTestNotifier()
	sent, err := n.SendRentReminders(context.Background(), time.Now(), 72*time.Hour)
	if err != nil || sent != 1 {
		t.Fatalf("SendRentReminders = %d, %v", sent, err)
	}
	if m.sent[0].template != mailer.RentReminderTemplate || m.sent[0].data["Remaining"] != "5,000.00" {
		t.Fatalf("unexpected mail %+v", m.sent[0])
	}
}

func TestSendLandlordSummaries(t *testing.T) {
	n, m, _ := newTestNotifier()
	fu := n.repos.Units.(*fakeUnits)
	tom, tia := int64(2), int64(3)
	due := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	fu.overdue = []units.Unit{
		{ID: 10, LandlordID: 1, PropertyName: "Sunrise", UnitNumber: "A1", TenantID: &tom, RentRemainingCents: 500000, RentDueDate: &due},
		{ID: 11, LandlordID: 1, PropertyName: "Sunrise", UnitNumber: "A2", TenantID: &tia, RentRemainingCents: 250050, RentDueDate: &due},
		{ID: 12, LandlordID: 1, PropertyName: "Sunrise", UnitNumber: "A3", RentRemainingCents: 100000},
		{ID: 20, LandlordID: 99, PropertyName: "Elsewhere", UnitNumber: "B1", TenantID: &tom, RentRemainingCents: 100000},
	}

	now := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	sent, err := n.SendLandlordSummaries(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	// landlord 99 is unknown and skipped
	if sent != 1 || len(m.sent) != 1 {
		t.Fatalf("sent = %d, mails = %+v", sent, m.sent)
	}
	if want := time.Date(2025, 1, 6, 23, 59, 59, 0, time.UTC); !fu.asOf.Equal(want) {
		t.Errorf("asOf = %v, want %v", fu.asOf, want)
	}

	mail := m.sent[0]
	if mail.template != mailer.LandlordSummaryTemplate || mail.email != "lana@example.com" {
		t.Fatalf("unexpected mail %+v", mail)
	}
	if mail.data["Total"] != "7,500.50" {
		t.Errorf("total = %v", mail.data["Total"])
	}
	rows, _ := mail.data["Units"].([]map[string]string)
	if len(rows) != 2 || rows[0]["Tenant"] != "Tom Tenant" || rows[1]["DueDate"] != "5 Jan 2025" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestSendLandlordSummariesNothingOverdue(t *testing.T) {
	n, m, _ := newTestNotifier()
	sent, err := n.SendLandlordSummaries(context.Background(), time.Now())
	if err != nil || sent != 0 || len(m.sent) != 0 {
		t.Fatalf("SendLandlordSummaries = %d, %v, mails %d", sent, err, len(m.sent))
	}
}

func TestBroadcast(t *testing.T) {
	n, m, _ := newTestNotifier()
	m.fail["tia@example.com"] = true

	res, err := n.Broadcast(context.Background(), 1, "Water", "No water Monday", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Sent != 1 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}

	res, err = n.Broadcast(context.Background(), 1, "Water", "No water Monday", []int64{2, 42})
	if err != nil || res.Sent != 1 || res.Failed != 0 {
		t.Fatalf("selected broadcast = %+v, %v", res, err)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	n, _, p := newTestNotifier()
	bus := events.NewLocalBus(zap.NewNop().Sugar())
	defer bus.Close()

	stop, err := n.Subscribe(context.Background(), bus)
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	if err := bus.Publish(context.Background(), events.SubjectPaymentTimeout, events.PaymentTimedOut{PaymentID: 1, TenantID: 2}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		count := len(p.msgs)
		p.mu.Unlock()
		if count == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timeout push was not delivered")
}
