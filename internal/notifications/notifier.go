package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"makao/internal/domain/paymentsrepo"
	"makao/internal/domain/storage"
	"makao/internal/domain/units"
	"makao/internal/domain/users"
	"makao/internal/events"
	"makao/internal/mailer"
	"makao/internal/payments"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Notifier turns domain events into tenant and landlord emails and pushes.
// Delivery failures are logged and swallowed; only lookup failures are
// returned so the bus can redeliver.
type Notifier struct {
	repos  storage.Repos
	mail   mailer.Client
	push   PushSender
	logger *zap.SugaredLogger
}

func NewNotifier(repos storage.Repos, mail mailer.Client, push PushSender, logger *zap.SugaredLogger) *Notifier {
	return &Notifier{repos: repos, mail: mail, push: push, logger: logger}
}

// Subscribe attaches the notifier's handlers to bus. The returned stop
// detaches all of them.
func (n *Notifier) Subscribe(ctx context.Context, bus events.Bus) (func(), error) {
	subs := []struct {
		subject, durable string
		h                events.Handler
	}{
		{events.SubjectPaymentSettled, "notify-payment-settled", n.HandlePaymentSettled},
		{events.SubjectPaymentTimeout, "notify-payment-timeout", n.HandlePaymentTimedOut},
		{events.SubjectReportCreated, "notify-report-created", n.HandleReportCreated},
	}

	var stops []func()
	stopAll := func() {
		for _, s := range stops {
			s()
		}
	}
	for _, s := range subs {
		stop, err := bus.Subscribe(ctx, s.subject, s.durable, s.h)
		if err != nil {
			stopAll()
			return nil, fmt.Errorf("subscribe %s: %w", s.subject, err)
		}
		stops = append(stops, stop)
	}
	return stopAll, nil
}

func (n *Notifier) email(template string, u *users.User, data map[string]any) {
	data["Name"] = u.FullName
	if _, err := n.mail.Send(template, u.FullName, u.Email, data); err != nil {
		n.logger.Warnw("email failed", "template", template, "user_id", u.ID, "error", err)
	}
}

func (n *Notifier) notify(ctx context.Context, userID int64, p Push) {
	if err := SendPush(ctx, n.push, n.repos.PushTokens, userID, p); err != nil && !errors.Is(err, ErrNoPushTokens) {
		n.logger.Warnw("push failed", "user_id", userID, "error", err)
	}
}

func (n *Notifier) HandlePaymentSettled(ctx context.Context, _ string, data []byte) error {
	var ev events.PaymentSettled
	if err := json.Unmarshal(data, &ev); err != nil {
		n.logger.Errorw("bad payment settled event", "error", err)
		return nil
	}

	payer, err := n.repos.Users.GetByID(ctx, ev.TenantID)
	if err != nil {
		return err
	}

	paymentID := strconv.FormatInt(ev.PaymentID, 10)
	amount := payments.FormatCents(ev.AmountCents)
	mailData := map[string]any{
		"Amount":      amount,
		"PaymentType": ev.Type,
		"Reference":   ev.Reference,
		"Receipt":     ev.Receipt,
		"Reason":      ev.Reason,
	}

	if ev.Status != paymentsrepo.StatusCompleted {
		n.email(mailer.PaymentFailedTemplate, payer, mailData)
		n.notify(ctx, payer.ID, Push{
			Title: "Payment not completed",
			Body:  fmt.Sprintf("Your %s payment of KES %s was not completed.", ev.Type, amount),
			Data:  map[string]string{"type": "payment", "payment_id": paymentID, "status": ev.Status, "screen": "payments"},
		})
		return nil
	}

	var unitNumber string
	if ev.UnitID != nil {
		unit, err := n.repos.Units.GetByID(ctx, *ev.UnitID)
		if err != nil {
			return err
		}
		unitNumber = unit.UnitNumber
		mailData["Unit"] = unit.UnitNumber
		if ev.Type == paymentsrepo.TypeRent {
			mailData["Remaining"] = payments.FormatCents(unit.RentRemainingCents)
		}
	}

	n.email(mailer.PaymentReceiptTemplate, payer, mailData)
	n.notify(ctx, payer.ID, Push{
		Title: "Payment received",
		Body:  fmt.Sprintf("Your %s payment of KES %s has been received.", ev.Type, amount),
		Data:  map[string]string{"type": "payment", "payment_id": paymentID, "status": ev.Status, "screen": "payments"},
	})

	if ev.UnitID == nil {
		return nil
	}
	landlord, err := n.repos.Users.GetLandlordByUnit(ctx, *ev.UnitID)
	if err != nil {
		return err
	}
	n.email(mailer.RentReceivedTemplate, landlord, map[string]any{
		"Tenant":      payer.FullName,
		"Amount":      amount,
		"PaymentType": ev.Type,
		"Unit":        unitNumber,
		"Reference":   ev.Reference,
		"Receipt":     ev.Receipt,
	})
	n.notify(ctx, landlord.ID, Push{
		Title: "Payment received",
		Body:  fmt.Sprintf("%s paid KES %s for unit %s", payer.FullName, amount, unitNumber),
		Data:  map[string]string{"type": "payment", "payment_id": paymentID, "screen": "landlord/payments"},
	})
	return nil
}

func (n *Notifier) HandlePaymentTimedOut(ctx context.Context, _ string, data []byte) error {
	var ev events.PaymentTimedOut
	if err := json.Unmarshal(data, &ev); err != nil {
		n.logger.Errorw("bad payment timeout event", "error", err)
		return nil
	}
	n.notify(ctx, ev.TenantID, Push{
		Title: "Payment still processing",
		Body:  "We have not received a confirmation yet. We'll update you once the payment goes through.",
		Data:  map[string]string{"type": "payment", "payment_id": strconv.FormatInt(ev.PaymentID, 10), "status": "pending", "screen": "payments"},
	})
	return nil
}

func (n *Notifier) HandleReportCreated(ctx context.Context, _ string, data []byte) error {
	var ev events.ReportCreated
	if err := json.Unmarshal(data, &ev); err != nil {
		n.logger.Errorw("bad report event", "error", err)
		return nil
	}

	report, err := n.repos.Reports.GetByID(ctx, ev.ReportID)
	if err != nil {
		return err
	}
	landlord, err := n.repos.Users.GetLandlordByUnit(ctx, report.UnitID)
	if err != nil {
		return err
	}

	n.email(mailer.ReportCreatedTemplate, landlord, map[string]any{
		"Tenant":      report.TenantName,
		"Property":    report.PropertyName,
		"Unit":        report.UnitNumber,
		"Title":       report.IssueTitle,
		"Category":    report.IssueCategory,
		"Priority":    report.Priority,
		"Description": report.Description,
	})
	n.notify(ctx, landlord.ID, Push{
		Title: "New maintenance report",
		Body:  fmt.Sprintf("%s (%s) - unit %s", report.IssueTitle, report.Priority, report.UnitNumber),
		Data:  map[string]string{"type": "report", "report_id": strconv.FormatInt(report.ID, 10), "screen": "landlord/reports"},
	})
	return nil
}

// SendWelcome greets a freshly registered user.
func (n *Notifier) SendWelcome(u *users.User, loginURL string) {
	data := map[string]any{"UserType": string(u.UserType), "LoginURL": loginURL}
	if u.LandlordCode != nil {
		data["LandlordCode"] = *u.LandlordCode
	}
	n.email(mailer.WelcomeTemplate, u, data)
}

// SendRentReminders emails and pushes every tenant whose rent falls due
// within window of now. It returns how many tenants were reminded.
func (n *Notifier) SendRentReminders(ctx context.Context, now time.Time, window time.Duration) (int, error) {
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	due, err := n.repos.Units.ListDueBetween(ctx, from, from.Add(window))
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, u := range due {
		if u.TenantID == nil || u.RentDueDate == nil {
			continue
		}
		tenant, err := n.repos.Users.GetByID(ctx, *u.TenantID)
		if err != nil {
			n.logger.Warnw("rent reminder: tenant lookup failed", "unit_id", u.ID, "error", err)
			continue
		}
		dueDate := u.RentDueDate.Format("2 Jan 2006")
		remaining := payments.FormatCents(u.RentRemainingCents)
		n.email(mailer.RentReminderTemplate, tenant, map[string]any{
			"Unit":      u.UnitNumber,
			"Property":  u.PropertyName,
			"DueDate":   dueDate,
			"Remaining": remaining,
		})
		n.notify(ctx, tenant.ID, Push{
			Title: "Rent reminder",
			Body:  fmt.Sprintf("KES %s due on %s for unit %s", remaining, dueDate, u.UnitNumber),
			Data:  map[string]string{"type": "rent_reminder", "unit_id": strconv.FormatInt(u.ID, 10), "screen": "payments"},
		})
		sent++
	}
	return sent, nil
}

// SendLandlordSummaries emails each landlord the units whose rent was due by
// the end of today and is still unpaid, with the total outstanding. It
// returns how many landlords were emailed.
func (n *Notifier) SendLandlordSummaries(ctx context.Context, now time.Time) (int, error) {
	endOfDay := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, now.Location())
	overdue, err := n.repos.Units.ListOverdue(ctx, endOfDay)
	if err != nil {
		return 0, err
	}

	byLandlord := make(map[int64][]units.Unit)
	var order []int64
	for _, u := range overdue {
		if u.TenantID == nil || u.RentRemainingCents <= 0 {
			continue
		}
		if _, ok := byLandlord[u.LandlordID]; !ok {
			order = append(order, u.LandlordID)
		}
		byLandlord[u.LandlordID] = append(byLandlord[u.LandlordID], u)
	}

	sent := 0
	for _, landlordID := range order {
		landlord, err := n.repos.Users.GetByID(ctx, landlordID)
		if err != nil {
			n.logger.Warnw("landlord summary: landlord lookup failed", "landlord_id", landlordID, "error", err)
			continue
		}

		var total int64
		rows := make([]map[string]string, 0, len(byLandlord[landlordID]))
		for _, u := range byLandlord[landlordID] {
			total += u.RentRemainingCents
			row := map[string]string{
				"Property":  u.PropertyName,
				"Unit":      u.UnitNumber,
				"Remaining": payments.FormatCents(u.RentRemainingCents),
			}
			if u.RentDueDate != nil {
				row["DueDate"] = u.RentDueDate.Format("2 Jan 2006")
			}
			if tenant, err := n.repos.Users.GetByID(ctx, *u.TenantID); err == nil {
				row["Tenant"] = tenant.FullName
			}
			rows = append(rows, row)
		}

		n.email(mailer.LandlordSummaryTemplate, landlord, map[string]any{
			"AsOf":  now.Format("2 Jan 2006"),
			"Units": rows,
			"Total": payments.FormatCents(total),
		})
		sent++
	}
	return sent, nil
}

type BroadcastResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Broadcast emails a landlord's tenants. An empty tenantIDs selects all of
// them; ids that are not the landlord's tenants are ignored.
func (n *Notifier) Broadcast(ctx context.Context, landlordID int64, subject, message string, tenantIDs []int64) (BroadcastResult, error) {
	landlord, err := n.repos.Users.GetByID(ctx, landlordID)
	if err != nil {
		return BroadcastResult{}, err
	}
	tenants, err := n.repos.Users.ListTenantsByLandlord(ctx, landlordID)
	if err != nil {
		return BroadcastResult{}, err
	}

	want := make(map[int64]bool, len(tenantIDs))
	for _, id := range tenantIDs {
		want[id] = true
	}

	var sent, failed atomic.Int64
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(5)
	for _, t := range tenants {
		if len(want) > 0 && !want[t.ID] {
			continue
		}
		g.Go(func() error {
			_, err := n.mail.Send(mailer.LandlordNoticeTemplate, t.FullName, t.Email, map[string]any{
				"Name":     t.FullName,
				"Subject":  subject,
				"Message":  message,
				"Landlord": landlord.FullName,
			})
			if err != nil {
				n.logger.Warnw("broadcast email failed", "tenant_id", t.ID, "error", err)
				failed.Add(1)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return BroadcastResult{Sent: int(sent.Load()), Failed: int(failed.Load())}, nil
}
