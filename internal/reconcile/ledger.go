package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"makao/internal/domain/paymentsrepo"
	"makao/internal/domain/storage"
	"makao/internal/domain/units"
	"makao/internal/payments"

	"go.uber.org/zap"
)

// StoreLedger is the Postgres-backed Ledger.
type StoreLedger struct {
	store  *storage.Container
	logger *zap.SugaredLogger
}

func NewStoreLedger(store *storage.Container, logger *zap.SugaredLogger) *StoreLedger {
	return &StoreLedger{store: store, logger: logger}
}

func (l *StoreLedger) Payment(ctx context.Context, id int64) (*paymentsrepo.Payment, error) {
	return l.store.Payments.Payments.GetByID(ctx, id)
}

func (l *StoreLedger) PaymentByTrackingID(ctx context.Context, trackingID string) (*paymentsrepo.Payment, error) {
	return l.store.Payments.Payments.GetByTrackingID(ctx, trackingID)
}

func (l *StoreLedger) PutMarker(ctx context.Context, m paymentsrepo.Marker) (int64, error) {
	return l.store.Payments.Markers.Put(ctx, m)
}

func (l *StoreLedger) DropMarker(ctx context.Context, paymentID int64) error {
	return l.store.Payments.Markers.DeleteByPayment(ctx, paymentID)
}

func (l *StoreLedger) Markers(ctx context.Context) ([]paymentsrepo.Marker, error) {
	return l.store.Payments.Markers.List(ctx)
}

func (l *StoreLedger) Log(ctx context.Context, paymentID int64, logType string, payload any) error {
	return l.store.Payments.Logs.InsertPaymentLog(ctx, paymentID, logType, payload)
}

func logTypeFor(source string) string {
	switch source {
	case SourceIPN, SourceReturn:
		return paymentsrepo.LogIPN
	default:
		return paymentsrepo.LogPoll
	}
}

// Settle locks the payment row, re-checks its status and applies the
// transition with its effects in one transaction.
func (l *StoreLedger) Settle(ctx context.Context, s Settlement) (*paymentsrepo.Payment, bool, error) {
	var (
		out     *paymentsrepo.Payment
		applied bool
	)

	err := l.store.WithTx(ctx, func(tx *storage.Tx) error {
		p, err := tx.Payments.Payments.GetByIDForUpdate(ctx, s.PaymentID)
		if err != nil {
			return err
		}
		if paymentsrepo.IsTerminal(p.Status) {
			out = p
			return nil
		}

		switch s.State {
		case payments.StateCompleted:
			if err := tx.Payments.Payments.MarkCompleted(ctx, p.ID, s.Receipt); err != nil {
				return err
			}
			if err := l.applyEffects(ctx, tx, p); err != nil {
				return err
			}
		case payments.StateCancelled:
			if err := tx.Payments.Payments.MarkFailed(ctx, p.ID, paymentsrepo.StatusCancelled, s.Reason); err != nil {
				return err
			}
		case payments.StateFailed:
			if err := tx.Payments.Payments.MarkFailed(ctx, p.ID, paymentsrepo.StatusFailed, s.Reason); err != nil {
				return err
			}
		default:
			return fmt.Errorf("settle payment %d: %s is not terminal", p.ID, s.State)
		}

		if err := tx.Payments.Logs.InsertPaymentLog(ctx, p.ID, logTypeFor(s.Source), s); err != nil {
			return err
		}
		if err := tx.Payments.Markers.DeleteByPayment(ctx, p.ID); err != nil {
			return err
		}

		out, err = tx.Payments.Payments.GetByID(ctx, p.ID)
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, applied, nil
}

// applyEffects credits a completed payment to the payer's unit or plan.
func (l *StoreLedger) applyEffects(ctx context.Context, tx *storage.Tx, p *paymentsrepo.Payment) error {
	switch p.Type {
	case paymentsrepo.TypeRent:
		if p.UnitID == nil {
			return fmt.Errorf("rent payment %d has no unit", p.ID)
		}
		_, err := tx.Units.ApplyRentPayment(ctx, *p.UnitID, p.AmountCents)
		return err

	case paymentsrepo.TypeDeposit:
		if p.UnitID == nil {
			return fmt.Errorf("deposit payment %d has no unit", p.ID)
		}
		return l.assignAfterDeposit(ctx, tx, p)

	case paymentsrepo.TypeSubscription:
		name := ""
		if p.SubscriptionPlan != nil {
			name = *p.SubscriptionPlan
		}
		plan, err := payments.LookupPlan(name)
		if err != nil {
			return fmt.Errorf("subscription payment %d: %w", p.ID, err)
		}
		_, err = tx.Subscriptions.Activate(ctx, p.TenantID, plan.Name, plan.ExpiresAt(time.Now()))
		return err
	}
	return fmt.Errorf("payment %d: unknown type %q", p.ID, p.Type)
}

// assignAfterDeposit gives the payer the unit unless someone else took it
// while the payment was pending. The money is kept either way; the conflict
// is recorded for the landlord to resolve.
func (l *StoreLedger) assignAfterDeposit(ctx context.Context, tx *storage.Tx, p *paymentsrepo.Payment) error {
	unit, err := tx.Units.GetByIDForUpdate(ctx, *p.UnitID)
	if err != nil {
		return err
	}

	conflict := ""
	switch current, err := tx.Units.GetByTenant(ctx, p.TenantID); {
	case err == nil && current.ID != unit.ID:
		conflict = "tenant already occupies another unit"
	case err != nil && !errors.Is(err, units.ErrNotFound):
		return err
	case unit.TenantID != nil && *unit.TenantID != p.TenantID:
		conflict = "unit was taken by another tenant"
	}

	if conflict != "" {
		l.logger.Warnw("deposit paid but unit not assigned", "payment_id", p.ID, "unit_id", unit.ID, "reason", conflict)
		return tx.Payments.Logs.InsertPaymentLog(ctx, p.ID, paymentsrepo.LogError, map[string]string{"reason": conflict})
	}
	return tx.Units.AssignTenant(ctx, unit.ID, p.TenantID)
}
