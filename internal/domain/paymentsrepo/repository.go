package paymentsrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"makao/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

const paymentColumns = `
	p.id, p.tenant_id, p.unit_id, p.payment_type, p.provider, p.amount_cents, p.fee_cents,
	p.currency, p.status, p.reference, p.order_tracking_id, p.mpesa_receipt,
	p.failure_reason, p.subscription_plan, p.created_at, p.updated_at`

func scanPayment(row pgx.Row, p *Payment, extra ...any) error {
	dest := []any{
		&p.ID, &p.TenantID, &p.UnitID, &p.Type, &p.Provider, &p.AmountCents, &p.FeeCents,
		&p.Currency, &p.Status, &p.Reference, &p.OrderTrackingID, &p.MpesaReceipt,
		&p.FailureReason, &p.SubscriptionPlan, &p.CreatedAt, &p.UpdatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

func (r *Repository) one(ctx context.Context, query string, args ...any) (*Payment, error) {
	var p Payment
	if err := scanPayment(r.q.QueryRow(ctx, query, args...), &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return &p, nil
}

func (r *Repository) Create(ctx context.Context, p *Payment) (*Payment, error) {
	if err := r.q.QueryRow(ctx, `
		INSERT INTO payments (
			tenant_id, unit_id, payment_type, provider, amount_cents, fee_cents,
			currency, status, reference, subscription_plan
		)
		VALUES (
			$1, $2, $3::payment_type, COALESCE(NULLIF($4, ''), 'pesapal'), $5, $6,
			COALESCE(NULLIF($7, ''), 'KES'),
			COALESCE(NULLIF($8, ''), 'pending')::payment_status,
			$9, $10
		)
		RETURNING id, provider, currency, status, created_at, updated_at
	`, p.TenantID, p.UnitID, p.Type, p.Provider, p.AmountCents, p.FeeCents, p.Currency,
		p.Status, p.Reference, p.SubscriptionPlan).
		Scan(&p.ID, &p.Provider, &p.Currency, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	return p, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Payment, error) {
	return r.one(ctx, `SELECT `+paymentColumns+` FROM payments p WHERE p.id = $1`, id)
}

// GetByIDForUpdate row-locks the payment until the surrounding transaction ends.
func (r *Repository) GetByIDForUpdate(ctx context.Context, id int64) (*Payment, error) {
	return r.one(ctx, `SELECT `+paymentColumns+` FROM payments p WHERE p.id = $1 FOR UPDATE`, id)
}

func (r *Repository) GetByTrackingID(ctx context.Context, trackingID string) (*Payment, error) {
	return r.one(ctx, `SELECT `+paymentColumns+` FROM payments p WHERE p.order_tracking_id = $1`, trackingID)
}

func (r *Repository) SetReference(ctx context.Context, paymentID int64, reference string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE payments SET reference = $2, updated_at = NOW() WHERE id = $1
	`, paymentID, reference)
	if err != nil {
		return fmt.Errorf("set payment reference: %w", err)
	}
	return nil
}

func (r *Repository) SetGatewayRef(ctx context.Context, paymentID int64, trackingID string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE payments SET order_tracking_id = $2, updated_at = NOW() WHERE id = $1
	`, paymentID, trackingID)
	if err != nil {
		return fmt.Errorf("set order tracking id: %w", err)
	}
	return nil
}

func (r *Repository) MarkCompleted(ctx context.Context, paymentID int64, receipt string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE payments
		   SET status = 'completed'::payment_status,
		       mpesa_receipt = NULLIF($2, ''),
		       failure_reason = NULL,
		       updated_at = NOW()
		 WHERE id = $1
	`, paymentID, receipt)
	if err != nil {
		return fmt.Errorf("mark payment completed: %w", err)
	}
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, paymentID int64, status, reason string) error {
	if status != StatusFailed && status != StatusCancelled {
		return fmt.Errorf("mark payment failed: unexpected status %q", status)
	}
	_, err := r.q.Exec(ctx, `
		UPDATE payments
		   SET status = $2::payment_status, failure_reason = NULLIF($3, ''), updated_at = NOW()
		 WHERE id = $1
	`, paymentID, status, reason)
	if err != nil {
		return fmt.Errorf("mark payment %s: %w", status, err)
	}
	return nil
}

const filterClause = `
	($1::bigint = 0 OR p.tenant_id = $1)
	AND ($2::bigint = 0 OR pr.landlord_id = $2)
	AND ($3 = '' OR p.status = $3::payment_status)
	AND ($4 = '' OR p.payment_type = $4::payment_type)
	AND ($5::timestamptz IS NULL OR p.created_at >= $5::timestamptz)`

const paymentJoins = `
	FROM payments p
	JOIN users t ON t.id = p.tenant_id
	LEFT JOIN units u ON u.id = p.unit_id
	LEFT JOIN properties pr ON pr.id = u.property_id`

// List returns a page of payments newest first plus the total match count.
func (r *Repository) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Payment, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.q.Query(ctx, `
		SELECT `+paymentColumns+`,
		       t.full_name, COALESCE(u.unit_number, ''), COALESCE(pr.name, ''),
		       COUNT(*) OVER() AS total_count
		`+paymentJoins+`
		WHERE `+filterClause+`
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $6 OFFSET $7
	`, f.TenantID, f.LandlordID, f.Status, f.Type, f.Since, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var (
		out   []*Payment
		total int
	)
	for rows.Next() {
		var p Payment
		var t int
		if err := scanPayment(rows, &p, &p.TenantName, &p.UnitNumber, &p.PropertyName, &t); err != nil {
			return nil, 0, fmt.Errorf("scan payment: %w", err)
		}
		total = t
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}
	return out, total, nil
}

func (r *Repository) Summary(ctx context.Context, f ListFilter) (*Summary, error) {
	var s Summary
	err := r.q.QueryRow(ctx, `
		SELECT
		  COUNT(*) FILTER (WHERE p.status = 'completed'),
		  COUNT(*) FILTER (WHERE p.status = 'pending'),
		  COUNT(*) FILTER (WHERE p.status IN ('failed', 'cancelled')),
		  COALESCE(SUM(p.amount_cents) FILTER (WHERE p.status = 'completed'), 0)::bigint,
		  COALESCE(SUM(p.amount_cents) FILTER (
		      WHERE p.status = 'completed' AND p.created_at >= date_trunc('month', NOW())), 0)::bigint,
		  MAX(p.updated_at) FILTER (WHERE p.status = 'completed')
		`+paymentJoins+`
		WHERE `+filterClause,
		f.TenantID, f.LandlordID, f.Status, f.Type, f.Since,
	).Scan(&s.CompletedCount, &s.PendingCount, &s.FailedCount,
		&s.TotalPaidCents, &s.PaidThisMonthCents, &s.LastPaymentAt)
	if err != nil {
		return nil, fmt.Errorf("payment summary: %w", err)
	}
	return &s, nil
}

// DeleteStalePending removes payments stuck in pending for longer than
// olderThan and returns how many were removed.
func (r *Repository) DeleteStalePending(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM payments
		 WHERE status = 'pending'::payment_status
		   AND created_at < NOW() - make_interval(secs => $1)
	`, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("delete stale payments: %w", err)
	}
	return tag.RowsAffected(), nil
}
