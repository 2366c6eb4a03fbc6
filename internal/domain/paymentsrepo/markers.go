package paymentsrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"makao/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

// Marker records that a payer has an in-flight payment being polled.
// There is at most one marker per (tenant, unit); subscriptions use unit 0.
type Marker struct {
	TenantID    int64     `json:"tenant_id"`
	UnitID      int64     `json:"unit_id"`
	PaymentID   int64     `json:"payment_id"`
	PaymentType string    `json:"payment_type"`
	CreatedAt   time.Time `json:"created_at"`
}

type MarkerStore interface {
	// Put stores m and returns the payment id it replaced, or 0.
	Put(ctx context.Context, m Marker) (int64, error)
	Get(ctx context.Context, tenantID, unitID int64) (*Marker, error)
	DeleteByPayment(ctx context.Context, paymentID int64) error
	List(ctx context.Context) ([]Marker, error)
}

type MarkersRepository struct{ q dbx.Querier }

func NewMarkersRepository(q dbx.Querier) *MarkersRepository {
	return &MarkersRepository{q: q}
}

func (r *MarkersRepository) Put(ctx context.Context, m Marker) (int64, error) {
	var prev *int64
	err := r.q.QueryRow(ctx, `
		WITH prev AS (
			SELECT payment_id FROM pending_payment_markers
			 WHERE tenant_id = $1 AND unit_id = $2
		)
		INSERT INTO pending_payment_markers (tenant_id, unit_id, payment_id, payment_type)
		VALUES ($1, $2, $3, $4::payment_type)
		ON CONFLICT (tenant_id, unit_id)
		DO UPDATE SET payment_id = EXCLUDED.payment_id,
		              payment_type = EXCLUDED.payment_type,
		              created_at = NOW()
		RETURNING (SELECT payment_id FROM prev)
	`, m.TenantID, m.UnitID, m.PaymentID, m.PaymentType).Scan(&prev)
	if err != nil {
		return 0, fmt.Errorf("put payment marker: %w", err)
	}
	if prev == nil || *prev == m.PaymentID {
		return 0, nil
	}
	return *prev, nil
}

func (r *MarkersRepository) Get(ctx context.Context, tenantID, unitID int64) (*Marker, error) {
	var m Marker
	err := r.q.QueryRow(ctx, `
		SELECT tenant_id, unit_id, payment_id, payment_type, created_at
		FROM pending_payment_markers WHERE tenant_id = $1 AND unit_id = $2
	`, tenantID, unitID).Scan(&m.TenantID, &m.UnitID, &m.PaymentID, &m.PaymentType, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get payment marker: %w", err)
	}
	return &m, nil
}

func (r *MarkersRepository) DeleteByPayment(ctx context.Context, paymentID int64) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM pending_payment_markers WHERE payment_id = $1`, paymentID); err != nil {
		return fmt.Errorf("delete payment marker: %w", err)
	}
	return nil
}

func (r *MarkersRepository) List(ctx context.Context) ([]Marker, error) {
	rows, err := r.q.Query(ctx, `
		SELECT tenant_id, unit_id, payment_id, payment_type, created_at
		FROM pending_payment_markers ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list payment markers: %w", err)
	}
	defer rows.Close()

	var out []Marker
	for rows.Next() {
		var m Marker
		if err := rows.Scan(&m.TenantID, &m.UnitID, &m.PaymentID, &m.PaymentType, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment marker: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
