package units

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

const selectUnit = `
	SELECT u.id, u.property_id, p.name, p.landlord_id, u.unit_code, u.unit_number,
	       u.room_type, u.bedrooms, u.bathrooms, u.rent_cents, u.deposit_cents,
	       u.rent_paid_cents, u.rent_remaining_cents, u.rent_due_date, u.tenant_id,
	       u.is_available, u.assigned_at, u.left_at, u.created_at, u.updated_at
	FROM units u
	JOIN properties p ON p.id = u.property_id`

func scanUnit(row pgx.Row, u *Unit) error {
	return row.Scan(
		&u.ID, &u.PropertyID, &u.PropertyName, &u.LandlordID, &u.UnitCode, &u.UnitNumber,
		&u.RoomType, &u.Bedrooms, &u.Bathrooms, &u.RentCents, &u.DepositCents,
		&u.RentPaidCents, &u.RentRemainingCents, &u.RentDueDate, &u.TenantID,
		&u.IsAvailable, &u.AssignedAt, &u.LeftAt, &u.CreatedAt, &u.UpdatedAt,
	)
}

func (r *Repository) list(ctx context.Context, where string, args ...any) ([]Unit, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := r.q.Query(ctx, selectUnit+` WHERE `+where+` ORDER BY p.name, u.unit_number`, args...)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	out := []Unit{}
	for rows.Next() {
		var u Unit
		if err := scanUnit(rows, &u); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repository) one(ctx context.Context, query string, args ...any) (*Unit, error) {
	var u Unit
	if err := scanUnit(r.q.QueryRow(ctx, query, args...), &u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get unit: %w", err)
	}
	return &u, nil
}

// Create inserts a unit. rent_remaining starts at the full rent.
func (r *Repository) Create(ctx context.Context, u *Unit) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	u.RentRemainingCents = u.RentCents - u.RentPaidCents
	err := r.q.QueryRow(ctx, `
		INSERT INTO units (
			property_id, unit_code, unit_number, room_type, bedrooms, bathrooms,
			rent_cents, deposit_cents, rent_remaining_cents, rent_due_date, is_available
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, true)
		RETURNING id, is_available, created_at, updated_at
	`, u.PropertyID, u.UnitCode, u.UnitNumber, u.RoomType, u.Bedrooms, u.Bathrooms,
		u.RentCents, u.DepositCents, u.RentRemainingCents, u.RentDueDate,
	).Scan(&u.ID, &u.IsAvailable, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, "units_property_id_unit_number_key") {
			return ErrDuplicateNumber
		}
		return fmt.Errorf("create unit: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Unit, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()
	return r.one(ctx, selectUnit+` WHERE u.id = $1`, id)
}

// GetByIDForUpdate locks the unit row; only meaningful inside a transaction.
func (r *Repository) GetByIDForUpdate(ctx context.Context, id int64) (*Unit, error) {
	return r.one(ctx, selectUnit+` WHERE u.id = $1 FOR UPDATE OF u`, id)
}

func (r *Repository) GetByTenant(ctx context.Context, tenantID int64) (*Unit, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()
	return r.one(ctx, selectUnit+` WHERE u.tenant_id = $1`, tenantID)
}

func (r *Repository) ListByProperty(ctx context.Context, propertyID int64) ([]Unit, error) {
	return r.list(ctx, `u.property_id = $1`, propertyID)
}

func (r *Repository) ListByLandlord(ctx context.Context, landlordID int64) ([]Unit, error) {
	return r.list(ctx, `p.landlord_id = $1`, landlordID)
}

func (r *Repository) ListAvailableByLandlord(ctx context.Context, landlordID int64) ([]Unit, error) {
	return r.list(ctx, `p.landlord_id = $1 AND u.is_available AND u.tenant_id IS NULL`, landlordID)
}

// ListDueBetween returns occupied units with an outstanding balance whose
// rent falls due in [from, to).
func (r *Repository) ListDueBetween(ctx context.Context, from, to time.Time) ([]Unit, error) {
	return r.list(ctx, `u.tenant_id IS NOT NULL AND u.rent_remaining_cents > 0
		AND u.rent_due_date >= $1 AND u.rent_due_date < $2`, from, to)
}

// ListOverdue returns occupied units with an outstanding balance whose rent
// was due on or before asOf.
func (r *Repository) ListOverdue(ctx context.Context, asOf time.Time) ([]Unit, error) {
	return r.list(ctx, `u.tenant_id IS NOT NULL AND u.rent_remaining_cents > 0
		AND u.rent_due_date <= $1`, asOf)
}

func (r *Repository) Update(ctx context.Context, id int64, in UpdateUnitInput) (*Unit, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := r.q.Exec(ctx, `
		UPDATE units SET
			room_type            = COALESCE($2, room_type),
			bedrooms             = COALESCE($3, bedrooms),
			bathrooms            = COALESCE($4, bathrooms),
			rent_cents           = COALESCE($5, rent_cents),
			deposit_cents        = COALESCE($6, deposit_cents),
			rent_due_date        = COALESCE($7, rent_due_date),
			is_available         = COALESCE($8, is_available),
			rent_remaining_cents = GREATEST(COALESCE($5, rent_cents) - rent_paid_cents, 0),
			updated_at           = NOW()
		WHERE id = $1
	`, id, in.RoomType, in.Bedrooms, in.Bathrooms, in.RentCents, in.DepositCents, in.RentDueDate, in.IsAvailable)
	if err != nil {
		return nil, fmt.Errorf("update unit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM units WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete unit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) AssignTenant(ctx context.Context, unitID, tenantID int64) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE units
		   SET tenant_id = $2, is_available = false, assigned_at = NOW(),
		       left_at = NULL, updated_at = NOW()
		 WHERE id = $1 AND (tenant_id IS NULL OR tenant_id = $2)
	`, unitID, tenantID)
	if err != nil {
		if dbx.IsUniqueViolation(err, "units_tenant_id_key") {
			return ErrTenantHasUnit
		}
		return fmt.Errorf("assign tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOccupied
	}
	return nil
}

// RemoveTenant frees the unit and resets its running balance.
func (r *Repository) RemoveTenant(ctx context.Context, unitID int64) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE units
		   SET tenant_id = NULL, is_available = true, left_at = NOW(),
		       rent_paid_cents = 0, rent_remaining_cents = rent_cents, updated_at = NOW()
		 WHERE id = $1 AND tenant_id IS NOT NULL
	`, unitID)
	if err != nil {
		return fmt.Errorf("remove tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoTenant
	}
	return nil
}

// ApplyRentPayment adds amountCents to rent_paid and recomputes the
// remaining balance, which never goes below zero.
func (r *Repository) ApplyRentPayment(ctx context.Context, unitID, amountCents int64) (*Unit, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE units
		   SET rent_paid_cents      = rent_paid_cents + $2,
		       rent_remaining_cents = GREATEST(rent_cents - (rent_paid_cents + $2), 0),
		       updated_at           = NOW()
		 WHERE id = $1
	`, unitID, amountCents)
	if err != nil {
		return nil, fmt.Errorf("apply rent payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.one(ctx, selectUnit+` WHERE u.id = $1`, unitID)
}
