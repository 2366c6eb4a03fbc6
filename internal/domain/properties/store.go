package properties

import (
	"context"
	"errors"
	"fmt"

	"makao/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

const selectProperty = `
	SELECT p.id, p.landlord_id, p.name, p.city, p.state, p.address, p.unit_count,
	       (SELECT COUNT(*) FROM units u WHERE u.property_id = p.id AND u.tenant_id IS NOT NULL),
	       p.created_at, p.updated_at
	FROM properties p`

func scanProperty(row pgx.Row, p *Property) error {
	return row.Scan(&p.ID, &p.LandlordID, &p.Name, &p.City, &p.State, &p.Address,
		&p.UnitCount, &p.Occupied, &p.CreatedAt, &p.UpdatedAt)
}

func (r *Repository) Create(ctx context.Context, p *Property) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	if err := r.q.QueryRow(ctx, `
		INSERT INTO properties (landlord_id, name, city, state, address, unit_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, p.LandlordID, p.Name, p.City, p.State, p.Address, p.UnitCount).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("create property: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Property, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var p Property
	if err := scanProperty(r.q.QueryRow(ctx, selectProperty+` WHERE p.id = $1`, id), &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get property: %w", err)
	}
	return &p, nil
}

func (r *Repository) ListByLandlord(ctx context.Context, landlordID int64) ([]Property, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := r.q.Query(ctx, selectProperty+` WHERE p.landlord_id = $1 ORDER BY p.created_at DESC`, landlordID)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	out := []Property{}
	for rows.Next() {
		var p Property
		if err := scanProperty(rows, &p); err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update applies only the non-nil fields of in.
func (r *Repository) Update(ctx context.Context, id int64, in UpdatePropertyInput) (*Property, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := r.q.Exec(ctx, `
		UPDATE properties SET
			name       = COALESCE($2, name),
			city       = COALESCE($3, city),
			state      = COALESCE($4, state),
			address    = COALESCE($5, address),
			unit_count = COALESCE($6, unit_count),
			updated_at = NOW()
		WHERE id = $1
	`, id, in.Name, in.City, in.State, in.Address, in.UnitCount)
	if err != nil {
		return nil, fmt.Errorf("update property: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM properties WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete property: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
