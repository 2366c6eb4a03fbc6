package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"makao/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Store interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByLandlordCode(ctx context.Context, code string) (*User, error)
	GetLandlordByUnit(ctx context.Context, unitID int64) (*User, error)
	SetLandlordCode(ctx context.Context, userID int64, code string) error
	SetIDDocument(ctx context.Context, userID int64, url string) error
	UpdateProfile(ctx context.Context, userID int64, updates map[string]any) error
	ListTenantsByLandlord(ctx context.Context, landlordID int64) ([]TenantRow, error)
	SaveRefreshToken(ctx context.Context, userID int64, refreshToken string) error
	DeleteRefreshToken(ctx context.Context, userID int64) error
	GetRefreshToken(ctx context.Context, userID int64) (string, error)
	Delete(ctx context.Context, userID int64) error
}

type Repository struct {
	q dbx.Querier
}

func NewRepository(q dbx.Querier) Store {
	return &Repository{q: q}
}

const userColumns = `
	u.id, u.email, u.full_name, u.phone_number, u.national_id, u.user_type,
	u.landlord_code, u.mpesa_till_number, u.address, u.website,
	u.emergency_contact, u.id_document_url, u.password, u.is_active,
	u.created_at, u.updated_at`

func scanUser(row pgx.Row, u *User, extra ...any) error {
	dest := []any{
		&u.ID, &u.Email, &u.FullName, &u.PhoneNumber, &u.NationalID, &u.UserType,
		&u.LandlordCode, &u.MpesaTillNumber, &u.Address, &u.Website,
		&u.EmergencyContact, &u.IDDocumentURL, &u.Password.hash, &u.IsActive,
		&u.CreatedAt, &u.UpdatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

func (r *Repository) Create(ctx context.Context, user *User) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	err := r.q.QueryRow(ctx, `
		INSERT INTO users (
			email, full_name, phone_number, national_id, user_type,
			mpesa_till_number, address, website, emergency_contact, password
		)
		VALUES ($1, $2, $3, $4, $5::user_type, $6, $7, $8, $9, $10)
		RETURNING id, is_active, created_at, updated_at
	`,
		strings.ToLower(strings.TrimSpace(user.Email)), user.FullName, user.PhoneNumber,
		user.NationalID, user.UserType, user.MpesaTillNumber, user.Address,
		user.Website, user.EmergencyContact, user.Password.hash,
	).Scan(&user.ID, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, "users_email_key") {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *Repository) getOne(ctx context.Context, where string, arg any) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	user := &User{}
	err := scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE `+where, arg), user)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*User, error) {
	return r.getOne(ctx, `u.id = $1`, id)
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getOne(ctx, `u.email = lower($1) AND u.is_active = true`, strings.TrimSpace(email))
}

func (r *Repository) GetByLandlordCode(ctx context.Context, code string) (*User, error) {
	return r.getOne(ctx,
		`u.landlord_code = upper($1) AND u.user_type = 'landlord' AND u.is_active = true`,
		strings.TrimSpace(code))
}

func (r *Repository) GetLandlordByUnit(ctx context.Context, unitID int64) (*User, error) {
	return r.getOne(ctx, `u.id = (
		SELECT p.landlord_id FROM units un JOIN properties p ON p.id = un.property_id
		WHERE un.id = $1)`, unitID)
}

func (r *Repository) SetLandlordCode(ctx context.Context, userID int64, code string) error {
	_, err := r.q.Exec(ctx,
		`UPDATE users SET landlord_code = $1, updated_at = NOW() WHERE id = $2`, code, userID)
	if err != nil {
		if dbx.IsUniqueViolation(err, "users_landlord_code_key") {
			return ErrDuplicateLandlordCode
		}
		return fmt.Errorf("set landlord code: %w", err)
	}
	return nil
}

func (r *Repository) SetIDDocument(ctx context.Context, userID int64, url string) error {
	_, err := r.q.Exec(ctx,
		`UPDATE users SET id_document_url = $1, updated_at = NOW() WHERE id = $2`, url, userID)
	return err
}

// profileFields are the columns a user may change about themselves.
var profileFields = map[string]bool{
	"full_name":         true,
	"phone_number":      true,
	"mpesa_till_number": true,
	"address":           true,
	"website":           true,
	"emergency_contact": true,
}

func (r *Repository) UpdateProfile(ctx context.Context, userID int64, updates map[string]any) error {
	if len(updates) == 0 {
		return fmt.Errorf("no fields to update")
	}

	setClauses := make([]string, 0, len(updates))
	args := make([]any, 0, len(updates)+1)
	for field, value := range updates {
		if !profileFields[field] {
			return fmt.Errorf("invalid field name: %s", field)
		}
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", field, len(args)))
	}
	args = append(args, userID)

	query := fmt.Sprintf("UPDATE users SET %s, updated_at = NOW() WHERE id = $%d",
		strings.Join(setClauses, ", "), len(args))

	tag, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ListTenantsByLandlord(ctx context.Context, landlordID int64) ([]TenantRow, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := r.q.Query(ctx, `
		SELECT `+userColumns+`, un.id, un.unit_number, p.id, p.name, un.assigned_at
		FROM units un
		JOIN properties p ON p.id = un.property_id
		JOIN users u ON u.id = un.tenant_id
		WHERE p.landlord_id = $1
		ORDER BY p.name, un.unit_number
	`, landlordID)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []TenantRow
	for rows.Next() {
		var t TenantRow
		if err := scanUser(rows, &t.User, &t.UnitID, &t.UnitNumber, &t.PropertyID, &t.PropertyName, &t.AssignedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) SaveRefreshToken(ctx context.Context, userID int64, refreshToken string) error {
	_, err := r.q.Exec(ctx,
		`UPDATE users SET refresh_token = $1, updated_at = NOW() WHERE id = $2`, refreshToken, userID)
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

func (r *Repository) DeleteRefreshToken(ctx context.Context, userID int64) error {
	_, err := r.q.Exec(ctx,
		`UPDATE users SET refresh_token = NULL, updated_at = NOW() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return nil
}

func (r *Repository) GetRefreshToken(ctx context.Context, userID int64) (string, error) {
	var token *string
	err := r.q.QueryRow(ctx, `SELECT refresh_token FROM users WHERE id = $1`, userID).Scan(&token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to retrieve refresh token: %w", err)
	}
	if token == nil {
		return "", nil
	}
	return *token, nil
}

func (r *Repository) Delete(ctx context.Context, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := r.q.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
