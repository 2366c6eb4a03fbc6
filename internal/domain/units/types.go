package units

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("unit not found")
	ErrOccupied          = errors.New("unit already has a tenant")
	ErrTenantHasUnit     = errors.New("tenant is already assigned to a unit")
	ErrNoTenant          = errors.New("unit has no tenant")
	ErrDuplicateNumber   = errors.New("unit number already exists for this property")
	QueryTimeoutDuration = 5 * time.Second
)

// Unit money fields are KES cents.
type Unit struct {
	ID                 int64      `json:"id"`
	PropertyID         int64      `json:"property_id"`
	PropertyName       string     `json:"property_name"`
	LandlordID         int64      `json:"landlord_id"`
	UnitCode           string     `json:"unit_code"`
	UnitNumber         string     `json:"unit_number"`
	RoomType           string     `json:"room_type"`
	Bedrooms           int        `json:"bedrooms"`
	Bathrooms          int        `json:"bathrooms"`
	RentCents          int64      `json:"rent_cents"`
	DepositCents       int64      `json:"deposit_cents"`
	RentPaidCents      int64      `json:"rent_paid_cents"`
	RentRemainingCents int64      `json:"rent_remaining_cents"`
	RentDueDate        *time.Time `json:"rent_due_date"`
	TenantID           *int64     `json:"tenant_id"`
	IsAvailable        bool       `json:"is_available"`
	AssignedAt         *time.Time `json:"assigned_at"`
	LeftAt             *time.Time `json:"left_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (u *Unit) HasTenant(userID int64) bool {
	return u.TenantID != nil && *u.TenantID == userID
}

type UpdateUnitInput struct {
	RoomType     *string    `json:"room_type" validate:"omitempty,max=50"`
	Bedrooms     *int       `json:"bedrooms" validate:"omitempty,min=0"`
	Bathrooms    *int       `json:"bathrooms" validate:"omitempty,min=0"`
	RentCents    *int64     `json:"rent_cents" validate:"omitempty,gt=0"`
	DepositCents *int64     `json:"deposit_cents" validate:"omitempty,min=0"`
	RentDueDate  *time.Time `json:"rent_due_date"`
	IsAvailable  *bool      `json:"is_available"`
}

type Store interface {
	Create(ctx context.Context, u *Unit) error
	GetByID(ctx context.Context, id int64) (*Unit, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*Unit, error)
	GetByTenant(ctx context.Context, tenantID int64) (*Unit, error)
	ListByProperty(ctx context.Context, propertyID int64) ([]Unit, error)
	ListByLandlord(ctx context.Context, landlordID int64) ([]Unit, error)
	ListAvailableByLandlord(ctx context.Context, landlordID int64) ([]Unit, error)
	ListDueBetween(ctx context.Context, from, to time.Time) ([]Unit, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]Unit, error)
	Update(ctx context.Context, id int64, in UpdateUnitInput) (*Unit, error)
	Delete(ctx context.Context, id int64) error

	AssignTenant(ctx context.Context, unitID, tenantID int64) error
	RemoveTenant(ctx context.Context, unitID int64) error
	ApplyRentPayment(ctx context.Context, unitID, amountCents int64) (*Unit, error)
}
