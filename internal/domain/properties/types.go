package properties

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("property not found")
	QueryTimeoutDuration = 5 * time.Second
)

type Property struct {
	ID         int64     `json:"id"`
	LandlordID int64     `json:"landlord_id"`
	Name       string    `json:"name"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	Address    string    `json:"address"`
	UnitCount  int       `json:"unit_count"`
	Occupied   int       `json:"occupied_units"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type UpdatePropertyInput struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=255"`
	City      *string `json:"city" validate:"omitempty,max=100"`
	State     *string `json:"state" validate:"omitempty,max=100"`
	Address   *string `json:"address"`
	UnitCount *int    `json:"unit_count" validate:"omitempty,min=0"`
}

type Store interface {
	Create(ctx context.Context, p *Property) error
	GetByID(ctx context.Context, id int64) (*Property, error)
	ListByLandlord(ctx context.Context, landlordID int64) ([]Property, error)
	Update(ctx context.Context, id int64, in UpdatePropertyInput) (*Property, error)
	Delete(ctx context.Context, id int64) error
}
