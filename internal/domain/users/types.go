package users

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound              = errors.New("resource not found")
	ErrConflict              = errors.New("resource already exists")
	ErrDuplicateEmail        = errors.New("a user with that email already exists")
	ErrDuplicateLandlordCode = errors.New("landlord code already taken")
	QueryTimeoutDuration     = time.Second * 5
)

type UserType string

const (
	Landlord UserType = "landlord"
	Tenant   UserType = "tenant"
)

func (t UserType) Valid() bool { return t == Landlord || t == Tenant }

type User struct {
	ID               int64     `json:"id"`
	Email            string    `json:"email"`
	FullName         string    `json:"full_name"`
	PhoneNumber      *string   `json:"phone_number"`
	NationalID       *string   `json:"national_id"`
	UserType         UserType  `json:"user_type"`
	LandlordCode     *string   `json:"landlord_code,omitempty"`
	MpesaTillNumber  *string   `json:"mpesa_till_number,omitempty"`
	Address          *string   `json:"address,omitempty"`
	Website          *string   `json:"website,omitempty"`
	EmergencyContact *string   `json:"emergency_contact,omitempty"`
	IDDocumentURL    *string   `json:"id_document_url,omitempty"`
	Password         password  `json:"-"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (u *User) IsLandlord() bool { return u.UserType == Landlord }

// TenantRow is a tenant as seen from a landlord's dashboard.
type TenantRow struct {
	User
	UnitID       int64      `json:"unit_id"`
	UnitNumber   string     `json:"unit_number"`
	PropertyID   int64      `json:"property_id"`
	PropertyName string     `json:"property_name"`
	AssignedAt   *time.Time `json:"assigned_at"`
}

type password struct {
	text *string
	hash []byte
}

func (p *password) Set(text string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(text), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	p.text = &text
	p.hash = hash

	return nil
}

// SetHash installs an already bcrypt-hashed password.
func (p *password) SetHash(hash []byte) {
	p.text = nil
	p.hash = hash
}

func (p *password) Compare(text string) error {
	return bcrypt.CompareHashAndPassword(p.hash, []byte(text))
}
