package onboarding

import (
	"strings"

	"makao/internal/domain/users"
	"makao/internal/payments"
)

// Registration is what a completed session asks the caller to persist.
type Registration struct {
	User *users.User

	// tenant
	LandlordID   int64
	UnitID       int64
	DepositCents int64

	// landlord
	Properties []PropertyDraft
	Plan       string

	MpesaPhone string
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func normalizedPhone(s string) *string {
	if p, err := payments.NormalizePhone(s); err == nil {
		return &p
	}
	return optional(s)
}

// Registration builds the account and follow-up payment for a complete
// session.
func (s *Session) Registration() (*Registration, error) {
	if !s.Complete || len(s.PasswordHash) == 0 {
		return nil, ErrNotComplete
	}

	u := &users.User{UserType: s.UserType, IsActive: true}
	u.Password.SetHash(s.PasswordHash)
	r := &Registration{User: u}

	switch s.UserType {
	case users.Tenant:
		t := s.Tenant
		u.Email = t.Personal.Email
		u.FullName = strings.TrimSpace(t.Personal.FullName)
		u.PhoneNumber = normalizedPhone(t.Personal.PhoneNumber)
		u.NationalID = optional(t.Personal.NationalID)
		u.EmergencyContact = normalizedPhone(t.Personal.EmergencyContact)
		u.IDDocumentURL = optional(t.Document.IDDocumentURL)
		r.LandlordID = t.LandlordID
		r.UnitID = t.Unit.UnitID
		r.DepositCents = t.DepositCents
		r.MpesaPhone = t.MpesaPhone

	case users.Landlord:
		l := s.Landlord
		u.Email = l.Personal.Email
		u.FullName = strings.TrimSpace(l.Personal.FullName)
		u.PhoneNumber = normalizedPhone(l.Personal.PhoneNumber)
		u.NationalID = optional(l.Personal.NationalID)
		u.MpesaTillNumber = optional(l.Personal.MpesaTillNumber)
		u.Address = optional(l.Personal.Address)
		u.Website = optional(l.Personal.Website)
		r.Properties = l.Properties.Properties
		r.Plan = l.Plan
		r.MpesaPhone = l.MpesaPhone

	default:
		return nil, ErrInvalidUserType
	}
	return r, nil
}
