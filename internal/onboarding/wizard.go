// Package onboarding drives the tenant and landlord signup wizards. Each
// session lives in the cache and advances one validated step at a time.
package onboarding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"makao/internal/cache"
	"makao/internal/domain/units"
	"makao/internal/domain/users"
	"makao/internal/payments"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrSessionNotFound  = errors.New("signup session not found or expired")
	ErrStepOutOfOrder   = errors.New("signup step out of order")
	ErrSessionComplete  = errors.New("signup session already complete")
	ErrNotComplete      = errors.New("signup session is not complete")
	ErrLandlordNotFound = errors.New("landlord code not found")
	ErrUnitUnavailable  = errors.New("selected unit is not available")
	ErrEmailTaken       = errors.New("a user with that email already exists")
	ErrInvalidUserType  = errors.New("user type must be landlord or tenant")
)

const DefaultSessionTTL = 30 * time.Minute

type SessionStore interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type TenantState struct {
	Personal     *TenantPersonal `json:"personal,omitempty"`
	LandlordID   int64           `json:"landlord_id,omitempty"`
	LandlordName string          `json:"landlord_name,omitempty"`
	Unit         *TenantUnit     `json:"unit,omitempty"`
	UnitNumber   string          `json:"unit_number,omitempty"`
	RentCents    int64           `json:"rent_cents,omitempty"`
	DepositCents int64           `json:"deposit_cents,omitempty"`
	Document     *TenantDocument `json:"document,omitempty"`
	MpesaPhone   string          `json:"mpesa_phone,omitempty"`
}

type LandlordState struct {
	Personal        *LandlordPersonal   `json:"personal,omitempty"`
	Properties      *LandlordProperties `json:"properties,omitempty"`
	TotalUnits      int                 `json:"total_units,omitempty"`
	Plan            string              `json:"plan,omitempty"`
	MonthlyFeeCents int64               `json:"monthly_fee_cents,omitempty"`
	ContactSales    bool                `json:"contact_sales,omitempty"`
	MpesaPhone      string              `json:"mpesa_phone,omitempty"`
}

// Session is the server-held wizard state. Step is the next step to submit.
type Session struct {
	ID           string         `json:"id"`
	UserType     users.UserType `json:"user_type"`
	Step         int            `json:"step"`
	TotalSteps   int            `json:"total_steps"`
	Complete     bool           `json:"complete"`
	Tenant       *TenantState   `json:"tenant,omitempty"`
	Landlord     *LandlordState `json:"landlord,omitempty"`
	PasswordHash []byte         `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
}

// storedSession is the cached form; it keeps the password hash that Session
// never serialises to clients.
type storedSession struct {
	Session
	PasswordHash []byte `json:"password_hash,omitempty"`
}

type Wizard struct {
	sessions SessionStore
	users    users.Store
	units    units.Store
	ttl      time.Duration
	now      func() time.Time
}

func NewWizard(sessions SessionStore, usersStore users.Store, unitsStore units.Store) *Wizard {
	return &Wizard{
		sessions: sessions,
		users:    usersStore,
		units:    unitsStore,
		ttl:      DefaultSessionTTL,
		now:      time.Now,
	}
}

func sessionKey(id string) string { return "signup:" + id }

func (w *Wizard) save(ctx context.Context, s *Session) error {
	return w.sessions.SetJSON(ctx, sessionKey(s.ID), storedSession{Session: *s, PasswordHash: s.PasswordHash}, w.ttl)
}

// Start opens a session for userType; the type choice counts as step 1.
func (w *Wizard) Start(ctx context.Context, userType users.UserType) (*Session, error) {
	if !userType.Valid() {
		return nil, ErrInvalidUserType
	}
	s := &Session{
		ID:        uuid.NewString(),
		UserType:  userType,
		Step:      StepChooseType + 1,
		CreatedAt: w.now().UTC(),
	}
	if userType == users.Tenant {
		s.TotalSteps = TenantSteps
		s.Tenant = &TenantState{}
	} else {
		s.TotalSteps = LandlordSteps
		s.Landlord = &LandlordState{}
	}
	if err := w.save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (w *Wizard) Get(ctx context.Context, id string) (*Session, error) {
	var stored storedSession
	if err := w.sessions.GetJSON(ctx, sessionKey(id), &stored); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	s := stored.Session
	s.PasswordHash = stored.PasswordHash
	return &s, nil
}

// Back moves the session one step back. Data already entered is kept.
func (w *Wizard) Back(ctx context.Context, id string) (*Session, error) {
	s, err := w.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Complete {
		return nil, ErrSessionComplete
	}
	if s.Step > StepChooseType+1 {
		s.Step--
	}
	return s, w.save(ctx, s)
}

// Discard drops the session, typically after registration succeeded.
func (w *Wizard) Discard(ctx context.Context, id string) error {
	return w.sessions.Delete(ctx, sessionKey(id))
}

// Submit validates payload for step and advances the session. step must be
// the session's current step; earlier steps cannot be skipped.
func (w *Wizard) Submit(ctx context.Context, id string, step int, payload []byte) (*Session, error) {
	s, err := w.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Complete {
		return nil, ErrSessionComplete
	}
	if step != s.Step {
		return nil, fmt.Errorf("%w: expected step %d, got %d", ErrStepOutOfOrder, s.Step, step)
	}

	if s.UserType == users.Tenant {
		err = w.tenantStep(ctx, s, step, payload)
	} else {
		err = w.landlordStep(ctx, s, step, payload)
	}
	if err != nil {
		return nil, err
	}

	if s.Step == s.TotalSteps {
		s.Complete = true
	} else {
		s.Step++
	}
	return s, w.save(ctx, s)
}

func decode(payload []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &ValidationError{Field: "body", Message: "invalid request body: " + err.Error()}
	}
	return check(dst)
}

func (w *Wizard) emailAvailable(ctx context.Context, email string) error {
	_, err := w.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return ErrEmailTaken
	case errors.Is(err, users.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (w *Wizard) tenantStep(ctx context.Context, s *Session, step int, payload []byte) error {
	t := s.Tenant
	switch step {
	case TenantStepPersonal:
		var in TenantPersonal
		if err := decode(payload, &in); err != nil {
			return err
		}
		in.Email = strings.ToLower(strings.TrimSpace(in.Email))
		in.NationalID = strings.ToUpper(strings.TrimSpace(in.NationalID))
		if err := w.emailAvailable(ctx, in.Email); err != nil {
			return err
		}
		landlord, err := w.users.GetByLandlordCode(ctx, strings.TrimSpace(in.LandlordCode))
		if err != nil {
			if errors.Is(err, users.ErrNotFound) {
				return ErrLandlordNotFound
			}
			return err
		}
		t.Personal = &in
		t.LandlordID = landlord.ID
		t.LandlordName = landlord.FullName

	case TenantStepUnit:
		var in TenantUnit
		if err := decode(payload, &in); err != nil {
			return err
		}
		u, err := w.units.GetByID(ctx, in.UnitID)
		if err != nil {
			if errors.Is(err, units.ErrNotFound) {
				return ErrUnitUnavailable
			}
			return err
		}
		if u.PropertyID != in.PropertyID || u.LandlordID != t.LandlordID || !u.IsAvailable || u.TenantID != nil {
			return ErrUnitUnavailable
		}
		t.Unit = &in
		t.UnitNumber = u.UnitNumber
		t.RentCents = u.RentCents
		// deposit defaults to one month's rent
		t.DepositCents = u.DepositCents
		if t.DepositCents == 0 {
			t.DepositCents = u.RentCents
		}

	case TenantStepDocument:
		var in TenantDocument
		if err := decode(payload, &in); err != nil {
			return err
		}
		t.Document = &in

	case TenantStepDeposit:
		var in DepositPayment
		if err := decode(payload, &in); err != nil {
			return err
		}
		phone, err := payments.NormalizePhone(in.MpesaPhone)
		if err != nil {
			return &ValidationError{Field: "mpesa_phone", Message: fieldMessages["mpesa_phone"]}
		}
		if _, err := payments.NewCharge(t.DepositCents); err != nil {
			return err
		}
		t.MpesaPhone = phone

	case TenantStepSecurity:
		var in AccountSecurity
		if err := decode(payload, &in); err != nil {
			return err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		s.PasswordHash = hash

	default:
		return fmt.Errorf("%w: unknown tenant step %d", ErrStepOutOfOrder, step)
	}
	return nil
}

func (w *Wizard) landlordStep(ctx context.Context, s *Session, step int, payload []byte) error {
	l := s.Landlord
	switch step {
	case LandlordStepPersonal:
		var in LandlordPersonal
		if err := decode(payload, &in); err != nil {
			return err
		}
		in.Email = strings.ToLower(strings.TrimSpace(in.Email))
		if err := w.emailAvailable(ctx, in.Email); err != nil {
			return err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		in.NationalID = strings.ToUpper(strings.TrimSpace(in.NationalID))
		in.AccountSecurity = AccountSecurity{}
		s.PasswordHash = hash
		l.Personal = &in

	case LandlordStepProperties:
		var in LandlordProperties
		if err := decode(payload, &in); err != nil {
			return err
		}
		total := in.TotalUnits()
		if total == 0 {
			return &ValidationError{Field: "units", Message: fieldMessages["units"]}
		}
		l.Properties = &in
		l.TotalUnits = total
		l.Plan, l.MonthlyFeeCents, l.ContactSales = "", 0, false
		plan, err := payments.PlanForUnits(total)
		switch {
		case errors.Is(err, payments.ErrContactSales):
			l.ContactSales = true
		case err != nil:
			return err
		default:
			l.Plan = plan.Name
			l.MonthlyFeeCents = plan.PriceCents
		}

	case LandlordStepPayment:
		var in SubscriptionPayment
		if err := decode(payload, &in); err != nil {
			return err
		}
		if l.ContactSales {
			return payments.ErrContactSales
		}
		phone, err := payments.NormalizePhone(in.MpesaPhone)
		if err != nil {
			return &ValidationError{Field: "mpesa_phone", Message: fieldMessages["mpesa_phone"]}
		}
		l.MpesaPhone = phone

	default:
		return fmt.Errorf("%w: unknown landlord step %d", ErrStepOutOfOrder, step)
	}
	return nil
}
