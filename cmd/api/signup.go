package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"makao/internal/domain/properties"
	"makao/internal/domain/storage"
	"makao/internal/domain/units"
	"makao/internal/domain/users"
	"makao/internal/onboarding"
	"makao/internal/payments"

	"github.com/go-chi/chi/v5"
)

// signupError maps wizard failures onto responses. Validation messages are
// meant for the end user and pass through unchanged.
func (app *application) signupError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *onboarding.ValidationError
	switch {
	case errors.As(err, &verr):
		app.badRequestResponse(w, r, verr)
	case errors.Is(err, onboarding.ErrSessionNotFound):
		app.notFoundResponse(w, r, err)
	case errors.Is(err, onboarding.ErrStepOutOfOrder),
		errors.Is(err, onboarding.ErrSessionComplete),
		errors.Is(err, onboarding.ErrNotComplete),
		errors.Is(err, onboarding.ErrUnitUnavailable),
		errors.Is(err, onboarding.ErrEmailTaken),
		errors.Is(err, users.ErrDuplicateEmail):
		app.conflictResponse(w, r, err)
	case errors.Is(err, onboarding.ErrLandlordNotFound),
		errors.Is(err, onboarding.ErrInvalidUserType),
		errors.Is(err, payments.ErrContactSales),
		errors.Is(err, payments.ErrBelowMinimum),
		errors.Is(err, payments.ErrAboveMaximum),
		errors.Is(err, payments.ErrInvalidAmount):
		app.badRequestResponse(w, r, err)
	default:
		app.internalServerError(w, r, err)
	}
}

type StartSignupPayload struct {
	UserType string `json:"user_type" validate:"required,oneof=landlord tenant"`
}

// startSignupHandler godoc
//
//	@Summary		Start signup
//	@Description	Opens a signup wizard session. Choosing the account type completes step 1.
//	@Tags			signup
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		StartSignupPayload	true	"Account type"
//	@Success		201		{object}	onboarding.Session
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Router			/signup [post]
func (app *application) startSignupHandler(w http.ResponseWriter, r *http.Request) {
	var payload StartSignupPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	s, err := app.wizard.Start(r.Context(), users.UserType(payload.UserType))
	if err != nil {
		app.signupError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, s); err != nil {
		app.internalServerError(w, r, err)
	}
}

// getSignupHandler godoc
//
//	@Summary		Get signup session
//	@Tags			signup
//	@Produce		json
//	@Param			sessionID	path		string	true	"Session ID"
//	@Success		200			{object}	onboarding.Session
//	@Failure		404			{object}	error
//	@Router			/signup/{sessionID} [get]
func (app *application) getSignupHandler(w http.ResponseWriter, r *http.Request) {
	s, err := app.wizard.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		app.signupError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, s); err != nil {
		app.internalServerError(w, r, err)
	}
}

// discardSignupHandler godoc
//
//	@Summary		Abandon signup
//	@Tags			signup
//	@Param			sessionID	path	string	true	"Session ID"
//	@Success		204			"No Content"
//	@Router			/signup/{sessionID} [delete]
func (app *application) discardSignupHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.wizard.Discard(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		app.internalServerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// submitSignupStepHandler godoc
//
//	@Summary		Submit a signup step
//	@Description	Validates the step's form and advances the wizard. Steps must be submitted in order. Tenant steps: 2 personal, 3 unit, 4 ID document, 5 deposit phone, 6 password. Landlord steps: 2 personal and password, 3 properties and units, 4 subscription phone.
//	@Tags			signup
//	@Accept			json
//	@Produce		json
//	@Param			sessionID	path		string	true	"Session ID"
//	@Param			step		path		int		true	"Step number"
//	@Success		200			{object}	onboarding.Session
//	@Failure		400			{object}	ErrorBadRequestResponse
//	@Failure		404			{object}	error
//	@Failure		409			{object}	error
//	@Router			/signup/{sessionID}/steps/{step} [post]
func (app *application) submitSignupStepHandler(w http.ResponseWriter, r *http.Request) {
	step, err := strconv.Atoi(chi.URLParam(r, "step"))
	if err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("invalid step"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_578)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	s, err := app.wizard.Submit(r.Context(), chi.URLParam(r, "sessionID"), step, body)
	if err != nil {
		app.signupError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, s); err != nil {
		app.internalServerError(w, r, err)
	}
}

// signupBackHandler godoc
//
//	@Summary		Go back one signup step
//	@Tags			signup
//	@Produce		json
//	@Param			sessionID	path		string	true	"Session ID"
//	@Success		200			{object}	onboarding.Session
//	@Failure		404			{object}	error
//	@Router			/signup/{sessionID}/back [post]
func (app *application) signupBackHandler(w http.ResponseWriter, r *http.Request) {
	s, err := app.wizard.Back(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		app.signupError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, s); err != nil {
		app.internalServerError(w, r, err)
	}
}

// uploadSignupDocumentHandler godoc
//
//	@Summary		Upload ID document during signup
//	@Description	Stores the tenant's ID scan and returns its URL for the document step.
//	@Tags			signup
//	@Accept			mpfd
//	@Produce		json
//	@Param			sessionID	path		string	true	"Session ID"
//	@Param			id_document	formData	file	true	"JPEG, PNG or PDF, max 5MB"
//	@Success		200			{object}	map[string]string
//	@Failure		400			{object}	ErrorBadRequestResponse
//	@Failure		404			{object}	error
//	@Router			/signup/{sessionID}/document [post]
func (app *application) uploadSignupDocumentHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := app.wizard.Get(ctx, chi.URLParam(r, "sessionID"))
	if err != nil {
		app.signupError(w, r, err)
		return
	}
	if s.UserType != users.Tenant {
		app.badRequestResponse(w, r, fmt.Errorf("only tenants upload an ID document"))
		return
	}

	file, err := formFile(w, r, "id_document")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	defer file.Close()

	url, err := app.uploads.Upload(ctx, file, "id_documents", "signup_"+s.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, map[string]string{"id_document_url": url}); err != nil {
		app.internalServerError(w, r, err)
	}
}

type LandlordCodePayload struct {
	LandlordCode string `json:"landlord_code" validate:"required,max=32"`
}

type AvailableProperty struct {
	ID      int64        `json:"id"`
	Name    string       `json:"name"`
	Address string       `json:"address"`
	City    string       `json:"city"`
	Units   []units.Unit `json:"units"`
}

type LandlordCodeResponse struct {
	LandlordName string              `json:"landlord_name"`
	Properties   []AvailableProperty `json:"properties"`
}

// lookupLandlordCodeHandler godoc
//
//	@Summary		Look up a landlord code
//	@Description	Returns the landlord's properties that still have available units, for the tenant wizard's unit step.
//	@Tags			signup
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		LandlordCodePayload	true	"Landlord code"
//	@Success		200		{object}	LandlordCodeResponse
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		404		{object}	error
//	@Router			/signup/landlord-code [post]
func (app *application) lookupLandlordCodeHandler(w http.ResponseWriter, r *http.Request) {
	var payload LandlordCodePayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx := r.Context()
	landlord, err := app.store.Users.GetByLandlordCode(ctx, strings.TrimSpace(payload.LandlordCode))
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			app.notFoundResponse(w, r, onboarding.ErrLandlordNotFound)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	available, err := app.store.Units.ListAvailableByLandlord(ctx, landlord.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	props, err := app.store.Properties.ListByLandlord(ctx, landlord.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	byProperty := make(map[int64][]units.Unit)
	for _, u := range available {
		byProperty[u.PropertyID] = append(byProperty[u.PropertyID], u)
	}

	res := LandlordCodeResponse{LandlordName: landlord.FullName, Properties: []AvailableProperty{}}
	for _, p := range props {
		if len(byProperty[p.ID]) == 0 {
			continue
		}
		res.Properties = append(res.Properties, AvailableProperty{
			ID:      p.ID,
			Name:    p.Name,
			Address: p.Address,
			City:    p.City,
			Units:   byProperty[p.ID],
		})
	}

	if err := app.jsonResponse(w, http.StatusOK, res); err != nil {
		app.internalServerError(w, r, err)
	}
}

// subscriptionPlansHandler godoc
//
//	@Summary		Subscription plans
//	@Description	Landlord plans by unit count. More than 100 units needs a custom quote.
//	@Tags			signup
//	@Produce		json
//	@Success		200	{array}	payments.Plan
//	@Router			/signup/plans [get]
func (app *application) subscriptionPlansHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.jsonResponse(w, http.StatusOK, payments.Plans()); err != nil {
		app.internalServerError(w, r, err)
	}
}

type CompleteSignupResponse struct {
	User         *users.User          `json:"user"`
	AccessToken  string               `json:"access_token"`
	RefreshToken string               `json:"refresh_token"`
	Payment      *PaymentInitResponse `json:"payment,omitempty"`
	PaymentError string               `json:"payment_error,omitempty"`
}

// createLandlordPortfolio stores the properties and units entered in the
// landlord wizard.
func createLandlordPortfolio(ctx context.Context, tx *storage.Tx, landlordID int64, drafts []onboarding.PropertyDraft) error {
	for _, d := range drafts {
		p := &properties.Property{
			LandlordID: landlordID,
			Name:       strings.TrimSpace(d.Name),
			Address:    strings.TrimSpace(d.Address),
			City:       strings.TrimSpace(d.City),
			State:      strings.TrimSpace(d.State),
			UnitCount:  len(d.Units),
		}
		if err := tx.Properties.Create(ctx, p); err != nil {
			return err
		}
		for _, ud := range d.Units {
			u := newUnit(p.ID, ud.UnitNumber, ud.RoomType, ud.Bedrooms, ud.Bathrooms, ud.RentCents, ud.DepositCents)
			if err := tx.Units.Create(ctx, u); err != nil {
				return fmt.Errorf("property %q unit %q: %w", p.Name, ud.UnitNumber, err)
			}
		}
	}
	return nil
}

// completeSignupHandler godoc
//
//	@Summary		Complete signup
//	@Description	Creates the account from a finished wizard, signs the user in and opens the deposit (tenant) or subscription (landlord) checkout. The account is kept even if the checkout cannot be opened; payment_error then says why.
//	@Tags			signup
//	@Produce		json
//	@Param			sessionID	path		string	true	"Session ID"
//	@Success		201			{object}	CompleteSignupResponse
//	@Failure		404			{object}	error
//	@Failure		409			{object}	error
//	@Failure		500			{object}	ErrorInternalServerResponse
//	@Router			/signup/{sessionID}/complete [post]
func (app *application) completeSignupHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := app.wizard.Get(ctx, chi.URLParam(r, "sessionID"))
	if err != nil {
		app.signupError(w, r, err)
		return
	}
	reg, err := s.Registration()
	if err != nil {
		app.signupError(w, r, err)
		return
	}
	user := reg.User

	err = app.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.Users.Create(ctx, user); err != nil {
			return err
		}
		if !user.IsLandlord() {
			return nil
		}

		code, err := app.codes.Code(user.ID)
		if err != nil {
			return err
		}
		if err := tx.Users.SetLandlordCode(ctx, user.ID, code); err != nil {
			return err
		}
		user.LandlordCode = &code

		return createLandlordPortfolio(ctx, tx, user.ID, reg.Properties)
	})
	if err != nil {
		if errors.Is(err, units.ErrDuplicateNumber) {
			app.badRequestResponse(w, r, err)
			return
		}
		app.signupError(w, r, err)
		return
	}

	if err := app.wizard.Discard(ctx, s.ID); err != nil {
		app.logger.Warnw("signup session not discarded", "session_id", s.ID, "error", err)
	}
	app.logger.Infow("user registered", "user_id", user.ID, "user_type", user.UserType)

	loginURL := app.config.frontendURL + "/login"
	go app.notifier.SendWelcome(user, loginURL)

	res := CompleteSignupResponse{User: user}
	res.AccessToken, res.RefreshToken, err = app.authenticator.GenerateTokens(user.ID, string(user.UserType))
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	if err := app.store.Users.SaveRefreshToken(ctx, user.ID, res.RefreshToken); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	var c checkout
	if user.IsLandlord() {
		c, err = subscriptionCheckout(user, reg.Plan, reg.MpesaPhone)
	} else {
		c, err = app.depositCheckout(ctx, user, reg.UnitID, reg.MpesaPhone)
	}
	if err == nil {
		res.Payment, err = app.startCheckout(ctx, c)
	}
	if err != nil {
		app.logger.Warnw("signup checkout not opened", "user_id", user.ID, "error", err)
		res.PaymentError = err.Error()
		if errors.Is(err, units.ErrOccupied) {
			res.PaymentError = "the selected unit was taken before your deposit; choose another unit"
		}
	}

	if err := app.jsonResponse(w, http.StatusCreated, res); err != nil {
		app.internalServerError(w, r, err)
	}
}
