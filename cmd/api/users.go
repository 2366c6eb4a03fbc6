package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"makao/internal/domain/subscriptions"
	"makao/internal/domain/units"
	"makao/internal/domain/users"
	"makao/internal/notifications"
	"makao/internal/payments"
)

// SessionResponse is what a client needs to restore a signed-in session.
type SessionResponse struct {
	User         *users.User                 `json:"user"`
	Unit         *units.Unit                 `json:"unit,omitempty"`
	Subscription *subscriptions.Subscription `json:"subscription,omitempty"`
	Active       bool                        `json:"subscription_active"`
}

// getCurrentUserHandler godoc
//
//	@Summary		Current session
//	@Description	Returns the signed-in user with their unit (tenants) or subscription (landlords).
//	@Tags			users
//	@Produce		json
//	@Success		200	{object}	SessionResponse
//	@Failure		401	{object}	error
//	@Failure		500	{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/users/me [get]
func (app *application) getCurrentUserHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	ctx := r.Context()
	res := SessionResponse{User: user}

	if user.IsLandlord() {
		sub, err := app.store.Subscriptions.Get(ctx, user.ID)
		switch {
		case err == nil:
			res.Subscription = sub
			res.Active = sub.Active(time.Now())
		case !errors.Is(err, subscriptions.ErrNotFound):
			app.internalServerError(w, r, err)
			return
		}
	} else {
		unit, err := app.store.Units.GetByTenant(ctx, user.ID)
		switch {
		case err == nil:
			res.Unit = unit
		case !errors.Is(err, units.ErrNotFound):
			app.internalServerError(w, r, err)
			return
		}
	}

	if err := app.jsonResponse(w, http.StatusOK, res); err != nil {
		app.internalServerError(w, r, err)
	}
}

type UpdateProfilePayload struct {
	FullName         *string `json:"full_name" validate:"omitempty,min=2,max=255"`
	PhoneNumber      *string `json:"phone_number" validate:"omitempty,kephone"`
	MpesaTillNumber  *string `json:"mpesa_till_number" validate:"omitempty,numeric,max=20"`
	Address          *string `json:"address" validate:"omitempty,max=500"`
	Website          *string `json:"website" validate:"omitempty,url"`
	EmergencyContact *string `json:"emergency_contact" validate:"omitempty,kephone"`
}

func (p UpdateProfilePayload) updates() map[string]any {
	updates := make(map[string]any)
	set := func(field string, v *string) {
		if v != nil {
			updates[field] = strings.TrimSpace(*v)
		}
	}
	phone := func(field string, v *string) {
		if v == nil {
			return
		}
		if n, err := payments.NormalizePhone(*v); err == nil {
			updates[field] = n
		}
	}
	set("full_name", p.FullName)
	phone("phone_number", p.PhoneNumber)
	set("mpesa_till_number", p.MpesaTillNumber)
	set("address", p.Address)
	set("website", p.Website)
	phone("emergency_contact", p.EmergencyContact)
	return updates
}

// updateUserHandler godoc
//
//	@Summary		Update profile
//	@Description	Updates the signed-in user's profile. Only the provided fields change.
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		UpdateProfilePayload	true	"Fields to update"
//	@Success		200		{object}	users.User
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/users [patch]
func (app *application) updateUserHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var payload UpdateProfilePayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	updates := payload.updates()
	if len(updates) == 0 {
		app.badRequestResponse(w, r, fmt.Errorf("no fields to update"))
		return
	}

	ctx := r.Context()
	if err := app.store.Users.UpdateProfile(ctx, user.ID, updates); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	updated, err := app.store.Users.GetByID(ctx, user.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, updated); err != nil {
		app.internalServerError(w, r, err)
	}
}

// uploadIDDocumentHandler godoc
//
//	@Summary		Upload ID document
//	@Description	Uploads the signed-in user's national ID or passport scan and stores its URL.
//	@Tags			users
//	@Accept			mpfd
//	@Produce		json
//	@Param			id_document	formData	file	true	"JPEG, PNG or PDF, max 5MB"
//	@Success		200			{object}	map[string]string
//	@Failure		400			{object}	ErrorBadRequestResponse
//	@Failure		500			{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/users/id-document [post]
func (app *application) uploadIDDocumentHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	file, err := formFile(w, r, "id_document")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	defer file.Close()

	ctx := r.Context()
	url, err := app.uploads.Upload(ctx, file, "id_documents", fmt.Sprintf("user_%d_%d", user.ID, time.Now().UnixNano()))
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.store.Users.SetIDDocument(ctx, user.ID, url); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if user.IDDocumentURL != nil {
		old := *user.IDDocumentURL
		notifications.CallAsync(app.logger, func(ctx context.Context) error {
			return app.uploads.Destroy(ctx, old)
		})
	}

	if err := app.jsonResponse(w, http.StatusOK, map[string]string{"id_document_url": url}); err != nil {
		app.internalServerError(w, r, err)
	}
}
