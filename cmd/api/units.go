package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"makao/internal/domain/properties"
	"makao/internal/domain/storage"
	"makao/internal/domain/units"
	"makao/internal/domain/users"

	"github.com/google/uuid"
)

// newUnitCode builds a unit code such as U-12-A4-1a2b3c4d.
func newUnitCode(propertyID int64, unitNumber string) string {
	number := strings.ReplaceAll(strings.TrimSpace(unitNumber), " ", "")
	return fmt.Sprintf("U-%d-%s-%s", propertyID, number, uuid.NewString()[:8])
}

// newUnit fills in a unit ready to insert. A zero deposit defaults to one
// month's rent.
func newUnit(propertyID int64, number, roomType string, bedrooms, bathrooms int, rentCents, depositCents int64) *units.Unit {
	if depositCents == 0 {
		depositCents = rentCents
	}
	return &units.Unit{
		PropertyID:   propertyID,
		UnitCode:     newUnitCode(propertyID, number),
		UnitNumber:   strings.TrimSpace(number),
		RoomType:     strings.TrimSpace(roomType),
		Bedrooms:     bedrooms,
		Bathrooms:    bathrooms,
		RentCents:    rentCents,
		DepositCents: depositCents,
		IsAvailable:  true,
	}
}

func (app *application) unitError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, units.ErrNotFound):
		app.notFoundResponse(w, r, err)
	case errors.Is(err, units.ErrOccupied),
		errors.Is(err, units.ErrTenantHasUnit),
		errors.Is(err, units.ErrNoTenant),
		errors.Is(err, units.ErrDuplicateNumber):
		app.conflictResponse(w, r, err)
	default:
		app.internalServerError(w, r, err)
	}
}

// listUnitsHandler godoc
//
//	@Summary		List units
//	@Description	Landlords get every unit they own; tenants get the unit assigned to them, if any.
//	@Tags			units
//	@Produce		json
//	@Success		200	{array}		units.Unit
//	@Failure		500	{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/units [get]
func (app *application) listUnitsHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	ctx := r.Context()

	list := []units.Unit{}
	if user.IsLandlord() {
		all, err := app.store.Units.ListByLandlord(ctx, user.ID)
		if err != nil {
			app.internalServerError(w, r, err)
			return
		}
		list = append(list, all...)
	} else {
		u, err := app.store.Units.GetByTenant(ctx, user.ID)
		switch {
		case err == nil:
			list = append(list, *u)
		case !errors.Is(err, units.ErrNotFound):
			app.internalServerError(w, r, err)
			return
		}
	}

	if err := app.jsonResponse(w, http.StatusOK, list); err != nil {
		app.internalServerError(w, r, err)
	}
}

// getUnitHandler godoc
//
//	@Summary		Get unit
//	@Tags			units
//	@Produce		json
//	@Param			unitID	path		int	true	"Unit ID"
//	@Success		200		{object}	units.Unit
//	@Failure		403		{object}	error
//	@Failure		404		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/units/{unitID} [get]
func (app *application) getUnitHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.jsonResponse(w, http.StatusOK, getUnitFromContext(r)); err != nil {
		app.internalServerError(w, r, err)
	}
}

type CreateUnitPayload struct {
	UnitNumber   string `json:"unit_number" validate:"required,max=20"`
	RoomType     string `json:"room_type" validate:"max=50"`
	Bedrooms     int    `json:"bedrooms" validate:"min=0"`
	Bathrooms    int    `json:"bathrooms" validate:"min=0"`
	RentCents    int64  `json:"rent_cents" validate:"gt=0"`
	DepositCents int64  `json:"deposit_cents" validate:"min=0"`
}

// createUnitHandler godoc
//
//	@Summary		Create unit
//	@Description	Adds a unit to the property. A zero deposit defaults to one month's rent.
//	@Tags			properties
//	@Accept			json
//	@Produce		json
//	@Param			propertyID	path		int					true	"Property ID"
//	@Param			payload		body		CreateUnitPayload	true	"Unit"
//	@Success		201			{object}	units.Unit
//	@Failure		400			{object}	ErrorBadRequestResponse
//	@Failure		409			{object}	error
//	@Failure		500			{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/properties/{propertyID}/units [post]
func (app *application) createUnitHandler(w http.ResponseWriter, r *http.Request) {
	p := getPropertyFromContext(r)

	var payload CreateUnitPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx := r.Context()
	u := newUnit(p.ID, payload.UnitNumber, payload.RoomType, payload.Bedrooms, payload.Bathrooms, payload.RentCents, payload.DepositCents)
	err := app.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.Units.Create(ctx, u); err != nil {
			return err
		}
		count := p.UnitCount + 1
		_, err := tx.Properties.Update(ctx, p.ID, properties.UpdatePropertyInput{UnitCount: &count})
		return err
	})
	if err != nil {
		app.unitError(w, r, err)
		return
	}
	u.PropertyName = p.Name
	u.LandlordID = p.LandlordID

	if err := app.jsonResponse(w, http.StatusCreated, u); err != nil {
		app.internalServerError(w, r, err)
	}
}

// updateUnitHandler godoc
//
//	@Summary		Update unit
//	@Tags			units
//	@Accept			json
//	@Produce		json
//	@Param			unitID	path		int						true	"Unit ID"
//	@Param			payload	body		units.UpdateUnitInput	true	"Fields to update"
//	@Success		200		{object}	units.Unit
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/units/{unitID} [patch]
func (app *application) updateUnitHandler(w http.ResponseWriter, r *http.Request) {
	u := getUnitFromContext(r)

	var payload units.UpdateUnitInput
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if payload.IsAvailable != nil && *payload.IsAvailable && u.TenantID != nil {
		app.conflictResponse(w, r, units.ErrOccupied)
		return
	}

	updated, err := app.store.Units.Update(r.Context(), u.ID, payload)
	if err != nil {
		app.unitError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, updated); err != nil {
		app.internalServerError(w, r, err)
	}
}

// deleteUnitHandler godoc
//
//	@Summary		Delete unit
//	@Description	Refused while the unit has a tenant.
//	@Tags			units
//	@Param			unitID	path	int	true	"Unit ID"
//	@Success		204		"No Content"
//	@Failure		409		{object}	error
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/units/{unitID} [delete]
func (app *application) deleteUnitHandler(w http.ResponseWriter, r *http.Request) {
	u := getUnitFromContext(r)
	if u.TenantID != nil {
		app.conflictResponse(w, r, units.ErrOccupied)
		return
	}

	ctx := r.Context()
	err := app.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.Units.Delete(ctx, u.ID); err != nil {
			return err
		}
		p, err := tx.Properties.GetByID(ctx, u.PropertyID)
		if err != nil {
			return err
		}
		count := max(p.UnitCount-1, 0)
		_, err = tx.Properties.Update(ctx, p.ID, properties.UpdatePropertyInput{UnitCount: &count})
		return err
	})
	if err != nil {
		app.unitError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type AssignTenantPayload struct {
	TenantEmail string `json:"tenant_email" validate:"required,email"`
}

// assignTenantHandler godoc
//
//	@Summary		Assign a tenant
//	@Description	Puts an existing tenant account into a vacant unit.
//	@Tags			units
//	@Accept			json
//	@Produce		json
//	@Param			unitID	path		int					true	"Unit ID"
//	@Param			payload	body		AssignTenantPayload	true	"Tenant"
//	@Success		200		{object}	units.Unit
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		404		{object}	error
//	@Failure		409		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/units/{unitID}/tenant [put]
func (app *application) assignTenantHandler(w http.ResponseWriter, r *http.Request) {
	u := getUnitFromContext(r)

	var payload AssignTenantPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx := r.Context()
	tenant, err := app.store.Users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(payload.TenantEmail)))
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			app.notFoundResponse(w, r, err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}
	if tenant.UserType != users.Tenant {
		app.badRequestResponse(w, r, fmt.Errorf("%s is not a tenant account", tenant.Email))
		return
	}

	var updated *units.Unit
	err = app.store.WithTx(ctx, func(tx *storage.Tx) error {
		locked, err := tx.Units.GetByIDForUpdate(ctx, u.ID)
		if err != nil {
			return err
		}
		if locked.TenantID != nil && *locked.TenantID != tenant.ID {
			return units.ErrOccupied
		}
		if err := tx.Units.AssignTenant(ctx, u.ID, tenant.ID); err != nil {
			return err
		}
		updated, err = tx.Units.GetByID(ctx, u.ID)
		return err
	})
	if err != nil {
		app.unitError(w, r, err)
		return
	}
	app.logger.Infow("tenant assigned", "unit_id", u.ID, "tenant_id", tenant.ID)

	if err := app.jsonResponse(w, http.StatusOK, updated); err != nil {
		app.internalServerError(w, r, err)
	}
}

// removeTenantHandler godoc
//
//	@Summary		Remove the tenant
//	@Description	Frees the unit and resets its rent balance. Responds 409 when the unit has no tenant.
//	@Tags			units
//	@Produce		json
//	@Param			unitID	path		int	true	"Unit ID"
//	@Success		200		{object}	units.Unit
//	@Failure		409		{object}	error
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/units/{unitID}/tenant [delete]
func (app *application) removeTenantHandler(w http.ResponseWriter, r *http.Request) {
	u := getUnitFromContext(r)
	ctx := r.Context()

	if err := app.store.Units.RemoveTenant(ctx, u.ID); err != nil {
		app.unitError(w, r, err)
		return
	}
	app.logger.Infow("tenant removed", "unit_id", u.ID, "tenant_id", u.TenantID)

	updated, err := app.store.Units.GetByID(ctx, u.ID)
	if err != nil {
		app.unitError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, updated); err != nil {
		app.internalServerError(w, r, err)
	}
}
