package main

import (
	"net/http"
	"strings"

	"makao/internal/domain/properties"
	"makao/internal/domain/units"
)

type CreatePropertyPayload struct {
	Name    string `json:"name" validate:"required,max=255"`
	City    string `json:"city" validate:"max=100"`
	State   string `json:"state" validate:"max=100"`
	Address string `json:"address" validate:"required,max=500"`
}

// listPropertiesHandler godoc
//
//	@Summary		List properties
//	@Description	The landlord's properties with unit and occupancy counts.
//	@Tags			properties
//	@Produce		json
//	@Success		200	{array}		properties.Property
//	@Failure		500	{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/properties [get]
func (app *application) listPropertiesHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	list, err := app.store.Properties.ListByLandlord(r.Context(), user.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	if list == nil {
		list = []properties.Property{}
	}

	if err := app.jsonResponse(w, http.StatusOK, list); err != nil {
		app.internalServerError(w, r, err)
	}
}

// createPropertyHandler godoc
//
//	@Summary		Create property
//	@Tags			properties
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		CreatePropertyPayload	true	"Property"
//	@Success		201		{object}	properties.Property
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/properties [post]
func (app *application) createPropertyHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var payload CreatePropertyPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	p := &properties.Property{
		LandlordID: user.ID,
		Name:       strings.TrimSpace(payload.Name),
		City:       strings.TrimSpace(payload.City),
		State:      strings.TrimSpace(payload.State),
		Address:    strings.TrimSpace(payload.Address),
	}
	if err := app.store.Properties.Create(r.Context(), p); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, p); err != nil {
		app.internalServerError(w, r, err)
	}
}

// getPropertyHandler godoc
//
//	@Summary		Get property
//	@Tags			properties
//	@Produce		json
//	@Param			propertyID	path		int	true	"Property ID"
//	@Success		200			{object}	properties.Property
//	@Failure		403			{object}	error
//	@Failure		404			{object}	error
//	@Security		ApiKeyAuth
//	@Router			/properties/{propertyID} [get]
func (app *application) getPropertyHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.jsonResponse(w, http.StatusOK, getPropertyFromContext(r)); err != nil {
		app.internalServerError(w, r, err)
	}
}

// updatePropertyHandler godoc
//
//	@Summary		Update property
//	@Tags			properties
//	@Accept			json
//	@Produce		json
//	@Param			propertyID	path		int								true	"Property ID"
//	@Param			payload		body		properties.UpdatePropertyInput	true	"Fields to update"
//	@Success		200			{object}	properties.Property
//	@Failure		400			{object}	ErrorBadRequestResponse
//	@Failure		500			{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/properties/{propertyID} [patch]
func (app *application) updatePropertyHandler(w http.ResponseWriter, r *http.Request) {
	p := getPropertyFromContext(r)

	var payload properties.UpdatePropertyInput
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	updated, err := app.store.Properties.Update(r.Context(), p.ID, payload)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, updated); err != nil {
		app.internalServerError(w, r, err)
	}
}

// deletePropertyHandler godoc
//
//	@Summary		Delete property
//	@Description	Deletes the property and its units. Refused while any unit has a tenant.
//	@Tags			properties
//	@Param			propertyID	path	int	true	"Property ID"
//	@Success		204			"No Content"
//	@Failure		409			{object}	error
//	@Failure		500			{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/properties/{propertyID} [delete]
func (app *application) deletePropertyHandler(w http.ResponseWriter, r *http.Request) {
	p := getPropertyFromContext(r)
	if p.Occupied > 0 {
		app.conflictResponse(w, r, units.ErrOccupied)
		return
	}

	if err := app.store.Properties.Delete(r.Context(), p.ID); err != nil {
		app.internalServerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listPropertyUnitsHandler godoc
//
//	@Summary		List a property's units
//	@Tags			properties
//	@Produce		json
//	@Param			propertyID	path		int	true	"Property ID"
//	@Success		200			{array}		units.Unit
//	@Failure		500			{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/properties/{propertyID}/units [get]
func (app *application) listPropertyUnitsHandler(w http.ResponseWriter, r *http.Request) {
	p := getPropertyFromContext(r)

	list, err := app.store.Units.ListByProperty(r.Context(), p.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	if list == nil {
		list = []units.Unit{}
	}

	if err := app.jsonResponse(w, http.StatusOK, list); err != nil {
		app.internalServerError(w, r, err)
	}
}
