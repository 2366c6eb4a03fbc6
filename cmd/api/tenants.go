package main

import (
	"net/http"

	"makao/internal/domain/users"
)

// listTenantsHandler godoc
//
//	@Summary		List tenants
//	@Description	Every tenant currently assigned to one of the landlord's units.
//	@Tags			tenants
//	@Produce		json
//	@Success		200	{array}		users.TenantRow
//	@Failure		500	{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/tenants [get]
func (app *application) listTenantsHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	tenants, err := app.store.Users.ListTenantsByLandlord(r.Context(), user.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	if tenants == nil {
		tenants = []users.TenantRow{}
	}

	if err := app.jsonResponse(w, http.StatusOK, tenants); err != nil {
		app.internalServerError(w, r, err)
	}
}

type BroadcastPayload struct {
	Subject   string  `json:"subject" validate:"required,max=200"`
	Message   string  `json:"message" validate:"required,max=5000"`
	TenantIDs []int64 `json:"tenant_ids"`
}

// broadcastHandler godoc
//
//	@Summary		Email tenants
//	@Description	Sends a notice to the landlord's tenants. Omit tenant_ids to reach all of them.
//	@Tags			tenants
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		BroadcastPayload	true	"Notice"
//	@Success		200		{object}	notifications.BroadcastResult
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/tenants/notify [post]
func (app *application) broadcastHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var payload BroadcastPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	res, err := app.notifier.Broadcast(r.Context(), user.ID, payload.Subject, payload.Message, payload.TenantIDs)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	app.logger.Infow("tenant notice sent", "landlord_id", user.ID, "sent", res.Sent, "failed", res.Failed)

	if err := app.jsonResponse(w, http.StatusOK, res); err != nil {
		app.internalServerError(w, r, err)
	}
}
