package main

import (
	"encoding/json"
	"net/http"
)

// SavePushTokenRequest represents the payload for saving/updating a push token
type SavePushTokenRequest struct {
	Token      string          `json:"token" validate:"required,startswith=ExponentPushToken"`
	DeviceInfo json.RawMessage `json:"device_info"`
}

// RemovePushTokenRequest represents the payload for removing a push token
type RemovePushTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// SavePushToken godoc
//
//	@Summary		Save or update a push notification token
//	@Description	Stores or updates the caller's Expo push token along with optional device info
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Param			payload	body	SavePushTokenRequest	true	"Push token data"
//	@Success		204
//	@Failure		400	{object}	error	"Bad Request"
//	@Failure		401	{object}	error	"Unauthorized"
//	@Failure		500	{object}	error	"Internal Server Error"
//	@Security		ApiKeyAuth
//	@Router			/users/push-tokens [post]
func (app *application) savePushTokenHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var payload SavePushTokenRequest
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := app.store.PushTokens.AddOrUpdatePushToken(r.Context(), user.ID, payload.Token, payload.DeviceInfo); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RemovePushToken godoc
//
//	@Summary		Remove a push notification token
//	@Description	Deletes one of the caller's push tokens, typically on sign out
//	@Tags			users
//	@Accept			json
//	@Param			payload	body	RemovePushTokenRequest	true	"Token to remove"
//	@Success		204
//	@Failure		400	{object}	error	"Bad Request"
//	@Failure		401	{object}	error	"Unauthorized"
//	@Failure		500	{object}	error	"Internal Server Error"
//	@Security		ApiKeyAuth
//	@Router			/users/push-tokens [delete]
func (app *application) removePushTokenHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var payload RemovePushTokenRequest
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := app.store.PushTokens.RemovePushToken(r.Context(), user.ID, payload.Token); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
