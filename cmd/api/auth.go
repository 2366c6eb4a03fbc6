package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"makao/internal/auth"
	"makao/internal/domain/users"
)

// ErrorBadRequestResponse represents the standard error format for bad request API responses.
//
//	@name			ErrorBadRequestResponse
//	@description	Standard error response format returned by all bad request API endpoints
type ErrorBadRequestResponse struct {
	Success bool   `json:"success" example:"false"`
	Message string `json:"message" example:"amount exceeds outstanding balance"`
	Status  int    `json:"status" example:"400"`
}

// ErrorInternalServerResponse represents the standard error format for internal server API responses.
//
//	@name			ErrorInternalServerResponse
//	@description	Standard error response format returned by all internal server error API endpoints
type ErrorInternalServerResponse struct {
	Success bool   `json:"success" example:"false"`
	Message string `json:"message" example:"the server encountered a problem"`
	Status  int    `json:"status" example:"500"`
}

type CreateUserTokenPayload struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=3,max=72"`
	UserType string `json:"user_type" validate:"required,oneof=landlord tenant"`
}

// TokenResponse represents the structure of the tokens in the response. made for swagger doc success output
type TokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	UserID       string      `json:"user_id"`
	UserType     string      `json:"user_type"`
	User         *users.User `json:"user"`
}

// Envelope is a wrapper for API responses.made for swagger doc success output
type Envelope struct {
	Data TokenResponse `json:"data"`
}

var errWrongUserType = errors.New("account is not registered for this user type")

func (app *application) issueTokens(w http.ResponseWriter, r *http.Request, user *users.User) {
	accessToken, refreshToken, err := app.authenticator.GenerateTokens(user.ID, string(user.UserType))
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	// Save refresh token in the database
	if err := app.store.Users.SaveRefreshToken(r.Context(), user.ID, refreshToken); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	response := TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       strconv.FormatInt(user.ID, 10),
		UserType:     string(user.UserType),
		User:         user,
	}

	if err := app.jsonResponse(w, http.StatusOK, response); err != nil {
		app.internalServerError(w, r, err)
	}
}

// createTokenHandler godoc
//
//	@Summary		Login to get Token
//	@Description	Logs a landlord or tenant in. The account's user type must match the one chosen on the login form.
//	@Tags			authentication
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		CreateUserTokenPayload	true	"User credentials"
//	@Success		200		{object}	Envelope				"Access and refresh tokens"
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		401		{object}	error
//	@Failure		403		{object}	error
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Router			/authentication/token [post]
func (app *application) createTokenHandler(w http.ResponseWriter, r *http.Request) {
	var payload CreateUserTokenPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	user, err := app.store.Users.GetByEmail(r.Context(), strings.ToLower(strings.TrimSpace(payload.Email)))
	if err != nil {
		switch {
		case errors.Is(err, users.ErrNotFound):
			app.unauthorizedErrorResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := user.Password.Compare(payload.Password); err != nil {
		app.unauthorizedErrorResponse(w, r, err)
		return
	}
	if !user.IsActive {
		app.unauthorizedErrorResponse(w, r, fmt.Errorf("user %d is inactive", user.ID))
		return
	}
	if string(user.UserType) != payload.UserType {
		writeJSONError(w, http.StatusForbidden, errWrongUserType.Error())
		return
	}

	app.issueTokens(w, r, user)
}

// LogoutUser godoc
//
//	@Summary		logout user
//	@Description	Signs the user out everywhere: the refresh token is cleared and registered push tokens are forgotten
//	@Tags			authentication
//	@Accept			json
//	@Produce		json
//	@Success		204	{string}	string	"No Content"
//	@Failure		500	{object}	error	"Internal server error"
//	@Security		ApiKeyAuth
//	@Router			/users/logout [post]
func (app *application) logoutHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	ctx := r.Context()
	if err := app.store.Users.DeleteRefreshToken(ctx, user.ID); err != nil {
		app.internalServerError(w, r, err)
		return
	}
	// signed-out devices should stop receiving payment and rent pushes
	if err := app.store.PushTokens.RemoveAllForUser(ctx, user.ID); err != nil {
		app.logger.Warnw("push tokens not removed on logout", "user_id", user.ID, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

type RefreshPayload struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// refreshTokenHandler godoc
//
//	@Summary		Refresh authentication tokens
//	@Description	Validates the provided refresh token and issues new access and refresh tokens.
//	@Tags			authentication
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		RefreshPayload	true	"Refresh token payload"
//	@Success		200		{object}	Envelope		"New access and refresh tokens"
//	@Failure		400		{object}	error			"Bad request"
//	@Failure		401		{object}	error			"Unauthorized"
//	@Failure		500		{object}	error			"Internal server error"
//	@Router			/authentication/refresh [post]
func (app *application) refreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	var payload RefreshPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	token, err := app.authenticator.ValidateRefreshToken(payload.RefreshToken)
	if err != nil || !token.Valid {
		app.unauthorizedErrorResponse(w, r, fmt.Errorf("invalid refresh token"))
		return
	}

	claims, err := auth.ClaimsFromToken(token)
	if err != nil {
		app.unauthorizedErrorResponse(w, r, err)
		return
	}

	// Ensure refresh token exists in DB
	savedToken, err := app.store.Users.GetRefreshToken(r.Context(), claims.UserID)
	if err != nil || savedToken != payload.RefreshToken {
		app.unauthorizedErrorResponse(w, r, fmt.Errorf("refresh token mismatch"))
		return
	}

	user, err := app.store.Users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		app.unauthorizedErrorResponse(w, r, err)
		return
	}

	app.issueTokens(w, r, user)
}
