package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"makao/internal/auth"
	"makao/internal/domain/paymentsrepo"
	"makao/internal/domain/properties"
	"makao/internal/domain/reports"
	"makao/internal/domain/units"
	"makao/internal/domain/users"

	"github.com/go-chi/chi/v5"
)

type ctxKey string

const (
	userCtx     ctxKey = "user"
	propertyCtx ctxKey = "property"
	unitCtx     ctxKey = "unit"
	reportCtx   ctxKey = "report"
	paymentCtx  ctxKey = "payment"
)

func getUserFromContext(r *http.Request) *users.User {
	if user, ok := r.Context().Value(userCtx).(*users.User); ok {
		return user
	}
	return nil
}

func getPropertyFromContext(r *http.Request) *properties.Property {
	p, _ := r.Context().Value(propertyCtx).(*properties.Property)
	return p
}

func getUnitFromContext(r *http.Request) *units.Unit {
	u, _ := r.Context().Value(unitCtx).(*units.Unit)
	return u
}

func getReportFromContext(r *http.Request) *reports.Report {
	rep, _ := r.Context().Value(reportCtx).(*reports.Report)
	return rep
}

func getPaymentFromContext(r *http.Request) *paymentsrepo.Payment {
	p, _ := r.Context().Value(paymentCtx).(*paymentsrepo.Payment)
	return p
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func (app *application) BasicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// read the auth header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				app.unauthorizedBasicErrorResponse(w, r, fmt.Errorf("authorization header is missing"))
				return
			}

			// parse it -> get the base64
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Basic" {
				app.unauthorizedBasicErrorResponse(w, r, fmt.Errorf("authorization header is malformed"))
				return
			}

			// decode it
			decoded, err := base64.StdEncoding.DecodeString(parts[1])
			if err != nil {
				app.unauthorizedBasicErrorResponse(w, r, err)
				return
			}

			// check the credentials
			username := app.config.auth.basic.user
			pass := app.config.auth.basic.pass

			creds := strings.SplitN(string(decoded), ":", 2)
			if len(creds) != 2 || creds[0] != username || creds[1] != pass {
				app.unauthorizedBasicErrorResponse(w, r, fmt.Errorf("invalid credentials"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (app *application) AuthTokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		authHeader := r.Header.Get("Authorization")
		switch {
		case authHeader != "":
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				app.unauthorizedErrorResponse(w, r, fmt.Errorf("authorization header is malformed"))
				return
			}
			token = parts[1]
		case r.URL.Query().Get("token") != "":
			// browsers cannot set headers on websocket upgrades
			token = r.URL.Query().Get("token")
		default:
			app.unauthorizedErrorResponse(w, r, fmt.Errorf("authorization header is missing"))
			return
		}

		jwtToken, err := app.authenticator.ValidateAccessToken(token)
		if err != nil {
			app.unauthorizedErrorResponse(w, r, err)
			return
		}

		claims, err := auth.ClaimsFromToken(jwtToken)
		if err != nil {
			app.unauthorizedErrorResponse(w, r, err)
			return
		}

		ctx := r.Context()

		user, err := app.store.Users.GetByID(ctx, claims.UserID)
		if err != nil {
			app.unauthorizedErrorResponse(w, r, err)
			return
		}
		if !user.IsActive {
			app.unauthorizedErrorResponse(w, r, fmt.Errorf("user %d is inactive", user.ID))
			return
		}

		ctx = context.WithValue(ctx, userCtx, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (app *application) requireUserType(t users.UserType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := getUserFromContext(r)
			if user == nil || user.UserType != t {
				app.forbiddenResponse(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (app *application) RateLimiterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allow, retryAfter := app.rateLimiter.Allow(r.RemoteAddr); !allow {
			app.rateLimitExceededResponse(w, r, retryAfter.String())
			return
		}

		next.ServeHTTP(w, r)
	})
}

// canAccessUnit reports whether user is the unit's landlord or its tenant.
func canAccessUnit(user *users.User, u *units.Unit) bool {
	if user.IsLandlord() {
		return u.LandlordID == user.ID
	}
	return u.HasTenant(user.ID)
}

func (app *application) propertyContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseIDParam(r, "propertyID")
		if err != nil {
			app.badRequestResponse(w, r, err)
			return
		}

		p, err := app.store.Properties.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, properties.ErrNotFound) {
				app.notFoundResponse(w, r, err)
				return
			}
			app.internalServerError(w, r, err)
			return
		}
		if p.LandlordID != getUserFromContext(r).ID {
			app.forbiddenResponse(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), propertyCtx, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (app *application) unitContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseIDParam(r, "unitID")
		if err != nil {
			app.badRequestResponse(w, r, err)
			return
		}

		u, err := app.store.Units.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, units.ErrNotFound) {
				app.notFoundResponse(w, r, err)
				return
			}
			app.internalServerError(w, r, err)
			return
		}
		if !canAccessUnit(getUserFromContext(r), u) {
			app.forbiddenResponse(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), unitCtx, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (app *application) reportContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseIDParam(r, "reportID")
		if err != nil {
			app.badRequestResponse(w, r, err)
			return
		}

		ctx := r.Context()
		rep, err := app.store.Reports.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, reports.ErrNotFound) {
				app.notFoundResponse(w, r, err)
				return
			}
			app.internalServerError(w, r, err)
			return
		}

		user := getUserFromContext(r)
		allowed := rep.TenantID == user.ID
		if user.IsLandlord() {
			u, err := app.store.Units.GetByID(ctx, rep.UnitID)
			if err != nil && !errors.Is(err, units.ErrNotFound) {
				app.internalServerError(w, r, err)
				return
			}
			allowed = err == nil && u.LandlordID == user.ID
		}
		if !allowed {
			app.forbiddenResponse(w, r)
			return
		}

		ctx = context.WithValue(ctx, reportCtx, rep)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (app *application) paymentContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseIDParam(r, "paymentID")
		if err != nil {
			app.badRequestResponse(w, r, err)
			return
		}

		ctx := r.Context()
		p, err := app.store.Payments.Payments.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, paymentsrepo.ErrNotFound) {
				app.notFoundResponse(w, r, err)
				return
			}
			app.internalServerError(w, r, err)
			return
		}

		ok, err := app.canViewPayment(ctx, getUserFromContext(r), p)
		if err != nil {
			app.internalServerError(w, r, err)
			return
		}
		if !ok {
			app.forbiddenResponse(w, r)
			return
		}

		ctx = context.WithValue(ctx, paymentCtx, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// canViewPayment allows the payer and the landlord of the paid unit.
func (app *application) canViewPayment(ctx context.Context, user *users.User, p *paymentsrepo.Payment) (bool, error) {
	if p.TenantID == user.ID {
		return true, nil
	}
	if !user.IsLandlord() || p.UnitID == nil {
		return false, nil
	}
	u, err := app.store.Units.GetByID(ctx, *p.UnitID)
	if err != nil {
		if errors.Is(err, units.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return u.LandlordID == user.ID, nil
}
