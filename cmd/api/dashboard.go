package main

import (
	"errors"
	"net/http"
	"time"

	"makao/internal/domain/paymentsrepo"
	"makao/internal/domain/properties"
	"makao/internal/domain/reports"
	"makao/internal/domain/subscriptions"
	"makao/internal/domain/units"
	"makao/internal/domain/users"

	"golang.org/x/sync/errgroup"
)

const dashboardRecentPayments = 10

// DashboardResponse is one consistent snapshot of everything a dashboard
// screen renders. Landlord-only sections are omitted for tenants.
type DashboardResponse struct {
	UserType       users.UserType          `json:"user_type"`
	Properties     []properties.Property   `json:"properties,omitempty"`
	Units          []units.Unit            `json:"units"`
	Tenants        []users.TenantRow       `json:"tenants,omitempty"`
	Reports        []reports.Report        `json:"reports"`
	ReportStats    *reports.Stats          `json:"report_stats,omitempty"`
	Payments       []*paymentsrepo.Payment `json:"recent_payments"`
	PaymentSummary *paymentsrepo.Summary   `json:"payment_summary"`
	Subscription   *SubscriptionResponse   `json:"subscription,omitempty"`
}

// dashboardHandler godoc
//
//	@Summary		Dashboard snapshot
//	@Description	Fetches the caller's units, reports and payments (plus properties, tenants and report stats for landlords) concurrently.
//	@Tags			dashboard
//	@Produce		json
//	@Success		200	{object}	DashboardResponse
//	@Failure		500	{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/dashboard [get]
func (app *application) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	res := DashboardResponse{UserType: user.UserType, Units: []units.Unit{}, Reports: []reports.Report{}}

	f := paymentsrepo.ListFilter{TenantID: user.ID}
	if user.IsLandlord() {
		f = paymentsrepo.ListFilter{LandlordID: user.ID}
	}

	g, ctx := errgroup.WithContext(r.Context())

	g.Go(func() error {
		list, _, err := app.store.Payments.Payments.List(ctx, f, dashboardRecentPayments, 0)
		res.Payments = list
		return err
	})
	g.Go(func() error {
		s, err := app.store.Payments.Payments.Summary(ctx, f)
		res.PaymentSummary = s
		return err
	})

	if user.IsLandlord() {
		g.Go(func() error {
			list, err := app.store.Properties.ListByLandlord(ctx, user.ID)
			res.Properties = list
			return err
		})
		g.Go(func() error {
			list, err := app.store.Units.ListByLandlord(ctx, user.ID)
			if list != nil {
				res.Units = list
			}
			return err
		})
		g.Go(func() error {
			list, err := app.store.Users.ListTenantsByLandlord(ctx, user.ID)
			res.Tenants = list
			return err
		})
		g.Go(func() error {
			list, err := app.store.Reports.ListByLandlord(ctx, user.ID, reports.Filter{})
			if list != nil {
				res.Reports = list
			}
			return err
		})
		g.Go(func() error {
			s, err := app.store.Reports.Stats(ctx, user.ID)
			res.ReportStats = s
			return err
		})
		g.Go(func() error {
			sub := &SubscriptionResponse{}
			s, err := app.store.Subscriptions.Get(ctx, user.ID)
			switch {
			case err == nil:
				sub.Subscription = s
				sub.Active = s.Active(time.Now())
			case !errors.Is(err, subscriptions.ErrNotFound):
				return err
			}
			res.Subscription = sub
			return nil
		})
	} else {
		g.Go(func() error {
			u, err := app.store.Units.GetByTenant(ctx, user.ID)
			switch {
			case err == nil:
				res.Units = []units.Unit{*u}
			case !errors.Is(err, units.ErrNotFound):
				return err
			}
			return nil
		})
		g.Go(func() error {
			list, err := app.store.Reports.ListByTenant(ctx, user.ID)
			if list != nil {
				res.Reports = list
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		app.internalServerError(w, r, err)
		return
	}
	if res.Payments == nil {
		res.Payments = []*paymentsrepo.Payment{}
	}

	if err := app.jsonResponse(w, http.StatusOK, res); err != nil {
		app.internalServerError(w, r, err)
	}
}
