package main

import (
	"net/http"
	"testing"

	"makao/internal/domain/paymentsrepo"
	"makao/internal/domain/reports"
	"makao/internal/domain/users"
)

func TestDashboard(t *testing.T) {
	env := newTestApplication(t)
	landlord := env.addUser(t, 1, "landlord@example.com", users.Landlord)
	tenant := env.addUser(t, 2, "tenant@example.com", users.Tenant)
	env.addProperty(10, 1)
	env.addUnit(100, 10, 1, int64p(2))
	env.addUnit(101, 10, 1, nil)
	env.reports.byID[1] = &reports.Report{ID: 1, TenantID: 2, UnitID: 100, Status: reports.StatusOpen}
	env.payments.byID[1] = &paymentsrepo.Payment{ID: 1, TenantID: 2, UnitID: int64p(100), Status: paymentsrepo.StatusCompleted}

	t.Run("landlord", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/v1/dashboard", env.token(t, landlord), nil)
		checkResponseCode(t, http.StatusOK, rr)

		var res DashboardResponse
		decodeData(t, rr, &res)
		if len(res.Properties) != 1 || len(res.Units) != 2 || len(res.Reports) != 1 {
			t.Errorf("snapshot = %+v", res)
		}
		if res.ReportStats == nil || res.Subscription == nil || res.Subscription.Active {
			t.Errorf("stats/subscription = %+v/%+v", res.ReportStats, res.Subscription)
		}
	})

	t.Run("tenant", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/v1/dashboard", env.token(t, tenant), nil)
		checkResponseCode(t, http.StatusOK, rr)

		var res DashboardResponse
		decodeData(t, rr, &res)
		if len(res.Units) != 1 || res.Units[0].ID != 100 {
			t.Errorf("units = %+v", res.Units)
		}
		if len(res.Payments) != 1 || len(res.Reports) != 1 {
			t.Errorf("payments/reports = %d/%d", len(res.Payments), len(res.Reports))
		}
		if res.Properties != nil || res.Subscription != nil {
			t.Error("landlord sections leaked into a tenant snapshot")
		}
	})
}
