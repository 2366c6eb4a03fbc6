package main

import (
	"net/http"
	"strings"
	"testing"

	"makao/internal/domain/units"
	"makao/internal/domain/users"
)

func TestNewUnit(t *testing.T) {
	u := newUnit(12, " A 4 ", "studio", 1, 1, 1_500_000, 0)
	if u.DepositCents != 1_500_000 {
		t.Errorf("deposit = %d, want rent", u.DepositCents)
	}
	if !strings.HasPrefix(u.UnitCode, "U-12-A4-") || len(u.UnitCode) != len("U-12-A4-")+8 {
		t.Errorf("unit code = %q", u.UnitCode)
	}
	if u.UnitNumber != "A 4" || !u.IsAvailable {
		t.Errorf("unit = %+v", u)
	}
}

func TestUnitHandlers(t *testing.T) {
	setup := func(t *testing.T) (*testEnv, string) {
		env := newTestApplication(t)
		landlord := env.addUser(t, 1, "landlord@example.com", users.Landlord)
		env.addUser(t, 2, "tenant@example.com", users.Tenant)
		env.addProperty(10, 1)
		env.addUnit(100, 10, 1, nil)
		return env, env.token(t, landlord)
	}

	t.Run("create bumps the property unit count", func(t *testing.T) {
		env, tok := setup(t)
		rr := env.do(t, http.MethodPost, "/v1/properties/10/units", tok, CreateUnitPayload{
			UnitNumber: "B2", RentCents: 2_000_000,
		})
		checkResponseCode(t, http.StatusCreated, rr)

		var u units.Unit
		decodeData(t, rr, &u)
		if u.DepositCents != 2_000_000 || u.RentRemainingCents != 2_000_000 {
			t.Errorf("unit = %+v", u)
		}
		if env.props.byID[10].UnitCount != 1 {
			t.Errorf("unit count = %d", env.props.byID[10].UnitCount)
		}
	})

	t.Run("duplicate number conflicts", func(t *testing.T) {
		env, tok := setup(t)
		rr := env.do(t, http.MethodPost, "/v1/properties/10/units", tok, CreateUnitPayload{
			UnitNumber: "A1", RentCents: 2_000_000,
		})
		checkResponseCode(t, http.StatusConflict, rr)
	})

	t.Run("another landlord's property is forbidden", func(t *testing.T) {
		env, _ := setup(t)
		other := env.addUser(t, 3, "other@example.com", users.Landlord)
		rr := env.do(t, http.MethodPost, "/v1/properties/10/units", env.token(t, other), CreateUnitPayload{
			UnitNumber: "C1", RentCents: 2_000_000,
		})
		checkResponseCode(t, http.StatusForbidden, rr)
	})

	t.Run("assign and remove a tenant", func(t *testing.T) {
		env, tok := setup(t)
		rr := env.do(t, http.MethodPut, "/v1/units/100/tenant", tok, AssignTenantPayload{TenantEmail: "tenant@example.com"})
		checkResponseCode(t, http.StatusOK, rr)
		if !env.units.byID[100].HasTenant(2) {
			t.Fatal("tenant not assigned")
		}

		rr = env.do(t, http.MethodDelete, "/v1/units/100", tok, nil)
		checkResponseCode(t, http.StatusConflict, rr)

		rr = env.do(t, http.MethodDelete, "/v1/units/100/tenant", tok, nil)
		checkResponseCode(t, http.StatusOK, rr)
		if env.units.byID[100].TenantID != nil {
			t.Fatal("tenant not removed")
		}

		rr = env.do(t, http.MethodDelete, "/v1/units/100/tenant", tok, nil)
		checkResponseCode(t, http.StatusConflict, rr)
	})

	t.Run("assigning a landlord account is refused", func(t *testing.T) {
		env, tok := setup(t)
		rr := env.do(t, http.MethodPut, "/v1/units/100/tenant", tok, AssignTenantPayload{TenantEmail: "landlord@example.com"})
		checkResponseCode(t, http.StatusBadRequest, rr)
	})

	t.Run("occupied unit conflicts", func(t *testing.T) {
		env, tok := setup(t)
		env.addUnit(101, 10, 1, int64p(9))
		rr := env.do(t, http.MethodPut, "/v1/units/101/tenant", tok, AssignTenantPayload{TenantEmail: "tenant@example.com"})
		checkResponseCode(t, http.StatusConflict, rr)
	})

	t.Run("delete a vacant unit", func(t *testing.T) {
		env, tok := setup(t)
		env.props.byID[10].UnitCount = 1
		rr := env.do(t, http.MethodDelete, "/v1/units/100", tok, nil)
		checkResponseCode(t, http.StatusNoContent, rr)
		if _, ok := env.units.byID[100]; ok {
			t.Error("unit still stored")
		}
		if env.props.byID[10].UnitCount != 0 {
			t.Errorf("unit count = %d", env.props.byID[10].UnitCount)
		}
	})

	t.Run("tenant sees only their unit", func(t *testing.T) {
		env, _ := setup(t)
		env.addUnit(101, 10, 1, int64p(2))
		rr := env.do(t, http.MethodGet, "/v1/units", env.token(t, env.users.byID[2]), nil)
		checkResponseCode(t, http.StatusOK, rr)

		var list []units.Unit
		decodeData(t, rr, &list)
		if len(list) != 1 || list[0].ID != 101 {
			t.Errorf("units = %+v", list)
		}

		rr = env.do(t, http.MethodGet, "/v1/units/100", env.token(t, env.users.byID[2]), nil)
		checkResponseCode(t, http.StatusForbidden, rr)
	})
}
