package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"makao/internal/domain/reports"
	"makao/internal/domain/users"
	"makao/internal/events"
)

func TestCreateReport(t *testing.T) {
	env := newTestApplication(t)
	env.addUser(t, 1, "landlord@example.com", users.Landlord)
	tenant := env.addUser(t, 2, "tenant@example.com", users.Tenant)
	homeless := env.addUser(t, 3, "new@example.com", users.Tenant)
	env.addProperty(10, 1)
	env.addUnit(100, 10, 1, int64p(2))

	published := make(chan events.ReportCreated, 1)
	stop, _ := env.bus.Subscribe(context.Background(), events.SubjectReportCreated, "test", func(_ context.Context, _ string, data []byte) error {
		var ev events.ReportCreated
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		published <- ev
		return nil
	})
	defer stop()

	payload := CreateReportPayload{
		IssueTitle:    "Leaking tap",
		IssueCategory: "plumbing",
		Priority:      "urgent",
		Description:   "Kitchen tap leaks all night",
	}

	rr := env.do(t, http.MethodPost, "/v1/reports", env.token(t, tenant), payload)
	checkResponseCode(t, http.StatusCreated, rr)

	var rep reports.Report
	decodeData(t, rr, &rep)
	if rep.UnitID != 100 || rep.Status != reports.StatusOpen || rep.PropertyName != "Sunrise Court" {
		t.Errorf("report = %+v", rep)
	}

	select {
	case ev := <-published:
		if ev.ReportID != rep.ID || ev.Priority != "urgent" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("report event not published")
	}

	t.Run("tenant without a unit", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/v1/reports", env.token(t, homeless), payload)
		checkResponseCode(t, http.StatusConflict, rr)
	})

	t.Run("invalid priority", func(t *testing.T) {
		bad := payload
		bad.Priority = "whenever"
		rr := env.do(t, http.MethodPost, "/v1/reports", env.token(t, tenant), bad)
		checkResponseCode(t, http.StatusBadRequest, rr)
	})

	t.Run("landlords cannot file reports", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/v1/reports", env.token(t, env.users.byID[1]), payload)
		checkResponseCode(t, http.StatusForbidden, rr)
	})
}

func TestCreateReportMultipartWithoutUploads(t *testing.T) {
	env := newTestApplication(t)
	env.addUser(t, 1, "landlord@example.com", users.Landlord)
	tenant := env.addUser(t, 2, "tenant@example.com", users.Tenant)
	env.addProperty(10, 1)
	env.addUnit(100, 10, 1, int64p(2))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("issue_title", "Broken window")
	_ = mw.WriteField("issue_category", "structural")
	_ = mw.WriteField("priority_level", "high")
	_ = mw.WriteField("description", "Cracked pane in the bedroom")
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/reports", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.token(t, tenant))

	rr := serve(env, req)
	checkResponseCode(t, http.StatusCreated, rr)

	var rep reports.Report
	decodeData(t, rr, &rep)
	if rep.IssueTitle != "Broken window" || rep.AttachmentURL != nil {
		t.Errorf("report = %+v", rep)
	}
}

func TestListReportsValidatesFilters(t *testing.T) {
	env := newTestApplication(t)
	landlord := env.addUser(t, 1, "landlord@example.com", users.Landlord)

	rr := env.do(t, http.MethodGet, "/v1/reports?status=lost", env.token(t, landlord), nil)
	checkResponseCode(t, http.StatusBadRequest, rr)

	rr = env.do(t, http.MethodGet, "/v1/reports?priority=meh", env.token(t, landlord), nil)
	checkResponseCode(t, http.StatusBadRequest, rr)

	rr = env.do(t, http.MethodGet, "/v1/reports?status=open", env.token(t, landlord), nil)
	checkResponseCode(t, http.StatusOK, rr)
}

func TestUrgentReportsSkipsResolved(t *testing.T) {
	env := newTestApplication(t)
	landlord := env.addUser(t, 1, "landlord@example.com", users.Landlord)
	env.reports.byID[1] = &reports.Report{ID: 1, Priority: "urgent", Status: reports.StatusOpen}
	env.reports.byID[2] = &reports.Report{ID: 2, Priority: "urgent", Status: reports.StatusResolved}

	rr := env.do(t, http.MethodGet, "/v1/reports/urgent", env.token(t, landlord), nil)
	checkResponseCode(t, http.StatusOK, rr)

	var list []reports.Report
	decodeData(t, rr, &list)
	if len(list) != 1 || list[0].ID != 1 {
		t.Errorf("urgent = %+v", list)
	}
}
