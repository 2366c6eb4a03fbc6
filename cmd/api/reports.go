package main

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"makao/internal/domain/reports"
	"makao/internal/domain/units"
	"makao/internal/events"
	"makao/internal/notifications"
)

const priorityUrgent = "urgent"

type CreateReportPayload struct {
	IssueTitle    string `json:"issue_title" validate:"required,max=255"`
	IssueCategory string `json:"issue_category" validate:"required,max=50"`
	Priority      string `json:"priority_level" validate:"required,oneof=low medium high urgent"`
	Description   string `json:"description" validate:"required,max=5000"`
}

// readReportPayload accepts either a JSON body or a multipart form with an
// optional "attachment" file. The file is nil when none was sent.
func readReportPayload(w http.ResponseWriter, r *http.Request) (CreateReportPayload, multipart.File, error) {
	var payload CreateReportPayload
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err := readJSON(w, r, &payload)
		return payload, nil, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<10)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return payload, nil, fmt.Errorf("unable to parse form, file size limit is 5MB")
	}
	payload = CreateReportPayload{
		IssueTitle:    strings.TrimSpace(r.FormValue("issue_title")),
		IssueCategory: strings.TrimSpace(r.FormValue("issue_category")),
		Priority:      strings.TrimSpace(r.FormValue("priority_level")),
		Description:   strings.TrimSpace(r.FormValue("description")),
	}

	file, header, err := r.FormFile("attachment")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return payload, nil, nil
	case err != nil:
		return payload, nil, fmt.Errorf("unable to retrieve file %q", "attachment")
	}
	if !documentTypes[header.Header.Get("Content-Type")] {
		file.Close()
		return payload, nil, fmt.Errorf("only JPEG, PNG and PDF files are allowed")
	}
	return payload, file, nil
}

// createReportHandler godoc
//
//	@Summary		Report a maintenance issue
//	@Description	Files a report against the tenant's unit and notifies the landlord. Send multipart/form-data to include an attachment.
//	@Tags			reports
//	@Accept			json,mpfd
//	@Produce		json
//	@Param			payload		body		CreateReportPayload	true	"Report"
//	@Param			attachment	formData	file				false	"Photo or PDF"
//	@Success		201			{object}	reports.Report
//	@Failure		400			{object}	ErrorBadRequestResponse
//	@Failure		409			{object}	error
//	@Failure		500			{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/reports [post]
func (app *application) createReportHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	ctx := r.Context()

	unit, err := app.store.Units.GetByTenant(ctx, user.ID)
	if err != nil {
		if errors.Is(err, units.ErrNotFound) {
			app.conflictResponse(w, r, errors.New("you are not assigned to a unit"))
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	payload, attachment, err := readReportPayload(w, r)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if attachment != nil {
		defer attachment.Close()
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	report := &reports.Report{
		TenantID:      user.ID,
		UnitID:        unit.ID,
		IssueTitle:    payload.IssueTitle,
		IssueCategory: payload.IssueCategory,
		Priority:      payload.Priority,
		Description:   payload.Description,
		Status:        reports.StatusOpen,
	}

	if attachment != nil {
		url, err := app.uploads.Upload(ctx, attachment, "reports", fmt.Sprintf("report_%d_%d", user.ID, time.Now().UnixNano()))
		if err != nil {
			app.internalServerError(w, r, err)
			return
		}
		report.AttachmentURL = &url
	}

	if err := app.store.Reports.Create(ctx, report); err != nil {
		app.internalServerError(w, r, err)
		return
	}
	report.TenantName = user.FullName
	report.UnitNumber = unit.UnitNumber
	report.PropertyName = unit.PropertyName

	if err := app.bus.Publish(ctx, events.SubjectReportCreated, events.ReportCreated{
		ReportID:   report.ID,
		TenantID:   user.ID,
		UnitID:     unit.ID,
		IssueTitle: report.IssueTitle,
		Priority:   report.Priority,
	}); err != nil {
		app.logger.Warnw("report event not published", "report_id", report.ID, "error", err)
	}

	if err := app.jsonResponse(w, http.StatusCreated, report); err != nil {
		app.internalServerError(w, r, err)
	}
}

var reportPriorities = map[string]bool{"low": true, "medium": true, "high": true, priorityUrgent: true}

// listReportsHandler godoc
//
//	@Summary		List maintenance reports
//	@Description	Landlords see reports across their units and may filter by status and priority; tenants see their own.
//	@Tags			reports
//	@Produce		json
//	@Param			status		query		string	false	"open, in_progress, resolved or closed"
//	@Param			priority	query		string	false	"low, medium, high or urgent"
//	@Success		200			{array}		reports.Report
//	@Failure		400			{object}	ErrorBadRequestResponse
//	@Failure		500			{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/reports [get]
func (app *application) listReportsHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	ctx := r.Context()

	var (
		list []reports.Report
		err  error
	)
	if user.IsLandlord() {
		q := r.URL.Query()
		f := reports.Filter{Status: q.Get("status"), Priority: q.Get("priority")}
		if f.Status != "" && !reports.ValidStatus(f.Status) {
			app.badRequestResponse(w, r, reports.ErrInvalidStatus)
			return
		}
		if f.Priority != "" && !reportPriorities[f.Priority] {
			app.badRequestResponse(w, r, fmt.Errorf("invalid priority %q", f.Priority))
			return
		}
		list, err = app.store.Reports.ListByLandlord(ctx, user.ID, f)
	} else {
		list, err = app.store.Reports.ListByTenant(ctx, user.ID)
	}
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	if list == nil {
		list = []reports.Report{}
	}

	if err := app.jsonResponse(w, http.StatusOK, list); err != nil {
		app.internalServerError(w, r, err)
	}
}

// urgentReportsHandler godoc
//
//	@Summary		Urgent open reports
//	@Description	Urgent reports that are still open or in progress.
//	@Tags			reports
//	@Produce		json
//	@Success		200	{array}		reports.Report
//	@Failure		500	{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/reports/urgent [get]
func (app *application) urgentReportsHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	all, err := app.store.Reports.ListByLandlord(r.Context(), user.ID, reports.Filter{Priority: priorityUrgent})
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	urgent := []reports.Report{}
	for _, rep := range all {
		if rep.Status == reports.StatusOpen || rep.Status == reports.StatusInProgress {
			urgent = append(urgent, rep)
		}
	}

	if err := app.jsonResponse(w, http.StatusOK, urgent); err != nil {
		app.internalServerError(w, r, err)
	}
}

// reportStatsHandler godoc
//
//	@Summary		Report statistics
//	@Description	Counts per status plus the average resolution time in hours.
//	@Tags			reports
//	@Produce		json
//	@Success		200	{object}	reports.Stats
//	@Failure		500	{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/reports/stats [get]
func (app *application) reportStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := app.store.Reports.Stats(r.Context(), getUserFromContext(r).ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, stats); err != nil {
		app.internalServerError(w, r, err)
	}
}

// getReportHandler godoc
//
//	@Summary		Get report
//	@Tags			reports
//	@Produce		json
//	@Param			reportID	path		int	true	"Report ID"
//	@Success		200			{object}	reports.Report
//	@Failure		403			{object}	error
//	@Failure		404			{object}	error
//	@Security		ApiKeyAuth
//	@Router			/reports/{reportID} [get]
func (app *application) getReportHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.jsonResponse(w, http.StatusOK, getReportFromContext(r)); err != nil {
		app.internalServerError(w, r, err)
	}
}

type UpdateReportStatusPayload struct {
	Status string `json:"status" validate:"required,oneof=open in_progress resolved closed"`
}

// updateReportStatusHandler godoc
//
//	@Summary		Update report status
//	@Tags			reports
//	@Accept			json
//	@Produce		json
//	@Param			reportID	path		int							true	"Report ID"
//	@Param			payload		body		UpdateReportStatusPayload	true	"New status"
//	@Success		200			{object}	reports.Report
//	@Failure		400			{object}	ErrorBadRequestResponse
//	@Failure		500			{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/reports/{reportID}/status [patch]
func (app *application) updateReportStatusHandler(w http.ResponseWriter, r *http.Request) {
	report := getReportFromContext(r)

	var payload UpdateReportStatusPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	updated, err := app.store.Reports.UpdateStatus(r.Context(), report.ID, payload.Status)
	if err != nil {
		switch {
		case errors.Is(err, reports.ErrInvalidStatus):
			app.badRequestResponse(w, r, err)
		case errors.Is(err, reports.ErrNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, updated); err != nil {
		app.internalServerError(w, r, err)
	}
}

// deleteReportHandler godoc
//
//	@Summary		Delete report
//	@Description	Landlords may delete any report on their units; tenants only their own.
//	@Tags			reports
//	@Param			reportID	path	int	true	"Report ID"
//	@Success		204			"No Content"
//	@Failure		403			{object}	error
//	@Failure		404			{object}	error
//	@Security		ApiKeyAuth
//	@Router			/reports/{reportID} [delete]
func (app *application) deleteReportHandler(w http.ResponseWriter, r *http.Request) {
	report := getReportFromContext(r)

	if err := app.store.Reports.Delete(r.Context(), report.ID); err != nil {
		if errors.Is(err, reports.ErrNotFound) {
			app.notFoundResponse(w, r, err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	if report.AttachmentURL != nil {
		url := *report.AttachmentURL
		notifications.CallAsync(app.logger, func(ctx context.Context) error {
			return app.uploads.Destroy(ctx, url)
		})
	}

	w.WriteHeader(http.StatusNoContent)
}
