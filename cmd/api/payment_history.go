package main

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"makao/internal/domain/paymentsrepo"
	"makao/internal/domain/users"
	"makao/internal/params"
	"makao/internal/payments"
)

const stalePendingAge = time.Hour

// paymentFilter scopes listings to the caller: tenants see their own
// payments, landlords see payments on their units and their subscriptions.
func paymentFilter(r *http.Request, user *users.User) (paymentsrepo.ListFilter, error) {
	q := r.URL.Query()
	f := paymentsrepo.ListFilter{Status: q.Get("status"), Type: q.Get("payment_type")}
	if user.IsLandlord() {
		f.LandlordID = user.ID
	} else {
		f.TenantID = user.ID
	}

	since, err := params.ParseSince(q)
	if err != nil {
		return f, err
	}
	if !since.IsZero() {
		f.Since = &since
	}

	switch f.Status {
	case "", paymentsrepo.StatusPending, paymentsrepo.StatusCompleted, paymentsrepo.StatusFailed, paymentsrepo.StatusCancelled:
	default:
		return f, fmt.Errorf("invalid status %q", f.Status)
	}
	switch f.Type {
	case "", paymentsrepo.TypeRent, paymentsrepo.TypeDeposit, paymentsrepo.TypeSubscription:
	default:
		return f, fmt.Errorf("invalid payment_type %q", f.Type)
	}
	return f, nil
}

type PaymentListResponse struct {
	Payments   []*paymentsrepo.Payment `json:"payments"`
	Pagination params.Pagination       `json:"pagination"`
}

// listPaymentsHandler godoc
//
//	@Summary		Payment history
//	@Description	Tenants get their own payments; landlords get payments on their units.
//	@Tags			payments
//	@Produce		json
//	@Param			status			query		string	false	"pending, completed, failed or cancelled"
//	@Param			payment_type	query		string	false	"rent, deposit or subscription"
//	@Param			since			query		string	false	"YYYY-MM-DD"
//	@Param			page			query		int		false	"Page number"
//	@Param			limit			query		int		false	"Page size (max 100)"
//	@Success		200				{object}	PaymentListResponse
//	@Failure		400				{object}	ErrorBadRequestResponse
//	@Failure		500				{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/payments [get]
func (app *application) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	f, err := paymentFilter(r, user)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	page := params.ParsePagination(r.URL.Query())

	list, total, err := app.store.Payments.Payments.List(r.Context(), f, page.Limit, page.Offset)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	page.ComputeMeta(total)
	if list == nil {
		list = []*paymentsrepo.Payment{}
	}

	if err := app.jsonResponse(w, http.StatusOK, PaymentListResponse{Payments: list, Pagination: page}); err != nil {
		app.internalServerError(w, r, err)
	}
}

// paymentSummaryHandler godoc
//
//	@Summary		Rent summary
//	@Description	Totals and counts of the caller's payments.
//	@Tags			payments
//	@Produce		json
//	@Success		200	{object}	paymentsrepo.Summary
//	@Failure		500	{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/payments/summary [get]
func (app *application) paymentSummaryHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	f, err := paymentFilter(r, user)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	summary, err := app.store.Payments.Payments.Summary(r.Context(), f)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, summary); err != nil {
		app.internalServerError(w, r, err)
	}
}

const exportPageSize = 500

var exportHeader = []string{
	"id", "date", "tenant", "property", "unit", "type", "status",
	"amount_kes", "fee_kes", "reference", "mpesa_receipt",
}

func exportRow(p *paymentsrepo.Payment) []string {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return []string{
		strconv.FormatInt(p.ID, 10),
		p.CreatedAt.Format(time.DateTime),
		p.TenantName,
		p.PropertyName,
		p.UnitNumber,
		p.Type,
		p.Status,
		payments.FormatCents(p.AmountCents),
		payments.FormatCents(p.FeeCents),
		deref(p.Reference),
		deref(p.MpesaReceipt),
	}
}

// exportPaymentsHandler godoc
//
//	@Summary		Export payments as CSV
//	@Description	Streams the landlord's payments, honouring the same filters as the history listing.
//	@Tags			payments
//	@Produce		text/csv
//	@Param			status			query		string	false	"pending, completed, failed or cancelled"
//	@Param			payment_type	query		string	false	"rent, deposit or subscription"
//	@Param			since			query		string	false	"YYYY-MM-DD"
//	@Success		200				{string}	string	"CSV file"
//	@Failure		400				{object}	ErrorBadRequestResponse
//	@Failure		500				{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/payments/export.csv [get]
func (app *application) exportPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	f, err := paymentFilter(r, user)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx := r.Context()
	// fetch the first page before committing to a 200
	list, total, err := app.store.Payments.Payments.List(ctx, f, exportPageSize, 0)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	filename := fmt.Sprintf("payments_%s.csv", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(exportHeader)
	for offset := 0; ; {
		for _, p := range list {
			_ = cw.Write(exportRow(p))
		}
		offset += len(list)
		if len(list) == 0 || offset >= total {
			break
		}
		list, _, err = app.store.Payments.Payments.List(ctx, f, exportPageSize, offset)
		if err != nil {
			app.logger.Errorw("payment export truncated", "landlord_id", user.ID, "offset", offset, "error", err)
			break
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		app.logger.Warnw("payment export write failed", "landlord_id", user.ID, "error", err)
	}
}

// cleanupPaymentsHandler godoc
//
//	@Summary		Remove stale pending payments
//	@Description	Deletes payments that have been pending for more than one hour.
//	@Tags			payments
//	@Produce		json
//	@Success		200	{object}	map[string]int64
//	@Failure		500	{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/payments/cleanup [post]
func (app *application) cleanupPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	n, err := app.store.Payments.Payments.DeleteStalePending(r.Context(), stalePendingAge)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	app.logger.Infow("stale pending payments removed", "count", n, "by", getUserFromContext(r).ID)

	if err := app.jsonResponse(w, http.StatusOK, map[string]int64{"deleted": n}); err != nil {
		app.internalServerError(w, r, err)
	}
}
