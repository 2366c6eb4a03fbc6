package main

import (
	"errors"
	"html/template"
	"net/http"
	"strings"

	"makao/internal/domain/paymentsrepo"
	"makao/internal/reconcile"
)

// ipnAck is the body PesaPal expects back from an IPN call.
type ipnAck struct {
	OrderNotificationType  string `json:"orderNotificationType"`
	OrderTrackingID        string `json:"orderTrackingId"`
	OrderMerchantReference string `json:"orderMerchantReference"`
	Status                 int    `json:"status"`
}

// pesapalIPNHandler godoc
//
//	@Summary		PesaPal IPN
//	@Description	Instant payment notification. The notification only names the order; its status is re-queried from PesaPal before anything changes.
//	@Tags			payments
//	@Produce		json
//	@Param			OrderTrackingId			query		string	true	"PesaPal order tracking id"
//	@Param			OrderMerchantReference	query		string	false	"Merchant reference"
//	@Param			OrderNotificationType	query		string	false	"IPNCHANGE"
//	@Success		200						{object}	ipnAck
//	@Failure		500						{object}	ipnAck
//	@Router			/payments/pesapal/ipn [get]
func (app *application) pesapalIPNHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ack := ipnAck{
		OrderNotificationType:  q.Get("OrderNotificationType"),
		OrderTrackingID:        strings.TrimSpace(q.Get("OrderTrackingId")),
		OrderMerchantReference: q.Get("OrderMerchantReference"),
		Status:                 http.StatusOK,
	}
	if ack.OrderNotificationType == "" {
		ack.OrderNotificationType = "IPNCHANGE"
	}

	if ack.OrderTrackingID == "" {
		ack.Status = http.StatusBadRequest
		writeJSON(w, http.StatusBadRequest, ack)
		return
	}

	p, err := app.tracker.RefreshByTrackingID(r.Context(), ack.OrderTrackingID, reconcile.SourceIPN)
	if errors.Is(err, paymentsrepo.ErrNotFound) {
		// not ours; a retry would not change that
		app.logger.Warnw("pesapal ipn for unknown order", "order_tracking_id", ack.OrderTrackingID,
			"merchant_reference", ack.OrderMerchantReference)
		writeJSON(w, http.StatusOK, ack)
		return
	}
	if err != nil {
		app.logger.Errorw("pesapal ipn not processed", "order_tracking_id", ack.OrderTrackingID,
			"merchant_reference", ack.OrderMerchantReference, "error", err)
		// a non-200 status makes PesaPal retry
		ack.Status = http.StatusInternalServerError
		writeJSON(w, http.StatusInternalServerError, ack)
		return
	}

	app.logger.Infow("pesapal ipn processed", "payment_id", p.ID, "status", p.Status,
		"order_tracking_id", ack.OrderTrackingID)
	writeJSON(w, http.StatusOK, ack)
}

var returnPage = template.Must(template.New("return").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Makao payment</title></head>
<body style="font-family: sans-serif; text-align: center; padding: 2rem;">
<h2>{{.Message}}</h2>
{{if not .Terminal}}<p>You can close this window. Your balance will update once the payment is confirmed.</p>{{end}}
<script>
  if (window.parent && window.parent !== window) {
    window.parent.postMessage({ type: "pesapal_payment", payment_id: {{.PaymentID}}, status: {{.Status}}, terminal: {{.Terminal}} }, "*");
  }
</script>
</body>
</html>`))

// pesapalReturnHandler godoc
//
//	@Summary		PesaPal return page
//	@Description	Where PesaPal sends the payer's browser after checkout. Re-queries the order, then tells the embedding page the outcome.
//	@Tags			payments
//	@Produce		html
//	@Param			OrderTrackingId			query		string	true	"PesaPal order tracking id"
//	@Param			OrderMerchantReference	query		string	false	"Merchant reference"
//	@Success		200						{string}	string	"HTML page"
//	@Router			/payments/pesapal/return [get]
func (app *application) pesapalReturnHandler(w http.ResponseWriter, r *http.Request) {
	trackingID := strings.TrimSpace(r.URL.Query().Get("OrderTrackingId"))

	status := reconcile.Update{Status: paymentsrepo.StatusPending, Type: "pending", Message: "We could not find this payment."}
	if trackingID != "" {
		p, err := app.tracker.RefreshByTrackingID(r.Context(), trackingID, reconcile.SourceReturn)
		if err != nil {
			app.logger.Warnw("pesapal return refresh failed", "order_tracking_id", trackingID, "error", err)
			status.Message = "We are confirming your payment."
		} else {
			status = reconcile.Describe(p)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := returnPage.Execute(w, status); err != nil {
		app.logger.Errorw("rendering return page", "error", err)
	}
}
