package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"makao/internal/domain/paymentsrepo"
	"makao/internal/domain/subscriptions"
	"makao/internal/domain/units"
	"makao/internal/domain/users"
	"makao/internal/payments"
	"makao/internal/reconcile"
)

var errPaymentNotStarted = errors.New("payment initiation failed")

// checkout is one payment about to be sent to the gateway.
type checkout struct {
	payer       *users.User
	unitID      *int64
	paymentType string
	charge      payments.Charge
	plan        string
	phone       string
	description string
}

var referencePrefix = map[string]string{
	paymentsrepo.TypeRent:         "RENT",
	paymentsrepo.TypeDeposit:      "DEPOSIT",
	paymentsrepo.TypeSubscription: "SUB",
}

// PaymentInitResponse is returned when a hosted checkout has been opened.
// The client shows RedirectURL in an iframe.
type PaymentInitResponse struct {
	PaymentID         int64  `json:"payment_id"`
	OrderTrackingID   string `json:"order_tracking_id"`
	RedirectURL       string `json:"redirect_url"`
	MerchantReference string `json:"merchant_reference"`
	AmountCents       int64  `json:"amount_cents"`
	FeeCents          int64  `json:"fee_cents"`
	TotalCents        int64  `json:"total_cents"`
}

// startCheckout records a pending payment, submits the order to PesaPal and
// hands the payment to the tracker. A gateway refusal marks the payment
// failed and returns an error wrapping errPaymentNotStarted.
func (app *application) startCheckout(ctx context.Context, c checkout) (*PaymentInitResponse, error) {
	store := app.store.Payments

	p := &paymentsrepo.Payment{
		TenantID:    c.payer.ID,
		UnitID:      c.unitID,
		Type:        c.paymentType,
		Provider:    payments.ProviderPesapal,
		AmountCents: c.charge.AmountCents,
		FeeCents:    c.charge.FeeCents,
		Currency:    "KES",
		Status:      paymentsrepo.StatusPending,
	}
	if c.plan != "" {
		p.SubscriptionPlan = &c.plan
	}

	p, err := store.Payments.Create(ctx, p)
	if err != nil {
		return nil, err
	}

	ref := payments.NewReference(referencePrefix[c.paymentType], p.ID)
	if err := store.Payments.SetReference(ctx, p.ID, ref); err != nil {
		return nil, err
	}

	req := payments.PaymentRequest{
		Reference:   ref,
		AmountCents: c.charge.TotalCents,
		Currency:    p.Currency,
		Description: c.description,
		Phone:       c.phone,
		Email:       c.payer.Email,
	}
	app.paymentLog(ctx, p.ID, paymentsrepo.LogRequest, map[string]any{
		"reference":    ref,
		"amount_cents": c.charge.AmountCents,
		"fee_cents":    c.charge.FeeCents,
		"total_cents":  c.charge.TotalCents,
		"phone":        c.phone,
	})

	resp, err := app.payments.InitiatePayment(ctx, payments.ProviderPesapal, req)
	if err != nil {
		reason := err.Error()
		if markErr := store.Payments.MarkFailed(ctx, p.ID, paymentsrepo.StatusFailed, reason); markErr != nil {
			app.logger.Errorw("marking payment failed", "payment_id", p.ID, "error", markErr)
		}
		app.paymentLog(ctx, p.ID, paymentsrepo.LogError, map[string]string{"error": reason})
		app.logger.Warnw("payment initiation failed", "payment_id", p.ID, "reference", ref, "error", err)
		return nil, fmt.Errorf("%w: %s", errPaymentNotStarted, reason)
	}

	if err := store.Payments.SetGatewayRef(ctx, p.ID, resp.TrackingID); err != nil {
		return nil, err
	}
	app.paymentLog(ctx, p.ID, paymentsrepo.LogRedirect, map[string]string{
		"order_tracking_id": resp.TrackingID,
		"redirect_url":      resp.RedirectURL,
	})

	marker := paymentsrepo.Marker{
		TenantID:    c.payer.ID,
		PaymentID:   p.ID,
		PaymentType: c.paymentType,
		CreatedAt:   time.Now().UTC(),
	}
	if c.unitID != nil {
		marker.UnitID = *c.unitID
	}
	if err := app.tracker.Track(ctx, marker); err != nil {
		return nil, err
	}

	app.logger.Infow("payment initiated", "payment_id", p.ID, "type", c.paymentType,
		"reference", ref, "order_tracking_id", resp.TrackingID, "total_cents", c.charge.TotalCents)

	return &PaymentInitResponse{
		PaymentID:         p.ID,
		OrderTrackingID:   resp.TrackingID,
		RedirectURL:       resp.RedirectURL,
		MerchantReference: ref,
		AmountCents:       c.charge.AmountCents,
		FeeCents:          c.charge.FeeCents,
		TotalCents:        c.charge.TotalCents,
	}, nil
}

func (app *application) paymentLog(ctx context.Context, paymentID int64, logType string, payload any) {
	if err := app.store.Payments.Logs.InsertPaymentLog(ctx, paymentID, logType, payload); err != nil {
		app.logger.Warnw("payment log not written", "payment_id", paymentID, "log_type", logType, "error", err)
	}
}

// paymentError maps amount rules and gateway refusals to 400s.
func (app *application) paymentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errPaymentNotStarted),
		errors.Is(err, payments.ErrInvalidAmount),
		errors.Is(err, payments.ErrAmountExceedsBalance),
		errors.Is(err, payments.ErrAmountComputedFromMonths),
		errors.Is(err, payments.ErrNothingOutstanding),
		errors.Is(err, payments.ErrInvalidMonths),
		errors.Is(err, payments.ErrBelowMinimum),
		errors.Is(err, payments.ErrAboveMaximum),
		errors.Is(err, payments.ErrUnknownPlan),
		errors.Is(err, payments.ErrInvalidPhone):
		app.badRequestResponse(w, r, err)
	default:
		app.internalServerError(w, r, err)
	}
}

type RentPaymentPayload struct {
	AmountCents int64  `json:"amount_cents" validate:"min=0"`
	Months      int    `json:"months" validate:"min=0,max=12"`
	PhoneNumber string `json:"phone_number" validate:"required,kephone"`
}

// createRentPaymentHandler godoc
//
//	@Summary		Pay rent
//	@Description	Opens a PesaPal checkout for rent on the tenant's unit. With months set the amount is months x monthly rent; otherwise amount_cents is a partial payment up to the outstanding balance. A 3.5% processing fee is added.
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Param			unitID	path		int					true	"Unit ID"
//	@Param			payload	body		RentPaymentPayload	true	"Rent payment"
//	@Success		201		{object}	PaymentInitResponse
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		403		{object}	error
//	@Failure		404		{object}	error
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/payments/rent/{unitID} [post]
func (app *application) createRentPaymentHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	unitID, err := parseIDParam(r, "unitID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var payload RentPaymentPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx := r.Context()
	unit, err := app.store.Units.GetByID(ctx, unitID)
	if err != nil {
		if errors.Is(err, units.ErrNotFound) {
			app.notFoundResponse(w, r, err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}
	if !unit.HasTenant(user.ID) {
		app.forbiddenResponse(w, r)
		return
	}

	amount, err := payments.ResolveRentAmount(payments.RentAmountInput{
		AmountCents:      payload.AmountCents,
		Months:           payload.Months,
		MonthlyRentCents: unit.RentCents,
		OutstandingCents: unit.RentRemainingCents,
	})
	if err != nil {
		app.paymentError(w, r, err)
		return
	}
	charge, err := payments.NewCharge(amount)
	if err != nil {
		app.paymentError(w, r, err)
		return
	}
	phone, err := payments.NormalizePhone(payload.PhoneNumber)
	if err != nil {
		app.paymentError(w, r, err)
		return
	}

	desc := fmt.Sprintf("Rent for unit %s", unit.UnitNumber)
	if payload.Months > 0 {
		desc = fmt.Sprintf("Rent for unit %s (%d months)", unit.UnitNumber, payload.Months)
	}

	res, err := app.startCheckout(ctx, checkout{
		payer:       user,
		unitID:      &unit.ID,
		paymentType: paymentsrepo.TypeRent,
		charge:      charge,
		phone:       phone,
		description: desc,
	})
	if err != nil {
		app.paymentError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, res); err != nil {
		app.internalServerError(w, r, err)
	}
}

type DepositPaymentPayload struct {
	UnitID      int64  `json:"unit_id" validate:"required,gt=0"`
	PhoneNumber string `json:"phone_number" validate:"required,kephone"`
}

// depositCheckout prepares a deposit for an available unit. The unit is
// assigned once the deposit settles.
func (app *application) depositCheckout(ctx context.Context, payer *users.User, unitID int64, phone string) (checkout, error) {
	if _, err := app.store.Units.GetByTenant(ctx, payer.ID); err == nil {
		return checkout{}, units.ErrTenantHasUnit
	} else if !errors.Is(err, units.ErrNotFound) {
		return checkout{}, err
	}

	unit, err := app.store.Units.GetByID(ctx, unitID)
	if err != nil {
		return checkout{}, err
	}
	if !unit.IsAvailable || unit.TenantID != nil {
		return checkout{}, units.ErrOccupied
	}

	deposit := unit.DepositCents
	if deposit == 0 {
		deposit = unit.RentCents
	}
	charge, err := payments.NewCharge(deposit)
	if err != nil {
		return checkout{}, err
	}

	return checkout{
		payer:       payer,
		unitID:      &unit.ID,
		paymentType: paymentsrepo.TypeDeposit,
		charge:      charge,
		phone:       phone,
		description: fmt.Sprintf("Deposit for unit %s", unit.UnitNumber),
	}, nil
}

// createDepositPaymentHandler godoc
//
//	@Summary		Pay a unit deposit
//	@Description	Opens a PesaPal checkout for the deposit on an available unit. The unit is assigned to the tenant once the payment completes.
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		DepositPaymentPayload	true	"Deposit payment"
//	@Success		201		{object}	PaymentInitResponse
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		404		{object}	error
//	@Failure		409		{object}	error
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/payments/deposit [post]
func (app *application) createDepositPaymentHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var payload DepositPaymentPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	phone, err := payments.NormalizePhone(payload.PhoneNumber)
	if err != nil {
		app.paymentError(w, r, err)
		return
	}

	ctx := r.Context()
	c, err := app.depositCheckout(ctx, user, payload.UnitID, phone)
	if err != nil {
		switch {
		case errors.Is(err, units.ErrNotFound):
			app.notFoundResponse(w, r, err)
		case errors.Is(err, units.ErrOccupied), errors.Is(err, units.ErrTenantHasUnit):
			app.conflictResponse(w, r, err)
		default:
			app.paymentError(w, r, err)
		}
		return
	}

	res, err := app.startCheckout(ctx, c)
	if err != nil {
		app.paymentError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, res); err != nil {
		app.internalServerError(w, r, err)
	}
}

type SubscriptionPaymentPayload struct {
	Plan        string `json:"plan" validate:"required,oneof=starter basic professional enterprise onetime"`
	PhoneNumber string `json:"phone_number" validate:"required,kephone"`
}

func subscriptionCheckout(payer *users.User, planName, phone string) (checkout, error) {
	plan, err := payments.LookupPlan(planName)
	if err != nil {
		return checkout{}, err
	}
	charge, err := payments.NewCharge(plan.PriceCents)
	if err != nil {
		return checkout{}, err
	}
	return checkout{
		payer:       payer,
		paymentType: paymentsrepo.TypeSubscription,
		charge:      charge,
		plan:        plan.Name,
		phone:       phone,
		description: fmt.Sprintf("Makao %s subscription", plan.Name),
	}, nil
}

// createSubscriptionPaymentHandler godoc
//
//	@Summary		Pay for a subscription
//	@Description	Opens a PesaPal checkout for a landlord subscription plan. The plan is activated once the payment completes.
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		SubscriptionPaymentPayload	true	"Subscription payment"
//	@Success		201		{object}	PaymentInitResponse
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/payments/subscription [post]
func (app *application) createSubscriptionPaymentHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var payload SubscriptionPaymentPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	phone, err := payments.NormalizePhone(payload.PhoneNumber)
	if err != nil {
		app.paymentError(w, r, err)
		return
	}

	c, err := subscriptionCheckout(user, payload.Plan, phone)
	if err != nil {
		app.paymentError(w, r, err)
		return
	}

	res, err := app.startCheckout(r.Context(), c)
	if err != nil {
		app.paymentError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, res); err != nil {
		app.internalServerError(w, r, err)
	}
}

type SubscriptionResponse struct {
	Subscription *subscriptions.Subscription `json:"subscription"`
	Active       bool                        `json:"active"`
}

// getSubscriptionHandler godoc
//
//	@Summary		Current subscription
//	@Tags			payments
//	@Produce		json
//	@Success		200	{object}	SubscriptionResponse
//	@Failure		500	{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/payments/subscription [get]
func (app *application) getSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var res SubscriptionResponse
	sub, err := app.store.Subscriptions.Get(r.Context(), user.ID)
	switch {
	case err == nil:
		res.Subscription = sub
		res.Active = sub.Active(time.Now())
	case !errors.Is(err, subscriptions.ErrNotFound):
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, res); err != nil {
		app.internalServerError(w, r, err)
	}
}

type PaymentStatusResponse struct {
	Payment *paymentsrepo.Payment `json:"payment"`
	Status  reconcile.Update      `json:"status"`
}

// paymentStatusHandler godoc
//
//	@Summary		Payment status
//	@Description	Returns the payment with a {type, message} status object. Pending payments are re-checked with PesaPal first.
//	@Tags			payments
//	@Produce		json
//	@Param			paymentID	path		int	true	"Payment ID"
//	@Success		200			{object}	PaymentStatusResponse
//	@Failure		403			{object}	error
//	@Failure		404			{object}	error
//	@Failure		500			{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/payments/{paymentID}/status [get]
func (app *application) paymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	p := getPaymentFromContext(r)

	if !paymentsrepo.IsTerminal(p.Status) && p.OrderTrackingID != nil {
		refreshed, err := app.tracker.Refresh(r.Context(), p.ID, reconcile.SourceStatus)
		if err != nil {
			// the stored row is still a valid answer
			app.logger.Warnw("payment status refresh failed", "payment_id", p.ID, "error", err)
		} else {
			p = refreshed
		}
	}

	res := PaymentStatusResponse{Payment: p, Status: reconcile.Describe(p)}
	if err := app.jsonResponse(w, http.StatusOK, res); err != nil {
		app.internalServerError(w, r, err)
	}
}

// paymentLogsHandler godoc
//
//	@Summary		Payment audit log
//	@Tags			payments
//	@Produce		json
//	@Param			paymentID	path		int	true	"Payment ID"
//	@Success		200			{array}		paymentsrepo.PaymentLog
//	@Failure		500			{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/payments/{paymentID}/logs [get]
func (app *application) paymentLogsHandler(w http.ResponseWriter, r *http.Request) {
	p := getPaymentFromContext(r)

	logs, err := app.store.Payments.Logs.ListByPayment(r.Context(), p.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, logs); err != nil {
		app.internalServerError(w, r, err)
	}
}
