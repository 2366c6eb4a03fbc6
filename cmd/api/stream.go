package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"makao/internal/domain/paymentsrepo"
	"makao/internal/reconcile"

	"github.com/coder/websocket"
)

const streamPingInterval = 25 * time.Second

func writeUpdate(ctx context.Context, ws *websocket.Conn, u reconcile.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}

// paymentStreamHandler godoc
//
//	@Summary		Payment status stream
//	@Description	WebSocket that sends the payment's current status, then every transition until a terminal status or a polling timeout. Browsers may pass the access token as ?token=.
//	@Tags			payments
//	@Param			paymentID	path	int		true	"Payment ID"
//	@Param			token		query	string	false	"Access token"
//	@Success		101			"Switching Protocols"
//	@Failure		403			{object}	error
//	@Failure		404			{object}	error
//	@Security		ApiKeyAuth
//	@Router			/payments/{paymentID}/stream [get]
func (app *application) paymentStreamHandler(w http.ResponseWriter, r *http.Request) {
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

	// subscribe before reading the current state so no transition is missed
	updates, unsubscribe := app.tracker.Hub().Subscribe(p.ID)
	defer unsubscribe()
	if fresh, err := app.store.Payments.Payments.GetByID(ctx, p.ID); err == nil {
		p = fresh
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		app.logger.Warnw("websocket accept failed", "payment_id", p.ID, "error", err)
		return
	}
	defer ws.CloseNow()

	// the client only listens; CloseRead handles its control frames
	ctx = ws.CloseRead(ctx)

	current := reconcile.Describe(p)
	if err := writeUpdate(ctx, ws, current); err != nil {
		return
	}
	if current.Terminal {
		ws.Close(websocket.StatusNormalClosure, current.Status)
		return
	}

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case u, open := <-updates:
			if !open {
				ws.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := writeUpdate(ctx, ws, u); err != nil {
				app.logger.Debugw("payment stream write failed", "payment_id", p.ID, "error", err)
				return
			}
			if u.Terminal || u.TimedOut {
				ws.Close(websocket.StatusNormalClosure, u.Status)
				return
			}

		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := ws.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
