package paymentsrepo

import (
	"context"
	"encoding/json"
	"time"
)

const (
	LogRequest  = "request"
	LogRedirect = "redirect"
	LogIPN      = "ipn"
	LogPoll     = "poll"
	LogError    = "error"
)

type PaymentLog struct {
	ID        int64           `json:"id"`
	PaymentID int64           `json:"payment_id"`
	LogType   string          `json:"log_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type LogsStore interface {
	InsertPaymentLog(ctx context.Context, paymentID int64, logType string, payload any) error
	ListByPayment(ctx context.Context, paymentID int64) ([]PaymentLog, error)
}
