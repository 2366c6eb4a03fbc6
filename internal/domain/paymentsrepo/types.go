package paymentsrepo

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("payment not found")

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

const (
	TypeRent         = "rent"
	TypeDeposit      = "deposit"
	TypeSubscription = "subscription"
)

// IsTerminal reports whether a stored payment status can no longer change.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusCancelled
}

// Payment amounts are KES cents. AmountCents is the base amount credited to
// the payer; FeeCents is the processing fee charged on top of it.
type Payment struct {
	ID               int64     `json:"id"`
	TenantID         int64     `json:"tenant_id"`
	UnitID           *int64    `json:"unit_id"`
	Type             string    `json:"payment_type"`
	Provider         string    `json:"provider"`
	AmountCents      int64     `json:"amount_cents"`
	FeeCents         int64     `json:"fee_cents"`
	Currency         string    `json:"currency"`
	Status           string    `json:"status"`
	Reference        *string   `json:"reference"`
	OrderTrackingID  *string   `json:"order_tracking_id"`
	MpesaReceipt     *string   `json:"mpesa_receipt"`
	FailureReason    *string   `json:"failure_reason"`
	SubscriptionPlan *string   `json:"subscription_plan,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// Populated by list queries.
	TenantName   string `json:"tenant_name,omitempty"`
	UnitNumber   string `json:"unit_number,omitempty"`
	PropertyName string `json:"property_name,omitempty"`
}

func (p *Payment) TotalCents() int64 { return p.AmountCents + p.FeeCents }

// ListFilter scopes a payment listing. Zero values match everything; exactly
// one of TenantID or LandlordID is normally set.
type ListFilter struct {
	TenantID   int64
	LandlordID int64
	Status     string
	Type       string
	Since      *time.Time
}

type Summary struct {
	CompletedCount     int        `json:"completed_count"`
	PendingCount       int        `json:"pending_count"`
	FailedCount        int        `json:"failed_count"`
	TotalPaidCents     int64      `json:"total_paid_cents"`
	PaidThisMonthCents int64      `json:"paid_this_month_cents"`
	LastPaymentAt      *time.Time `json:"last_payment_at"`
}

type Store interface {
	Create(ctx context.Context, p *Payment) (*Payment, error)
	GetByID(ctx context.Context, id int64) (*Payment, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*Payment, error)
	GetByTrackingID(ctx context.Context, trackingID string) (*Payment, error)
	SetReference(ctx context.Context, paymentID int64, reference string) error
	SetGatewayRef(ctx context.Context, paymentID int64, trackingID string) error
	MarkCompleted(ctx context.Context, paymentID int64, receipt string) error
	MarkFailed(ctx context.Context, paymentID int64, status, reason string) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Payment, int, error)
	Summary(ctx context.Context, f ListFilter) (*Summary, error)
	DeleteStalePending(ctx context.Context, olderThan time.Duration) (int64, error)
}
