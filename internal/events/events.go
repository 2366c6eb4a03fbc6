// Package events carries domain events from the request path to background
// workers.
package events

import (
	"context"
	"time"
)

const (
	SubjectPaymentSettled = "payments.settled"
	SubjectPaymentTimeout = "payments.timeout"
	SubjectReportCreated  = "reports.created"
)

// Handler processes one message. A returned error asks for redelivery where
// the transport supports it.
type Handler func(ctx context.Context, subject string, data []byte) error

type Bus interface {
	Publish(ctx context.Context, subject string, v any) error
	Subscribe(ctx context.Context, subject, durable string, h Handler) (stop func(), err error)
	Close() error
}

// PaymentSettled is published once per payment when it reaches a terminal
// status.
type PaymentSettled struct {
	PaymentID   int64     `json:"payment_id"`
	TenantID    int64     `json:"tenant_id"`
	UnitID      *int64    `json:"unit_id,omitempty"`
	Type        string    `json:"payment_type"`
	Status      string    `json:"status"`
	AmountCents int64     `json:"amount_cents"`
	Receipt     string    `json:"receipt,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Reference   string    `json:"reference,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type PaymentTimedOut struct {
	PaymentID  int64     `json:"payment_id"`
	TenantID   int64     `json:"tenant_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

type ReportCreated struct {
	ReportID   int64  `json:"report_id"`
	TenantID   int64  `json:"tenant_id"`
	UnitID     int64  `json:"unit_id"`
	IssueTitle string `json:"issue_title"`
	Priority   string `json:"priority_level"`
}
