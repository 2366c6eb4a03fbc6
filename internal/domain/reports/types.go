package reports

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("report not found")
	ErrInvalidStatus     = errors.New("invalid report status")
	QueryTimeoutDuration = 5 * time.Second
)

const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

type Report struct {
	ID            int64      `json:"id"`
	TenantID      int64      `json:"tenant_id"`
	TenantName    string     `json:"tenant_name"`
	UnitID        int64      `json:"unit_id"`
	UnitNumber    string     `json:"unit_number"`
	PropertyName  string     `json:"property_name"`
	IssueTitle    string     `json:"issue_title"`
	IssueCategory string     `json:"issue_category"`
	Priority      string     `json:"priority_level"`
	Description   string     `json:"description"`
	Status        string     `json:"status"`
	AttachmentURL *string    `json:"attachment_url"`
	ReportedAt    time.Time  `json:"reported_at"`
	ResolvedAt    *time.Time `json:"resolved_at"`
}

type Stats struct {
	Total              int      `json:"total"`
	Open               int      `json:"open"`
	InProgress         int      `json:"in_progress"`
	Resolved           int      `json:"resolved"`
	Closed             int      `json:"closed"`
	Urgent             int      `json:"urgent"`
	AvgResolutionHours *float64 `json:"avg_resolution_hours"`
}

// Filter narrows a landlord's report list. Empty fields match everything.
type Filter struct {
	Status   string
	Priority string
}

type Store interface {
	Create(ctx context.Context, r *Report) error
	GetByID(ctx context.Context, id int64) (*Report, error)
	ListByLandlord(ctx context.Context, landlordID int64, f Filter) ([]Report, error)
	ListByTenant(ctx context.Context, tenantID int64) ([]Report, error)
	UpdateStatus(ctx context.Context, id int64, status string) (*Report, error)
	Stats(ctx context.Context, landlordID int64) (*Stats, error)
	Delete(ctx context.Context, id int64) error
}
