package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"makao/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("subscription not found")

type Subscription struct {
	UserID    int64      `json:"user_id"`
	Plan      string     `json:"plan"`
	StartedAt time.Time  `json:"started_at"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// Active reports whether the subscription is paid and unexpired at now.
// A nil expiry on a paid plan is a lifetime plan.
func (s *Subscription) Active(now time.Time) bool {
	if s.Plan == "" || s.Plan == "free" {
		return false
	}
	return s.ExpiresAt == nil || s.ExpiresAt.After(now)
}

type Store interface {
	Get(ctx context.Context, userID int64) (*Subscription, error)
	Activate(ctx context.Context, userID int64, plan string, expiresAt *time.Time) (*Subscription, error)
}

type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

func (r *Repository) Get(ctx context.Context, userID int64) (*Subscription, error) {
	var s Subscription
	err := r.q.QueryRow(ctx, `
		SELECT user_id, plan, started_at, expires_at FROM subscriptions WHERE user_id = $1
	`, userID).Scan(&s.UserID, &s.Plan, &s.StartedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &s, nil
}

func (r *Repository) Activate(ctx context.Context, userID int64, plan string, expiresAt *time.Time) (*Subscription, error) {
	var s Subscription
	err := r.q.QueryRow(ctx, `
		INSERT INTO subscriptions (user_id, plan, started_at, expires_at)
		VALUES ($1, $2, NOW(), $3)
		ON CONFLICT (user_id)
		DO UPDATE SET plan = EXCLUDED.plan, started_at = NOW(), expires_at = EXCLUDED.expires_at
		RETURNING user_id, plan, started_at, expires_at
	`, userID, plan, expiresAt).Scan(&s.UserID, &s.Plan, &s.StartedAt, &s.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("activate subscription: %w", err)
	}
	return &s, nil
}
