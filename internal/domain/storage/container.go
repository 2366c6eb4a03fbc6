package storage

import (
	"context"
	"fmt"

	"makao/internal/domain/paymentsrepo"
	"makao/internal/domain/properties"
	"makao/internal/domain/pushtokens"
	"makao/internal/domain/reports"
	"makao/internal/domain/subscriptions"
	"makao/internal/domain/units"
	"makao/internal/domain/users"
	"makao/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Payments struct {
	Payments paymentsrepo.Store
	Logs     paymentsrepo.LogsStore
	Markers  paymentsrepo.MarkerStore
}

// Repos is the full set of repositories bound to one Querier.
type Repos struct {
	Users         users.Store
	Properties    properties.Store
	Units         units.Store
	Reports       reports.Store
	Subscriptions subscriptions.Store
	PushTokens    pushtokens.Store
	Payments      Payments
}

func newRepos(q dbx.Querier) Repos {
	return Repos{
		Users:         users.NewRepository(q),
		Properties:    properties.NewRepository(q),
		Units:         units.NewRepository(q),
		Reports:       reports.NewRepository(q),
		Subscriptions: subscriptions.NewRepository(q),
		PushTokens:    pushtokens.NewRepository(q),
		Payments: Payments{
			Payments: paymentsrepo.NewRepository(q),
			Logs:     paymentsrepo.NewLogsRepository(q),
			Markers:  paymentsrepo.NewMarkersRepository(q),
		},
	}
}

type Container struct {
	pool *pgxpool.Pool
	Repos

	// static backs WithTx when there is no pool.
	static bool
}

func NewContainer(db *pgxpool.Pool) *Container {
	return &Container{pool: db, Repos: newRepos(db)}
}

// NewStaticContainer wraps prebuilt repos. WithTx runs fn against the same
// repos with no transaction, so it only suits in-memory implementations.
func NewStaticContainer(r Repos) *Container {
	return &Container{Repos: r, static: true}
}

// Tx is a tx-scoped set of repos for atomic units of work.
type Tx struct {
	Repos
}

// WithTx runs fn inside a single transaction. fn's error rolls back.
func (c *Container) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	if c.static {
		return fn(&Tx{Repos: c.Repos})
	}
	if c.pool == nil {
		return fmt.Errorf("storage container pool is nil")
	}

	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&Tx{Repos: newRepos(tx)}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Ping checks database connectivity; static containers are always up.
func (c *Container) Ping(ctx context.Context) error {
	if c.pool == nil {
		return nil
	}
	return c.pool.Ping(ctx)
}
