package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// connectTimeout bounds pool start-up including the first Ping.
const connectTimeout = 30 * time.Second

type Config struct {
	Addr        string
	MaxConns    int32
	MaxIdleTime string
}

// New opens the pgx pool shared by every repository and the poll ledger.
func New(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("parse db addr: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MaxIdleTime != "" {
		idle, err := time.ParseDuration(cfg.MaxIdleTime)
		if err != nil {
			return nil, fmt.Errorf("parse db max idle time: %w", err)
		}
		pc.MaxConnIdleTime = idle
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}
