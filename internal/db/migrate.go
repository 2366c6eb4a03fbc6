package db

import (
	"context"
	"embed"
	"fmt"

	_ "github.com/lib/pq" // database/sql driver used by goose
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies all pending goose migrations from the embedded SQL files.
func Migrate(ctx context.Context, addr string) error {
	goose.SetBaseFS(migrations)

	db, err := goose.OpenDBWithDriver("postgres", addr)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
