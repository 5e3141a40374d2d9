// Package migrations embeds the goose migrations of the bot flow database.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// Dialect is the goose dialect matching the pgx database/sql driver.
const Dialect = "pgx"

//go:embed *.sql
var FS embed.FS

// Up applies the pending migrations and returns the resulting schema version.
func Up(ctx context.Context, db *sql.DB) (int64, error) {
	goose.SetBaseFS(FS)

	err := goose.SetDialect(Dialect)
	if err != nil {
		return 0, fmt.Errorf("setting goose dialect: %w", err)
	}

	err = goose.UpContext(ctx, db, ".")
	if err != nil {
		return 0, fmt.Errorf("applying migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}

	return version, nil
}
