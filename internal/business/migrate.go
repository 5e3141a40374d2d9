package business

import (
	"context"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/samber/oops"

	// Register pgx driver
	_ "github.com/jackc/pgx/v5/stdlib"

	slogctx "github.com/veqryn/slog-context"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/openkcm/bot-flow/internal/config"
	migrations "github.com/openkcm/bot-flow/sql"
)

// MigrateMain brings the bot flow schema to the latest version.
func MigrateMain(ctx context.Context, cfg *config.Config) error {
	dbSystemName := semconv.DBSystemNamePostgreSQL

	connStr, err := config.MakeConnStr(cfg.Database)
	if err != nil {
		return fmt.Errorf("making connection string from config: %w", err)
	}

	db, err := otelsql.Open(migrations.Dialect, connStr, otelsql.WithAttributes(dbSystemName))
	if err != nil {
		return oops.In("main").Wrapf(err, "opening DB connection")
	}
	defer db.Close()

	reg, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(dbSystemName))
	if err != nil {
		return fmt.Errorf("registering db stats metrics: %w", err)
	}

	defer func() {
		if err := reg.Unregister(); err != nil {
			slogctx.Error(ctx, "Failed to unregister db stats metrics", "error", err)
		}
	}()

	version, err := migrations.Up(ctx, db)
	if err != nil {
		return err
	}

	slogctx.Info(ctx, "Bot flow schema is up to date", "version", version)

	return nil
}
