package postgrestest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"

	slogctx "github.com/veqryn/slog-context"

	migrations "github.com/openkcm/bot-flow/sql"
)

const (
	DBHost     = "localhost"
	DBUser     = "postgres"
	DBPassword = "secret"
	DBName     = "bot_flow"
	DBSSLMode  = "disable"
)

// SeededBotID is the bot whose flow prepareDB inserts: start -> greet -> ask.
const SeededBotID = "seeded-bot"

// Start initialises a database instance and returns a connection pool, database port, and termination function.
//
// Database credentials are available as exported variables.
// The database contains a pre-defined flow. See INSERT statements in the prepareDB.
func Start(ctx context.Context) (*pgxpool.Pool, nat.Port, func(ctx context.Context)) {
	pgContainer, err := postgres.Run(
		ctx,
		"postgres:17-alpine",
		postgres.WithDatabase(DBName),
		postgres.WithUsername(DBUser),
		postgres.WithPassword(DBPassword),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		slogctx.Error(ctx, "Failed to start PostgreSQL", slog.String("error", err.Error()))
		panic(err)
	}

	port, err := pgContainer.MappedPort(ctx, nat.Port("5432"))
	if err != nil {
		slogctx.Error(ctx, "Failed to get mapped port for the PostgreSQL container", slog.String("error", err.Error()))
		panic(err)
	}

	connStr := ConnStr(port)
	migrateDB(ctx, connStr)

	dbPool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		panic(err)
	}
	prepareDB(ctx, dbPool)

	terminate := func(ctx context.Context) {
		dbPool.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			slogctx.Error(ctx, "Failed to terminate PostgreSQL container", slog.String("error", err.Error()))
			panic(err)
		}
	}

	return dbPool, port, terminate
}

// ConnStr returns the connection string of the test database on the given port.
func ConnStr(port nat.Port) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s", DBHost, DBUser, DBPassword, DBName, port.Port(), DBSSLMode)
}

func migrateDB(ctx context.Context, connStr string) {
	db, err := sql.Open(migrations.Dialect, connStr)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	if _, err := migrations.Up(ctx, db); err != nil {
		panic(err)
	}
}

func prepareDB(ctx context.Context, dbPool *pgxpool.Pool) {
	b := new(pgx.Batch)
	b.Queue(`INSERT INTO bot_flows (bot_id) VALUES ($1);`, SeededBotID)
	b.Queue(`INSERT INTO bot_flow_nodes (bot_id, node_id, position, type, data) VALUES ($1, 'start', 0, 'start', '{}');`, SeededBotID)
	b.Queue(`INSERT INTO bot_flow_nodes (bot_id, node_id, position, type, data) VALUES ($1, 'greet', 1, 'message', '{"content":"Hello {{name}}"}');`, SeededBotID)
	b.Queue(`INSERT INTO bot_flow_nodes (bot_id, node_id, position, type, data) VALUES ($1, 'ask', 2, 'input', '{"variable":"answer"}');`, SeededBotID)
	b.Queue(`INSERT INTO bot_flow_edges (bot_id, position, source, target) VALUES ($1, 0, 'start', 'greet');`, SeededBotID)
	b.Queue(`INSERT INTO bot_flow_edges (bot_id, position, source, target) VALUES ($1, 1, 'greet', 'ask');`, SeededBotID)

	res := dbPool.SendBatch(ctx, b)
	if err := res.Close(); err != nil {
		panic(err)
	}
}
