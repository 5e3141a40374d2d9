package flowsql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"

	"github.com/openkcm/bot-flow/internal/flow"
	"github.com/openkcm/bot-flow/internal/serviceerr"
)

type Repository struct {
	db *pgxpool.Pool
}

var _ = flow.Store(&Repository{})

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) GetFlow(ctx context.Context, botID string) (flow.Graph, error) {
	tracer := otel.GetTracerProvider()
	ctx, span := tracer.Tracer("").Start(ctx, "get_flow_sql")
	defer span.End()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		span.RecordError(err)
		return flow.Graph{}, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists int
	err = tx.QueryRow(ctx, `SELECT 1 FROM bot_flows WHERE bot_id = $1;`, botID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return flow.Graph{}, serviceerr.ErrNotFound
		}
		span.RecordError(err)
		return flow.Graph{}, fmt.Errorf("selecting flow: %w", err)
	}

	nodes, err := r.selectNodes(ctx, tx, botID)
	if err != nil {
		span.RecordError(err)
		return flow.Graph{}, err
	}

	edges, err := r.selectEdges(ctx, tx, botID)
	if err != nil {
		span.RecordError(err)
		return flow.Graph{}, err
	}

	err = tx.Commit(ctx)
	if err != nil {
		span.RecordError(err)
		return flow.Graph{}, fmt.Errorf("committing tx: %w", err)
	}

	g, err := flow.DecodeGraph(botID, nodes, edges)
	if err != nil {
		span.RecordError(err)
		return flow.Graph{}, fmt.Errorf("decoding flow of bot %q: %w", botID, err)
	}

	return g, nil
}

func (r *Repository) selectNodes(ctx context.Context, tx pgx.Tx, botID string) ([]flow.RawNode, error) {
	rows, err := tx.Query(ctx, `SELECT node_id, type, data FROM bot_flow_nodes WHERE bot_id = $1 ORDER BY position;`, botID)
	if err != nil {
		return nil, fmt.Errorf("selecting nodes: %w", err)
	}

	nodes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (flow.RawNode, error) {
		var rn flow.RawNode
		var data []byte
		if err := row.Scan(&rn.ID, &rn.Type, &data); err != nil {
			return flow.RawNode{}, err
		}
		rn.Data = data
		return rn, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning nodes: %w", err)
	}

	return nodes, nil
}

func (r *Repository) selectEdges(ctx context.Context, tx pgx.Tx, botID string) ([]flow.Edge, error) {
	rows, err := tx.Query(ctx, `SELECT source, target, source_handle FROM bot_flow_edges WHERE bot_id = $1 ORDER BY position;`, botID)
	if err != nil {
		return nil, fmt.Errorf("selecting edges: %w", err)
	}

	edges, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (flow.Edge, error) {
		var e flow.Edge
		err := row.Scan(&e.Source, &e.Target, &e.SourceHandle)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning edges: %w", err)
	}

	return edges, nil
}

// SaveFlow replaces the stored graph of the bot. Node and edge order is kept.
func (r *Repository) SaveFlow(ctx context.Context, g flow.Graph) error {
	tracer := otel.GetTracerProvider()
	ctx, span := tracer.Tracer("").Start(ctx, "save_flow_sql")
	defer span.End()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	b := new(pgx.Batch)
	b.Queue(`INSERT INTO bot_flows (bot_id) VALUES ($1) ON CONFLICT (bot_id) DO UPDATE SET updated_at = now();`, g.BotID)
	b.Queue(`DELETE FROM bot_flow_edges WHERE bot_id = $1;`, g.BotID)
	b.Queue(`DELETE FROM bot_flow_nodes WHERE bot_id = $1;`, g.BotID)

	for i, n := range g.Nodes {
		rn, err := flow.EncodeNode(n)
		if err != nil {
			return err
		}
		data := []byte(rn.Data)
		if len(data) == 0 {
			data = []byte("{}")
		}
		b.Queue(`INSERT INTO bot_flow_nodes (bot_id, node_id, position, type, data) VALUES ($1, $2, $3, $4, $5);`,
			g.BotID, rn.ID, i, rn.Type, data)
	}
	for i, e := range g.Edges {
		b.Queue(`INSERT INTO bot_flow_edges (bot_id, position, source, target, source_handle) VALUES ($1, $2, $3, $4, $5);`,
			g.BotID, i, e.Source, e.Target, e.SourceHandle)
	}

	err = tx.SendBatch(ctx, b).Close()
	if err != nil {
		span.RecordError(err)
		if err, ok := handlePgError(err); ok {
			return err
		}

		return fmt.Errorf("writing flow: %w", err)
	}

	err = tx.Commit(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// DeleteFlow removes the bot with its nodes and edges.
func (r *Repository) DeleteFlow(ctx context.Context, botID string) error {
	tracer := otel.GetTracerProvider()
	ctx, span := tracer.Tracer("").Start(ctx, "delete_flow_sql")
	defer span.End()

	tag, err := r.db.Exec(ctx, `DELETE FROM bot_flows WHERE bot_id = $1;`, botID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting flow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return serviceerr.ErrNotFound
	}

	return nil
}
