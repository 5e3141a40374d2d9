package messagesql

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"

	"github.com/openkcm/bot-flow/internal/message"
)

type Repository struct {
	db *pgxpool.Pool
}

var _ = message.Sink(&Repository{})

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) Record(ctx context.Context, conversationID, content string, direction message.Direction, metadata map[string]string) (string, error) {
	tracer := otel.GetTracerProvider()
	ctx, span := tracer.Tracer("").Start(ctx, "record_message_sql")
	defer span.End()

	if metadata == nil {
		metadata = map[string]string{}
	}
	metaBytes, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshaling metadata: %w", err)
	}

	id := uuid.New()
	_, err = r.db.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, direction, content, metadata) VALUES ($1, $2, $3, $4, $5);`,
		id, conversationID, string(direction), content, metaBytes,
	)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("inserting into messages: %w", err)
	}

	return id.String(), nil
}

// ListConversation returns the messages of a conversation oldest first.
func (r *Repository) ListConversation(ctx context.Context, conversationID string) ([]message.Message, error) {
	tracer := otel.GetTracerProvider()
	ctx, span := tracer.Tracer("").Start(ctx, "list_messages_sql")
	defer span.End()

	rows, err := r.db.Query(ctx,
		`SELECT id, conversation_id, direction, content, metadata FROM messages WHERE conversation_id = $1 ORDER BY created_at, id;`,
		conversationID,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("selecting messages: %w", err)
	}

	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (message.Message, error) {
		var m message.Message
		var id uuid.UUID
		var direction string
		var metaBytes []byte
		if err := row.Scan(&id, &m.ConversationID, &direction, &m.Content, &metaBytes); err != nil {
			return message.Message{}, err
		}
		m.ID = id.String()
		m.Direction = message.Direction(direction)
		if err := json.Unmarshal(metaBytes, &m.Metadata); err != nil {
			return message.Message{}, fmt.Errorf("unmarshalling metadata: %w", err)
		}
		return m, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("scanning messages: %w", err)
	}

	return msgs, nil
}
