// Package message records the messages a conversation exchanges.
package message

import "context"

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Sink durably records a message and returns its id.
type Sink interface {
	Record(ctx context.Context, conversationID, content string, direction Direction, metadata map[string]string) (string, error)
}

// Message is a recorded message.
type Message struct {
	ID             string
	ConversationID string
	Direction      Direction
	Content        string
	Metadata       map[string]string
}
