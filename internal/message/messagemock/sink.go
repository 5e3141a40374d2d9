package messagemock

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/openkcm/bot-flow/internal/message"
)

type SinkOption func(*Sink)

type Sink struct {
	mu       sync.Mutex
	messages []message.Message

	recordErr error
}

func WithRecordError(err error) SinkOption {
	return func(s *Sink) { s.recordErr = err }
}

var _ = message.Sink(&Sink{})

func NewInMemSink(opts ...SinkOption) *Sink {
	s := &Sink{}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Sink) Record(_ context.Context, conversationID, content string, direction message.Direction, metadata map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recordErr != nil {
		return "", s.recordErr
	}

	id := fmt.Sprintf("msg-%d", len(s.messages)+1)
	s.messages = append(s.messages, message.Message{
		ID:             id,
		ConversationID: conversationID,
		Direction:      direction,
		Content:        content,
		Metadata:       maps.Clone(metadata),
	})
	return id, nil
}

// TMessages is a helper method for tests to read the recorded messages.
func (s *Sink) TMessages() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}
