package channelmock

import (
	"context"
	"slices"
	"sync"

	"github.com/openkcm/bot-flow/internal/channel"
)

type SenderOption func(*Sender)

// Delivery is a message handed to the Sender.
type Delivery struct {
	Platform string
	Address  string
	Message  channel.Message
}

type Sender struct {
	mu         sync.Mutex
	deliveries []Delivery

	sendErr error
}

func WithSendError(err error) SenderOption {
	return func(s *Sender) { s.sendErr = err }
}

var _ = channel.Sender(&Sender{})

func NewSender(opts ...SenderOption) *Sender {
	s := &Sender{}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Sender) Send(_ context.Context, platform, recipientAddress string, msg channel.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sendErr != nil {
		return s.sendErr
	}
	s.deliveries = append(s.deliveries, Delivery{Platform: platform, Address: recipientAddress, Message: msg})
	return nil
}

// TDeliveries is a helper method for tests to read the delivered messages.
func (s *Sender) TDeliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.deliveries)
}
