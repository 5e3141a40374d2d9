// Package channel delivers outbound messages over external messaging
// networks.
package channel

import "context"

// Message is the transport independent content of an outbound message.
type Message struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Sender delivers a message to a recipient on a platform.
type Sender interface {
	Send(ctx context.Context, platform, recipientAddress string, msg Message) error
}
