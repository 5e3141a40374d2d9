// Package channelhttp sends outbound messages to a messaging gateway over
// HTTP. The gateway owns the provider wire formats.
package channelhttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/openkcm/bot-flow/internal/channel"
)

var ErrDeliveryRejected = errors.New("gateway rejected the message")

type Config struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	RetryCount    int
	RetryWaitTime time.Duration
}

type Sender struct {
	client *resty.Client
}

var _ = channel.Sender(&Sender{})

type sendRequest struct {
	Recipient string            `json:"recipient"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewSender(cfg Config) *Sender {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWaitTime).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &Sender{client: client}
}

// Send posts the message to /v1/platforms/{platform}/messages.
func (s *Sender) Send(ctx context.Context, platform, recipientAddress string, msg channel.Message) error {
	var errResp errorResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("platform", platform).
		SetBody(sendRequest{
			Recipient: recipientAddress,
			Text:      msg.Text,
			Metadata:  msg.Metadata,
		}).
		SetError(&errResp).
		Post("/v1/platforms/{platform}/messages")
	if err != nil {
		return fmt.Errorf("posting message: %w", err)
	}

	if resp.IsError() {
		if errResp.Error != "" {
			return fmt.Errorf("%w: %s: %s", ErrDeliveryRejected, resp.Status(), errResp.Error)
		}
		return fmt.Errorf("%w: %s", ErrDeliveryRejected, resp.Status())
	}

	return nil
}
