package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/bookline-ai-platform/internal/conversation"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

// Adapter is the SMS gateway channel adapter. It normalizes inbound
// webhook payloads into canonical messages and sends replies through
// the gateway API.
type Adapter struct {
	client *Client
	logger *logging.Logger
}

// NewAdapter creates an SMS adapter.
func NewAdapter(client *Client, logger *logging.Logger) *Adapter {
	if client == nil {
		panic("sms: client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Adapter{client: client, logger: logger}
}

// Normalize converts a raw webhook body into a canonical inbound message.
func (a *Adapter) Normalize(raw []byte) (conversation.InboundMessage, error) {
	var event WebhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return conversation.InboundMessage{}, fmt.Errorf("sms: decode webhook event: %w", err)
	}
	if event.EventType != eventMessageReceived {
		return conversation.InboundMessage{}, fmt.Errorf("sms: unsupported event type %q", event.EventType)
	}
	if strings.TrimSpace(event.Payload.From) == "" {
		return conversation.InboundMessage{}, fmt.Errorf("sms: webhook payload missing sender")
	}

	ts := event.Payload.ReceivedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return conversation.InboundMessage{
		Channel:       conversation.ChannelSMSGateway,
		ChannelUserID: event.Payload.From,
		Text:          event.Payload.Text,
		Timestamp:     ts,
	}, nil
}

// Send delivers a reply to the given phone number.
func (a *Adapter) Send(ctx context.Context, channelUserID, text string) error {
	resp, err := a.client.SendText(ctx, channelUserID, text)
	if err != nil {
		a.logger.Error("sms: failed to send message", "to", channelUserID, "error", err)
		return err
	}
	if resp.Data != nil {
		a.logger.Debug("sms: message sent", "to", channelUserID, "message_id", resp.Data.ID)
	}
	return nil
}
