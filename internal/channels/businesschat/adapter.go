package businesschat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wolfman30/bookline-ai-platform/internal/conversation"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

// Adapter is the business chat channel adapter. It normalizes inbound
// platform webhooks and sends replies via the messages API.
type Adapter struct {
	client *Client
	logger *logging.Logger
}

// NewAdapter creates a business chat adapter.
func NewAdapter(client *Client, logger *logging.Logger) *Adapter {
	if client == nil {
		panic("businesschat: client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Adapter{client: client, logger: logger}
}

// Normalize converts a raw webhook body into a canonical inbound message.
// The platform batches events; only the first text message of the batch
// is returned here, the webhook handler iterates the rest.
func (a *Adapter) Normalize(raw []byte) (conversation.InboundMessage, error) {
	var event WebhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return conversation.InboundMessage{}, fmt.Errorf("businesschat: decode webhook event: %w", err)
	}

	msgs := parseEvent(event)
	if len(msgs) == 0 {
		return conversation.InboundMessage{}, fmt.Errorf("businesschat: webhook event carries no text message")
	}
	return msgs[0], nil
}

func parseEvent(event WebhookEvent) []conversation.InboundMessage {
	var out []conversation.InboundMessage
	for _, entry := range event.Entry {
		for _, m := range entry.Messaging {
			if m.Message == nil || m.Sender.ID == "" {
				continue
			}
			out = append(out, conversation.InboundMessage{
				Channel:       conversation.ChannelBusinessChat,
				ChannelUserID: m.Sender.ID,
				Text:          m.Message.Text,
				Timestamp:     time.UnixMilli(m.Timestamp).UTC(),
			})
		}
	}
	return out
}

// Send delivers a reply to the given platform user.
func (a *Adapter) Send(ctx context.Context, channelUserID, text string) error {
	_, err := a.client.SendTextMessage(ctx, channelUserID, text)
	if err != nil {
		a.logger.Error("businesschat: failed to send message", "recipient_id", channelUserID, "error", err)
	}
	return err
}
