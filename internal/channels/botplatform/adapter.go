package botplatform

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/wolfman30/bookline-ai-platform/internal/conversation"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

const secretTokenHeader = "X-Bot-Api-Secret-Token"

// Adapter is the bot platform channel adapter. The platform authenticates
// webhooks with a shared secret token header rather than a body signature.
type Adapter struct {
	client      *Client
	secretToken string
	logger      *logging.Logger
}

// Dispatch hands a normalized message to the conversation pipeline.
type Dispatch func(ctx context.Context, msg conversation.InboundMessage)

// NewAdapter creates a bot platform adapter.
func NewAdapter(client *Client, secretToken string, logger *logging.Logger) *Adapter {
	if client == nil {
		panic("botplatform: client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Adapter{client: client, secretToken: secretToken, logger: logger}
}

// Normalize converts a raw update body into a canonical inbound message.
// Messages authored by bots are rejected to keep bots from talking to
// each other.
func (a *Adapter) Normalize(raw []byte) (conversation.InboundMessage, error) {
	var update Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return conversation.InboundMessage{}, fmt.Errorf("botplatform: decode update: %w", err)
	}
	if update.Message == nil || update.Message.Text == "" {
		return conversation.InboundMessage{}, fmt.Errorf("botplatform: update %d carries no text message", update.UpdateID)
	}
	if update.Message.From != nil && update.Message.From.IsBot {
		return conversation.InboundMessage{}, fmt.Errorf("botplatform: ignoring bot-authored message in update %d", update.UpdateID)
	}

	return conversation.InboundMessage{
		Channel:       conversation.ChannelBotPlatform,
		ChannelUserID: strconv.FormatInt(update.Message.Chat.ID, 10),
		Text:          update.Message.Text,
		Timestamp:     time.Unix(update.Message.Date, 0).UTC(),
	}, nil
}

// Send delivers a reply to the given chat.
func (a *Adapter) Send(ctx context.Context, channelUserID, text string) error {
	if err := a.client.SendMessage(ctx, channelUserID, text); err != nil {
		a.logger.Error("botplatform: failed to send message", "chat_id", channelUserID, "error", err)
		return err
	}
	return nil
}

// HandleWebhook handles POST updates from the platform.
func (a *Adapter) HandleWebhook(dispatch Dispatch) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(secretTokenHeader)
		if a.secretToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(a.secretToken)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}

		msg, err := a.Normalize(body)
		if err != nil {
			// The platform redelivers on non-2xx; malformed updates are dropped.
			a.logger.Warn("botplatform: dropping update", "error", err)
			w.WriteHeader(http.StatusOK)
			return
		}

		w.WriteHeader(http.StatusOK)

		if dispatch != nil {
			dispatch(r.Context(), msg)
		}
	}
}
