package webchat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/bookline-ai-platform/internal/conversation"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

// Adapter is the web widget channel adapter. Real-time traffic flows
// through the hub's WebSocket; HandleMessage is the HTTP fallback for
// widgets that cannot hold a socket open.
type Adapter struct {
	hub    *Hub
	logger *logging.Logger
}

// NewAdapter creates a webchat adapter.
func NewAdapter(hub *Hub, logger *logging.Logger) *Adapter {
	if hub == nil {
		panic("webchat: hub cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Adapter{hub: hub, logger: logger}
}

type httpInbound struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// Normalize converts an HTTP fallback body into a canonical inbound message.
func (a *Adapter) Normalize(raw []byte) (conversation.InboundMessage, error) {
	var in httpInbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return conversation.InboundMessage{}, fmt.Errorf("webchat: decode message: %w", err)
	}
	if strings.TrimSpace(in.Text) == "" {
		return conversation.InboundMessage{}, fmt.Errorf("webchat: message text is required")
	}
	if in.UserID == "" {
		in.UserID = generateUserID()
	}

	return conversation.InboundMessage{
		Channel:       conversation.ChannelWebWidget,
		ChannelUserID: in.UserID,
		Text:          in.Text,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// Send pushes a reply through the visitor's socket.
func (a *Adapter) Send(ctx context.Context, channelUserID, text string) error {
	return a.hub.Send(ctx, channelUserID, text)
}

// HandleMessage is the HTTP fallback for sending a message. The reply
// still arrives over the visitor's socket when one is open.
func (a *Adapter) HandleMessage(dispatch Dispatch) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in httpInbound
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		raw, _ := json.Marshal(in)
		msg, err := a.Normalize(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if dispatch != nil {
			dispatch(r.Context(), msg)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "queued",
			"user_id": msg.ChannelUserID,
		})
	}
}
