package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/bookline-ai-platform/internal/conversation"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
	"golang.org/x/net/websocket"
)

// Dispatch hands a normalized message to the conversation pipeline.
type Dispatch func(ctx context.Context, msg conversation.InboundMessage)

// InboundFrame is what the widget sends over the socket.
type InboundFrame struct {
	Type string `json:"type"` // "message", "ping"
	Text string `json:"text"`
}

// OutboundFrame is what the hub pushes to the widget.
type OutboundFrame struct {
	Type      string `json:"type"` // "message", "session", "pong", "error"
	Text      string `json:"text,omitempty"`
	Role      string `json:"role,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Hub tracks active widget connections keyed by visitor id. Replies are
// pushed through the visitor's open socket; a visitor with no open
// socket cannot be reached.
type Hub struct {
	dispatch Dispatch
	logger   *logging.Logger

	mu    sync.RWMutex
	conns map[string]*wsConn
}

type wsConn struct {
	conn *websocket.Conn
	done chan struct{}
}

// NewHub creates a webchat hub. dispatch is called for each inbound
// text message.
func NewHub(dispatch Dispatch, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		dispatch: dispatch,
		logger:   logger,
		conns:    make(map[string]*wsConn),
	}
}

// generateUserID creates a random visitor identifier.
func generateUserID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// HandleWebSocket upgrades to WebSocket and serves the message loop.
// The visitor id comes from the "user" query parameter so reloads keep
// the same conversation; a fresh id is minted when absent.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serve(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Hub) serve(conn *websocket.Conn, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		userID = generateUserID()
	}

	_ = websocket.JSON.Send(conn, OutboundFrame{Type: "session", UserID: userID})

	wsc := &wsConn{conn: conn, done: make(chan struct{})}
	h.mu.Lock()
	h.conns[userID] = wsc
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		if h.conns[userID] == wsc {
			delete(h.conns, userID)
		}
		h.mu.Unlock()
		close(wsc.done)
	}()

	h.logger.Info("webchat: connection opened", "user_id", userID)

	for {
		var frame InboundFrame
		if err := websocket.JSON.Receive(conn, &frame); err != nil {
			h.logger.Debug("webchat: connection closed", "user_id", userID, "error", err)
			return
		}

		if frame.Type == "ping" {
			_ = websocket.JSON.Send(conn, OutboundFrame{Type: "pong"})
			continue
		}

		if frame.Type != "message" || strings.TrimSpace(frame.Text) == "" {
			continue
		}

		if h.dispatch != nil {
			h.dispatch(r.Context(), conversation.InboundMessage{
				Channel:       conversation.ChannelWebWidget,
				ChannelUserID: userID,
				Text:          frame.Text,
				Timestamp:     time.Now().UTC(),
			})
		}
	}
}

// Send pushes a reply to the visitor's open socket.
func (h *Hub) Send(_ context.Context, channelUserID, text string) error {
	h.mu.RLock()
	wsc, ok := h.conns[channelUserID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("webchat: no active connection for user %s", channelUserID)
	}

	return websocket.JSON.Send(wsc.conn, OutboundFrame{
		Type:      "message",
		Role:      "assistant",
		Text:      text,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Connected reports whether the visitor has an open socket.
func (h *Hub) Connected(channelUserID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[channelUserID]
	return ok
}
