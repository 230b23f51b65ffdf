package businesschat

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/wolfman30/bookline-ai-platform/internal/conversation"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

// Dispatch hands a normalized message to the conversation pipeline.
type Dispatch func(ctx context.Context, msg conversation.InboundMessage)

// WebhookHandler handles platform webhook verification and inbound messages.
type WebhookHandler struct {
	verifyToken string
	appSecret   string
	dispatch    Dispatch
	logger      *logging.Logger
}

// NewWebhookHandler creates a webhook handler. dispatch is called for
// each text message in a verified event batch.
func NewWebhookHandler(verifyToken, appSecret string, dispatch Dispatch, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		dispatch:    dispatch,
		logger:      logger,
	}
}

// HandleVerification handles the GET webhook subscription challenge.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}

	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleInbound handles POST webhook events. The platform retries on
// non-2xx, so a 200 goes out before the batch is dispatched.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	if !VerifySignature(h.appSecret, body, signature) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)

	for _, msg := range parseEvent(event) {
		if h.dispatch != nil {
			h.dispatch(r.Context(), msg)
		}
	}
}

// VerifySignature verifies the X-Hub-Signature-256 header.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}

	const prefix = "sha256="
	if len(signature) <= len(prefix) {
		return false
	}
	sigHex := signature[len(prefix):]

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sigHex))
}
