package sms

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/wolfman30/bookline-ai-platform/internal/conversation"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

const (
	signatureHeader = "X-Gateway-Signature"
	timestampHeader = "X-Gateway-Timestamp"
)

// Dispatch hands a normalized message to the conversation pipeline.
type Dispatch func(ctx context.Context, msg conversation.InboundMessage)

// WebhookHandler verifies and parses inbound gateway webhooks.
type WebhookHandler struct {
	adapter       *Adapter
	webhookSecret string
	dispatch      Dispatch
	logger        *logging.Logger
}

// NewWebhookHandler creates a webhook handler. dispatch is called for
// each verified inbound message.
func NewWebhookHandler(adapter *Adapter, webhookSecret string, dispatch Dispatch, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		adapter:       adapter,
		webhookSecret: webhookSecret,
		dispatch:      dispatch,
		logger:        logger,
	}
}

// HandleInbound handles POST webhook events from the gateway.
// The gateway retries on non-2xx, so normalization failures after a
// valid signature are acknowledged and dropped.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get(signatureHeader)
	timestamp := r.Header.Get(timestampHeader)
	if !VerifySignature(h.webhookSecret, timestamp, body, signature) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	msg, err := h.adapter.Normalize(body)
	if err != nil {
		h.logger.Warn("sms: dropping unparseable webhook", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	w.WriteHeader(http.StatusOK)

	if h.dispatch != nil {
		h.dispatch(r.Context(), msg)
	}
}

// VerifySignature checks the HMAC-SHA256 signature over timestamp|body.
func VerifySignature(secret, timestamp string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("|"))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
