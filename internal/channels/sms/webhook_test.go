package sms

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wolfman30/bookline-ai-platform/internal/conversation"
)

func signBody(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("|"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "webhook_secret"
	timestamp := "1700000000"
	body := []byte(`{"event_type":"message.received"}`)
	validSig := signBody(secret, timestamp, body)

	tests := []struct {
		name      string
		secret    string
		timestamp string
		body      []byte
		signature string
		want      bool
	}{
		{"valid signature", secret, timestamp, body, validSig, true},
		{"wrong signature", secret, timestamp, body, "0000", false},
		{"empty signature", secret, timestamp, body, "", false},
		{"empty secret", "", timestamp, body, validSig, false},
		{"tampered body", secret, timestamp, []byte(`tampered`), validSig, false},
		{"tampered timestamp", secret, "1700000001", body, validSig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifySignature(tt.secret, tt.timestamp, tt.body, tt.signature)
			if got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleInbound(t *testing.T) {
	secret := "webhook_secret"
	adapter := NewAdapter(NewClient("key", "+34600000000"), nil)

	newRequest := func(body []byte, sign bool) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/sms", bytes.NewReader(body))
		if sign {
			ts := "1700000000"
			req.Header.Set(timestampHeader, ts)
			req.Header.Set(signatureHeader, signBody(secret, ts, body))
		}
		return req
	}

	t.Run("dispatches verified message", func(t *testing.T) {
		var got conversation.InboundMessage
		h := NewWebhookHandler(adapter, secret, func(_ context.Context, msg conversation.InboundMessage) {
			got = msg
		}, nil)

		body := []byte(`{"event_type":"message.received","payload":{"message_id":"m1","from":"+34611222333","to":"+34600000000","text":"quiero una cita","received_at":"2026-08-30T10:00:00Z"}}`)
		w := httptest.NewRecorder()
		h.HandleInbound(w, newRequest(body, true))

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if got.Channel != conversation.ChannelSMSGateway {
			t.Errorf("expected sms-gateway channel, got %s", got.Channel)
		}
		if got.ChannelUserID != "+34611222333" {
			t.Errorf("unexpected channel user: %s", got.ChannelUserID)
		}
		if got.Text != "quiero una cita" {
			t.Errorf("unexpected text: %s", got.Text)
		}
	})

	t.Run("rejects missing signature", func(t *testing.T) {
		called := false
		h := NewWebhookHandler(adapter, secret, func(context.Context, conversation.InboundMessage) {
			called = true
		}, nil)

		w := httptest.NewRecorder()
		h.HandleInbound(w, newRequest([]byte(`{}`), false))

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
		if called {
			t.Error("dispatch should not run for unsigned requests")
		}
	})

	t.Run("acknowledges and drops unparseable payload", func(t *testing.T) {
		called := false
		h := NewWebhookHandler(adapter, secret, func(context.Context, conversation.InboundMessage) {
			called = true
		}, nil)

		w := httptest.NewRecorder()
		h.HandleInbound(w, newRequest([]byte(`{"event_type":"message.sent"}`), true))

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if called {
			t.Error("dispatch should not run for unsupported events")
		}
	})
}
