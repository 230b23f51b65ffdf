package botplatform

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wolfman30/bookline-ai-platform/internal/conversation"
)

func TestNormalize(t *testing.T) {
	a := NewAdapter(NewClient("tok"), "secret", nil)

	t.Run("text message", func(t *testing.T) {
		raw := []byte(`{"update_id":42,"message":{"message_id":7,"from":{"id":99,"is_bot":false,"first_name":"Ana"},"chat":{"id":99,"type":"private"},"date":1700000000,"text":"quiero reservar"}}`)
		msg, err := a.Normalize(raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg.Channel != conversation.ChannelBotPlatform {
			t.Errorf("unexpected channel: %s", msg.Channel)
		}
		if msg.ChannelUserID != "99" {
			t.Errorf("unexpected channel user: %s", msg.ChannelUserID)
		}
		if msg.Text != "quiero reservar" {
			t.Errorf("unexpected text: %s", msg.Text)
		}
	})

	t.Run("rejects bot-authored message", func(t *testing.T) {
		raw := []byte(`{"update_id":43,"message":{"message_id":8,"from":{"id":1,"is_bot":true},"chat":{"id":1},"date":1700000000,"text":"beep"}}`)
		if _, err := a.Normalize(raw); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("rejects textless update", func(t *testing.T) {
		raw := []byte(`{"update_id":44}`)
		if _, err := a.Normalize(raw); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestHandleWebhook(t *testing.T) {
	a := NewAdapter(NewClient("tok"), "secret", nil)
	update := []byte(`{"update_id":1,"message":{"message_id":1,"from":{"id":5,"is_bot":false},"chat":{"id":5,"type":"private"},"date":1700000000,"text":"hola"}}`)

	t.Run("dispatches authorized update", func(t *testing.T) {
		var got conversation.InboundMessage
		handler := a.HandleWebhook(func(_ context.Context, msg conversation.InboundMessage) {
			got = msg
		})

		req := httptest.NewRequest(http.MethodPost, "/webhooks/bot", bytes.NewReader(update))
		req.Header.Set(secretTokenHeader, "secret")
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if got.ChannelUserID != "5" || got.Text != "hola" {
			t.Errorf("unexpected message: %+v", got)
		}
	})

	t.Run("rejects wrong token", func(t *testing.T) {
		called := false
		handler := a.HandleWebhook(func(context.Context, conversation.InboundMessage) {
			called = true
		})

		req := httptest.NewRequest(http.MethodPost, "/webhooks/bot", bytes.NewReader(update))
		req.Header.Set(secretTokenHeader, "wrong")
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
		if called {
			t.Error("dispatch should not run without the secret token")
		}
	})

	t.Run("acknowledges and drops malformed update", func(t *testing.T) {
		handler := a.HandleWebhook(nil)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/bot", bytes.NewReader([]byte(`{"update_id":2}`)))
		req.Header.Set(secretTokenHeader, "secret")
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	})
}

func TestSendMessage(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/bottok/sendMessage" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			_, _ = w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		c := NewClient("tok")
		c.SetAPIBase(server.URL)
		if err := c.SendMessage(context.Background(), "5", "hola"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("API error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"bot was blocked by the user"}`))
		}))
		defer server.Close()

		c := NewClient("tok")
		c.SetAPIBase(server.URL)
		if err := c.SendMessage(context.Background(), "5", "hola"); err == nil {
			t.Fatal("expected error")
		}
	})
}
