package businesschat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendTextMessage(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var gotReq SendRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/me/messages" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if tok := r.URL.Query().Get("access_token"); tok != "test_token" {
				t.Errorf("unexpected token: %s", tok)
			}
			_ = json.NewDecoder(r.Body).Decode(&gotReq)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"recipient_id":"user_1","message_id":"m_1"}`))
		}))
		defer server.Close()

		c := NewClient("test_token")
		c.SetAPIBase(server.URL)

		resp, err := c.SendTextMessage(context.Background(), "user_1", "Tu cita está confirmada")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.MessageID != "m_1" {
			t.Errorf("unexpected message id: %s", resp.MessageID)
		}
		if gotReq.Recipient.ID != "user_1" || gotReq.Message.Text == "" {
			t.Errorf("unexpected request: %+v", gotReq)
		}
	})

	t.Run("API error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Invalid user","type":"OAuthException","code":100}}`))
		}))
		defer server.Close()

		c := NewClient("test_token")
		c.SetAPIBase(server.URL)

		if _, err := c.SendTextMessage(context.Background(), "user_x", "hola"); err == nil {
			t.Fatal("expected error")
		}
	})
}
