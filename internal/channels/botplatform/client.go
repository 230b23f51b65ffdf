package botplatform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultAPIBase     = "https://api.botplatform.example"
	defaultHTTPTimeout = 10 * time.Second
)

// Client calls the bot platform's HTTP API.
type Client struct {
	botToken   string
	apiBase    string
	httpClient *http.Client
}

// NewClient creates a bot API client.
func NewClient(botToken string) *Client {
	return &Client{
		botToken:   botToken,
		apiBase:    defaultAPIBase,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetAPIBase overrides the API base URL (useful for testing).
func (c *Client) SetAPIBase(base string) {
	c.apiBase = base
}

// SendMessage sends a text message to the given chat.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(SendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("botplatform: marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.botToken)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("botplatform: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("botplatform: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("botplatform: read response: %w", err)
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return fmt.Errorf("botplatform: unmarshal response: %w", err)
	}

	if !apiResp.OK {
		return fmt.Errorf("botplatform: API error %d: %s", apiResp.ErrorCode, apiResp.Description)
	}
	return nil
}
