package businesschat

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
	defaultAPIBase     = "https://chat-api.businesschat.example/v1"
	defaultHTTPTimeout = 10 * time.Second
)

// Client sends messages via the business chat platform's messages API.
type Client struct {
	accessToken string
	apiBase     string
	httpClient  *http.Client
}

// NewClient creates a platform API client.
func NewClient(accessToken string) *Client {
	return &Client{
		accessToken: accessToken,
		apiBase:     defaultAPIBase,
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetAPIBase overrides the API base URL (useful for testing).
func (c *Client) SetAPIBase(base string) {
	c.apiBase = base
}

// SendTextMessage sends a plain text message to the given user.
func (c *Client) SendTextMessage(ctx context.Context, recipientID, text string) (*SendResponse, error) {
	req := SendRequest{
		Recipient: Peer{ID: recipientID},
		Message:   SendMessage{Text: text},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("businesschat: marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/me/messages?access_token=%s", c.apiBase, c.accessToken)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("businesschat: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("businesschat: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("businesschat: read response: %w", err)
	}

	var sendResp SendResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil {
		return nil, fmt.Errorf("businesschat: unmarshal response: %w", err)
	}

	if sendResp.Error != nil {
		return &sendResp, fmt.Errorf("businesschat: API error %d: %s", sendResp.Error.Code, sendResp.Error.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return &sendResp, fmt.Errorf("businesschat: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return &sendResp, nil
}
