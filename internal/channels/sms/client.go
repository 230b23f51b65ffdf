package sms

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
	defaultAPIBase     = "https://api.smsgateway.example/v2"
	defaultHTTPTimeout = 10 * time.Second
)

// Client sends messages through the SMS gateway's REST API.
type Client struct {
	apiKey     string
	fromNumber string
	apiBase    string
	httpClient *http.Client
}

// NewClient creates a gateway API client. fromNumber is the provisioned
// sending number in E.164 format.
func NewClient(apiKey, fromNumber string) *Client {
	return &Client{
		apiKey:     apiKey,
		fromNumber: fromNumber,
		apiBase:    defaultAPIBase,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetAPIBase overrides the gateway base URL (useful for testing).
func (c *Client) SetAPIBase(base string) {
	c.apiBase = base
}

// SendText sends a plain text message to the given phone number.
func (c *Client) SendText(ctx context.Context, to, text string) (*SendResponse, error) {
	body, err := json.Marshal(SendRequest{From: c.fromNumber, To: to, Text: text})
	if err != nil {
		return nil, fmt.Errorf("sms: marshal send request: %w", err)
	}

	url := c.apiBase + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("sms: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sms: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sms: read response: %w", err)
	}

	var sendResp SendResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil {
		return nil, fmt.Errorf("sms: unmarshal response: %w", err)
	}

	if len(sendResp.Errors) > 0 {
		e := sendResp.Errors[0]
		return &sendResp, fmt.Errorf("sms: API error %s: %s", e.Code, e.Title)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return &sendResp, fmt.Errorf("sms: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return &sendResp, nil
}
