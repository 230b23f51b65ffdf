package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 5 * time.Second

// ErrUnavailable indicates the NLU service could not be reached in time.
// Callers treat this as a distinct fallback branch, not a generic error.
var ErrUnavailable = errors.New("nlu: service unavailable")

// Entity is a named value extracted from text, with span offsets.
type Entity struct {
	Entity string `json:"entity"`
	Value  string `json:"value"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

// IntentScore is one entry of the ranked intent list.
type IntentScore struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// ParseResult is the understanding produced for a single message.
type ParseResult struct {
	Intent        string
	Confidence    float64
	Entities      []Entity
	IntentRanking []IntentScore
	ModelVersion  string
}

// EntityValue returns the value of the first entity with the given name, or "".
func (r *ParseResult) EntityValue(name string) string {
	for _, e := range r.Entities {
		if e.Entity == name {
			return e.Value
		}
	}
	return ""
}

type parseRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"sessionId"`
}

type parseResponse struct {
	Intent struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"intent"`
	Entities      []Entity      `json:"entities"`
	IntentRanking []IntentScore `json:"intent_ranking"`
}

// Client calls the external NLU service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an NLU client with a bounded per-call timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Resolve sends text to the NLU service and returns the detected intent,
// confidence, and entities. Timeouts and connection failures surface as
// ErrUnavailable; no retries are attempted here.
func (c *Client) Resolve(ctx context.Context, text, sessionID, modelVersion string) (*ParseResult, error) {
	body, err := json.Marshal(parseRequest{Text: text, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("nlu: marshal parse request: %w", err)
	}

	url := c.baseURL + "/model/parse"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("nlu: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if modelVersion != "" {
		httpReq.Header.Set("X-Model-Version", modelVersion)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nlu: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed parseResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("nlu: unmarshal response: %w", err)
	}

	return &ParseResult{
		Intent:        parsed.Intent.Name,
		Confidence:    parsed.Intent.Confidence,
		Entities:      parsed.Entities,
		IntentRanking: parsed.IntentRanking,
		ModelVersion:  modelVersion,
	}, nil
}
