package intents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

const (
	maxAttempts        = 3
	defaultHTTPTimeout = 10 * time.Second
	baseRetryDelay     = 250 * time.Millisecond
	maxRetryDelay      = 2 * time.Second
)

// APICallResult records one attempt against an action endpoint.
type APICallResult struct {
	Endpoint   string `json:"endpoint"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	DurationMs int64  `json:"durationMs"`
}

// ExecutionResult is the outcome of running a resolved action.
type ExecutionResult struct {
	Success bool
	Message string
	Calls   []APICallResult
}

type actionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Executor performs action endpoint calls with bounded retries.
type Executor struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	sleep      func(time.Duration)
}

// NewExecutor creates an action executor. baseURL is prefixed to relative
// endpoint paths from the catalog.
func NewExecutor(baseURL string, timeout time.Duration, logger *logging.Logger) *Executor {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Executor{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		sleep:      time.Sleep,
	}
}

// Execute calls the action endpoint with the resolved parameters. Network
// errors and 5xx responses are retried up to 3 attempts total with a capped
// exponential delay; 4xx responses are terminal on first occurrence. Every
// attempt, including failed ones, is recorded in the returned call list.
//
// Exhausting retries yields a failure result, never an error: the caller
// routes failures to the fallback generator.
func (e *Executor) Execute(ctx context.Context, action *ResolvedAction) ExecutionResult {
	if action == nil || !action.HasEndpoint() {
		return ExecutionResult{Success: true, Message: action.StaticDescription}
	}

	url := action.APIEndpoint
	if strings.HasPrefix(url, "/") {
		url = e.baseURL + url
	}

	body, err := json.Marshal(action.Parameters)
	if err != nil {
		e.logger.Error("action executor: marshal parameters failed", "action", action.ActionName, "error", err)
		return ExecutionResult{Success: false}
	}

	var calls []APICallResult
	delay := baseRetryDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		call, resp := e.attempt(ctx, action, url, body)
		calls = append(calls, call)

		if call.Success {
			return ExecutionResult{Success: true, Message: resp.Message, Calls: calls}
		}

		// 4xx means the request itself was rejected; retrying cannot help.
		// Same for a 2xx whose body reports a business failure.
		if (call.StatusCode >= 400 && call.StatusCode < 500) ||
			(call.StatusCode >= 200 && call.StatusCode < 300) {
			e.logger.Warn("action executor: terminal failure",
				"action", action.ActionName, "status", call.StatusCode)
			return ExecutionResult{Success: false, Message: resp.Message, Calls: calls}
		}

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return ExecutionResult{Success: false, Calls: calls}
			default:
			}
			e.sleep(delay)
			delay *= 2
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
		}
	}

	e.logger.Warn("action executor: exhausted attempts",
		"action", action.ActionName, "attempts", len(calls))
	return ExecutionResult{Success: false, Calls: calls}
}

func (e *Executor) attempt(ctx context.Context, action *ResolvedAction, url string, body []byte) (APICallResult, actionResponse) {
	started := time.Now()
	call := APICallResult{Endpoint: action.APIEndpoint}

	method := action.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		call.DurationMs = time.Since(started).Milliseconds()
		return call, actionResponse{}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		call.DurationMs = time.Since(started).Milliseconds()
		e.logger.Debug("action executor: attempt failed", "action", action.ActionName, "error", err)
		return call, actionResponse{}
	}
	defer resp.Body.Close()

	call.StatusCode = resp.StatusCode
	call.DurationMs = time.Since(started).Milliseconds()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return call, actionResponse{}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return call, actionResponse{}
	}

	var parsed actionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		e.logger.Debug("action executor: unparseable response",
			"action", action.ActionName, "error", fmt.Sprintf("%v", err))
		return call, actionResponse{}
	}
	if !parsed.Success {
		return call, parsed
	}

	call.Success = true
	return call, parsed
}
