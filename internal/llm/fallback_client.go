package llm

import (
	"context"
	"errors"
	"log/slog"
)

// FallbackClient runs requests against a primary provider and rotates to a
// standby when the primary errors. A canceled context stops the rotation;
// the caller has already given up on the reply.
type FallbackClient struct {
	providers []Client
	logger    *slog.Logger
}

// NewFallbackClient pairs a primary client with an optional standby. A nil
// standby leaves only the primary in the rotation.
func NewFallbackClient(primary, fallback Client, logger *slog.Logger) *FallbackClient {
	if primary == nil {
		panic("llm: fallback client needs a primary provider")
	}
	if logger == nil {
		logger = slog.Default()
	}
	providers := []Client{primary}
	if fallback != nil {
		providers = append(providers, fallback)
	}
	return &FallbackClient{providers: providers, logger: logger}
}

// Complete walks the rotation in order and returns the first successful
// response. When every provider fails the errors are joined so the caller
// sees the whole failure chain, not just the last attempt.
func (c *FallbackClient) Complete(ctx context.Context, req Request) (Response, error) {
	var failures []error
	for i, provider := range c.providers {
		resp, err := provider.Complete(ctx, req)
		if err == nil {
			if i > 0 {
				c.logger.Info("standby llm answered after primary failure")
			}
			return resp, nil
		}
		failures = append(failures, err)
		if ctx.Err() != nil {
			break
		}
		if i+1 < len(c.providers) {
			c.logger.Warn("llm provider failed, rotating to standby",
				"attempt", i+1,
				"error", err.Error(),
			)
		}
	}
	c.logger.Error("no llm provider produced a completion", "attempts", len(failures))
	return Response{}, errors.Join(failures...)
}
