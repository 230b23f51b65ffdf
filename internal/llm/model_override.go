package llm

import "context"

// WithModel wraps a client so every request runs against model, regardless
// of what the caller asked for. Needed when a fallback provider names its
// models differently from the primary.
func WithModel(c Client, model string) Client {
	if model == "" {
		return c
	}
	return &pinnedModelClient{inner: c, model: model}
}

type pinnedModelClient struct {
	inner Client
	model string
}

func (p *pinnedModelClient) Complete(ctx context.Context, req Request) (Response, error) {
	req.Model = p.model
	return p.inner.Complete(ctx, req)
}
