package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultContextTTL = 30 * time.Minute

// ContextStore keeps short-lived per-session conversation state in Redis.
// Missing sessions are not an error; Load returns nil and the orchestrator
// starts a fresh context.
type ContextStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewContextStore(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *ContextStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultContextTTL
	}
	if tracer == nil {
		tracer = otel.Tracer("bookline.internal.conversation.context")
	}
	return &ContextStore{
		redis:  client,
		ttl:    ttl,
		tracer: tracer,
	}
}

func (s *ContextStore) Load(ctx context.Context, sessionID string) (*Context, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_context")
	defer span.End()

	data, err := s.redis.Get(ctx, contextKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load context: %w", err)
	}

	var c Context
	if err := json.Unmarshal(data, &c); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode context: %w", err)
	}
	return &c, nil
}

// Save persists the context and resets its TTL, so the session window
// slides forward on every turn.
func (s *ContextStore) Save(ctx context.Context, c *Context) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_context")
	defer span.End()

	c.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(c)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal context: %w", err)
	}
	if err := s.redis.Set(ctx, contextKey(c.SessionID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist context: %w", err)
	}
	return nil
}

func (s *ContextStore) Delete(ctx context.Context, sessionID string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.delete_context")
	defer span.End()

	if err := s.redis.Del(ctx, contextKey(sessionID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to delete context: %w", err)
	}
	return nil
}

func contextKey(sessionID string) string {
	return fmt.Sprintf("context:%s", sessionID)
}
