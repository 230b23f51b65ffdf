package convlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wolfman30/bookline-ai-platform/internal/conversation"
)

// Publisher enqueues finished turns for the background writer. It is the
// orchestrator's TurnLogger; failures here never block reply delivery.
type Publisher struct {
	queue queueClient
}

func NewPublisher(queue queueClient) *Publisher {
	if queue == nil {
		panic("convlog: queue cannot be nil")
	}
	return &Publisher{queue: queue}
}

func (p *Publisher) Enqueue(ctx context.Context, turn conversation.Turn) error {
	body, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("convlog: encode turn: %w", err)
	}
	if err := p.queue.Send(ctx, string(body)); err != nil {
		return fmt.Errorf("convlog: enqueue turn: %w", err)
	}
	return nil
}
