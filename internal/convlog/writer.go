package convlog

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/wolfman30/bookline-ai-platform/internal/conversation"
	"github.com/wolfman30/bookline-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

const (
	receiveBatchSize   = 10
	receiveWaitSeconds = 5
	insertAttempts     = 3
	insertRetryDelay   = 500 * time.Millisecond
	receiveBackoffMax  = 30 * time.Second
)

type turnInserter interface {
	Insert(ctx context.Context, turn conversation.Turn) error
}

// Writer drains the turn queue into Postgres. Inserts are retried a few
// times; a turn that still cannot be written is dropped and counted, it
// never wedges the queue.
type Writer struct {
	queue   queueClient
	store   turnInserter
	metrics *metrics.PipelineMetrics
	logger  *logging.Logger
	workers int
	sleep   func(time.Duration)
}

func NewWriter(queue queueClient, store turnInserter, m *metrics.PipelineMetrics, logger *logging.Logger, workers int) *Writer {
	if queue == nil {
		panic("convlog: queue cannot be nil")
	}
	if store == nil {
		panic("convlog: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if workers <= 0 {
		workers = 2
	}
	return &Writer{
		queue:   queue,
		store:   store,
		metrics: m,
		logger:  logger,
		workers: workers,
		sleep:   sleepWithContext,
	}
}

// Run polls until ctx is canceled. It blocks; callers start it in a
// goroutine and cancel ctx on shutdown.
func (w *Writer) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			w.poll(ctx, worker)
		}(i)
	}
	wg.Wait()
}

func (w *Writer) poll(ctx context.Context, worker int) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		messages, err := w.queue.Receive(ctx, receiveBatchSize, receiveWaitSeconds)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("turn queue receive failed", "worker", worker, "error", err)
			w.sleepCtx(ctx, backoff)
			backoff *= 2
			if backoff > receiveBackoffMax {
				backoff = receiveBackoffMax
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handle(ctx, msg)
		}
	}
}

func (w *Writer) handle(ctx context.Context, msg queueMessage) {
	var turn conversation.Turn
	if err := json.Unmarshal([]byte(msg.Body), &turn); err != nil {
		w.logger.Error("dropping undecodable turn message", "message_id", msg.ID, "error", err)
		w.metrics.ObserveLogDropped()
		w.delete(ctx, msg)
		return
	}

	var lastErr error
	for attempt := 1; attempt <= insertAttempts; attempt++ {
		lastErr = w.store.Insert(ctx, turn)
		if lastErr == nil {
			w.delete(ctx, msg)
			return
		}
		w.metrics.ObserveLogWriteFailure()
		if attempt < insertAttempts {
			w.sleepCtx(ctx, insertRetryDelay*time.Duration(attempt))
		}
	}

	w.logger.Error("dropping turn after failed inserts",
		"turn_id", turn.ID, "attempts", insertAttempts, "error", lastErr)
	w.metrics.ObserveLogDropped()
	w.delete(ctx, msg)
}

func (w *Writer) delete(ctx context.Context, msg queueMessage) {
	if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		w.logger.Warn("turn queue delete failed", "message_id", msg.ID, "error", err)
	}
}

func (w *Writer) sleepCtx(ctx context.Context, d time.Duration) {
	if w.sleep != nil {
		w.sleep(d)
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func sleepWithContext(d time.Duration) {
	time.Sleep(d)
}
