package training

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/bookline-ai-platform/internal/convlog"
	"github.com/wolfman30/bookline-ai-platform/internal/nlu"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

type parseClient interface {
	Resolve(ctx context.Context, text, sessionID, modelVersion string) (*nlu.ParseResult, error)
}

type sessionMetricsSource interface {
	SessionAggregates(ctx context.Context, since time.Time) (*convlog.SessionAggregates, error)
}

// Evaluation is the outcome of measuring one candidate model: intent
// accuracy over the holdout plus the booking funnel metrics observed in
// production since the previous training run.
type Evaluation struct {
	Accuracy             float64
	BookingSuccessRate   float64
	AvgConversationTurns float64
}

// Evaluator measures a freshly trained model against a holdout set by
// replaying each utterance through the candidate version and comparing
// the predicted intent with the label. The booking funnel metrics come
// from the conversation log.
type Evaluator struct {
	nluClient parseClient
	sessions  sessionMetricsSource
	logger    *logging.Logger
}

// NewEvaluator builds an evaluator. sessions may be nil, in which case
// the funnel metrics stay zero.
func NewEvaluator(client parseClient, sessions sessionMetricsSource, logger *logging.Logger) *Evaluator {
	if client == nil {
		panic("training: nlu client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Evaluator{nluClient: client, sessions: sessions, logger: logger}
}

// Evaluate returns intent accuracy over the holdout in [0, 1] together
// with the funnel metrics since the given time. Parse errors count as
// misses rather than aborting the run; an unreachable NLU service still
// fails because every example misses.
func (e *Evaluator) Evaluate(ctx context.Context, modelVersion string, holdout []Example, since time.Time) (*Evaluation, error) {
	if len(holdout) == 0 {
		return nil, fmt.Errorf("training: empty holdout set")
	}

	correct := 0
	for i, ex := range holdout {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		parsed, err := e.nluClient.Resolve(ctx, ex.Text, fmt.Sprintf("eval-%d", i), modelVersion)
		if err != nil {
			e.logger.Warn("holdout parse failed", "model_version", modelVersion, "error", err)
			continue
		}
		if parsed.Intent == ex.Intent {
			correct++
		}
	}

	eval := &Evaluation{Accuracy: float64(correct) / float64(len(holdout))}
	e.fillFunnelMetrics(ctx, since, eval)

	e.logger.Info("model evaluated",
		"model_version", modelVersion,
		"holdout", len(holdout),
		"correct", correct,
		"accuracy", eval.Accuracy,
		"booking_success_rate", eval.BookingSuccessRate,
		"avg_conversation_turns", eval.AvgConversationTurns,
	)
	return eval, nil
}

// fillFunnelMetrics loads booking outcomes from the conversation log.
// Failures degrade to zero metrics; accuracy alone still decides the
// quality gate.
func (e *Evaluator) fillFunnelMetrics(ctx context.Context, since time.Time, eval *Evaluation) {
	if e.sessions == nil {
		return
	}
	agg, err := e.sessions.SessionAggregates(ctx, since)
	if err != nil {
		e.logger.Warn("session aggregates failed", "error", err)
		return
	}
	eval.AvgConversationTurns = agg.AvgTurnsPerSession
	if agg.BookingsStarted > 0 {
		eval.BookingSuccessRate = float64(agg.BookingsCompleted) / float64(agg.BookingsStarted)
	}
}

// SplitHoldout carves a holdout slice off the mined examples. The split
// is positional over the already-deterministic ordering, never random,
// so repeated runs on the same data evaluate the same way.
func SplitHoldout(examples []Example, fraction float64) (train, holdout []Example) {
	if fraction <= 0 || fraction >= 1 || len(examples) < 2 {
		return examples, nil
	}
	n := int(float64(len(examples)) * fraction)
	if n < 1 {
		n = 1
	}
	cut := len(examples) - n
	return examples[:cut], examples[cut:]
}
