package training

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/bookline-ai-platform/internal/conversation"
	"github.com/wolfman30/bookline-ai-platform/internal/convlog"
	"github.com/wolfman30/bookline-ai-platform/internal/feedback"
	"github.com/wolfman30/bookline-ai-platform/internal/nlu"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

const (
	SourceHighConfidence   = "high-confidence"
	SourcePositiveFeedback = "positive-feedback"

	// Turns below this confidence never become automatic examples even
	// when the action succeeded.
	minAutoConfidence = 0.9

	minePageSize = 500
)

// Example is one labeled utterance destined for the training corpus.
type Example struct {
	ID        string       `json:"id"`
	Text      string       `json:"text"`
	Intent    string       `json:"intent"`
	Entities  []nlu.Entity `json:"entities,omitempty"`
	Source    string       `json:"source"`
	TurnID    string       `json:"turnId"`
	CreatedAt time.Time    `json:"createdAt"`
}

// FallbackCandidate is an utterance the model could not serve. It is
// unlabeled and never enters the corpus automatically; it surfaces
// alongside the curation queue so new intents can be discovered and
// labeled by hand.
type FallbackCandidate struct {
	TurnID         string   `json:"turnId"`
	Text           string   `json:"text"`
	FallbackReason string   `json:"fallbackReason,omitempty"`
	IntentGuess    string   `json:"intentGuess,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty"`
}

// Options tune one mining pass.
type Options struct {
	// MinConfidence is the floor for automatic examples. Zero or
	// negative keeps the default of 0.9.
	MinConfidence float64
	// IncludeNegativeFeedback loads the unreviewed negative feedback
	// into the curation queue.
	IncludeNegativeFeedback bool
	// IncludeFallbackCases collects turns answered by the fallback LLM
	// as unlabeled candidates.
	IncludeFallbackCases bool
	// Limit caps the number of mined examples. Zero means unlimited.
	Limit int
}

// MiningResult is what one pass over the turn log produced.
type MiningResult struct {
	Examples []Example
	// Positive feedback consumed while mining; marked reviewed once the
	// retraining run completes.
	ConsumedFeedbackIDs []string
	// Negative feedback left for human curation. Never enters the corpus
	// automatically.
	CurationQueue []feedback.Feedback
	// Utterances the model failed to serve, deduplicated by text.
	FallbackCandidates []FallbackCandidate
	TurnsScanned       int
}

type turnLister interface {
	List(ctx context.Context, f convlog.Filter) ([]conversation.Turn, error)
}

type feedbackReader interface {
	ListByTurnIDs(ctx context.Context, turnIDs []string) ([]feedback.Feedback, error)
	ListNegativeUnreviewed(ctx context.Context, limit int) ([]feedback.Feedback, error)
}

// Miner extracts training examples from logged turns and user feedback.
//
// A turn becomes an example when the model's classification was confirmed
// in practice: either the resolved action ran to success with high
// confidence, or a user explicitly rated the turn positive. Turns with
// negative feedback are excluded outright and surface in the curation
// queue instead. Turns answered by the fallback LLM can optionally be
// collected as unlabeled candidates for intent discovery.
type Miner struct {
	turns    turnLister
	feedback feedbackReader
	logger   *logging.Logger
}

func NewMiner(turns turnLister, fb feedbackReader, logger *logging.Logger) *Miner {
	if turns == nil {
		panic("training: turn lister cannot be nil")
	}
	if fb == nil {
		panic("training: feedback reader cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Miner{turns: turns, feedback: fb, logger: logger}
}

// Mine scans turns since the given time and deduplicates by normalized
// text and intent, so repeated "hola" messages yield one example.
func (m *Miner) Mine(ctx context.Context, since time.Time, opts Options) (*MiningResult, error) {
	minConfidence := opts.MinConfidence
	if minConfidence <= 0 {
		minConfidence = minAutoConfidence
	}

	result := &MiningResult{}
	seen := make(map[string]struct{})

	offset := 0
	for {
		turns, err := m.turns.List(ctx, convlog.Filter{
			Since:  since,
			Limit:  minePageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, fmt.Errorf("training: list turns: %w", err)
		}
		if len(turns) == 0 {
			break
		}
		result.TurnsScanned += len(turns)

		verdicts, err := m.feedbackVerdicts(ctx, turns)
		if err != nil {
			return nil, err
		}

		for _, turn := range turns {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			m.mineTurn(turn, verdicts, seen, result, opts, minConfidence)
		}

		if opts.Limit > 0 && len(result.Examples) >= opts.Limit && !opts.IncludeFallbackCases {
			break
		}
		if len(turns) < minePageSize {
			break
		}
		offset += minePageSize
	}

	if opts.IncludeNegativeFeedback {
		curation, err := m.feedback.ListNegativeUnreviewed(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("training: list curation queue: %w", err)
		}
		result.CurationQueue = curation
	}

	m.logger.Info("mining pass finished",
		"turns_scanned", result.TurnsScanned,
		"examples", len(result.Examples),
		"curation_queue", len(result.CurationQueue),
		"fallback_candidates", len(result.FallbackCandidates),
	)
	return result, nil
}

func (m *Miner) feedbackVerdicts(ctx context.Context, turns []conversation.Turn) (map[string]feedback.Feedback, error) {
	ids := make([]string, 0, len(turns))
	for _, turn := range turns {
		ids = append(ids, turn.ID)
	}
	rows, err := m.feedback.ListByTurnIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("training: load feedback: %w", err)
	}
	verdicts := make(map[string]feedback.Feedback, len(rows))
	for _, fb := range rows {
		verdicts[fb.TurnID] = fb
	}
	return verdicts, nil
}

func (m *Miner) mineTurn(turn conversation.Turn, verdicts map[string]feedback.Feedback, seen map[string]struct{}, result *MiningResult, opts Options, minConfidence float64) {
	fb, hasFeedback := verdicts[turn.ID]
	if hasFeedback && fb.Rating == feedback.RatingNegative {
		return
	}
	positive := hasFeedback && fb.Rating == feedback.RatingPositive

	// Fallback turns without a positive verdict carry no trusted label.
	if turn.ResponseGen == conversation.GeneratorFallbackLLM && !positive {
		if opts.IncludeFallbackCases {
			m.addFallbackCandidate(turn, seen, result)
		}
		return
	}

	if turn.DetectedIntent == "" || turn.Confidence == nil {
		return
	}

	source := ""
	switch {
	case positive:
		source = SourcePositiveFeedback
	case turn.Success && *turn.Confidence >= minConfidence && actionConfirmed(turn.ResponseGen):
		source = SourceHighConfidence
	default:
		return
	}

	if opts.Limit > 0 && len(result.Examples) >= opts.Limit {
		return
	}

	key := normalizeText(turn.UserMessage) + "\x00" + turn.DetectedIntent
	if _, dup := seen[key]; dup {
		return
	}
	seen[key] = struct{}{}

	result.Examples = append(result.Examples, Example{
		ID:        uuid.NewString(),
		Text:      turn.UserMessage,
		Intent:    turn.DetectedIntent,
		Entities:  turn.Entities,
		Source:    source,
		TurnID:    turn.ID,
		CreatedAt: time.Now().UTC(),
	})
	if source == SourcePositiveFeedback {
		result.ConsumedFeedbackIDs = append(result.ConsumedFeedbackIDs, fb.ID)
	}
}

func (m *Miner) addFallbackCandidate(turn conversation.Turn, seen map[string]struct{}, result *MiningResult) {
	key := "\x00fallback\x00" + normalizeText(turn.UserMessage)
	if _, dup := seen[key]; dup {
		return
	}
	seen[key] = struct{}{}

	result.FallbackCandidates = append(result.FallbackCandidates, FallbackCandidate{
		TurnID:         turn.ID,
		Text:           turn.UserMessage,
		FallbackReason: turn.FallbackReason,
		IntentGuess:    turn.DetectedIntent,
		Confidence:     turn.Confidence,
	})
}

func actionConfirmed(gen conversation.ResponseGenerator) bool {
	return gen == conversation.GeneratorActionResult || gen == conversation.GeneratorStaticTemplate
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
