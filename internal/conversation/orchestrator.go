package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/bookline-ai-platform/internal/fallback"
	"github.com/wolfman30/bookline-ai-platform/internal/intents"
	"github.com/wolfman30/bookline-ai-platform/internal/llm"
	"github.com/wolfman30/bookline-ai-platform/internal/nlu"
	"github.com/wolfman30/bookline-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

var ErrEmptyMessage = errors.New("conversation: empty message text")

// NLUClient resolves raw text into an intent classification.
type NLUClient interface {
	Resolve(ctx context.Context, text, sessionID, modelVersion string) (*nlu.ParseResult, error)
}

// ActionResolver maps a classification onto the action catalog.
type ActionResolver interface {
	Resolve(intent string, confidence float64, entities []nlu.Entity) (*intents.ResolvedAction, *intents.NeedsClarification, *intents.NoMapping)
}

// ActionExecutor runs a resolved action against the business API.
type ActionExecutor interface {
	Execute(ctx context.Context, action *intents.ResolvedAction) intents.ExecutionResult
}

// FallbackGenerator produces a conversational reply when no action applies.
// Implementations must not fail; they degrade to a fixed apology.
type FallbackGenerator interface {
	Generate(ctx context.Context, in fallback.Input) string
}

// ModelSelector picks the NLU model version serving a session.
type ModelSelector interface {
	ActiveModelVersion(ctx context.Context, sessionID string) string
}

// TurnLogger enqueues a completed turn for asynchronous persistence.
type TurnLogger interface {
	Enqueue(ctx context.Context, turn Turn) error
}

// Sender delivers a reply through a channel's provider API.
type Sender interface {
	Send(ctx context.Context, channelUserID, text string) error
}

// ContextStorage is the session state dependency of the orchestrator.
type ContextStorage interface {
	Load(ctx context.Context, sessionID string) (*Context, error)
	Save(ctx context.Context, c *Context) error
}

// Result is what a single processed turn produced.
type Result struct {
	Turn  Turn
	Reply OutboundReply
	State State
}

// Config tunes orchestrator behavior.
type Config struct {
	HistoryLimit    int
	DefaultLanguage string
}

// Orchestrator drives a message through classification, action execution
// or fallback generation, context upkeep, logging, and delivery. Turns
// within one session are serialized; sessions run concurrently.
type Orchestrator struct {
	nluClient NLUClient
	resolver  ActionResolver
	executor  ActionExecutor
	generator FallbackGenerator
	selector  ModelSelector
	contexts  ContextStorage
	turnLog   TurnLogger
	senders   map[Channel]Sender
	locks     *sessionLocks
	metrics   *metrics.PipelineMetrics
	logger    *logging.Logger

	historyLimit    int
	defaultLanguage string
	now             func() time.Time
}

func NewOrchestrator(
	nluClient NLUClient,
	resolver ActionResolver,
	executor ActionExecutor,
	generator FallbackGenerator,
	selector ModelSelector,
	contexts ContextStorage,
	turnLog TurnLogger,
	senders map[Channel]Sender,
	m *metrics.PipelineMetrics,
	logger *logging.Logger,
	cfg Config,
) *Orchestrator {
	if nluClient == nil {
		panic("conversation: nlu client is required")
	}
	if resolver == nil {
		panic("conversation: action resolver is required")
	}
	if executor == nil {
		panic("conversation: action executor is required")
	}
	if generator == nil {
		panic("conversation: fallback generator is required")
	}
	if contexts == nil {
		panic("conversation: context storage is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "es"
	}
	return &Orchestrator{
		nluClient:       nluClient,
		resolver:        resolver,
		executor:        executor,
		generator:       generator,
		selector:        selector,
		contexts:        contexts,
		turnLog:         turnLog,
		senders:         senders,
		locks:           newSessionLocks(),
		metrics:         m,
		logger:          logger,
		historyLimit:    cfg.HistoryLimit,
		defaultLanguage: cfg.DefaultLanguage,
		now:             time.Now,
	}
}

// ProcessMessage runs one inbound message through the full pipeline and
// returns the produced turn. A non-nil error means the message could not
// be processed at all; degraded turns (fallback replies, delivery
// failures) return a Result describing what happened.
func (o *Orchestrator) ProcessMessage(ctx context.Context, msg InboundMessage) (*Result, error) {
	if strings.TrimSpace(msg.Text) == "" {
		return nil, ErrEmptyMessage
	}
	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = SessionID(msg.Channel, msg.ChannelUserID)
	}

	o.locks.Lock(sessionID)
	defer o.locks.Unlock(sessionID)

	start := o.now()

	convCtx, err := o.contexts.Load(ctx, sessionID)
	if err != nil {
		o.logger.Warn("context load failed, starting fresh", "session_id", sessionID, "error", err)
	}
	if convCtx == nil {
		convCtx = &Context{
			SessionID:     sessionID,
			ChannelUserID: msg.ChannelUserID,
			Language:      o.defaultLanguage,
		}
	}
	if convCtx.Language == "" {
		convCtx.Language = o.defaultLanguage
	}

	modelVersion := ""
	if o.selector != nil {
		modelVersion = o.selector.ActiveModelVersion(ctx, sessionID)
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = start.UTC()
	}
	turn := Turn{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		ChannelUserID: msg.ChannelUserID,
		Channel:       msg.Channel,
		UserMessage:   msg.Text,
		Timestamp:     ts,
		ModelVersion:  modelVersion,
	}

	state := o.respond(ctx, msg, convCtx, &turn)

	convCtx.AppendHistory(HistoryEntry{Role: llm.ChatRoleUser, Content: msg.Text, Timestamp: ts}, o.historyLimit)
	convCtx.AppendHistory(HistoryEntry{Role: llm.ChatRoleAssistant, Content: turn.BotResponse, Timestamp: o.now().UTC()}, o.historyLimit)
	if err := o.contexts.Save(ctx, convCtx); err != nil {
		o.logger.Warn("context save failed", "session_id", sessionID, "error", err)
	}

	turn.ProcessingTimeMs = o.now().Sub(start).Milliseconds()

	reply := OutboundReply{
		Channel:       msg.Channel,
		ChannelUserID: msg.ChannelUserID,
		SessionID:     sessionID,
		Text:          turn.BotResponse,
	}

	status := "ok"
	if sender, ok := o.senders[msg.Channel]; ok && sender != nil {
		if err := sender.Send(ctx, msg.ChannelUserID, turn.BotResponse); err != nil {
			status = "send_error"
			state = StateSentWithError
			o.logger.Error("reply delivery failed",
				"turn_id", turn.ID, "channel", msg.Channel, "error", err)
		} else {
			state = StateSent
		}
	}

	// Log handoff comes after delivery so a slow or saturated queue can
	// never hold up the reply.
	if o.turnLog != nil {
		if err := o.turnLog.Enqueue(ctx, turn); err != nil {
			o.logger.Error("turn log enqueue failed", "turn_id", turn.ID, "error", err)
			o.metrics.ObserveLogWriteFailure()
		} else if state != StateSentWithError {
			state = StateLogged
		}
	}

	o.metrics.ObserveTurn(string(msg.Channel), string(turn.ResponseGen), status)
	o.metrics.ObserveTurnLatency(string(msg.Channel), o.now().Sub(start).Seconds())
	o.logger.Info("turn processed",
		"turn_id", turn.ID,
		"session_id", sessionID,
		"channel", msg.Channel,
		"intent", turn.DetectedIntent,
		"generator", turn.ResponseGen,
		"success", turn.Success,
		"processing_ms", turn.ProcessingTimeMs,
	)

	return &Result{Turn: turn, Reply: reply, State: state}, nil
}

// respond fills the classification and response fields of the turn and
// returns the state the pipeline reached while doing so.
func (o *Orchestrator) respond(ctx context.Context, msg InboundMessage, convCtx *Context, turn *Turn) State {
	nluStart := o.now()
	parse, err := o.nluClient.Resolve(ctx, msg.Text, turn.SessionID, turn.ModelVersion)
	nluStatus := "ok"
	if err != nil {
		nluStatus = "error"
	}
	o.metrics.ObserveNLULatency(nluStatus, o.now().Sub(nluStart).Seconds())

	if err != nil {
		o.logger.Warn("nlu resolve failed", "session_id", turn.SessionID, "error", err)
		o.fallbackReply(ctx, msg, convCtx, turn, fallback.Input{Reason: ReasonNLUUnavailable})
		turn.Success = false
		turn.Error = fmt.Sprintf("nlu unavailable: %v", err)
		return StateFallbackGenerated
	}

	turn.DetectedIntent = parse.Intent
	confidence := parse.Confidence
	turn.Confidence = &confidence
	turn.Entities = parse.Entities
	if parse.ModelVersion != "" {
		turn.ModelVersion = parse.ModelVersion
	}
	convCtx.LastIntent = parse.Intent
	if len(parse.Entities) > 0 {
		convCtx.LastEntities = parse.Entities
	}

	action, clarify, noMapping := o.resolver.Resolve(parse.Intent, parse.Confidence, parse.Entities)
	switch {
	case action != nil:
		if !action.HasEndpoint() {
			turn.ResponseGen = GeneratorStaticTemplate
			turn.BotResponse = action.StaticDescription
			turn.Success = true
			return StateResponseReady
		}

		result := o.executor.Execute(ctx, action)
		turn.APICallResults = result.Calls
		o.observeActionAttempts(action.ActionName, result.Calls)
		if result.Success {
			turn.ResponseGen = GeneratorActionResult
			turn.BotResponse = result.Message
			turn.BookingStep = bookingStepFor(action.ActionName)
			turn.Success = true
			return StateActionSucceeded
		}

		o.fallbackReply(ctx, msg, convCtx, turn, fallback.Input{Reason: ReasonActionFailed})
		if bookingStepFor(action.ActionName) != "" {
			turn.BookingStep = BookingStepActionFailed
		}
		turn.Success = false
		turn.Error = "action execution failed"
		if result.Message != "" {
			turn.Error = fmt.Sprintf("action execution failed: %s", result.Message)
		}
		return StateActionFailed

	case clarify != nil:
		o.fallbackReply(ctx, msg, convCtx, turn, fallback.Input{
			Reason:          ReasonNeedsClarification,
			IntentHint:      clarify.Intent,
			MissingEntities: clarify.MissingEntities,
		})
		turn.Success = true
		return StateFallbackGenerated

	default:
		in := fallback.Input{Reason: noMapping.Reason}
		if noMapping.Reason == intents.ReasonLowConfidence && parse.Intent != "" {
			in.IntentHint = parse.Intent
			in.EntityHints = entityHints(parse.Entities)
		}
		o.fallbackReply(ctx, msg, convCtx, turn, in)
		turn.Success = true
		return StateFallbackGenerated
	}
}

func (o *Orchestrator) fallbackReply(ctx context.Context, msg InboundMessage, convCtx *Context, turn *Turn, in fallback.Input) {
	in.SessionID = turn.SessionID
	in.Language = convCtx.Language
	in.UserMessage = msg.Text
	in.History = chatHistory(convCtx.History)

	turn.ResponseGen = GeneratorFallbackLLM
	turn.FallbackReason = in.Reason
	turn.BotResponse = o.generator.Generate(ctx, in)
	o.metrics.ObserveFallback(in.Reason)
}

func (o *Orchestrator) observeActionAttempts(actionName string, calls []intents.APICallResult) {
	for _, call := range calls {
		status := "error"
		if call.Success {
			status = "ok"
		}
		o.metrics.ObserveActionAttempt(actionName, status)
	}
}

func chatHistory(history []HistoryEntry) []llm.ChatMessage {
	if len(history) == 0 {
		return nil
	}
	out := make([]llm.ChatMessage, 0, len(history))
	for _, h := range history {
		out = append(out, llm.ChatMessage{Role: h.Role, Content: h.Content})
	}
	return out
}

func entityHints(entities []nlu.Entity) map[string]string {
	if len(entities) == 0 {
		return nil
	}
	hints := make(map[string]string, len(entities))
	for _, e := range entities {
		if e.Value != "" {
			hints[e.Entity] = e.Value
		}
	}
	return hints
}

// bookingStepFor tags turns whose action moved the booking funnel. The
// names match the shipped action catalog in config/intent_mappings.json.
func bookingStepFor(actionName string) string {
	switch actionName {
	case "book_appointment":
		return BookingStepComplete
	case "cancel_appointment":
		return BookingStepCancelled
	case "list_packages", "get_pricing":
		return BookingStepSelectingPackage
	case "check_availability":
		return BookingStepSelectingTime
	default:
		return ""
	}
}
