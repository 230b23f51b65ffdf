package conversation

import (
	"fmt"
	"time"

	"github.com/wolfman30/bookline-ai-platform/internal/intents"
	"github.com/wolfman30/bookline-ai-platform/internal/nlu"
)

// Channel identifies the messaging surface a message arrived on.
type Channel string

const (
	ChannelSMSGateway   Channel = "sms-gateway"
	ChannelBusinessChat Channel = "business-chat-api"
	ChannelBotPlatform  Channel = "bot-platform"
	ChannelWebWidget    Channel = "web-widget"
)

// ResponseGenerator identifies which component produced the bot response.
type ResponseGenerator string

const (
	GeneratorActionResult   ResponseGenerator = "action-result"
	GeneratorFallbackLLM    ResponseGenerator = "fallback-llm"
	GeneratorStaticTemplate ResponseGenerator = "static-template"
)

// Fallback reasons handed to the generator.
const (
	ReasonLowConfidence      = "low-confidence"
	ReasonNoMapping          = "no-mapping"
	ReasonNeedsClarification = "needs-clarification"
	ReasonActionFailed       = "action-failed"
	ReasonNLUUnavailable     = "nlu-unavailable"
)

// Booking funnel steps recorded on turns that touch the booking flow.
const (
	BookingStepSelectingPackage = "selecting_package"
	BookingStepSelectingTime    = "selecting_time"
	BookingStepComplete         = "booking_complete"
	BookingStepCancelled        = "booking_cancelled"
	BookingStepActionFailed     = "action_failed"
)

// Turn processing states.
type State string

const (
	StateReceived          State = "RECEIVED"
	StateNLUResolved       State = "NLU_RESOLVED"
	StateActionDispatched  State = "ACTION_DISPATCHED"
	StateActionSucceeded   State = "ACTION_SUCCEEDED"
	StateActionFailed      State = "ACTION_FAILED"
	StateFallbackGenerated State = "FALLBACK_GENERATED"
	StateResponseReady     State = "RESPONSE_READY"
	StateLogged            State = "LOGGED"
	StateSent              State = "SENT"
	StateSentWithError     State = "SENT_WITH_ERROR"
)

// InboundMessage is the canonical message produced by a channel adapter.
type InboundMessage struct {
	Channel       Channel   `json:"channel"`
	ChannelUserID string    `json:"channelUserId"`
	SessionID     string    `json:"sessionId,omitempty"`
	Text          string    `json:"text"`
	Timestamp     time.Time `json:"timestamp"`
}

// OutboundReply is the response sent back through the originating adapter.
type OutboundReply struct {
	Channel       Channel `json:"channel"`
	ChannelUserID string  `json:"channelUserId"`
	SessionID     string  `json:"sessionId"`
	Text          string  `json:"text"`
}

// Turn is one inbound/outbound exchange. Immutable once logged; only the
// feedback linkage and the retraining job's reviewed flag touch it afterward.
type Turn struct {
	ID               string                 `json:"id"`
	SessionID        string                 `json:"sessionId"`
	ChannelUserID    string                 `json:"channelUserId"`
	Channel          Channel                `json:"channel"`
	UserMessage      string                 `json:"userMessage"`
	Timestamp        time.Time              `json:"timestamp"`
	DetectedIntent   string                 `json:"detectedIntent,omitempty"`
	Confidence       *float64               `json:"confidence,omitempty"`
	Entities         []nlu.Entity           `json:"entities,omitempty"`
	ResponseGen      ResponseGenerator      `json:"responseGenerator"`
	FallbackReason   string                 `json:"fallbackReason,omitempty"`
	BookingStep      string                 `json:"bookingStep,omitempty"`
	ModelVersion     string                 `json:"modelVersion,omitempty"`
	APICallResults   []intents.APICallResult `json:"apiCallResults,omitempty"`
	BotResponse      string                 `json:"botResponse"`
	ProcessingTimeMs int64                  `json:"processingTimeMs"`
	Success          bool                   `json:"success"`
	Error            string                 `json:"error,omitempty"`
}

// HistoryEntry is one message of the bounded per-session history.
type HistoryEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Context is the short-lived per-session conversation state. It is owned by
// the orchestrator, mutated under the session lock, and evicted by TTL.
type Context struct {
	SessionID     string       `json:"sessionId"`
	ChannelUserID string       `json:"channelUserId"`
	LastIntent    string       `json:"lastIntent,omitempty"`
	LastEntities  []nlu.Entity `json:"lastEntities,omitempty"`
	History       []HistoryEntry `json:"history,omitempty"`
	Language      string       `json:"language,omitempty"`
	Timezone      string       `json:"timezone,omitempty"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// AppendHistory adds an entry, dropping the oldest beyond the limit.
func (c *Context) AppendHistory(entry HistoryEntry, limit int) {
	c.History = append(c.History, entry)
	if limit > 0 && len(c.History) > limit {
		c.History = c.History[len(c.History)-limit:]
	}
}

// SessionID derives the canonical session identifier for a channel user.
// Web-widget sessions carry their own identifier from the widget.
func SessionID(channel Channel, channelUserID string) string {
	return fmt.Sprintf("%s:%s", channel, channelUserID)
}
