package convlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/bookline-ai-platform/internal/conversation"
	"github.com/wolfman30/bookline-ai-platform/internal/intents"
	"github.com/wolfman30/bookline-ai-platform/internal/nlu"
)

var ErrTurnNotFound = errors.New("convlog: turn not found")

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// defaultLowConfidence splits the stats counters when no threshold is
// configured. Matches the resolver's default confidence threshold.
const defaultLowConfidence = 0.7

// Store persists the append-only conversation turn log in Postgres.
type Store struct {
	pool          Querier
	lowConfidence float64
}

// NewStore builds a turn log store. lowConfidenceThreshold splits the
// low/high confidence stats counters; out-of-range values fall back to
// the default of 0.7.
func NewStore(pool Querier, lowConfidenceThreshold float64) *Store {
	if pool == nil {
		panic("convlog: pool cannot be nil")
	}
	if lowConfidenceThreshold <= 0 || lowConfidenceThreshold >= 1 {
		lowConfidenceThreshold = defaultLowConfidence
	}
	return &Store{pool: pool, lowConfidence: lowConfidenceThreshold}
}

// Insert appends one turn. Turns are never updated through this store;
// re-inserting an existing ID is a no-op so queue redeliveries stay safe.
func (s *Store) Insert(ctx context.Context, turn conversation.Turn) error {
	entities, err := json.Marshal(turn.Entities)
	if err != nil {
		return fmt.Errorf("convlog: marshal entities: %w", err)
	}
	apiCalls, err := json.Marshal(turn.APICallResults)
	if err != nil {
		return fmt.Errorf("convlog: marshal api call results: %w", err)
	}

	query := `
		INSERT INTO conversation_turns (
			id, session_id, channel_user_id, channel, user_message, ts,
			detected_intent, confidence, entities, response_generator,
			fallback_reason, booking_step, model_version, api_call_results,
			bot_response, processing_time_ms, success, error
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.pool.Exec(ctx, query,
		turn.ID, turn.SessionID, turn.ChannelUserID, string(turn.Channel),
		turn.UserMessage, turn.Timestamp,
		nullIfEmpty(turn.DetectedIntent), turn.Confidence, entities,
		string(turn.ResponseGen), nullIfEmpty(turn.FallbackReason),
		nullIfEmpty(turn.BookingStep), nullIfEmpty(turn.ModelVersion), apiCalls,
		turn.BotResponse, turn.ProcessingTimeMs, turn.Success, nullIfEmpty(turn.Error),
	)
	if err != nil {
		return fmt.Errorf("convlog: insert turn: %w", err)
	}
	return nil
}

// Filter narrows turn listings. Zero values mean "any".
type Filter struct {
	SessionID     string
	ChannelUserID string
	Channel       string
	Intent        string
	Generator     string
	OnlyFailures  bool
	// MinConfidence and MaxConfidence bound the classifier confidence.
	// Zero leaves the bound open.
	MinConfidence float64
	MaxConfidence float64
	Since         time.Time
	Until         time.Time
	Limit         int
	Offset        int
}

func (s *Store) List(ctx context.Context, f Filter) ([]conversation.Turn, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.SessionID != "" {
		add("session_id = $%d", f.SessionID)
	}
	if f.ChannelUserID != "" {
		add("channel_user_id = $%d", f.ChannelUserID)
	}
	if f.Channel != "" {
		add("channel = $%d", f.Channel)
	}
	if f.Intent != "" {
		add("detected_intent = $%d", f.Intent)
	}
	if f.Generator != "" {
		add("response_generator = $%d", f.Generator)
	}
	if f.OnlyFailures {
		conds = append(conds, "success = false")
	}
	if f.MinConfidence > 0 {
		add("confidence >= $%d", f.MinConfidence)
	}
	if f.MaxConfidence > 0 {
		add("confidence <= $%d", f.MaxConfidence)
	}
	if !f.Since.IsZero() {
		add("ts >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("ts < $%d", f.Until)
	}

	query := `
		SELECT id, session_id, channel_user_id, channel, user_message, ts,
			detected_intent, confidence, entities, response_generator,
			fallback_reason, booking_step, model_version, api_call_results,
			bot_response, processing_time_ms, success, error
		FROM conversation_turns
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY ts DESC"

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("convlog: list turns: %w", err)
	}
	defer rows.Close()

	var turns []conversation.Turn
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("convlog: list turns: %w", err)
	}
	return turns, nil
}

func (s *Store) Get(ctx context.Context, id string) (*conversation.Turn, error) {
	query := `
		SELECT id, session_id, channel_user_id, channel, user_message, ts,
			detected_intent, confidence, entities, response_generator,
			fallback_reason, booking_step, model_version, api_call_results,
			bot_response, processing_time_ms, success, error
		FROM conversation_turns
		WHERE id = $1
	`
	row := s.pool.QueryRow(ctx, query, id)
	turn, err := scanTurn(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTurnNotFound
		}
		return nil, err
	}
	return &turn, nil
}

// Stats is the aggregate view served to the analytics dashboard. The
// low/high confidence split uses the store's configured threshold;
// turns without a confidence value count in neither bucket.
type Stats struct {
	TotalTurns          int64            `json:"totalTurns"`
	FallbackTurns       int64            `json:"fallbackTurns"`
	FailedTurns         int64            `json:"failedTurns"`
	LowConfidenceTurns  int64            `json:"lowConfidenceTurns"`
	HighConfidenceTurns int64            `json:"highConfidenceTurns"`
	TurnsWithFeedback   int64            `json:"turnsWithFeedback"`
	FallbackRate        float64          `json:"fallbackRate"`
	AvgConfidence       float64          `json:"avgConfidence"`
	AvgProcessingMs     float64          `json:"avgProcessingMs"`
	IntentCounts        map[string]int64 `json:"intentCounts"`
	ChannelCounts       map[string]int64 `json:"channelCounts"`
}

func (s *Store) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	stats := &Stats{
		IntentCounts:  make(map[string]int64),
		ChannelCounts: make(map[string]int64),
	}

	summary := `
		SELECT count(*),
			count(*) FILTER (WHERE response_generator = 'fallback-llm'),
			count(*) FILTER (WHERE success = false),
			count(*) FILTER (WHERE confidence < $2),
			count(*) FILTER (WHERE confidence >= $2),
			(SELECT count(*) FROM user_feedback f
				JOIN conversation_turns t ON t.id = f.turn_id
				WHERE t.ts >= $1),
			COALESCE(avg(confidence), 0),
			COALESCE(avg(processing_time_ms), 0)
		FROM conversation_turns
		WHERE ts >= $1
	`
	err := s.pool.QueryRow(ctx, summary, since, s.lowConfidence).Scan(
		&stats.TotalTurns, &stats.FallbackTurns, &stats.FailedTurns,
		&stats.LowConfidenceTurns, &stats.HighConfidenceTurns, &stats.TurnsWithFeedback,
		&stats.AvgConfidence, &stats.AvgProcessingMs,
	)
	if err != nil {
		return nil, fmt.Errorf("convlog: stats summary: %w", err)
	}
	if stats.TotalTurns > 0 {
		stats.FallbackRate = float64(stats.FallbackTurns) / float64(stats.TotalTurns)
	}

	byIntent := `
		SELECT detected_intent, count(*)
		FROM conversation_turns
		WHERE ts >= $1 AND detected_intent IS NOT NULL
		GROUP BY detected_intent
	`
	rows, err := s.pool.Query(ctx, byIntent, since)
	if err != nil {
		return nil, fmt.Errorf("convlog: stats by intent: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var intent string
		var count int64
		if err := rows.Scan(&intent, &count); err != nil {
			return nil, fmt.Errorf("convlog: stats by intent: %w", err)
		}
		stats.IntentCounts[intent] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("convlog: stats by intent: %w", err)
	}

	byChannel := `
		SELECT channel, count(*)
		FROM conversation_turns
		WHERE ts >= $1
		GROUP BY channel
	`
	channelRows, err := s.pool.Query(ctx, byChannel, since)
	if err != nil {
		return nil, fmt.Errorf("convlog: stats by channel: %w", err)
	}
	defer channelRows.Close()
	for channelRows.Next() {
		var channel string
		var count int64
		if err := channelRows.Scan(&channel, &count); err != nil {
			return nil, fmt.Errorf("convlog: stats by channel: %w", err)
		}
		stats.ChannelCounts[channel] = count
	}
	if err := channelRows.Err(); err != nil {
		return nil, fmt.Errorf("convlog: stats by channel: %w", err)
	}

	return stats, nil
}

// SessionAggregates summarize booking funnel movement, grouped by
// session. A session "started" a booking once any of its turns carries
// a booking step.
type SessionAggregates struct {
	Sessions           int64   `json:"sessions"`
	AvgTurnsPerSession float64 `json:"avgTurnsPerSession"`
	BookingsStarted    int64   `json:"bookingsStarted"`
	BookingsCompleted  int64   `json:"bookingsCompleted"`
}

func (s *Store) SessionAggregates(ctx context.Context, since time.Time) (*SessionAggregates, error) {
	query := `
		SELECT count(DISTINCT session_id),
			COALESCE(count(*)::float / NULLIF(count(DISTINCT session_id), 0), 0),
			count(DISTINCT session_id) FILTER (WHERE booking_step IS NOT NULL),
			count(DISTINCT session_id) FILTER (WHERE booking_step = $2)
		FROM conversation_turns
		WHERE ts >= $1
	`
	agg := &SessionAggregates{}
	err := s.pool.QueryRow(ctx, query, since, conversation.BookingStepComplete).Scan(
		&agg.Sessions, &agg.AvgTurnsPerSession, &agg.BookingsStarted, &agg.BookingsCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("convlog: session aggregates: %w", err)
	}
	return agg, nil
}

// PurgeOlderThan removes turns past the retention window and returns how
// many rows were deleted.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversation_turns WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("convlog: purge turns: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanTurn(row pgx.Row) (conversation.Turn, error) {
	var (
		turn           conversation.Turn
		channel        string
		generator      string
		detected       *string
		fallbackReason *string
		bookingStep    *string
		modelVersion   *string
		errMsg         *string
		entities       []byte
		apiCalls       []byte
	)
	err := row.Scan(
		&turn.ID, &turn.SessionID, &turn.ChannelUserID, &channel,
		&turn.UserMessage, &turn.Timestamp,
		&detected, &turn.Confidence, &entities, &generator,
		&fallbackReason, &bookingStep, &modelVersion, &apiCalls,
		&turn.BotResponse, &turn.ProcessingTimeMs, &turn.Success, &errMsg,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return conversation.Turn{}, err
		}
		return conversation.Turn{}, fmt.Errorf("convlog: scan turn: %w", err)
	}

	turn.Channel = conversation.Channel(channel)
	turn.ResponseGen = conversation.ResponseGenerator(generator)
	turn.DetectedIntent = deref(detected)
	turn.FallbackReason = deref(fallbackReason)
	turn.BookingStep = deref(bookingStep)
	turn.ModelVersion = deref(modelVersion)
	turn.Error = deref(errMsg)

	if len(entities) > 0 {
		var parsed []nlu.Entity
		if err := json.Unmarshal(entities, &parsed); err != nil {
			return conversation.Turn{}, fmt.Errorf("convlog: decode entities: %w", err)
		}
		turn.Entities = parsed
	}
	if len(apiCalls) > 0 {
		var parsed []intents.APICallResult
		if err := json.Unmarshal(apiCalls, &parsed); err != nil {
			return conversation.Turn{}, fmt.Errorf("convlog: decode api call results: %w", err)
		}
		turn.APICallResults = parsed
	}
	return turn, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
