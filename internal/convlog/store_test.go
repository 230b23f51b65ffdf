package convlog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/bookline-ai-platform/internal/conversation"
	"github.com/wolfman30/bookline-ai-platform/internal/intents"
	"github.com/wolfman30/bookline-ai-platform/internal/nlu"
)

func sampleTurn() conversation.Turn {
	confidence := 0.91
	return conversation.Turn{
		ID:            "7f9c0e4a-1111-2222-3333-444455556666",
		SessionID:     "sms-gateway:+34600111222",
		ChannelUserID: "+34600111222",
		Channel:       conversation.ChannelSMSGateway,
		UserMessage:   "quiero una cita el viernes",
		Timestamp:     time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		DetectedIntent: "agendar_cita",
		Confidence:    &confidence,
		Entities:      []nlu.Entity{{Entity: "date", Value: "2026-09-04"}},
		ResponseGen:   conversation.GeneratorActionResult,
		ModelVersion:  "v3",
		APICallResults: []intents.APICallResult{
			{Endpoint: "/api/bookings", Success: true, StatusCode: 201, DurationMs: 52},
		},
		BotResponse:      "¡Listo! Tu cita quedó agendada.",
		ProcessingTimeMs: 180,
		Success:          true,
	}
}

// anyTurnArgs matches the 18 insert parameters without checking values.
func anyTurnArgs() []interface{} {
	args := make([]interface{}, 18)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestStoreInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO conversation_turns").
		WithArgs(anyTurnArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewStore(mock, 0.7)
	require.NoError(t, store.Insert(context.Background(), sampleTurn()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreInsertIdempotentOnConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// ON CONFLICT DO NOTHING reports zero rows; that is still success.
	mock.ExpectExec("INSERT INTO conversation_turns").
		WithArgs(anyTurnArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	store := NewStore(mock, 0.7)
	require.NoError(t, store.Insert(context.Background(), sampleTurn()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func turnRows(t *testing.T, turns ...conversation.Turn) *pgxmock.Rows {
	t.Helper()
	rows := pgxmock.NewRows([]string{
		"id", "session_id", "channel_user_id", "channel", "user_message", "ts",
		"detected_intent", "confidence", "entities", "response_generator",
		"fallback_reason", "booking_step", "model_version", "api_call_results",
		"bot_response", "processing_time_ms", "success", "error",
	})
	for _, turn := range turns {
		entities, err := json.Marshal(turn.Entities)
		require.NoError(t, err)
		apiCalls, err := json.Marshal(turn.APICallResults)
		require.NoError(t, err)
		rows.AddRow(
			turn.ID, turn.SessionID, turn.ChannelUserID, string(turn.Channel),
			turn.UserMessage, turn.Timestamp,
			nullIfEmpty(turn.DetectedIntent), turn.Confidence, entities,
			string(turn.ResponseGen), nullIfEmpty(turn.FallbackReason),
			nullIfEmpty(turn.BookingStep), nullIfEmpty(turn.ModelVersion), apiCalls,
			turn.BotResponse, turn.ProcessingTimeMs, turn.Success, nullIfEmpty(turn.Error),
		)
	}
	return rows
}

func TestStoreListWithFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	want := sampleTurn()
	mock.ExpectQuery("SELECT (.+) FROM conversation_turns WHERE session_id = \\$1 AND detected_intent = \\$2").
		WithArgs(want.SessionID, "agendar_cita", 50).
		WillReturnRows(turnRows(t, want))

	store := NewStore(mock, 0.7)
	got, err := store.List(context.Background(), Filter{
		SessionID: want.SessionID,
		Intent:    "agendar_cita",
		Limit:     50,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want.ID, got[0].ID)
	assert.Equal(t, want.Entities, got[0].Entities)
	assert.Equal(t, want.APICallResults, got[0].APICallResults)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreListByUserAndConfidenceRange(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	want := sampleTurn()
	mock.ExpectQuery("SELECT (.+) FROM conversation_turns WHERE channel_user_id = \\$1 AND confidence >= \\$2 AND confidence <= \\$3").
		WithArgs(want.ChannelUserID, 0.5, 0.95, 100).
		WillReturnRows(turnRows(t, want))

	store := NewStore(mock, 0.7)
	got, err := store.List(context.Background(), Filter{
		ChannelUserID: want.ChannelUserID,
		MinConfidence: 0.5,
		MaxConfidence: 0.95,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want.ID, got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSessionAggregates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	since := time.Now().Add(-30 * 24 * time.Hour)
	mock.ExpectQuery("SELECT count\\(DISTINCT session_id\\)").
		WithArgs(since, conversation.BookingStepComplete).
		WillReturnRows(pgxmock.NewRows([]string{"sessions", "avg_turns", "started", "completed"}).
			AddRow(int64(40), 4.5, int64(20), int64(14)))

	store := NewStore(mock, 0.7)
	agg, err := store.SessionAggregates(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, int64(40), agg.Sessions)
	assert.InDelta(t, 4.5, agg.AvgTurnsPerSession, 1e-9)
	assert.Equal(t, int64(20), agg.BookingsStarted)
	assert.Equal(t, int64(14), agg.BookingsCompleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM conversation_turns").
		WithArgs("missing").
		WillReturnRows(turnRows(t))

	store := NewStore(mock, 0.7)
	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTurnNotFound)
}

func TestStoreStats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	since := time.Now().Add(-24 * time.Hour)
	mock.ExpectQuery("SELECT count").
		WithArgs(since, 0.7).
		WillReturnRows(pgxmock.NewRows([]string{"count", "fallback", "failed", "low_conf", "high_conf", "with_feedback", "avg_conf", "avg_ms"}).
			AddRow(int64(100), int64(25), int64(5), int64(30), int64(70), int64(12), 0.84, 210.5))
	mock.ExpectQuery("SELECT detected_intent, count").
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"detected_intent", "count"}).
			AddRow("agendar_cita", int64(60)).
			AddRow("consultar_paquetes", int64(30)))
	mock.ExpectQuery("SELECT channel, count").
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"channel", "count"}).
			AddRow("sms-gateway", int64(70)).
			AddRow("web-widget", int64(30)))

	store := NewStore(mock, 0.7)
	stats, err := store.Stats(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, int64(100), stats.TotalTurns)
	assert.InDelta(t, 0.25, stats.FallbackRate, 1e-9)
	assert.Equal(t, int64(30), stats.LowConfidenceTurns)
	assert.Equal(t, int64(70), stats.HighConfidenceTurns)
	assert.Equal(t, int64(12), stats.TurnsWithFeedback)
	assert.Equal(t, int64(60), stats.IntentCounts["agendar_cita"])
	assert.Equal(t, int64(70), stats.ChannelCounts["sms-gateway"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorePurgeOlderThan(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cutoff := time.Now().AddDate(0, 0, -90)
	mock.ExpectExec("DELETE FROM conversation_turns").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 137))

	store := NewStore(mock, 0.7)
	deleted, err := store.PurgeOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(137), deleted)
}
