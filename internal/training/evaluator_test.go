package training

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/bookline-ai-platform/internal/convlog"
	"github.com/wolfman30/bookline-ai-platform/internal/nlu"
)

type scriptedNLU struct {
	answers map[string]string
	err     error
}

func (s *scriptedNLU) Resolve(_ context.Context, text, _, _ string) (*nlu.ParseResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &nlu.ParseResult{Intent: s.answers[text], Confidence: 0.9}, nil
}

func TestEvaluateAccuracy(t *testing.T) {
	client := &scriptedNLU{answers: map[string]string{
		"hola":            "saludo",
		"quiero una cita": "agendar_cita",
		"precios":         "saludo", // misclassified
		"paquetes":        "consultar_paquetes",
	}}
	e := NewEvaluator(client, nil, nil)

	eval, err := e.Evaluate(context.Background(), "v2", []Example{
		{Text: "hola", Intent: "saludo"},
		{Text: "quiero una cita", Intent: "agendar_cita"},
		{Text: "precios", Intent: "consultar_paquetes"},
		{Text: "paquetes", Intent: "consultar_paquetes"},
	}, time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, eval.Accuracy, 1e-9)
	assert.Zero(t, eval.BookingSuccessRate, "no session source configured")
}

type fakeSessionMetrics struct {
	agg *convlog.SessionAggregates
	err error
}

func (f *fakeSessionMetrics) SessionAggregates(context.Context, time.Time) (*convlog.SessionAggregates, error) {
	return f.agg, f.err
}

func TestEvaluateComputesBookingFunnel(t *testing.T) {
	client := &scriptedNLU{answers: map[string]string{"hola": "saludo"}}
	sessions := &fakeSessionMetrics{agg: &convlog.SessionAggregates{
		Sessions:           40,
		AvgTurnsPerSession: 4.5,
		BookingsStarted:    20,
		BookingsCompleted:  14,
	}}
	e := NewEvaluator(client, sessions, nil)

	eval, err := e.Evaluate(context.Background(), "v2", []Example{
		{Text: "hola", Intent: "saludo"},
	}, time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, eval.Accuracy, 1e-9)
	assert.InDelta(t, 0.7, eval.BookingSuccessRate, 1e-9)
	assert.InDelta(t, 4.5, eval.AvgConversationTurns, 1e-9)
}

func TestEvaluateFunnelFailureDegradesToZero(t *testing.T) {
	client := &scriptedNLU{answers: map[string]string{"hola": "saludo"}}
	e := NewEvaluator(client, &fakeSessionMetrics{err: errors.New("db down")}, nil)

	eval, err := e.Evaluate(context.Background(), "v2", []Example{
		{Text: "hola", Intent: "saludo"},
	}, time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, eval.Accuracy, 1e-9)
	assert.Zero(t, eval.BookingSuccessRate)
	assert.Zero(t, eval.AvgConversationTurns)
}

func TestEvaluateParseErrorsCountAsMisses(t *testing.T) {
	e := NewEvaluator(&scriptedNLU{err: errors.New("nlu down")}, nil, nil)

	eval, err := e.Evaluate(context.Background(), "v2", []Example{
		{Text: "hola", Intent: "saludo"},
	}, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, eval.Accuracy)
}

func TestEvaluateEmptyHoldout(t *testing.T) {
	e := NewEvaluator(&scriptedNLU{}, nil, nil)
	_, err := e.Evaluate(context.Background(), "v2", nil, time.Time{})
	assert.Error(t, err)
}

func TestSplitHoldout(t *testing.T) {
	train, holdout := SplitHoldout(manyExamples(100), 0.2)
	assert.Len(t, train, 80)
	assert.Len(t, holdout, 20)

	train, holdout = SplitHoldout(manyExamples(1), 0.2)
	assert.Len(t, train, 1)
	assert.Empty(t, holdout)
}
