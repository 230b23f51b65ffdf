package fallback

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/bookline-ai-platform/internal/llm"
)

type stubLLM struct {
	lastReq llm.Request
	resp    llm.Response
	err     error
}

func (s *stubLLM) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	s.lastReq = req
	return s.resp, s.err
}

func TestGenerateReturnsModelText(t *testing.T) {
	stub := &stubLLM{resp: llm.Response{Text: "  ¡Claro! Tenemos paquetes de spa y masajes. "}}
	gen := NewGenerator(stub, "test-model", nil)

	got := gen.Generate(context.Background(), Input{
		SessionID:   "sess-1",
		Language:    "es",
		Reason:      "no-mapping",
		UserMessage: "¿qué paquetes tienen?",
	})

	assert.Equal(t, "¡Claro! Tenemos paquetes de spa y masajes.", got)
	require.NotEmpty(t, stub.lastReq.System)
	assert.Contains(t, stub.lastReq.System[0], "Bookline")
}

func TestGenerateNeverFails(t *testing.T) {
	cases := map[string]*stubLLM{
		"client error": {err: errors.New("boom")},
		"empty text":   {resp: llm.Response{Text: "   "}},
	}
	for name, stub := range cases {
		t.Run(name, func(t *testing.T) {
			gen := NewGenerator(stub, "test-model", nil)
			got := gen.Generate(context.Background(), Input{Language: "es", UserMessage: "hola"})
			assert.NotEmpty(t, got)
			assert.Equal(t, Apology("es"), got)
		})
	}
}

func TestGenerateApologyMatchesLanguage(t *testing.T) {
	stub := &stubLLM{err: errors.New("unavailable")}
	gen := NewGenerator(stub, "test-model", nil)

	en := gen.Generate(context.Background(), Input{Language: "en", UserMessage: "hi"})
	assert.Equal(t, Apology("en"), en)

	unknown := gen.Generate(context.Background(), Input{Language: "fr", UserMessage: "salut"})
	assert.Equal(t, Apology("es"), unknown)
}

func TestGenerateIncludesLowConfidenceHint(t *testing.T) {
	stub := &stubLLM{resp: llm.Response{Text: "ok"}}
	gen := NewGenerator(stub, "test-model", nil)

	gen.Generate(context.Background(), Input{
		Language:    "es",
		Reason:      "low-confidence",
		UserMessage: "quiero algo para el viernes",
		IntentHint:  "agendar_cita",
	})

	require.NotEmpty(t, stub.lastReq.Messages)
	first := stub.lastReq.Messages[0]
	assert.Equal(t, llm.ChatRoleSystem, first.Role)
	assert.Contains(t, first.Content, "agendar_cita")
}

func TestGenerateIncludesMissingEntityHint(t *testing.T) {
	stub := &stubLLM{resp: llm.Response{Text: "ok"}}
	gen := NewGenerator(stub, "test-model", nil)

	gen.Generate(context.Background(), Input{
		Language:        "es",
		Reason:          "needs-clarification",
		UserMessage:     "resérvame una cita",
		MissingEntities: []string{"date", "email"},
	})

	require.NotEmpty(t, stub.lastReq.Messages)
	assert.Contains(t, stub.lastReq.Messages[0].Content, "date, email")
}

func TestGenerateBoundsHistory(t *testing.T) {
	stub := &stubLLM{resp: llm.Response{Text: "ok"}}
	gen := NewGenerator(stub, "test-model", nil)

	history := make([]llm.ChatMessage, 0, 30)
	for i := 0; i < 30; i++ {
		role := llm.ChatRoleUser
		if i%2 == 1 {
			role = llm.ChatRoleAssistant
		}
		history = append(history, llm.ChatMessage{Role: role, Content: strings.Repeat("x", 5)})
	}

	gen.Generate(context.Background(), Input{
		Language:    "es",
		History:     history,
		UserMessage: "hola",
	})

	// Bounded history plus the current user turn.
	assert.LessOrEqual(t, len(stub.lastReq.Messages), maxPromptHistory+1)
}
