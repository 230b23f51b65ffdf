package llm

import "testing"

func TestCollectSystemTextMergesPromptsAndSystemMessages(t *testing.T) {
	got := collectSystemText(Request{
		System: []string{"responde en español", "  "},
		Messages: []ChatMessage{
			{Role: ChatRoleSystem, Content: "sé breve"},
			{Role: ChatRoleUser, Content: "hola"},
		},
	})
	want := "responde en español\n\nsé breve"
	if got != want {
		t.Errorf("system text = %q, want %q", got, want)
	}
}

func TestGeminiHistoryMapsRoles(t *testing.T) {
	history := geminiHistory([]ChatMessage{
		{Role: ChatRoleSystem, Content: "contexto"},
		{Role: ChatRoleUser, Content: "hola"},
		{Role: ChatRoleAssistant, Content: "buenas"},
		{Role: ChatRoleUser, Content: "   "},
	})
	if len(history) != 2 {
		t.Fatalf("history length = %d", len(history))
	}
	if history[0].Role != "user" {
		t.Errorf("first role = %q", history[0].Role)
	}
	if history[1].Role != "model" {
		t.Errorf("second role = %q", history[1].Role)
	}
}

func TestGeminiModelOverride(t *testing.T) {
	c := &GeminiClient{defaultModel: "gemini-2.5-flash"}
	if got := c.modelFor(Request{}); got != "gemini-2.5-flash" {
		t.Errorf("default model = %q", got)
	}
	if got := c.modelFor(Request{Model: "gemini-2.5-pro"}); got != "gemini-2.5-pro" {
		t.Errorf("override model = %q", got)
	}
}
