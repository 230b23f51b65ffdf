package fallback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/wolfman30/bookline-ai-platform/internal/llm"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

const personaPrompt = `Eres el asistente virtual de Bookline, un salón de belleza y bienestar.

Tu tono es cálido, profesional y breve. Respondes en el idioma del cliente
(español por defecto). Nunca inventas precios, horarios ni disponibilidad:
si no conoces un dato concreto, ofrece poner al cliente en contacto con el
salón o sugiérele preguntar por nuestros paquetes y citas.

Te ocupas de dudas generales sobre tratamientos, paquetes y reservas.
Si el cliente quiere agendar una cita, pídele la fecha deseada y su correo
electrónico. Mantén cada respuesta por debajo de tres frases; estos mensajes
se envían por SMS y chat, no por correo.`

const (
	defaultTimeout     = 20 * time.Second
	maxPromptHistory   = 10
	defaultMaxTokens   = 300
	defaultTemperature = 0.4
)

var apologies = map[string]string{
	"es": "Lo siento, en este momento no puedo ayudarte con eso. Un miembro de nuestro equipo te responderá muy pronto.",
	"en": "Sorry, I can't help with that right now. A member of our team will get back to you shortly.",
}

var generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bookline",
	Subsystem: "fallback",
	Name:      "generations_total",
	Help:      "Fallback generations by outcome.",
}, []string{"outcome"})

// Input carries everything the generator may weave into the prompt.
type Input struct {
	SessionID   string
	Language    string
	Reason      string
	History     []llm.ChatMessage
	UserMessage string

	// Set when the NLU produced a below-threshold guess worth hinting at.
	IntentHint  string
	EntityHints map[string]string

	// Set when an action needs more information from the user.
	MissingEntities []string
}

// Generator produces a conversational reply when no mapped action can
// answer the user. It never returns an error: any failure in the LLM
// chain degrades to a fixed apology in the session language.
type Generator struct {
	client  llm.Client
	model   string
	timeout time.Duration
	logger  *logging.Logger
}

func NewGenerator(client llm.Client, model string, logger *logging.Logger) *Generator {
	if client == nil {
		panic("fallback: llm client is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Generator{
		client:  client,
		model:   model,
		timeout: defaultTimeout,
		logger:  logger,
	}
}

// Generate returns a reply for the user. The returned string is always
// non-empty.
func (g *Generator) Generate(ctx context.Context, in Input) string {
	messages := g.buildMessages(in)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.Complete(callCtx, llm.Request{
		Model:       g.model,
		System:      []string{personaPrompt},
		Messages:    messages,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	})
	latency := time.Since(start)

	if err != nil {
		generationsTotal.WithLabelValues("apology").Inc()
		g.logger.Warn("fallback generation failed, using apology",
			"session_id", in.SessionID,
			"reason", in.Reason,
			"latency_ms", latency.Milliseconds(),
			"error", err,
		)
		return Apology(in.Language)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		generationsTotal.WithLabelValues("apology").Inc()
		g.logger.Warn("fallback generation returned empty text, using apology",
			"session_id", in.SessionID, "reason", in.Reason)
		return Apology(in.Language)
	}

	generationsTotal.WithLabelValues("generated").Inc()
	g.logger.Info("fallback reply generated",
		"session_id", in.SessionID,
		"reason", in.Reason,
		"latency_ms", latency.Milliseconds(),
		"output_tokens", resp.Usage.OutputTokens,
	)
	return text
}

func (g *Generator) buildMessages(in Input) []llm.ChatMessage {
	history := in.History
	if len(history) > maxPromptHistory {
		history = history[len(history)-maxPromptHistory:]
	}

	messages := make([]llm.ChatMessage, 0, len(history)+2)
	if hint := buildHint(in); hint != "" {
		messages = append(messages, llm.ChatMessage{Role: llm.ChatRoleSystem, Content: hint})
	}
	messages = append(messages, history...)
	if strings.TrimSpace(in.UserMessage) != "" {
		messages = append(messages, llm.ChatMessage{Role: llm.ChatRoleUser, Content: in.UserMessage})
	}
	if len(messages) == 0 || messages[len(messages)-1].Role != llm.ChatRoleUser {
		// The model needs a user turn to respond to.
		messages = append(messages, llm.ChatMessage{Role: llm.ChatRoleUser, Content: "Hola"})
	}
	return messages
}

func buildHint(in Input) string {
	var b strings.Builder
	if in.IntentHint != "" {
		fmt.Fprintf(&b, "El clasificador sugiere, con baja seguridad, que el cliente quiere: %s.", in.IntentHint)
		for entity, value := range in.EntityHints {
			fmt.Fprintf(&b, " %s=%s.", entity, value)
		}
	}
	if len(in.MissingEntities) > 0 {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "Para completar la acción falta: %s. Pídele estos datos al cliente de forma natural.",
			strings.Join(in.MissingEntities, ", "))
	}
	return b.String()
}

// Apology returns the fixed degradation message for a language, falling
// back to Spanish for unknown codes.
func Apology(language string) string {
	if msg, ok := apologies[strings.ToLower(language)]; ok {
		return msg
	}
	return apologies["es"]
}
