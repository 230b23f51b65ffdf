package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiClient implements Client on Google's Gemini API.
type GeminiClient struct {
	client       *genai.Client
	defaultModel string
}

// NewGeminiClient dials Gemini with the given API key. An empty modelID
// selects defaultGeminiModel; requests can still name their own model.
func NewGeminiClient(ctx context.Context, apiKey, modelID string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("llm: gemini client init: %w", err)
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = defaultGeminiModel
	}
	return &GeminiClient{client: client, defaultModel: modelID}, nil
}

// Complete runs the request as a Gemini chat session. Earlier messages seed
// the session history; the final one is sent for completion.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (Response, error) {
	if len(req.Messages) == 0 {
		return Response{}, errors.New("llm: gemini request has no messages")
	}

	model := c.client.GenerativeModel(c.modelFor(req))
	applyGeminiInference(model, req)
	if system := collectSystemText(req); system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	session := model.StartChat()
	session.History = geminiHistory(req.Messages[:len(req.Messages)-1])

	last := req.Messages[len(req.Messages)-1]
	out, err := session.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return Response{}, fmt.Errorf("llm: gemini completion: %w", err)
	}
	return geminiResponse(out)
}

// Close releases the underlying API connection.
func (c *GeminiClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *GeminiClient) modelFor(req Request) string {
	if strings.TrimSpace(req.Model) != "" {
		return req.Model
	}
	return c.defaultModel
}

func applyGeminiInference(model *genai.GenerativeModel, req Request) {
	// Negative temperature means the caller wants the provider default.
	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
}

// collectSystemText merges the request's system prompts with any
// system-role chat messages. Gemini takes a single instruction block.
func collectSystemText(req Request) string {
	parts := make([]string, 0, len(req.System))
	for _, block := range req.System {
		if strings.TrimSpace(block) != "" {
			parts = append(parts, block)
		}
	}
	for _, msg := range req.Messages {
		if msg.Role == ChatRoleSystem && strings.TrimSpace(msg.Content) != "" {
			parts = append(parts, msg.Content)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

func geminiHistory(messages []ChatMessage) []*genai.Content {
	history := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == ChatRoleSystem || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		role := "user"
		if msg.Role == ChatRoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return history
}

func geminiResponse(out *genai.GenerateContentResponse) (Response, error) {
	if out == nil || len(out.Candidates) == 0 {
		return Response{}, errors.New("llm: gemini returned no candidates")
	}
	candidate := out.Candidates[0]
	if candidate.Content == nil {
		return Response{}, errors.New("llm: gemini candidate carried no content")
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if chunk, ok := part.(genai.Text); ok {
			text.WriteString(string(chunk))
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return Response{}, errors.New("llm: gemini candidate carried no text parts")
	}

	resp := Response{
		Text:       strings.TrimSpace(text.String()),
		StopReason: string(candidate.FinishReason),
	}
	if out.UsageMetadata != nil {
		resp.Usage = TokenUsage{
			InputTokens:  out.UsageMetadata.PromptTokenCount,
			OutputTokens: out.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  out.UsageMetadata.TotalTokenCount,
		}
	}
	return resp, nil
}
