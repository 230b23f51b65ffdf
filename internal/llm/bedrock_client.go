package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient implements Client on the Bedrock Converse API.
type BedrockClient struct {
	api bedrockConverseAPI
}

func NewBedrockClient(api bedrockConverseAPI) *BedrockClient {
	if api == nil {
		panic("llm: bedrock converse client cannot be nil")
	}
	return &BedrockClient{api: api}
}

func (c *BedrockClient) Complete(ctx context.Context, req Request) (Response, error) {
	input, err := buildConverseInput(req)
	if err != nil {
		return Response{}, err
	}

	out, err := c.api.Converse(ctx, input)
	if err != nil {
		return Response{}, fmt.Errorf("llm: bedrock converse: %w", err)
	}

	text, err := converseText(out)
	if err != nil {
		return Response{}, err
	}

	resp := Response{
		Text:       strings.TrimSpace(text),
		StopReason: string(out.StopReason),
	}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  aws.ToInt32(out.Usage.InputTokens),
			OutputTokens: aws.ToInt32(out.Usage.OutputTokens),
			TotalTokens:  aws.ToInt32(out.Usage.TotalTokens),
		}
	}
	return resp, nil
}

func buildConverseInput(req Request) (*bedrockruntime.ConverseInput, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.New("llm: bedrock model id is required")
	}

	var system []brtypes.SystemContentBlock
	var messages []brtypes.Message
	appendSystem := func(text string) {
		system = append(system, &brtypes.SystemContentBlockMemberText{Value: text})
	}

	for _, block := range req.System {
		if strings.TrimSpace(block) != "" {
			appendSystem(block)
		}
	}
	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		// Converse carries system text out of band, not as a turn.
		if msg.Role == ChatRoleSystem {
			appendSystem(content)
			continue
		}
		role, ok := converseRole(msg.Role)
		if !ok {
			return nil, fmt.Errorf("llm: unsupported chat role %q", msg.Role)
		}
		messages = append(messages, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: content}},
		})
	}

	return &bedrockruntime.ConverseInput{
		ModelId:         aws.String(req.Model),
		System:          system,
		Messages:        messages,
		InferenceConfig: inferenceConfig(req),
	}, nil
}

func converseRole(role string) (brtypes.ConversationRole, bool) {
	switch role {
	case ChatRoleUser:
		return brtypes.ConversationRoleUser, true
	case ChatRoleAssistant:
		return brtypes.ConversationRoleAssistant, true
	}
	return "", false
}

func inferenceConfig(req Request) *brtypes.InferenceConfiguration {
	cfg := &brtypes.InferenceConfiguration{}
	set := false
	if req.MaxTokens > 0 {
		cfg.MaxTokens = aws.Int32(req.MaxTokens)
		set = true
	}
	// Negative temperature means the caller wants the provider default.
	if req.Temperature >= 0 {
		cfg.Temperature = aws.Float32(req.Temperature)
		set = true
	}
	if req.TopP > 0 {
		cfg.TopP = aws.Float32(req.TopP)
		set = true
	}
	if !set {
		return nil
	}
	return cfg
}

func converseText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", errors.New("llm: bedrock response is nil")
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("llm: bedrock response carried no message output")
	}

	var text strings.Builder
	for _, block := range msg.Value.Content {
		if chunk, ok := block.(*brtypes.ContentBlockMemberText); ok {
			text.WriteString(chunk.Value)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", errors.New("llm: bedrock response carried no text blocks")
	}
	return text.String(), nil
}
