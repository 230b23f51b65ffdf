package llm

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	return f.out, f.err
}

func converseReply(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: text}},
			},
		},
		StopReason: brtypes.StopReasonEndTurn,
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(12),
			OutputTokens: aws.Int32(4),
			TotalTokens:  aws.Int32(16),
		},
	}
}

func TestBedrockClientComplete(t *testing.T) {
	api := &fakeConverse{out: converseReply("  hola  ")}
	client := NewBedrockClient(api)

	resp, err := client.Complete(context.Background(), Request{
		Model:       "anthropic.claude-3-haiku",
		System:      []string{"eres un asistente"},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "hola"}},
		MaxTokens:   256,
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text != "hola" {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Usage.TotalTokens != 16 {
		t.Errorf("total tokens = %d", resp.Usage.TotalTokens)
	}
	if got := aws.ToString(api.input.ModelId); got != "anthropic.claude-3-haiku" {
		t.Errorf("model id = %q", got)
	}
	if len(api.input.System) != 1 {
		t.Errorf("system blocks = %d", len(api.input.System))
	}
	if api.input.InferenceConfig == nil || aws.ToInt32(api.input.InferenceConfig.MaxTokens) != 256 {
		t.Error("inference config not forwarded")
	}
}

func TestBedrockClientSystemMessagesLeaveTheTurnList(t *testing.T) {
	api := &fakeConverse{out: converseReply("ok")}
	client := NewBedrockClient(api)

	_, err := client.Complete(context.Background(), Request{
		Model: "m",
		Messages: []ChatMessage{
			{Role: ChatRoleSystem, Content: "contexto"},
			{Role: ChatRoleUser, Content: "hola"},
		},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(api.input.Messages) != 1 {
		t.Errorf("messages = %d, system text must ride the system blocks", len(api.input.Messages))
	}
	if len(api.input.System) != 1 {
		t.Errorf("system blocks = %d", len(api.input.System))
	}
}

func TestBedrockClientRejectsMissingModel(t *testing.T) {
	client := NewBedrockClient(&fakeConverse{})
	if _, err := client.Complete(context.Background(), Request{}); err == nil {
		t.Fatal("expected error for empty model id")
	}
}

func TestBedrockClientRejectsUnknownRole(t *testing.T) {
	client := NewBedrockClient(&fakeConverse{})
	_, err := client.Complete(context.Background(), Request{
		Model:    "m",
		Messages: []ChatMessage{{Role: "tool", Content: "x"}},
	})
	if err == nil {
		t.Fatal("expected error for unsupported role")
	}
}
