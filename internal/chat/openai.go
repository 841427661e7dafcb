package chat

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go/v3"
)

// OpenAI is a Backend on the Chat Completions API.
type OpenAI struct {
	client openai.Client
}

func NewOpenAI(client openai.Client) *OpenAI {
	return &OpenAI{client: client}
}

func (o *OpenAI) Complete(ctx context.Context, model string, history []Message) (Completion, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleUser:
			msgs = append(msgs, openai.UserMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			return Completion{}, fmt.Errorf("unknown role %q", m.Role)
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    openai.ChatModel(model),
	})
	if err != nil {
		return Completion{}, err
	}

	out := Completion{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: Usage{
			CompletionTokens: resp.Usage.CompletionTokens,
			PromptTokens:     resp.Usage.PromptTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, choice := range resp.Choices {
		out.Choices = append(out.Choices, choice.Message.Content)
	}

	return out, nil
}
