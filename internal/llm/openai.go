package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const openaiDefaultModel = "gpt-4o-mini"

type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(apiKey, model string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key not provided")
	}
	if model == "" {
		model = openaiDefaultModel
	}

	return &OpenAI{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

func (o *OpenAI) Generate(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleAssistant {
			params = append(params, openai.AssistantMessage(msg.Content))
		} else {
			params = append(params, openai.UserMessage(msg.Content))
		}
	}

	res, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: params,
		Model:    o.model,
	})
	if err != nil {
		slog.Error("openai error: chat completions failed", "error", err)

		var apierr *openai.Error
		if errors.As(err, &apierr) {
			switch {
			case apierr.StatusCode == http.StatusTooManyRequests:
				return "", ErrRateLimited
			case apierr.StatusCode >= 400 && apierr.StatusCode < 500:
				return "", ErrRejected
			}
		}
		return "", ErrUnavailable
	}

	if len(res.Choices) == 0 {
		return "", ErrUnavailable
	}
	return res.Choices[0].Message.Content, nil
}
