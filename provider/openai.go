package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/youssefsiam38/recall/conversation"
)

// OpenAI completes requests against the OpenAI chat completions API, or
// any compatible endpoint when a base URL override is given.
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI builds a provider for the given API key. baseURL overrides
// the endpoint for OpenAI-compatible servers; empty keeps the default.
func NewOpenAI(apiKey, baseURL string) *OpenAI {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(clientConfig)}
}

// NewOpenAIWithClient wraps an existing client.
func NewOpenAIWithClient(client *openai.Client) *OpenAI {
	return &OpenAI{client: client}
}

// Name identifies the backend.
func (p *OpenAI) Name() string { return "openai" }

// Complete issues a non-streaming chat completion.
func (p *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    toOpenAIRole(m.Role),
			Content: m.Content,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return "", classifyOpenAIError(ctx, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: empty completion", ErrProvider)
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIRole(role conversation.Role) string {
	switch role {
	case conversation.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case conversation.RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}

// classifyOpenAIError folds SDK failures into the package sentinels.
func classifyOpenAIError(ctx context.Context, err error) error {
	if sentinel := classifyContext(ctx, err); sentinel != nil {
		if errors.Is(sentinel, context.Canceled) {
			return sentinel
		}
		return fmt.Errorf("%w: %v", sentinel, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case apiErr.HTTPStatusCode == 408 || apiErr.HTTPStatusCode == 504:
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrProvider, err)
}
