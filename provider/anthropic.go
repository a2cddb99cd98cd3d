package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/youssefsiam38/recall/conversation"
)

// Anthropic completes requests against the Anthropic Messages API. The
// response is streamed and accumulated so long summaries do not hit the
// non-streaming response limits.
type Anthropic struct {
	client *anthropic.Client
}

// NewAnthropic wraps an existing Anthropic client.
func NewAnthropic(client *anthropic.Client) *Anthropic {
	return &Anthropic{client: client}
}

// NewAnthropicFromEnv builds a provider whose client reads its API key
// from the ANTHROPIC_API_KEY environment variable.
func NewAnthropicFromEnv() *Anthropic {
	client := anthropic.NewClient()
	return &Anthropic{client: &client}
}

// Name identifies the backend.
func (p *Anthropic) Name() string { return "anthropic" }

// Complete streams a completion and returns the accumulated text.
func (p *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  toAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return "", fmt.Errorf("%w: failed to accumulate stream: %v", ErrProvider, err)
		}
	}
	if err := stream.Err(); err != nil {
		return "", classifyAnthropicError(ctx, err)
	}

	var out strings.Builder
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(text.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrProvider)
	}
	return out.String(), nil
}

// toAnthropicMessages converts neutral turns into SDK params. System
// content never appears here; it travels in MessageNewParams.System.
func toAnthropicMessages(msgs []conversation.ContextMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == conversation.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

// classifyAnthropicError folds SDK failures into the package sentinels.
func classifyAnthropicError(ctx context.Context, err error) error {
	if sentinel := classifyContext(ctx, err); sentinel != nil {
		if errors.Is(sentinel, context.Canceled) {
			return sentinel
		}
		return fmt.Errorf("%w: %v", sentinel, err)
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case apiErr.StatusCode == 408 || apiErr.StatusCode == 504:
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrProvider, err)
}
