package compaction

import (
	"context"
	"fmt"

	"github.com/youssefsiam38/recall/conversation"
	"github.com/youssefsiam38/recall/provider"
)

// Summarizer turns a block of messages into summary text through a
// model backend. It owns the prompt and the request shape; block
// selection and result application stay with the caller.
type Summarizer struct {
	provider    provider.Provider
	model       string
	maxTokens   int
	temperature float64
}

// NewSummarizer builds a summarizer using the given backend and model.
// maxTokens caps the summary length; zero lets the backend default.
func NewSummarizer(p provider.Provider, model string, maxTokens int) *Summarizer {
	return &Summarizer{
		provider:  p,
		model:     model,
		maxTokens: maxTokens,
	}
}

// Summarize produces summary text for the block. Every failure wraps
// ErrSummarizationFailed so callers trigger their fallback path with a
// single errors.Is check.
func (s *Summarizer) Summarize(ctx context.Context, block []conversation.Message) (string, error) {
	if len(block) == 0 {
		return "", ErrNoMessagesToCompact
	}

	userPrompt := BuildSummarizationUserPrompt(FormatMessagesAsText(block))
	text, err := s.provider.Complete(ctx, provider.Request{
		Model:  s.model,
		System: SummarizationSystemPrompt,
		Messages: []conversation.ContextMessage{
			{Role: conversation.RoleUser, Content: userPrompt},
		},
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
	}
	return text, nil
}
