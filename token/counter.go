// Package token provides deterministic token accounting for conversation
// messages. Counts are character-based approximations (~4 characters per
// token), which is the only scheme that can be computed offline, synchronously,
// and identically on every call. Exact provider-side counts differ slightly;
// budgets built on these estimates should leave normal headroom.
package token

import (
	"github.com/youssefsiam38/recall/conversation"
)

// Framing overheads applied on top of raw content cost. These approximate
// the wire cost of message structure (role markers, delimiters) rather than
// the content itself.
const (
	// messageOverhead covers per-message framing (~4 tokens for structure).
	messageOverhead = 4

	// fieldOverhead covers each named field sent alongside content (role).
	fieldOverhead = 1

	// sequenceOverhead covers the reply priming added once per request.
	sequenceOverhead = 3
)

// Counter counts tokens for text and message sequences. The zero value is
// not usable; create one with NewCounter.
type Counter struct {
	models map[string]ModelInfo
}

// NewCounter creates a Counter backed by the KnownModels registry.
func NewCounter() *Counter {
	return &Counter{models: KnownModels}
}

// ModelInfo returns the registry entry for model, falling back to defaults
// for unknown IDs.
func (c *Counter) ModelInfo(model string) ModelInfo {
	if info, ok := c.models[model]; ok {
		return info
	}
	return GetModelInfo(model)
}

// Count returns the approximate token cost of text for the given model.
// It is a pure function of (text, model): same inputs, same result, no I/O.
// Empty text costs zero; any non-empty text costs at least one token.
func (c *Counter) Count(text, model string) int {
	return approximate(text)
}

// CountMessage returns the cost of a single message including framing
// overhead: content cost plus the per-message and per-field constants.
func (c *Counter) CountMessage(role conversation.Role, content, model string) int {
	return c.Count(content, model) + messageOverhead + fieldOverhead
}

// CountSequence returns the cost of sending msgs as one request: the sum of
// CountMessage over the slice plus the reply-primer overhead, added once.
func (c *Counter) CountSequence(msgs []conversation.ContextMessage, model string) int {
	if len(msgs) == 0 {
		return 0
	}
	total := sequenceOverhead
	for _, m := range msgs {
		total += c.CountMessage(m.Role, m.Content, model)
	}
	return total
}

// approximate estimates token count from character count using ~4 characters
// per token, with a minimum of 1 token for non-empty text.
func approximate(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := (len(text) + 3) / 4
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
