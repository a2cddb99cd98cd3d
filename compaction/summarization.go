package compaction

import (
	"github.com/youssefsiam38/recall/conversation"
)

// Summarization replaces the oldest run of non-pinned messages with one
// model-written summary once the non-pinned token sum exceeds the
// configured threshold. Planning only selects the block; producing the
// summary text is the Summarizer's job, and applying the result is the
// caller's, so no lock is held across the model round trip.
type Summarization struct {
	threshold    int
	retainRatio  float64
	preserveLast int
}

// NewSummarization builds a summarization planner. threshold is the
// non-pinned token sum above which a pass selects a block.
func NewSummarization(threshold int, cfg Config) *Summarization {
	cfg.ApplyDefaults()
	return &Summarization{
		threshold:    threshold,
		retainRatio:  cfg.RetainRatio,
		preserveLast: cfg.PreserveLast,
	}
}

// Name returns the strategy this planner implements.
func (s *Summarization) Name() conversation.Strategy {
	return conversation.StrategySummarization
}

// Plan selects the block to summarize, or returns an empty plan when the
// conversation is under threshold or too small to be worth a summary.
func (s *Summarization) Plan(c *conversation.Conversation) (*Plan, error) {
	return &Plan{Summarize: s.selectBlock(c)}, nil
}

// selectBlock picks the oldest contiguous run of active non-pinned
// messages, in display order, whose combined tokens bring the active
// count back under the retain target. Earlier summaries are eligible
// like any other message, so long histories fold into fewer, broader
// summaries over time. The most recent preserveLast messages are never
// included, and a block of fewer than two messages is not worth the
// summary that would replace it.
func (s *Summarization) selectBlock(c *conversation.Conversation) []conversation.Message {
	eligible := activeNonPinned(c)

	nonPinnedTokens := 0
	for _, m := range eligible {
		nonPinnedTokens += m.TokenCount
	}
	if s.threshold <= 0 || nonPinnedTokens <= s.threshold {
		return nil
	}

	target := int(s.retainRatio * float64(c.MaxTokens()))
	need := c.ActiveTokens() - target
	if need <= 0 {
		return nil
	}

	limit := len(eligible) - s.preserveLast
	if limit < 2 {
		return nil
	}

	var block []conversation.Message
	freed := 0
	for _, m := range eligible[:limit] {
		if freed >= need {
			break
		}
		block = append(block, m)
		freed += m.TokenCount
	}
	if len(block) < 2 {
		return nil
	}
	return block
}
