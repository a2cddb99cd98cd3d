package compaction

import (
	"github.com/youssefsiam38/recall/conversation"
)

// Hybrid summarizes old history when the threshold is exceeded, then
// bounds message count with the sliding window. The window runs as a
// follow-up so it sees the conversation after the summary landed,
// including anything appended during the model round trip.
type Hybrid struct {
	summarization *Summarization
	window        *SlidingWindow
}

// NewHybrid builds a hybrid planner from the conversation settings.
func NewHybrid(settings conversation.Settings, cfg Config) *Hybrid {
	return &Hybrid{
		summarization: NewSummarization(settings.SummaryThreshold, cfg),
		window:        NewSlidingWindow(settings.WindowSize),
	}
}

// Name returns the strategy this planner implements.
func (h *Hybrid) Name() conversation.Strategy {
	return conversation.StrategyHybrid
}

// Plan summarizes first when a block is due, deferring the window to a
// follow-up pass; otherwise it plans the window eviction directly.
func (h *Hybrid) Plan(c *conversation.Conversation) (*Plan, error) {
	if block := h.summarization.selectBlock(c); len(block) > 0 {
		return &Plan{Summarize: block, FollowUp: h.window}, nil
	}
	return h.window.Plan(c)
}
