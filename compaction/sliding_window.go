package compaction

import (
	"github.com/youssefsiam38/recall/conversation"
)

// SlidingWindow keeps the pinned messages plus the most recent size
// non-pinned messages by sequence number, superseding everything older.
// It is also the fallback applied when a summarization pass cannot
// complete, since it needs no model call.
type SlidingWindow struct {
	size int
}

// NewSlidingWindow builds a window planner keeping size messages.
func NewSlidingWindow(size int) *SlidingWindow {
	return &SlidingWindow{size: size}
}

// Name returns the strategy this planner implements.
func (s *SlidingWindow) Name() conversation.Strategy {
	return conversation.StrategySlidingWindow
}

// Plan marks everything outside the window for eviction.
func (s *SlidingWindow) Plan(c *conversation.Conversation) (*Plan, error) {
	return &Plan{Evict: windowEvictIDs(c, s.size)}, nil
}

// windowEvictIDs returns the IDs of active non-pinned messages older
// than the newest size, in sequence order. Recency is judged by
// sequence number, so a freshly inserted summary always survives the
// window that follows it.
func windowEvictIDs(c *conversation.Conversation, size int) []string {
	if size <= 0 {
		return nil
	}
	var eligible []conversation.Message
	for _, m := range c.Messages() {
		if !m.Superseded && !m.Pinned() {
			eligible = append(eligible, m)
		}
	}
	if len(eligible) <= size {
		return nil
	}
	evict := eligible[:len(eligible)-size]
	ids := make([]string, len(evict))
	for i, m := range evict {
		ids[i] = m.ID
	}
	return ids
}

// FallbackPlan builds the eviction-only plan used when a summarization
// pass fails or conflicts. Conversations with a window size fall back to
// that window; summarization-only conversations evict their oldest
// messages until the active count is back under the retain target.
func FallbackPlan(c *conversation.Conversation, cfg Config) *Plan {
	cfg.ApplyDefaults()
	if k := c.Settings().WindowSize; k > 0 {
		return &Plan{Evict: windowEvictIDs(c, k)}
	}

	target := int(cfg.RetainRatio * float64(c.MaxTokens()))
	over := c.ActiveTokens() - target
	if over <= 0 {
		return &Plan{}
	}

	var ids []string
	freed := 0
	eligible := activeNonPinned(c)
	// Never evict the most recent messages; they are the live exchange.
	keep := cfg.PreserveLast
	if keep >= len(eligible) {
		return &Plan{}
	}
	for _, m := range eligible[:len(eligible)-keep] {
		if freed >= over {
			break
		}
		ids = append(ids, m.ID)
		freed += m.TokenCount
	}
	return &Plan{Evict: ids}
}
