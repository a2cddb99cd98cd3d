package compaction

import (
	"fmt"

	"github.com/youssefsiam38/recall/conversation"
)

// Plan describes the mutations one compaction pass wants to make. Plans
// are computed against a consistent view of the conversation and applied
// by the caller, so producing one never blocks on I/O.
type Plan struct {
	// Evict lists message IDs to mark superseded with no replacement.
	Evict []string

	// Summarize is the contiguous block to replace with a single
	// model-written summary. Empty when the pass needs no summary.
	Summarize []conversation.Message

	// FollowUp, when non-nil, is re-planned against the fresh state
	// after the summary has been applied. Hybrid uses this to bound
	// message count once the summary is in place.
	FollowUp Planner
}

// Empty reports whether the plan changes nothing.
func (p *Plan) Empty() bool {
	return p == nil || (len(p.Evict) == 0 && len(p.Summarize) == 0)
}

// SummarizeIDs returns the IDs of the block to summarize, in order.
func (p *Plan) SummarizeIDs() []string {
	ids := make([]string, len(p.Summarize))
	for i, m := range p.Summarize {
		ids[i] = m.ID
	}
	return ids
}

// Planner computes compaction plans for one strategy. Implementations
// are pure: Plan reads the conversation and allocates a Plan, nothing
// else, so callers may invoke it under their own locking.
type Planner interface {
	// Name returns the strategy this planner implements.
	Name() conversation.Strategy

	// Plan returns the mutations one bounded pass should make. An empty
	// plan means the conversation needs nothing this cycle.
	Plan(c *conversation.Conversation) (*Plan, error)
}

// NewPlanner returns the planner for the conversation's configured
// strategy. Settings are assumed validated by conversation.New; an
// unknown strategy here is a configuration bug.
func NewPlanner(settings conversation.Settings, cfg Config) (Planner, error) {
	cfg.ApplyDefaults()
	switch settings.Strategy {
	case conversation.StrategySlidingWindow:
		return NewSlidingWindow(settings.WindowSize), nil
	case conversation.StrategySummarization:
		return NewSummarization(settings.SummaryThreshold, cfg), nil
	case conversation.StrategyHybrid:
		return NewHybrid(settings, cfg), nil
	case conversation.StrategyNone:
		return noopPlanner{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, settings.Strategy)
	}
}

// ShouldCompact reports whether a compaction pass is due: the active
// token count has reached the trigger fraction of the budget.
func ShouldCompact(c *conversation.Conversation, triggerRatio float64) bool {
	if c.Settings().Strategy == conversation.StrategyNone {
		return false
	}
	if triggerRatio <= 0 {
		triggerRatio = DefaultTriggerRatio
	}
	return float64(c.ActiveTokens()) >= float64(c.MaxTokens())*triggerRatio
}

// noopPlanner backs StrategyNone so callers need no special case.
type noopPlanner struct{}

func (noopPlanner) Name() conversation.Strategy { return conversation.StrategyNone }

func (noopPlanner) Plan(*conversation.Conversation) (*Plan, error) {
	return &Plan{}, nil
}

// activeNonPinned returns the messages a strategy may touch, in display
// order: active, not pinned.
func activeNonPinned(c *conversation.Conversation) []conversation.Message {
	all := c.ActiveMessages()
	out := make([]conversation.Message, 0, len(all))
	for _, m := range all {
		if !m.Pinned() {
			out = append(out, m)
		}
	}
	return out
}
