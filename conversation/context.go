package conversation

import (
	"fmt"
	"sort"
)

// ContextForInference builds the active context: the ordered (role,
// content) list a caller sends to a model. maxTokens overrides the
// conversation budget when positive; zero or negative means use it.
//
// Pinned messages come first, in original order, unconditionally; if their
// combined cost alone exceeds the budget this fails with ErrBudgetExceeded
// rather than dropping one. Non-pinned messages are then taken newest
// first — whole messages only — walking backward until the next one would
// overflow the budget, and finally re-sorted into chronological order.
//
// This is a pure read: two calls with no mutation in between return
// identical results.
func (c *Conversation) ContextForInference(maxTokens int) ([]ContextMessage, error) {
	budget := maxTokens
	if budget <= 0 {
		budget = c.maxTokens
	}

	pinnedTokens := 0
	var pinned []Message
	for _, m := range c.messages {
		if m.Pinned() && !m.Superseded {
			pinned = append(pinned, m)
			pinnedTokens += m.TokenCount
		}
	}
	if pinnedTokens > budget {
		return nil, fmt.Errorf("%w: pinned messages cost %d of %d", ErrBudgetExceeded, pinnedTokens, budget)
	}

	// strategy=none promises the caller the full history or an error,
	// never a silent truncation.
	if c.settings.Strategy == StrategyNone && c.activeTokens > budget {
		return nil, fmt.Errorf("%w: active context costs %d of %d", ErrBudgetExceeded, c.activeTokens, budget)
	}

	// Walk newest to oldest by sequence number, taking whole messages
	// while they fit. Stopping at the first overflow keeps the included
	// set a contiguous recent run instead of leaving gaps mid-history.
	remaining := budget - pinnedTokens
	var included []Message
	for i := len(c.messages) - 1; i >= 0; i-- {
		m := c.messages[i]
		if m.Pinned() || m.Superseded {
			continue
		}
		if m.TokenCount > remaining {
			break
		}
		included = append(included, m)
		remaining -= m.TokenCount
	}

	// Back into chronological order. Anchors place summaries at the
	// position of the earliest message they replaced.
	sort.SliceStable(included, func(i, j int) bool {
		ai, aj := c.anchors[included[i].ID], c.anchors[included[j].ID]
		if ai != aj {
			return ai < aj
		}
		return included[i].SequenceNumber < included[j].SequenceNumber
	})

	out := make([]ContextMessage, 0, len(pinned)+len(included))
	for _, m := range pinned {
		out = append(out, ContextMessage{Role: m.Role, Content: m.Content})
	}
	for _, m := range included {
		out = append(out, ContextMessage{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

// ContextTokens returns the token cost of the context that
// ContextForInference would return for the given budget.
func (c *Conversation) ContextTokens(maxTokens int) (int, error) {
	budget := maxTokens
	if budget <= 0 {
		budget = c.maxTokens
	}

	total := 0
	for _, m := range c.messages {
		if m.Pinned() && !m.Superseded {
			total += m.TokenCount
		}
	}
	if total > budget {
		return 0, fmt.Errorf("%w: pinned messages cost %d of %d", ErrBudgetExceeded, total, budget)
	}
	if c.settings.Strategy == StrategyNone && c.activeTokens > budget {
		return 0, fmt.Errorf("%w: active context costs %d of %d", ErrBudgetExceeded, c.activeTokens, budget)
	}

	remaining := budget - total
	for i := len(c.messages) - 1; i >= 0; i-- {
		m := c.messages[i]
		if m.Pinned() || m.Superseded {
			continue
		}
		if m.TokenCount > remaining {
			break
		}
		total += m.TokenCount
		remaining -= m.TokenCount
	}
	return total, nil
}
