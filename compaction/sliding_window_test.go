package compaction

import (
	"testing"

	"github.com/youssefsiam38/recall/conversation"
)

func buildConversation(t *testing.T, maxTokens int, settings conversation.Settings) *conversation.Conversation {
	t.Helper()
	c, err := conversation.New("claude-3-5-haiku-20241022", maxTokens, settings)
	if err != nil {
		t.Fatalf("conversation.New: %v", err)
	}
	return c
}

func appendN(t *testing.T, c *conversation.Conversation, n, tokens int) []conversation.Message {
	t.Helper()
	out := make([]conversation.Message, 0, n)
	for i := 0; i < n; i++ {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAssistant
		}
		m, err := c.Append(role, "turn", tokens)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		out = append(out, m)
	}
	return out
}

func applyEvict(t *testing.T, c *conversation.Conversation, plan *Plan) {
	t.Helper()
	if len(plan.Evict) == 0 {
		return
	}
	if _, err := c.Supersede(plan.Evict...); err != nil {
		t.Fatalf("Supersede: %v", err)
	}
}

func TestSlidingWindow_Plan(t *testing.T) {
	settings := conversation.Settings{Strategy: conversation.StrategySlidingWindow, WindowSize: 4}
	c := buildConversation(t, 1000, settings)
	if _, err := c.Append(conversation.RoleSystem, "pinned", 5); err != nil {
		t.Fatalf("Append: %v", err)
	}
	msgs := appendN(t, c, 10, 10)

	w := NewSlidingWindow(4)
	plan, err := w.Plan(c)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Evict) != 6 {
		t.Fatalf("plan evicts %d, want 6", len(plan.Evict))
	}
	// The oldest six non-pinned messages go, in order.
	for i, id := range plan.Evict {
		if id != msgs[i].ID {
			t.Errorf("evict[%d] = %s, want %s", i, id, msgs[i].ID)
		}
	}

	applyEvict(t, c, plan)

	active := c.ActiveMessages()
	if len(active) != 5 {
		t.Fatalf("%d active after window, want pinned + 4", len(active))
	}
	if !active[0].Pinned() {
		t.Error("pinned message missing from active set")
	}
	for i, m := range active[1:] {
		want := msgs[6+i].ID
		if m.ID != want {
			t.Errorf("active[%d] = %s, want %s", i+1, m.ID, want)
		}
	}
}

func TestSlidingWindow_NoEvictionWhenWithinWindow(t *testing.T) {
	settings := conversation.Settings{Strategy: conversation.StrategySlidingWindow, WindowSize: 5}
	c := buildConversation(t, 1000, settings)
	appendN(t, c, 4, 10)

	plan, err := NewSlidingWindow(5).Plan(c)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !plan.Empty() {
		t.Fatalf("plan evicts %d messages within the window", len(plan.Evict))
	}
}

func TestSlidingWindow_FreshSummarySurvives(t *testing.T) {
	settings := conversation.Settings{Strategy: conversation.StrategyHybrid, WindowSize: 3, SummaryThreshold: 50}
	c := buildConversation(t, 1000, settings)
	msgs := appendN(t, c, 6, 10)

	summary, err := c.ApplySummary("recap", 5, []string{msgs[0].ID, msgs[1].ID})
	if err != nil {
		t.Fatalf("ApplySummary: %v", err)
	}

	plan, err := NewSlidingWindow(3).Plan(c)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	for _, id := range plan.Evict {
		if id == summary.ID {
			t.Fatal("window evicted the just-inserted summary")
		}
	}
	// Active non-pinned by sequence: msgs[2..5] then summary; keeping 3
	// evicts msgs[2] and msgs[3].
	if len(plan.Evict) != 2 {
		t.Fatalf("plan evicts %d, want 2", len(plan.Evict))
	}
	if plan.Evict[0] != msgs[2].ID || plan.Evict[1] != msgs[3].ID {
		t.Errorf("evicted %v, want the two oldest surviving turns", plan.Evict)
	}
}

func TestFallbackPlan_UsesWindowWhenConfigured(t *testing.T) {
	settings := conversation.Settings{Strategy: conversation.StrategyHybrid, WindowSize: 2, SummaryThreshold: 30}
	c := buildConversation(t, 100, settings)
	appendN(t, c, 6, 10)

	plan := FallbackPlan(c, DefaultConfig())
	if len(plan.Evict) != 4 {
		t.Fatalf("fallback evicts %d, want 4", len(plan.Evict))
	}
	applyEvict(t, c, plan)
	if got := len(activeNonPinned(c)); got != 2 {
		t.Errorf("%d non-pinned active after fallback, want 2", got)
	}
}

func TestFallbackPlan_TokenTargetWithoutWindow(t *testing.T) {
	settings := conversation.Settings{Strategy: conversation.StrategySummarization, SummaryThreshold: 40}
	c := buildConversation(t, 100, settings)
	appendN(t, c, 8, 10)

	// Target is 40% of 100 = 40 tokens; 80 active means 40 must go,
	// which is the four oldest messages.
	plan := FallbackPlan(c, DefaultConfig())
	if len(plan.Evict) != 4 {
		t.Fatalf("fallback evicts %d, want 4", len(plan.Evict))
	}
	applyEvict(t, c, plan)
	if got := c.ActiveTokens(); got != 40 {
		t.Errorf("active tokens after fallback = %d, want 40", got)
	}
}

func TestFallbackPlan_NothingToDoUnderTarget(t *testing.T) {
	settings := conversation.Settings{Strategy: conversation.StrategySummarization, SummaryThreshold: 40}
	c := buildConversation(t, 1000, settings)
	appendN(t, c, 3, 10)

	plan := FallbackPlan(c, DefaultConfig())
	if !plan.Empty() {
		t.Fatalf("fallback under target evicts %d messages", len(plan.Evict))
	}
}
