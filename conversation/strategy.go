package conversation

// Strategy selects the compaction policy for a conversation. The set is
// closed; execution lives in the compaction package, one planner per value.
type Strategy string

const (
	// StrategySlidingWindow keeps pinned messages plus the last k
	// non-pinned messages; older ones are marked superseded.
	StrategySlidingWindow Strategy = "sliding_window"

	// StrategySummarization replaces the oldest block of messages with a
	// provider-generated summary once a token threshold is crossed.
	StrategySummarization Strategy = "summarization"

	// StrategyHybrid summarizes first when over threshold, then applies a
	// sliding window to bound message count.
	StrategyHybrid Strategy = "hybrid"

	// StrategyNone never compacts. Context requests that exceed budget
	// fail with ErrBudgetExceeded instead of silently dropping data.
	StrategyNone Strategy = "none"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategySlidingWindow, StrategySummarization, StrategyHybrid, StrategyNone:
		return true
	}
	return false
}

// Settings are the per-conversation strategy parameters, snapshotted at
// creation time. Changing service configuration mid-conversation affects
// only conversations created afterward.
type Settings struct {
	// Strategy is the compaction policy.
	Strategy Strategy `json:"strategy"`

	// WindowSize is k for sliding_window and hybrid, and the fallback
	// window when a summarization pass aborts.
	WindowSize int `json:"window_size"`

	// SummaryThreshold is the active non-pinned token sum above which
	// summarization and hybrid start summarizing.
	SummaryThreshold int `json:"summary_threshold"`
}
