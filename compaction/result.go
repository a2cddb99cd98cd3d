package compaction

import (
	"time"

	"github.com/youssefsiam38/recall/conversation"
)

// Result records what one compaction pass did. It is reported through
// the event bus and logged; nothing reads it back into the engine.
type Result struct {
	// Strategy is the strategy that ran, which may be the fallback
	// rather than the configured one.
	Strategy conversation.Strategy `json:"strategy"`

	// Evicted is how many messages the pass marked superseded without
	// replacement.
	Evicted int `json:"evicted"`

	// Summarized is how many messages were folded into the summary,
	// zero when no summary was produced.
	Summarized int `json:"summarized"`

	// SummaryID is the inserted summary message's ID, empty when no
	// summary was produced.
	SummaryID string `json:"summary_id,omitempty"`

	// TokensBefore and TokensAfter are the active token counts around
	// the pass.
	TokensBefore int `json:"tokens_before"`
	TokensAfter  int `json:"tokens_after"`

	// Fallback reports that the configured strategy could not complete
	// and the sliding-window fallback ran instead.
	Fallback bool `json:"fallback,omitempty"`

	// Duration is the wall time of the pass, including any model call.
	Duration time.Duration `json:"duration"`
}

// Changed reports whether the pass altered the conversation at all.
func (r *Result) Changed() bool {
	return r != nil && (r.Evicted > 0 || r.Summarized > 0)
}
