// Package compaction keeps conversations inside their token budget.
//
// When a conversation's active token count crosses the configured trigger
// ratio of its budget, one bounded compaction pass runs. The pass is
// described by a Plan produced by a Planner; applying the plan is the
// caller's job, which keeps planners pure and lets the caller drop its
// conversation lock around the summarization round trip.
//
// # Strategies
//
//   - Sliding window (StrategySlidingWindow): keeps the pinned messages
//     plus the most recent window of non-pinned messages and marks older
//     ones superseded. No model call, no data synthesized.
//
//   - Summarization (StrategySummarization): selects the oldest
//     contiguous run of non-pinned messages carrying the bulk of the
//     token weight and replaces it with one model-written summary. The
//     originals stay in the log, flagged superseded.
//
//   - Hybrid (StrategyHybrid): summarizes first when over the threshold,
//     then applies the sliding window to bound message count.
//
// Superseded messages are never removed from storage by any strategy;
// only explicit deletion or retention purge does that.
package compaction
