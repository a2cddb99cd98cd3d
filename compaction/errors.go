package compaction

import "errors"

// Sentinel errors for compaction operations.
var (
	// ErrInvalidConfig indicates invalid compaction configuration.
	ErrInvalidConfig = errors.New("invalid compaction configuration")

	// ErrNoMessagesToCompact indicates there are no messages eligible
	// for compaction.
	ErrNoMessagesToCompact = errors.New("no messages to compact")

	// ErrSummarizationFailed indicates the summary could not be produced.
	// It wraps the provider failure that caused it.
	ErrSummarizationFailed = errors.New("summarization failed")
)
