package recall

import (
	"errors"
	"fmt"

	"github.com/youssefsiam38/recall/conversation"
)

// Common errors
var (
	// ErrInvalidConfig is returned when the service configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoConversation is returned when an operation needs a current
	// conversation and none is set
	ErrNoConversation = errors.New("no conversation loaded")

	// ErrConflict is returned when a conversation changed incompatibly
	// while a summarization round trip was in flight
	ErrConflict = errors.New("conversation changed during compaction")

	// ErrAlreadyStarted is returned when Start() is called twice
	ErrAlreadyStarted = errors.New("service already started")

	// ErrNotStarted is returned when calling lifecycle methods before Start()
	ErrNotStarted = errors.New("service not started")
)

// Re-exported conversation sentinels, so common errors.Is checks don't
// need a second import.
var (
	// ErrValidation is returned for invalid input (bad role, non-positive
	// budget, unknown strategy), always before any mutation
	ErrValidation = conversation.ErrValidation

	// ErrBudgetExceeded is returned by context building when even the
	// retained messages cannot fit the budget
	ErrBudgetExceeded = conversation.ErrBudgetExceeded

	// ErrArchived is returned when mutating an archived conversation
	ErrArchived = conversation.ErrArchived
)

// MemoryError represents an error with additional context
type MemoryError struct {
	Op             string         // Operation that failed
	Err            error          // Underlying error
	ConversationID string         // Conversation ID if applicable
	Context        map[string]any // Additional context
}

// Error implements the error interface
func (e *MemoryError) Error() string {
	if e.ConversationID != "" {
		return fmt.Sprintf("%s (conversation=%s): %v", e.Op, e.ConversationID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// WithContext adds additional context to the error
func (e *MemoryError) WithContext(key string, value any) *MemoryError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewMemoryError creates a new MemoryError
func NewMemoryError(op string, err error) *MemoryError {
	return &MemoryError{
		Op:  op,
		Err: err,
	}
}

// NewMemoryErrorWithConversation creates a new MemoryError with a conversation ID
func NewMemoryErrorWithConversation(op string, conversationID string, err error) *MemoryError {
	return &MemoryError{
		Op:             op,
		Err:            err,
		ConversationID: conversationID,
	}
}
