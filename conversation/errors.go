package conversation

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrValidation is the base for all input validation failures.
	// Validation errors are returned before any mutation takes place.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidRole is returned when a message role is not one of
	// system, user, or assistant.
	ErrInvalidRole = fmt.Errorf("%w: invalid role", ErrValidation)

	// ErrInvalidStrategy is returned for an unknown compaction strategy.
	ErrInvalidStrategy = fmt.Errorf("%w: invalid strategy", ErrValidation)

	// ErrInvalidBudget is returned for a non-positive max_tokens budget.
	ErrInvalidBudget = fmt.Errorf("%w: max tokens must be positive", ErrValidation)

	// ErrBudgetExceeded is returned by context building when the pinned
	// messages alone exceed the budget, or when strategy=none and the
	// full active context does not fit.
	ErrBudgetExceeded = errors.New("token budget exceeded")

	// ErrArchived is returned when mutating an archived conversation.
	ErrArchived = errors.New("conversation is archived")

	// ErrUnknownMessage is returned when an operation references a
	// message ID that does not exist in the conversation.
	ErrUnknownMessage = errors.New("unknown message")

	// ErrPinnedMessage is returned when a strategy tries to supersede a
	// pinned (system) message.
	ErrPinnedMessage = errors.New("cannot supersede a pinned message")

	// ErrAlreadySuperseded is returned when summarizing a block that
	// contains an already superseded message.
	ErrAlreadySuperseded = errors.New("message already superseded")
)
