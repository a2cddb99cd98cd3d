// Package provider abstracts the model backends used to generate
// conversation summaries. Implementations translate a neutral completion
// request into their SDK's wire format and classify SDK failures into the
// package's sentinel errors so callers can retry rate limits and timeouts
// without knowing which backend is wired in.
package provider

import (
	"context"
	"errors"

	"github.com/youssefsiam38/recall/conversation"
)

// Completion errors. Backends wrap their SDK failures in exactly one of
// these so callers can branch with errors.Is.
var (
	// ErrProvider is the base error for backend failures that are neither
	// rate limits nor timeouts.
	ErrProvider = errors.New("provider error")

	// ErrRateLimited indicates the backend rejected the request with a
	// rate limit. Safe to retry after a delay.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrTimeout indicates the request ran out of time, either the
	// caller's context deadline or the backend's own.
	ErrTimeout = errors.New("provider timeout")
)

// Request is a neutral, backend-independent completion request. Pinned
// system content travels in System; Messages carry only the user and
// assistant turns.
type Request struct {
	// Model is the backend model ID. Required.
	Model string

	// System is the system prompt, empty for none.
	System string

	// Messages is the conversation to complete, oldest first.
	Messages []conversation.ContextMessage

	// MaxTokens caps the completion length. Backends substitute their
	// default when zero.
	MaxTokens int

	// Temperature controls sampling randomness. Zero leaves the backend
	// default in place.
	Temperature float64
}

// Provider generates a completion for a request. Implementations must be
// safe for concurrent use.
type Provider interface {
	// Name identifies the backend, e.g. "anthropic".
	Name() string

	// Complete returns the full completion text. The returned error is
	// nil or wraps one of the package sentinels.
	Complete(ctx context.Context, req Request) (string, error)
}

// classifyContext maps context cancellation causes onto the package
// sentinels. Returns nil when the context is still live, meaning the
// failure came from the backend itself.
func classifyContext(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		return context.Canceled
	}
	return nil
}
