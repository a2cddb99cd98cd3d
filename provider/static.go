package provider

import (
	"context"
	"fmt"
	"sync"
)

// Static is a deterministic in-process Provider. It returns a canned
// response without any network traffic, which makes it useful in tests
// and in deployments that want summarization disabled but wired.
type Static struct {
	mu       sync.Mutex
	response string
	err      error
	calls    []Request
}

// NewStatic builds a provider that answers every request with response.
// An empty response makes it derive one from the request, so summaries
// stay non-empty.
func NewStatic(response string) *Static {
	return &Static{response: response}
}

// Fail makes every subsequent Complete call return err. Passing nil
// restores normal answering.
func (p *Static) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Name identifies the backend.
func (p *Static) Name() string { return "static" }

// Complete records the request and returns the canned response.
func (p *Static) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", classifyContext(ctx, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.err != nil {
		return "", p.err
	}
	if p.response != "" {
		return p.response, nil
	}
	return fmt.Sprintf("[recap of %d messages]", len(req.Messages)), nil
}

// Calls returns a copy of every request seen so far.
func (p *Static) Calls() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.calls...)
}

// CallCount returns how many Complete calls were made.
func (p *Static) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
