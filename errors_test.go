package recall

import (
	"errors"
	"testing"

	"github.com/youssefsiam38/recall/storage"
)

func TestMemoryErrorFormat(t *testing.T) {
	err := NewMemoryError("Stop", ErrNotStarted)
	if got := err.Error(); got != "Stop: service not started" {
		t.Errorf("Error() = %q", got)
	}

	err = NewMemoryErrorWithConversation("AddMessage", "conv-1", storage.ErrNotFound)
	want := "AddMessage (conversation=conv-1): conversation not found"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestMemoryErrorUnwrap(t *testing.T) {
	err := NewMemoryErrorWithConversation("Get", "conv-1", storage.ErrNotFound)

	if !errors.Is(err, storage.ErrNotFound) {
		t.Error("errors.Is does not reach the wrapped sentinel")
	}
	var memErr *MemoryError
	if !errors.As(err, &memErr) {
		t.Fatal("errors.As failed")
	}
	if memErr.Op != "Get" || memErr.ConversationID != "conv-1" {
		t.Errorf("op/id = %q/%q", memErr.Op, memErr.ConversationID)
	}
}

func TestMemoryErrorWithContext(t *testing.T) {
	err := NewMemoryError("WithProvider", ErrInvalidConfig).
		WithContext("reason", "provider must not be nil").
		WithContext("attempt", 1)

	if err.Context["reason"] != "provider must not be nil" {
		t.Errorf("Context[reason] = %v", err.Context["reason"])
	}
	if err.Context["attempt"] != 1 {
		t.Errorf("Context[attempt] = %v", err.Context["attempt"])
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Error("context chaining broke unwrapping")
	}
}
