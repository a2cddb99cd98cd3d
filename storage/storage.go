// Package storage defines the persistence contract for conversations.
// Engines store the append-only message log durably, keep a full-text
// search index transactionally in sync with it, and reconstruct the
// aggregate on load. Two implementations ship with the module:
// storage/sqlite for embedded single-process use and storage/postgres
// for shared deployments.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/youssefsiam38/recall/conversation"
)

// ErrNotFound indicates the conversation does not exist in storage.
var ErrNotFound = errors.New("conversation not found")

// Engine is the durable store behind the memory service. Save is an
// atomic upsert: the conversation row plus every new or flag-changed
// message row land together or not at all, and no normal save ever
// deletes a row. Implementations must be safe for concurrent use.
type Engine interface {
	// Save upserts the conversation row and persists its pending
	// messages in one transaction. On success the conversation is
	// marked saved; on failure it is left untouched so the caller can
	// retry with the same pending set.
	Save(ctx context.Context, c *conversation.Conversation) error

	// Load reconstructs the full aggregate, messages ordered by
	// sequence number. Returns ErrNotFound for unknown IDs.
	Load(ctx context.Context, id string) (*conversation.Conversation, error)

	// List returns conversation metadata without message bodies,
	// newest activity first.
	List(ctx context.Context, filter ListFilter) ([]ConversationInfo, error)

	// Search runs a ranked full-text query over message content and
	// returns snippet-bearing matches. Archived conversations are
	// included; their history is exactly what search is for.
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)

	// Archive marks the conversation read-only and excluded from
	// default listings. Returns ErrNotFound for unknown IDs.
	Archive(ctx context.Context, id string) error

	// Delete removes the conversation, its messages, and its search
	// index entries. Returns ErrNotFound for unknown IDs.
	Delete(ctx context.Context, id string) error

	// Purge hard-deletes non-archived conversations whose last update
	// is older than the cutoff and returns how many went. Archived
	// conversations are never purged.
	Purge(ctx context.Context, olderThan time.Time) (int64, error)

	// Stats reports storage-level counters.
	Stats(ctx context.Context) (Stats, error)

	// Close releases the underlying connections.
	Close() error
}

// ListFilter narrows List results. Zero values mean no constraint,
// except Limit, where zero falls back to a sane default.
type ListFilter struct {
	// IncludeArchived adds archived conversations to the listing.
	IncludeArchived bool

	// Tag keeps only conversations carrying this tag.
	Tag string

	// Model keeps only conversations using this model.
	Model string

	// Limit caps the result count; Offset skips past earlier rows.
	Limit  int
	Offset int
}

// ConversationInfo is the listing view of a conversation: metadata and
// counters, no message bodies.
type ConversationInfo struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Model        string            `json:"model"`
	MaxTokens    int               `json:"max_tokens"`
	TotalTokens  int               `json:"total_tokens"`
	MessageCount int               `json:"message_count"`
	Tags         []string          `json:"tags,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Archived     bool              `json:"archived"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// SearchResult is one full-text match with its display context.
type SearchResult struct {
	ConversationID    string            `json:"conversation_id"`
	ConversationTitle string            `json:"conversation_title"`
	MessageID         string            `json:"message_id"`
	Role              conversation.Role `json:"role"`
	Snippet           string            `json:"snippet"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Stats reports storage-level counters.
type Stats struct {
	Conversations int64 `json:"conversations"`
	Archived      int64 `json:"archived"`
	Messages      int64 `json:"messages"`
	TotalTokens   int64 `json:"total_tokens"`
	SizeBytes     int64 `json:"size_bytes,omitempty"`
}
