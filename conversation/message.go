package conversation

import (
	"time"
)

// Role identifies the author of a message.
type Role string

// Message roles. System messages are pinned: never evicted by any strategy
// and always first in derived context.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single conversation turn. Messages are immutable once
// created except for the Superseded flag, which controls visibility in
// derived context, never storage presence.
type Message struct {
	// ID is an opaque unique key (UUID).
	ID string `json:"id"`

	// Role is the author role: system, user, or assistant.
	Role Role `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// CreatedAt is when the message was appended.
	CreatedAt time.Time `json:"created_at"`

	// TokenCount is the content cost computed once at append time and
	// never recomputed for the life of the message.
	TokenCount int `json:"token_count"`

	// SequenceNumber is unique and strictly increasing within a
	// conversation. Assigned in append order, never reused.
	SequenceNumber int64 `json:"sequence_number"`

	// IsSummary marks synthetic messages produced by compaction.
	IsSummary bool `json:"is_summary"`

	// SummarizedMessageIDs lists, in order, the messages this summary
	// replaces. Empty unless IsSummary.
	SummarizedMessageIDs []string `json:"summarized_message_ids,omitempty"`

	// Superseded marks messages excluded from active context by eviction
	// or summarization. Superseded rows stay in durable storage.
	Superseded bool `json:"superseded"`
}

// Pinned reports whether the message is a pinned (system) message.
func (m Message) Pinned() bool {
	return m.Role == RoleSystem
}

// ContextMessage is one entry of a derived inference context.
type ContextMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
