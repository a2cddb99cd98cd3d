package recall

import (
	"github.com/youssefsiam38/recall/conversation"
	"github.com/youssefsiam38/recall/storage"
)

// Aliases for the core domain types, so most callers only need the root
// package.

type (
	// Message is one entry in a conversation's append-only log.
	Message = conversation.Message

	// ContextMessage is one (role, content) pair of derived context.
	ContextMessage = conversation.ContextMessage

	// Role identifies the author of a message.
	Role = conversation.Role

	// Strategy names a compaction strategy.
	Strategy = conversation.Strategy

	// Settings holds the per-conversation compaction settings.
	Settings = conversation.Settings

	// Snapshot is the serializable full view of a conversation.
	Snapshot = conversation.Snapshot

	// ListFilter narrows List results.
	ListFilter = storage.ListFilter

	// ConversationInfo is the listing view of a conversation.
	ConversationInfo = storage.ConversationInfo

	// SearchResult is one full-text match with its display context.
	SearchResult = storage.SearchResult

	// StorageStats reports storage-level counters.
	StorageStats = storage.Stats
)

// Message roles.
const (
	RoleSystem    = conversation.RoleSystem
	RoleUser      = conversation.RoleUser
	RoleAssistant = conversation.RoleAssistant
)

// Compaction strategies.
const (
	StrategyNone          = conversation.StrategyNone
	StrategySlidingWindow = conversation.StrategySlidingWindow
	StrategySummarization = conversation.StrategySummarization
	StrategyHybrid        = conversation.StrategyHybrid
)
