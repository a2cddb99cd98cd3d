package conversation

import (
	"fmt"
	"sort"
	"time"
)

// Snapshot is the flat, storage-facing form of a conversation. Engines
// persist and reconstruct aggregates through it without reaching into
// aggregate internals.
type Snapshot struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Model       string            `json:"model"`
	MaxTokens   int               `json:"max_tokens"`
	Settings    Settings          `json:"settings"`
	Tags        []string          `json:"tags,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Archived    bool              `json:"archived"`
	TotalTokens int               `json:"total_tokens"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Messages    []Message         `json:"messages"`
}

// Snapshot returns a copy of the conversation's full state, including
// superseded messages.
func (c *Conversation) Snapshot() Snapshot {
	meta := make(map[string]string, len(c.metadata))
	for k, v := range c.metadata {
		meta[k] = v
	}
	return Snapshot{
		ID:          c.id,
		Title:       c.title,
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Settings:    c.settings,
		Tags:        append([]string(nil), c.tags...),
		Metadata:    meta,
		Archived:    c.archived,
		TotalTokens: c.totalTokens,
		CreatedAt:   c.createdAt,
		UpdatedAt:   c.updatedAt,
		Messages:    append([]Message(nil), c.messages...),
	}
}

// FromSnapshot reconstructs an aggregate from persisted state. Messages
// are ordered by sequence number, indexes and anchors are rebuilt, and
// both token sums are recomputed from the rows — the stored total is a
// cache, the message log is authoritative. The result starts clean: no
// pending changes.
func FromSnapshot(s Snapshot) (*Conversation, error) {
	if s.ID == "" {
		return nil, fmt.Errorf("%w: snapshot has no id", ErrValidation)
	}
	if s.MaxTokens <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBudget, s.MaxTokens)
	}
	if !s.Settings.Strategy.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, s.Settings.Strategy)
	}

	msgs := append([]Message(nil), s.Messages...)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].SequenceNumber < msgs[j].SequenceNumber
	})

	meta := make(map[string]string, len(s.Metadata))
	for k, v := range s.Metadata {
		meta[k] = v
	}

	c := &Conversation{
		id:        s.ID,
		title:     s.Title,
		model:     s.Model,
		maxTokens: s.MaxTokens,
		settings:  s.Settings,
		tags:      append([]string(nil), s.Tags...),
		metadata:  meta,
		archived:  s.Archived,
		createdAt: s.CreatedAt,
		updatedAt: s.UpdatedAt,
		messages:  msgs,
		byID:      make(map[string]int, len(msgs)),
		anchors:   make(map[string]int64, len(msgs)),
		nextSeq:   1,
		pending:   map[string]struct{}{},
	}

	var lastSeq int64
	for i, m := range msgs {
		if m.SequenceNumber <= lastSeq {
			return nil, fmt.Errorf("duplicate or non-increasing sequence number %d in conversation %s", m.SequenceNumber, s.ID)
		}
		lastSeq = m.SequenceNumber
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate message id %s in conversation %s", m.ID, s.ID)
		}
		c.byID[m.ID] = i

		anchor := m.SequenceNumber
		if m.IsSummary {
			// Summarized messages always predate the summary, so their
			// anchors are already known. A missing reference (manual row
			// surgery) degrades to the summary's own position.
			for _, id := range m.SummarizedMessageIDs {
				if a, ok := c.anchors[id]; ok && a < anchor {
					anchor = a
				}
			}
		}
		c.anchors[m.ID] = anchor

		c.totalTokens += m.TokenCount
		if !m.Superseded {
			c.activeTokens += m.TokenCount
		}
	}
	c.nextSeq = lastSeq + 1

	return c, nil
}

// PendingMessages returns the messages inserted or flag-changed since the
// last MarkSaved, in sequence order. Storage engines persist exactly
// these on a save.
func (c *Conversation) PendingMessages() []Message {
	if len(c.pending) == 0 {
		return nil
	}
	out := make([]Message, 0, len(c.pending))
	for _, m := range c.messages {
		if _, ok := c.pending[m.ID]; ok {
			out = append(out, m)
		}
	}
	return out
}

// HasPending reports whether any message rows await persistence. Row-level
// metadata changes (title, tags) are covered by the conversation upsert
// that every save performs.
func (c *Conversation) HasPending() bool {
	return len(c.pending) > 0
}

// MarkSaved clears the pending-change set after a successful save.
func (c *Conversation) MarkSaved() {
	c.pending = map[string]struct{}{}
}

// MarkAllPending queues every message for the next save. Reconstructed
// aggregates start clean, which is right for loads but not for imports,
// where the target store has none of the rows yet.
func (c *Conversation) MarkAllPending() {
	for _, m := range c.messages {
		c.pending[m.ID] = struct{}{}
	}
}
