// Package conversation holds the data model of the memory engine: messages,
// the conversation aggregate, and its pure query operations. All mutation
// goes through aggregate methods so the token accounting and sequence
// invariants cannot be broken from outside. The aggregate is not safe for
// concurrent use; callers serialize access per conversation ID.
package conversation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// titleMaxLen bounds titles derived from the first user message.
const titleMaxLen = 60

// Conversation is an ordered, append-only log of messages plus the
// metadata that governs budgeting and compaction. The persisted log never
// shrinks: strategies flip Superseded flags, they do not remove rows.
type Conversation struct {
	id        string
	title     string
	model     string
	maxTokens int
	settings  Settings
	tags      []string
	metadata  map[string]string
	archived  bool
	createdAt time.Time
	updatedAt time.Time

	messages []Message
	byID     map[string]int
	// anchors maps message ID to its display position: the message's own
	// sequence number, or for summaries the earliest anchor among the
	// messages they replace. Sequence numbers are append-ordered, so this
	// is what places a late-created summary at its historical position.
	anchors map[string]int64
	nextSeq int64

	// totalTokens is the sum of TokenCount over every persisted message,
	// superseded included; activeTokens covers only non-superseded ones
	// and is what budget pressure is measured against.
	totalTokens  int
	activeTokens int

	// pending tracks message IDs inserted or flag-changed since the last
	// successful save, so storage engines only write what changed.
	pending map[string]struct{}

	// version increments on every mutation; compaction uses it to detect
	// structural changes across an unlocked summarization round trip.
	version uint64
}

// New creates an empty conversation. The strategy settings are validated
// here and snapshotted for the life of the conversation.
func New(model string, maxTokens int, settings Settings) (*Conversation, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBudget, maxTokens)
	}
	if !settings.Strategy.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, settings.Strategy)
	}
	switch settings.Strategy {
	case StrategySlidingWindow, StrategyHybrid:
		if settings.WindowSize <= 0 {
			return nil, fmt.Errorf("%w: window size must be positive", ErrValidation)
		}
	}
	switch settings.Strategy {
	case StrategySummarization, StrategyHybrid:
		if settings.SummaryThreshold <= 0 {
			return nil, fmt.Errorf("%w: summary threshold must be positive", ErrValidation)
		}
	}

	now := time.Now()
	return &Conversation{
		id:        uuid.NewString(),
		model:     model,
		maxTokens: maxTokens,
		settings:  settings,
		metadata:  map[string]string{},
		createdAt: now,
		updatedAt: now,
		byID:      map[string]int{},
		anchors:   map[string]int64{},
		nextSeq:   1,
		pending:   map[string]struct{}{},
	}, nil
}

// ID returns the conversation's unique key.
func (c *Conversation) ID() string { return c.id }

// Title returns the explicit title, or one derived from the first user
// message when none was set.
func (c *Conversation) Title() string { return c.title }

// SetTitle sets an explicit title, overriding any derived one.
func (c *Conversation) SetTitle(title string) {
	c.title = title
	c.touch()
}

// Model returns the model ID governing token accounting.
func (c *Conversation) Model() string { return c.model }

// MaxTokens returns the context budget.
func (c *Conversation) MaxTokens() int { return c.maxTokens }

// Settings returns the strategy settings snapshotted at creation.
func (c *Conversation) Settings() Settings { return c.settings }

// Archived reports whether the conversation is archived. Archived
// conversations are read-only.
func (c *Conversation) Archived() bool { return c.archived }

// Archive marks the conversation read-only. Append, ApplySummary and
// Supersede refuse with ErrArchived afterwards.
func (c *Conversation) Archive() {
	if c.archived {
		return
	}
	c.archived = true
	c.touch()
}

// CreatedAt returns the creation time.
func (c *Conversation) CreatedAt() time.Time { return c.createdAt }

// UpdatedAt returns the time of the last mutation.
func (c *Conversation) UpdatedAt() time.Time { return c.updatedAt }

// Version returns the mutation counter. It increments on every mutation,
// letting callers detect changes made across an unlocked span.
func (c *Conversation) Version() uint64 { return c.version }

// Tags returns a copy of the conversation tags.
func (c *Conversation) Tags() []string {
	return append([]string(nil), c.tags...)
}

// SetTags replaces the conversation tags.
func (c *Conversation) SetTags(tags []string) {
	c.tags = append([]string(nil), tags...)
	c.touch()
}

// Metadata returns a copy of the opaque metadata map.
func (c *Conversation) Metadata() map[string]string {
	out := make(map[string]string, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

// SetMetadata merges the given keys into the metadata map.
func (c *Conversation) SetMetadata(meta map[string]string) {
	for k, v := range meta {
		c.metadata[k] = v
	}
	c.touch()
}

// TotalTokens returns the token sum over every persisted message,
// superseded included. This is the value stored on the conversation row.
func (c *Conversation) TotalTokens() int { return c.totalTokens }

// ActiveTokens returns the token sum over non-superseded messages. Budget
// pressure and compaction triggers are measured against this.
func (c *Conversation) ActiveTokens() int { return c.activeTokens }

// Len returns the number of persisted messages.
func (c *Conversation) Len() int { return len(c.messages) }

// Append adds a message to the log. The token count comes from the caller
// (priced once via token.Counter) and never changes afterward. Sequence
// numbers are assigned here, strictly increasing, never reused.
func (c *Conversation) Append(role Role, content string, tokenCount int) (Message, error) {
	if c.archived {
		return Message{}, ErrArchived
	}
	if !role.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	msg := Message{
		ID:             uuid.NewString(),
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
		TokenCount:     tokenCount,
		SequenceNumber: c.nextSeq,
	}
	c.nextSeq++

	c.byID[msg.ID] = len(c.messages)
	c.anchors[msg.ID] = msg.SequenceNumber
	c.messages = append(c.messages, msg)
	c.totalTokens += msg.TokenCount
	c.activeTokens += msg.TokenCount
	c.pending[msg.ID] = struct{}{}

	if c.title == "" && role == RoleUser {
		c.title = deriveTitle(content)
	}

	c.touch()
	return msg, nil
}

// ApplySummary inserts a synthetic summary message replacing the given
// message IDs and marks the originals superseded, as one mutation. The
// summary is anchored at the earliest summarized position so it shows up
// there in derived context despite carrying a fresh sequence number.
//
// All referenced messages must exist, be un-superseded, and not be pinned;
// otherwise nothing changes. This is the validation compaction relies on
// after re-acquiring the conversation lock.
func (c *Conversation) ApplySummary(content string, tokenCount int, summarizedIDs []string) (Message, error) {
	if c.archived {
		return Message{}, ErrArchived
	}
	if len(summarizedIDs) == 0 {
		return Message{}, fmt.Errorf("%w: summary requires message ids", ErrValidation)
	}

	anchor := int64(0)
	seen := make(map[string]struct{}, len(summarizedIDs))
	for _, id := range summarizedIDs {
		if _, dup := seen[id]; dup {
			return Message{}, fmt.Errorf("%w: duplicate summary id %s", ErrValidation, id)
		}
		seen[id] = struct{}{}
		idx, ok := c.byID[id]
		if !ok {
			return Message{}, fmt.Errorf("%w: %s", ErrUnknownMessage, id)
		}
		m := c.messages[idx]
		if m.Pinned() {
			return Message{}, fmt.Errorf("%w: %s", ErrPinnedMessage, id)
		}
		if m.Superseded {
			return Message{}, fmt.Errorf("%w: %s", ErrAlreadySuperseded, id)
		}
		if a := c.anchors[id]; anchor == 0 || a < anchor {
			anchor = a
		}
	}

	summary := Message{
		ID:                   uuid.NewString(),
		Role:                 RoleAssistant,
		Content:              content,
		CreatedAt:            time.Now(),
		TokenCount:           tokenCount,
		SequenceNumber:       c.nextSeq,
		IsSummary:            true,
		SummarizedMessageIDs: append([]string(nil), summarizedIDs...),
	}
	c.nextSeq++

	for _, id := range summarizedIDs {
		idx := c.byID[id]
		c.messages[idx].Superseded = true
		c.activeTokens -= c.messages[idx].TokenCount
		c.pending[id] = struct{}{}
	}

	c.byID[summary.ID] = len(c.messages)
	c.anchors[summary.ID] = anchor
	c.messages = append(c.messages, summary)
	c.totalTokens += summary.TokenCount
	c.activeTokens += summary.TokenCount
	c.pending[summary.ID] = struct{}{}

	c.touch()
	return summary, nil
}

// Supersede marks the given messages superseded (window eviction). Pinned
// and unknown messages reject the whole call before anything changes;
// already superseded IDs are skipped. Returns how many flags flipped.
func (c *Conversation) Supersede(ids ...string) (int, error) {
	if c.archived {
		return 0, ErrArchived
	}
	for _, id := range ids {
		idx, ok := c.byID[id]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownMessage, id)
		}
		if c.messages[idx].Pinned() {
			return 0, fmt.Errorf("%w: %s", ErrPinnedMessage, id)
		}
	}

	changed := 0
	for _, id := range ids {
		idx := c.byID[id]
		if c.messages[idx].Superseded {
			continue
		}
		c.messages[idx].Superseded = true
		c.activeTokens -= c.messages[idx].TokenCount
		c.pending[id] = struct{}{}
		changed++
	}

	if changed > 0 {
		c.touch()
	}
	return changed, nil
}

// Message returns the message with the given ID.
func (c *Conversation) Message(id string) (Message, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return Message{}, false
	}
	return c.messages[idx], true
}

// Messages returns a copy of the full persisted log in sequence order,
// superseded messages included.
func (c *Conversation) Messages() []Message {
	return append([]Message(nil), c.messages...)
}

// ActiveMessages returns the non-superseded messages in display order:
// by anchor, so summaries appear at the position of the earliest message
// they replaced.
func (c *Conversation) ActiveMessages() []Message {
	out := make([]Message, 0, len(c.messages))
	for _, m := range c.messages {
		if !m.Superseded {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := c.anchors[out[i].ID], c.anchors[out[j].ID]
		if ai != aj {
			return ai < aj
		}
		return out[i].SequenceNumber < out[j].SequenceNumber
	})
	return out
}

// PinnedMessages returns the non-superseded system messages in original
// relative order.
func (c *Conversation) PinnedMessages() []Message {
	var out []Message
	for _, m := range c.messages {
		if m.Pinned() && !m.Superseded {
			out = append(out, m)
		}
	}
	return out
}

// PinnedTokens returns the combined cost of the pinned messages.
func (c *Conversation) PinnedTokens() int {
	total := 0
	for _, m := range c.messages {
		if m.Pinned() && !m.Superseded {
			total += m.TokenCount
		}
	}
	return total
}

// Anchor returns the display position of a message: its own sequence
// number, or for summaries the earliest anchor among the replaced
// messages.
func (c *Conversation) Anchor(id string) (int64, bool) {
	a, ok := c.anchors[id]
	return a, ok
}

// RecomputeTokens recalculates both token sums from scratch. The results
// must always match TotalTokens and ActiveTokens; callers use this to
// verify the incremental accounting.
func (c *Conversation) RecomputeTokens() (total, active int) {
	for _, m := range c.messages {
		total += m.TokenCount
		if !m.Superseded {
			active += m.TokenCount
		}
	}
	return total, active
}

// touch bumps the mutation version and the updated timestamp.
func (c *Conversation) touch() {
	c.version++
	c.updatedAt = time.Now()
}

// deriveTitle builds a title from the first line of content, truncated to
// titleMaxLen runes.
func deriveTitle(content string) string {
	line := content
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	runes := []rune(line)
	if len(runes) > titleMaxLen {
		return string(runes[:titleMaxLen]) + "..."
	}
	return line
}
