// Package export renders a conversation as a portable document.
//
// All exporters are stateless transforms over a loaded aggregate.
// Superseded messages are included by default so exports are a full
// record of the conversation, compaction history and all; set
// Options.ExcludeSuperseded to render only what the model still sees.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/youssefsiam38/recall/conversation"
)

// EnvelopeVersion identifies the JSON export format.
const EnvelopeVersion = "1.0"

// ErrInvalidExport is returned when imported data cannot be parsed or
// fails validation.
var ErrInvalidExport = errors.New("invalid export")

// Options control what an export contains.
type Options struct {
	// ExcludeSuperseded drops messages that compaction has replaced.
	ExcludeSuperseded bool
}

// Envelope is the versioned wrapper around a JSON export.
type Envelope struct {
	Version      string                `json:"version"`
	ExportedAt   time.Time             `json:"exported_at"`
	Conversation conversation.Snapshot `json:"conversation"`
}

// JSON exports the conversation as an indented, versioned JSON
// document that FromJSON can rebuild.
func JSON(c *conversation.Conversation, opts Options) ([]byte, error) {
	snap := c.Snapshot()
	if opts.ExcludeSuperseded {
		kept := snap.Messages[:0]
		for _, m := range snap.Messages {
			if !m.Superseded {
				kept = append(kept, m)
			}
		}
		snap.Messages = kept
	}

	env := Envelope{
		Version:      EnvelopeVersion,
		ExportedAt:   time.Now().UTC(),
		Conversation: snap,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return data, nil
}

// FromJSON rebuilds a conversation from a JSON export. The aggregate
// keeps its original id, so saving it overwrites the stored copy.
func FromJSON(data []byte) (*conversation.Conversation, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExport, err)
	}
	if env.Version != EnvelopeVersion {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidExport, env.Version)
	}

	c, err := conversation.FromSnapshot(env.Conversation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExport, err)
	}
	return c, nil
}

// Text exports the conversation as a plain transcript.
func Text(c *conversation.Conversation, opts Options) string {
	var sb strings.Builder

	sb.WriteString(c.Title())
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Model: %s\n", c.Model())
	fmt.Fprintf(&sb, "Created: %s\n", c.CreatedAt().Format(time.RFC3339))
	if tags := c.Tags(); len(tags) > 0 {
		fmt.Fprintf(&sb, "Tags: %s\n", strings.Join(tags, ", "))
	}
	sb.WriteString("\n")

	for _, m := range exportMessages(c, opts) {
		label := roleHeading(m)
		if m.Superseded {
			label += " (superseded)"
		}
		fmt.Fprintf(&sb, "%s:\n%s\n\n", label, m.Content)
	}
	return sb.String()
}

// Markdown exports the conversation as a Markdown document.
func Markdown(c *conversation.Conversation, opts Options) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", c.Title())
	fmt.Fprintf(&sb, "**Model**: %s\n", c.Model())
	fmt.Fprintf(&sb, "**Created**: %s\n", c.CreatedAt().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "**Updated**: %s\n", c.UpdatedAt().Format("2006-01-02 15:04:05"))
	if tags := c.Tags(); len(tags) > 0 {
		fmt.Fprintf(&sb, "**Tags**: %s\n", strings.Join(tags, ", "))
	}
	sb.WriteString("\n---\n\n")

	msgs := exportMessages(c, opts)
	for i, m := range msgs {
		heading := roleHeading(m)
		if m.Superseded {
			heading += " *(superseded)*"
		}
		fmt.Fprintf(&sb, "## %s\n\n", heading)
		sb.WriteString(m.Content)
		sb.WriteString("\n\n")
		if i < len(msgs)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "*Exported: %s*\n", time.Now().Format("2006-01-02 15:04:05"))
	return sb.String()
}

// exportMessages returns the rows an export should contain, in display
// order so summaries read where the summarized text used to be.
func exportMessages(c *conversation.Conversation, opts Options) []conversation.Message {
	if opts.ExcludeSuperseded {
		return c.ActiveMessages()
	}

	// Include everything, ordered by display position with superseded
	// rows interleaved where they originally appeared.
	msgs := c.Messages()
	sorted := make([]conversation.Message, len(msgs))
	copy(sorted, msgs)
	anchorOf := func(m conversation.Message) int64 {
		if a, ok := c.Anchor(m.ID); ok {
			return a
		}
		return m.SequenceNumber
	}
	sort.Slice(sorted, func(i, j int) bool {
		ai, aj := anchorOf(sorted[i]), anchorOf(sorted[j])
		if ai != aj {
			return ai < aj
		}
		return sorted[i].SequenceNumber < sorted[j].SequenceNumber
	})
	return sorted
}

func roleHeading(m conversation.Message) string {
	if m.IsSummary {
		return "Summary"
	}
	switch m.Role {
	case conversation.RoleAssistant:
		return "Assistant"
	case conversation.RoleSystem:
		return "System"
	default:
		return "User"
	}
}
