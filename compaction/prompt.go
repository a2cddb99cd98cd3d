package compaction

import (
	"strings"

	"github.com/youssefsiam38/recall/conversation"
)

// SummarizationSystemPrompt instructs the model to produce a structured
// summary that can stand in for the original messages. The sections
// cover everything a later turn might need to refer back to.
const SummarizationSystemPrompt = `You are a conversation summarizer for a chat memory system. Your task is to create a compact summary of older conversation turns that will replace them while preserving everything needed to continue the conversation naturally.

Create a structured summary with the following sections. If a section has no relevant content, write "None" for that section.

## Format

1. **Topics and Requests**
   - What the user asked about or asked for
   - The context behind each request

2. **Facts Established**
   - Concrete facts, names, dates, numbers, and details stated in the conversation
   - Information the assistant provided that later turns may build on

3. **Decisions and Outcomes**
   - Conclusions reached or choices made
   - Answers given, problems resolved

4. **User Preferences**
   - Preferences, constraints, or corrections the user expressed
   - Tone or formatting requests

5. **Open Threads**
   - Questions asked but not fully answered
   - Topics the user said they would return to

## Guidelines

- Be concise but complete; later turns must be answerable from this summary alone
- Keep specific details: names, identifiers, quantities, exact phrasings that carry intent
- Maintain chronological order within each section
- Do not add information that was not in the conversation
- Write the summary in the third person ("the user asked", "the assistant explained")`

// BuildSummarizationUserPrompt creates the user message carrying the
// block to summarize.
func BuildSummarizationUserPrompt(conversationText string) string {
	return `Summarize the following conversation excerpt according to the format in your instructions.

<conversation>
` + conversationText + `
</conversation>

Produce a summary that can replace these messages without losing anything a later turn might depend on. Follow the section format exactly.`
}

// FormatMessagesAsText renders a block of messages as readable text for
// the summarization prompt. Earlier summaries are labeled so the model
// folds them in rather than re-narrating them as assistant turns.
func FormatMessagesAsText(messages []conversation.Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(roleLabel(m))
		b.WriteString(":\n")
		b.WriteString(m.Content)
	}
	return b.String()
}

func roleLabel(m conversation.Message) string {
	if m.IsSummary {
		return "Earlier summary"
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
