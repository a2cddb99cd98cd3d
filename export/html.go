package export

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/youssefsiam38/recall/conversation"
)

// markdownInstance is initialized once and reused. The goldmark
// configuration never changes and the instance is safe to share;
// Convert creates per-call parser state.
var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return markdownInstance
}

var sanitizePolicy = bluemonday.UGCPolicy()

// HTML exports the conversation as a sanitized HTML fragment: the
// Markdown export rendered through goldmark and scrubbed of anything
// the UGC policy disallows. Message content is user- and
// model-authored, so raw HTML inside it never reaches the output
// unsanitized.
func HTML(c *conversation.Conversation, opts Options) (string, error) {
	var buf bytes.Buffer
	if err := getMarkdown().Convert([]byte(Markdown(c, opts)), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return sanitizePolicy.Sanitize(buf.String()), nil
}
