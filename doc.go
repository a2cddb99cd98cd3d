// Package recall is a conversation memory engine for AI chat
// applications: it keeps long-running conversations inside a model's
// context budget while preserving full history durably.
//
// Messages append to a per-conversation log and never mutate; staying
// under budget is done by marking messages superseded, either by plain
// eviction or by folding a block of old messages into a model-written
// summary that stands in for them. The derived inference context is
// pinned system messages plus the newest run of active messages that
// fits the budget.
//
// # Key Features
//
//   - Append-only message log with token accounting per model
//   - Compaction strategies: none, sliding_window, summarization, hybrid
//   - Summaries generated through Anthropic or OpenAI backends
//   - SQLite (FTS5) and PostgreSQL (tsvector) storage with ranked
//     full-text search over full history, archived included
//   - Background auto-save and retention purge services
//   - Event bus for observing appends, compactions, saves, and purges
//   - Transcript export as JSON, text, Markdown, or sanitized HTML
//
// # Quick Start
//
// Create a service over a storage engine:
//
//	engine, err := sqlite.New("conversations.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := recall.New(engine, recall.DefaultConfig(),
//	    recall.WithProvider(provider.NewAnthropicFromEnv()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Stop(ctx)
//
// Hold a conversation:
//
//	conv, _ := svc.CreateConversation(ctx, recall.CreateParams{
//	    Title: "Trip planning",
//	})
//	svc.AddMessage(ctx, conv.ID, recall.RoleUser, "Plan a weekend in Lisbon")
//	msgs, _ := svc.Context(ctx, conv.ID)
//	// send msgs to the model, append its reply, repeat
//
// Compaction runs automatically when a conversation approaches its
// budget; full history stays searchable:
//
//	hits, _ := svc.SearchMessages(ctx, "lisbon", 10)
//
// Subpackages carry the pieces: conversation (the aggregate), token
// (accounting), compaction (strategies), storage/sqlite and
// storage/postgres (engines), provider (model backends), export
// (transcripts), events (bus), maintenance (background services).
package recall
