package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/youssefsiam38/recall/conversation"
	"github.com/youssefsiam38/recall/internal/testutil"
	"github.com/youssefsiam38/recall/storage"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	pool := testutil.NewTestPool(t)
	e := New(pool)
	if err := e.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	testutil.CleanTables(t, pool, "recall_conversations")
	return e
}

func newStoredConversation(t *testing.T, e *Engine, contents ...string) *conversation.Conversation {
	t.Helper()
	c, err := conversation.New("claude-3-5-haiku-20241022", 1000,
		conversation.Settings{Strategy: conversation.StrategySlidingWindow, WindowSize: 10})
	if err != nil {
		t.Fatalf("conversation.New: %v", err)
	}
	role := conversation.RoleUser
	for _, content := range contents {
		if _, err := c.Append(role, content, 10); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if role == conversation.RoleUser {
			role = conversation.RoleAssistant
		} else {
			role = conversation.RoleUser
		}
	}
	if err := e.Save(context.Background(), c); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return c
}

func TestPostgresSaveLoadRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	c := newStoredConversation(t, e, "first question", "first answer", "second question")
	msgs := c.Messages()
	if _, err := c.ApplySummary("recap of the opening", 8, []string{msgs[0].ID, msgs[1].ID}); err != nil {
		t.Fatalf("ApplySummary: %v", err)
	}
	c.SetTags([]string{"support", "billing"})
	c.SetMetadata(map[string]string{"customer": "acme"})
	if err := e.Save(ctx, c); err != nil {
		t.Fatalf("Save after summary: %v", err)
	}

	loaded, err := e.Load(ctx, c.ID())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.ID() != c.ID() {
		t.Errorf("ID = %q, want %q", loaded.ID(), c.ID())
	}
	if loaded.Title() != c.Title() {
		t.Errorf("Title = %q, want %q", loaded.Title(), c.Title())
	}
	if loaded.Model() != c.Model() {
		t.Errorf("Model = %q, want %q", loaded.Model(), c.Model())
	}
	if loaded.Settings() != c.Settings() {
		t.Errorf("Settings = %+v, want %+v", loaded.Settings(), c.Settings())
	}
	if got := loaded.Tags(); len(got) != 2 || got[0] != "support" {
		t.Errorf("Tags = %v", got)
	}
	if got := loaded.Metadata()["customer"]; got != "acme" {
		t.Errorf("Metadata[customer] = %q", got)
	}
	if loaded.TotalTokens() != c.TotalTokens() {
		t.Errorf("TotalTokens = %d, want %d", loaded.TotalTokens(), c.TotalTokens())
	}
	if loaded.ActiveTokens() != c.ActiveTokens() {
		t.Errorf("ActiveTokens = %d, want %d", loaded.ActiveTokens(), c.ActiveTokens())
	}

	want := c.Messages()
	got := loaded.Messages()
	if len(got) != len(want) {
		t.Fatalf("message count = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].SequenceNumber != want[i].SequenceNumber ||
			got[i].Role != want[i].Role || got[i].Content != want[i].Content ||
			got[i].Superseded != want[i].Superseded || got[i].IsSummary != want[i].IsSummary {
			t.Errorf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	summary := got[len(got)-1]
	if len(summary.SummarizedMessageIDs) != 2 {
		t.Errorf("SummarizedMessageIDs = %v", summary.SummarizedMessageIDs)
	}
	if anchor, ok := loaded.Anchor(summary.ID); !ok || anchor != msgs[0].SequenceNumber {
		t.Errorf("summary anchor = %d, want %d", anchor, msgs[0].SequenceNumber)
	}
	if loaded.HasPending() {
		t.Error("loaded conversation should have no pending messages")
	}
}

func TestPostgresSaveIsIncremental(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	c := newStoredConversation(t, e, "one", "two", "three", "four")
	if c.HasPending() {
		t.Fatal("save should clear pending messages")
	}

	msgs := c.Messages()
	if _, err := c.Supersede(msgs[0].ID, msgs[1].ID); err != nil {
		t.Fatalf("Supersede: %v", err)
	}
	if err := e.Save(ctx, c); err != nil {
		t.Fatalf("Save after supersede: %v", err)
	}

	loaded, err := e.Load(ctx, c.ID())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	reloaded := loaded.Messages()
	if !reloaded[0].Superseded || !reloaded[1].Superseded {
		t.Error("superseded flags were not persisted")
	}
	if reloaded[2].Superseded || reloaded[3].Superseded {
		t.Error("unrelated messages were marked superseded")
	}

	// A save with nothing pending still refreshes the conversation row.
	c.SetTitle("renamed")
	if err := e.Save(ctx, c); err != nil {
		t.Fatalf("Save with no pending messages: %v", err)
	}
	loaded, err = e.Load(ctx, c.ID())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Title() != "renamed" {
		t.Errorf("Title = %q, want %q", loaded.Title(), "renamed")
	}
}

func TestPostgresLoadNotFound(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Load(context.Background(), "no-such-id")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Load error = %v, want ErrNotFound", err)
	}
}

func TestPostgresListFilters(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := newStoredConversation(t, e, "alpha topic")
	a.SetTags([]string{"work"})
	if err := e.Save(ctx, a); err != nil {
		t.Fatalf("Save: %v", err)
	}

	b := newStoredConversation(t, e, "beta topic")
	if err := e.Archive(ctx, b.ID()); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	g, err := conversation.New("gpt-4o-mini", 500, conversation.Settings{Strategy: conversation.StrategyNone})
	if err != nil {
		t.Fatalf("conversation.New: %v", err)
	}
	if _, err := g.Append(conversation.RoleUser, "gamma topic", 5); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := e.Save(ctx, g); err != nil {
		t.Fatalf("Save: %v", err)
	}

	t.Run("default excludes archived", func(t *testing.T) {
		infos, err := e.List(ctx, storage.ListFilter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(infos) != 2 {
			t.Fatalf("got %d conversations, want 2", len(infos))
		}
		for _, info := range infos {
			if info.ID == b.ID() {
				t.Error("archived conversation appeared in default listing")
			}
		}
	})

	t.Run("include archived", func(t *testing.T) {
		infos, err := e.List(ctx, storage.ListFilter{IncludeArchived: true})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(infos) != 3 {
			t.Fatalf("got %d conversations, want 3", len(infos))
		}
	})

	t.Run("tag filter", func(t *testing.T) {
		infos, err := e.List(ctx, storage.ListFilter{Tag: "work"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(infos) != 1 || infos[0].ID != a.ID() {
			t.Fatalf("tag filter returned %+v", infos)
		}
		if infos[0].MessageCount != 1 {
			t.Errorf("MessageCount = %d, want 1", infos[0].MessageCount)
		}
	})

	t.Run("model filter", func(t *testing.T) {
		infos, err := e.List(ctx, storage.ListFilter{Model: "gpt-4o-mini"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(infos) != 1 || infos[0].ID != g.ID() {
			t.Fatalf("model filter returned %+v", infos)
		}
	})

	t.Run("limit and offset", func(t *testing.T) {
		page1, err := e.List(ctx, storage.ListFilter{Limit: 1})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		page2, err := e.List(ctx, storage.ListFilter{Limit: 1, Offset: 1})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(page1) != 1 || len(page2) != 1 {
			t.Fatalf("pages = %d, %d, want 1 each", len(page1), len(page2))
		}
		if page1[0].ID == page2[0].ID {
			t.Error("offset returned the same conversation")
		}
	})
}

func TestPostgresSearch(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	c := newStoredConversation(t, e,
		"how do I configure the kubernetes ingress",
		"set the ingress class annotation on the service")
	newStoredConversation(t, e, "unrelated chat about cooking pasta")

	t.Run("ranked match with snippet", func(t *testing.T) {
		results, err := e.Search(ctx, "kubernetes ingress", 10)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) == 0 {
			t.Fatal("no results")
		}
		for _, r := range results {
			if r.ConversationID != c.ID() {
				t.Errorf("result from unexpected conversation: %+v", r)
			}
		}
		if !strings.Contains(results[0].Snippet, "<mark>") {
			t.Errorf("snippet %q missing highlight", results[0].Snippet)
		}
		if results[0].ConversationTitle == "" {
			t.Error("result missing conversation title")
		}
	})

	t.Run("archived conversations are searched", func(t *testing.T) {
		if err := e.Archive(ctx, c.ID()); err != nil {
			t.Fatalf("Archive: %v", err)
		}
		results, err := e.Search(ctx, "ingress", 10)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) == 0 {
			t.Fatal("archived content not searchable")
		}
	})

	t.Run("no match", func(t *testing.T) {
		results, err := e.Search(ctx, "zeppelin", 10)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 0 {
			t.Fatalf("got %d results, want 0", len(results))
		}
	})
}

func TestPostgresDeleteCascades(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	c := newStoredConversation(t, e, "delete me please", "gone soon")

	if err := e.Delete(ctx, c.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := e.Load(ctx, c.ID()); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Load after delete = %v, want ErrNotFound", err)
	}

	results, err := e.Search(ctx, "delete", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("messages survived the cascade: %+v", results)
	}

	if err := e.Delete(ctx, c.ID()); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestPostgresPurgeSkipsArchived(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	stale := newStoredConversation(t, e, "stale and forgettable")
	keep := newStoredConversation(t, e, "stale but archived")
	fresh := newStoredConversation(t, e, "still active")

	if err := e.Archive(ctx, keep.ID()); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	old := time.Now().Add(-48 * time.Hour)
	for _, id := range []string{stale.ID(), keep.ID()} {
		if _, err := e.pool.Exec(ctx,
			`UPDATE recall_conversations SET updated_at = $1 WHERE id = $2`, old, id); err != nil {
			t.Fatalf("failed to age conversation: %v", err)
		}
	}

	purged, err := e.Purge(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}

	if _, err := e.Load(ctx, stale.ID()); !errors.Is(err, storage.ErrNotFound) {
		t.Error("stale conversation survived purge")
	}
	if _, err := e.Load(ctx, keep.ID()); err != nil {
		t.Errorf("archived conversation was purged: %v", err)
	}
	if _, err := e.Load(ctx, fresh.ID()); err != nil {
		t.Errorf("fresh conversation was purged: %v", err)
	}
}

func TestPostgresStats(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := newStoredConversation(t, e, "one", "two")
	newStoredConversation(t, e, "three")
	if err := e.Archive(ctx, a.ID()); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	stats, err := e.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Conversations != 2 {
		t.Errorf("Conversations = %d, want 2", stats.Conversations)
	}
	if stats.Archived != 1 {
		t.Errorf("Archived = %d, want 1", stats.Archived)
	}
	if stats.Messages != 3 {
		t.Errorf("Messages = %d, want 3", stats.Messages)
	}
	if stats.TotalTokens != 30 {
		t.Errorf("TotalTokens = %d, want 30", stats.TotalTokens)
	}
	if stats.SizeBytes <= 0 {
		t.Errorf("SizeBytes = %d, want > 0", stats.SizeBytes)
	}
}

func TestPostgresWithTx(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	c, err := conversation.New("claude-3-5-haiku-20241022", 1000,
		conversation.Settings{Strategy: conversation.StrategyNone})
	if err != nil {
		t.Fatalf("conversation.New: %v", err)
	}
	if _, err := c.Append(conversation.RoleUser, "inside a transaction", 5); err != nil {
		t.Fatalf("Append: %v", err)
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tx.Rollback(ctx)

	txCtx := WithTx(ctx, tx)
	if TxFromContext(txCtx) == nil {
		t.Fatal("TxFromContext returned nil inside WithTx context")
	}
	if TxFromContext(StripTx(txCtx)) != nil {
		t.Fatal("StripTx did not remove the transaction")
	}

	if err := e.Save(txCtx, c); err != nil {
		t.Fatalf("Save in tx: %v", err)
	}

	// Not visible outside the transaction until commit.
	if _, err := e.Load(StripTx(txCtx), c.ID()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Load before commit = %v, want ErrNotFound", err)
	}
	if _, err := e.Load(txCtx, c.ID()); err != nil {
		t.Fatalf("Load inside tx: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := e.Load(ctx, c.ID()); err != nil {
		t.Fatalf("Load after commit: %v", err)
	}
}
