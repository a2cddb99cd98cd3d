// Package sqlite implements storage.Engine on an embedded SQLite
// database with an FTS5 full-text index over message content. The index
// is maintained by triggers inside the same transactions that touch
// message rows, so search never lags the data.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/youssefsiam38/recall/conversation"
	"github.com/youssefsiam38/recall/storage"
)

// Engine is a SQLite-backed storage engine.
type Engine struct {
	db *sql.DB
}

var _ storage.Engine = (*Engine)(nil)

// New opens (creating if needed) the database at path and runs the
// schema migrations. Pass ":memory:" for an ephemeral database.
func New(path string) (*Engine, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	e := &Engine{db: db}
	if err := e.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return e, nil
}

// Close closes the database connection.
func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL,
			max_tokens INTEGER NOT NULL,
			strategy TEXT NOT NULL,
			window_size INTEGER NOT NULL DEFAULT 0,
			summary_threshold INTEGER NOT NULL DEFAULT 0,
			tags TEXT NOT NULL DEFAULT '[]',
			metadata TEXT NOT NULL DEFAULT '{}',
			archived INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			token_count INTEGER NOT NULL,
			is_summary INTEGER NOT NULL DEFAULT 0,
			summarized_ids TEXT NOT NULL DEFAULT '[]',
			superseded INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			UNIQUE (conversation_id, seq)
		)`,

		// External-content FTS index over message text; content_rowid
		// defaults to the messages table's rowid.
		`CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
			content,
			conversation_id UNINDEXED,
			content=messages
		)`,

		// Triggers keep FTS in sync inside the writing transaction.
		`CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
			INSERT INTO messages_fts(rowid, content, conversation_id)
			VALUES (new.rowid, new.content, new.conversation_id);
		END`,

		`CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, content, conversation_id)
			VALUES ('delete', old.rowid, old.content, old.conversation_id);
		END`,

		`CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, content, conversation_id)
			VALUES ('delete', old.rowid, old.content, old.conversation_id);
			INSERT INTO messages_fts(rowid, content, conversation_id)
			VALUES (new.rowid, new.content, new.conversation_id);
		END`,

		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq ON messages(conversation_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := e.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}
	return nil
}

// Save upserts the conversation row and its pending messages in one
// transaction. The aggregate is marked saved only after commit.
func (e *Engine) Save(ctx context.Context, c *conversation.Conversation) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin save: %w", err)
	}
	defer tx.Rollback()

	tagsJSON, err := json.Marshal(c.Tags())
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	metaJSON, err := json.Marshal(c.Metadata())
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	settings := c.Settings()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations
			(id, title, model, max_tokens, strategy, window_size, summary_threshold,
			 tags, metadata, archived, total_tokens, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			tags = excluded.tags,
			metadata = excluded.metadata,
			archived = excluded.archived,
			total_tokens = excluded.total_tokens,
			updated_at = excluded.updated_at
	`,
		c.ID(), c.Title(), c.Model(), c.MaxTokens(), string(settings.Strategy),
		settings.WindowSize, settings.SummaryThreshold,
		string(tagsJSON), string(metaJSON), c.Archived(), c.TotalTokens(),
		c.CreatedAt(), c.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}

	for _, m := range c.PendingMessages() {
		idsJSON, err := json.Marshal(m.SummarizedMessageIDs)
		if err != nil {
			return fmt.Errorf("failed to marshal summarized ids: %w", err)
		}
		// Content and ordering are immutable after insert; a conflict
		// can only be a superseded flag flip.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages
				(id, conversation_id, seq, role, content, token_count,
				 is_summary, summarized_ids, superseded, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				superseded = excluded.superseded
		`,
			m.ID, c.ID(), m.SequenceNumber, string(m.Role), m.Content, m.TokenCount,
			m.IsSummary, string(idsJSON), m.Superseded, m.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save message %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit save: %w", err)
	}
	c.MarkSaved()
	return nil
}

// Load reconstructs the aggregate from its rows.
func (e *Engine) Load(ctx context.Context, id string) (*conversation.Conversation, error) {
	var (
		snap      conversation.Snapshot
		strategy  string
		window    int
		threshold int
		tagsJSON  string
		metaJSON  string
	)
	err := e.db.QueryRowContext(ctx, `
		SELECT id, title, model, max_tokens, strategy, window_size, summary_threshold,
		       tags, metadata, archived, total_tokens, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`, id).Scan(
		&snap.ID, &snap.Title, &snap.Model, &snap.MaxTokens,
		&strategy, &window, &threshold,
		&tagsJSON, &metaJSON, &snap.Archived, &snap.TotalTokens,
		&snap.CreatedAt, &snap.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	snap.Settings = conversation.Settings{
		Strategy:         conversation.Strategy(strategy),
		WindowSize:       window,
		SummaryThreshold: threshold,
	}
	if err := json.Unmarshal([]byte(tagsJSON), &snap.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &snap.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	rows, err := e.db.QueryContext(ctx, `
		SELECT id, seq, role, content, token_count, is_summary, summarized_ids, superseded, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m       conversation.Message
			role    string
			idsJSON string
		)
		if err := rows.Scan(&m.ID, &m.SequenceNumber, &role, &m.Content, &m.TokenCount,
			&m.IsSummary, &idsJSON, &m.Superseded, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = conversation.Role(role)
		if err := json.Unmarshal([]byte(idsJSON), &m.SummarizedMessageIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal summarized ids: %w", err)
		}
		snap.Messages = append(snap.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	c, err := conversation.FromSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild conversation %s: %w", id, err)
	}
	return c, nil
}

// List returns conversation metadata, newest activity first.
func (e *Engine) List(ctx context.Context, filter storage.ListFilter) ([]storage.ConversationInfo, error) {
	query := `
		SELECT c.id, c.title, c.model, c.max_tokens, c.total_tokens,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id),
		       c.tags, c.metadata, c.archived, c.created_at, c.updated_at
		FROM conversations c
		WHERE 1=1`
	var args []any

	if !filter.IncludeArchived {
		query += " AND c.archived = 0"
	}
	if filter.Model != "" {
		query += " AND c.model = ?"
		args = append(args, filter.Model)
	}
	if filter.Tag != "" {
		query += " AND EXISTS (SELECT 1 FROM json_each(c.tags) WHERE json_each.value = ?)"
		args = append(args, filter.Tag)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY c.updated_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []storage.ConversationInfo
	for rows.Next() {
		var (
			info     storage.ConversationInfo
			tagsJSON string
			metaJSON string
		)
		if err := rows.Scan(&info.ID, &info.Title, &info.Model, &info.MaxTokens,
			&info.TotalTokens, &info.MessageCount, &tagsJSON, &metaJSON,
			&info.Archived, &info.CreatedAt, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &info.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &info.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return out, nil
}

// Search runs a ranked FTS5 query over message content. Archived
// conversations are searched too.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]storage.SearchResult, error) {
	match := sanitizeQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := e.db.QueryContext(ctx, `
		SELECT m.id, m.conversation_id, c.title, m.role, m.created_at,
		       snippet(messages_fts, 0, '<mark>', '</mark>', '...', 32) AS snippet
		FROM messages_fts
		JOIN messages m ON messages_fts.rowid = m.rowid
		JOIN conversations c ON m.conversation_id = c.id
		WHERE messages_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	var results []storage.SearchResult
	for rows.Next() {
		var (
			r    storage.SearchResult
			role string
		)
		if err := rows.Scan(&r.MessageID, &r.ConversationID, &r.ConversationTitle,
			&role, &r.CreatedAt, &r.Snippet); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		r.Role = conversation.Role(role)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}
	return results, nil
}

// Archive marks the conversation read-only.
func (e *Engine) Archive(ctx context.Context, id string) error {
	res, err := e.db.ExecContext(ctx,
		`UPDATE conversations SET archived = 1, updated_at = ? WHERE id = ?`,
		time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to archive conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to archive conversation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return nil
}

// Delete removes the conversation and, through cascade and triggers,
// its messages and index entries.
func (e *Engine) Delete(ctx context.Context, id string) error {
	res, err := e.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return nil
}

// Purge hard-deletes stale non-archived conversations.
func (e *Engine) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := e.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE archived = 0 AND updated_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge conversations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to purge conversations: %w", err)
	}
	return n, nil
}

// Stats reports storage counters plus the database file size.
func (e *Engine) Stats(ctx context.Context) (storage.Stats, error) {
	var stats storage.Stats

	err := e.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(archived), 0),
		       COALESCE(SUM(total_tokens), 0)
		FROM conversations
	`).Scan(&stats.Conversations, &stats.Archived, &stats.TotalTokens)
	if err != nil {
		return stats, fmt.Errorf("failed to count conversations: %w", err)
	}

	if err := e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&stats.Messages); err != nil {
		return stats, fmt.Errorf("failed to count messages: %w", err)
	}

	var pageCount, pageSize int64
	if err := e.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return stats, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := e.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return stats, fmt.Errorf("failed to get page size: %w", err)
	}
	stats.SizeBytes = pageCount * pageSize

	return stats, nil
}

// sanitizeQuery turns free text into an FTS5 MATCH expression: each
// term quoted so user input can never be parsed as FTS5 syntax, terms
// implicitly ANDed.
func sanitizeQuery(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	terms := make([]string, len(fields))
	for i, f := range fields {
		terms[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}
