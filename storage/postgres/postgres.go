// Package postgres implements storage.Engine on PostgreSQL using pgx.
// Full-text search runs over a generated tsvector column with a GIN
// index, so the index is updated in the same transaction as the message
// rows it covers.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/youssefsiam38/recall/conversation"
	"github.com/youssefsiam38/recall/storage"
)

// querier is the common surface of pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Engine is a PostgreSQL-backed storage engine.
type Engine struct {
	pool *pgxpool.Pool
}

var _ storage.Engine = (*Engine)(nil)

// New wraps an existing pool. Call Migrate once before first use.
func New(pool *pgxpool.Pool) *Engine {
	return &Engine{pool: pool}
}

// NewFromDSN connects a pool for the given DSN and verifies it.
func NewFromDSN(ctx context.Context, dsn string) (*Engine, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Engine{pool: pool}, nil
}

// Close releases the pool.
func (e *Engine) Close() error {
	e.pool.Close()
	return nil
}

// getQuerier returns the transaction from context if present, otherwise
// the pool.
func (e *Engine) getQuerier(ctx context.Context) querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return e.pool
}

// Migrate creates the schema if it does not exist.
func (e *Engine) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS recall_conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL,
			max_tokens INTEGER NOT NULL,
			strategy TEXT NOT NULL,
			window_size INTEGER NOT NULL DEFAULT 0,
			summary_threshold INTEGER NOT NULL DEFAULT 0,
			tags JSONB NOT NULL DEFAULT '[]',
			metadata JSONB NOT NULL DEFAULT '{}',
			archived BOOLEAN NOT NULL DEFAULT FALSE,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS recall_messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES recall_conversations(id) ON DELETE CASCADE,
			seq BIGINT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			token_count INTEGER NOT NULL,
			is_summary BOOLEAN NOT NULL DEFAULT FALSE,
			summarized_ids JSONB NOT NULL DEFAULT '[]',
			superseded BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			search_tsv tsvector GENERATED ALWAYS AS (to_tsvector('english', content)) STORED,
			UNIQUE (conversation_id, seq)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_recall_messages_conversation
			ON recall_messages (conversation_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_recall_messages_search
			ON recall_messages USING GIN (search_tsv)`,
		`CREATE INDEX IF NOT EXISTS idx_recall_conversations_updated
			ON recall_conversations (updated_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := e.getQuerier(ctx).Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Save upserts the conversation row and its pending messages in one
// transaction. When the context carries a transaction, the statements
// join it and commit stays with the caller.
func (e *Engine) Save(ctx context.Context, c *conversation.Conversation) error {
	if tx := TxFromContext(ctx); tx != nil {
		if err := e.saveIn(ctx, tx, c); err != nil {
			return err
		}
		c.MarkSaved()
		return nil
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin save: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := e.saveIn(ctx, tx, c); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit save: %w", err)
	}
	c.MarkSaved()
	return nil
}

func (e *Engine) saveIn(ctx context.Context, q querier, c *conversation.Conversation) error {
	tagsJSON, err := json.Marshal(c.Tags())
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	metaJSON, err := json.Marshal(c.Metadata())
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	settings := c.Settings()
	_, err = q.Exec(ctx, `
		INSERT INTO recall_conversations
			(id, title, model, max_tokens, strategy, window_size, summary_threshold,
			 tags, metadata, archived, total_tokens, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			tags = EXCLUDED.tags,
			metadata = EXCLUDED.metadata,
			archived = EXCLUDED.archived,
			total_tokens = EXCLUDED.total_tokens,
			updated_at = EXCLUDED.updated_at
	`,
		c.ID(), c.Title(), c.Model(), c.MaxTokens(), string(settings.Strategy),
		settings.WindowSize, settings.SummaryThreshold,
		tagsJSON, metaJSON, c.Archived(), c.TotalTokens(),
		c.CreatedAt(), c.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}

	pending := c.PendingMessages()
	if len(pending) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO recall_messages
			(id, conversation_id, seq, role, content, token_count,
			 is_summary, summarized_ids, superseded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			superseded = EXCLUDED.superseded
	`
	for _, m := range pending {
		idsJSON, err := json.Marshal(m.SummarizedMessageIDs)
		if err != nil {
			return fmt.Errorf("failed to marshal summarized ids: %w", err)
		}
		batch.Queue(query,
			m.ID, c.ID(), m.SequenceNumber, string(m.Role), m.Content, m.TokenCount,
			m.IsSummary, idsJSON, m.Superseded, m.CreatedAt,
		)
	}

	results := q.SendBatch(ctx, batch)
	defer results.Close()
	for range pending {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
	}
	return nil
}

// Load reconstructs the aggregate from its rows.
func (e *Engine) Load(ctx context.Context, id string) (*conversation.Conversation, error) {
	var (
		snap      conversation.Snapshot
		strategy  string
		window    int
		threshold int
		tagsJSON  []byte
		metaJSON  []byte
	)
	err := e.getQuerier(ctx).QueryRow(ctx, `
		SELECT id, title, model, max_tokens, strategy, window_size, summary_threshold,
		       tags, metadata, archived, total_tokens, created_at, updated_at
		FROM recall_conversations
		WHERE id = $1
	`, id).Scan(
		&snap.ID, &snap.Title, &snap.Model, &snap.MaxTokens,
		&strategy, &window, &threshold,
		&tagsJSON, &metaJSON, &snap.Archived, &snap.TotalTokens,
		&snap.CreatedAt, &snap.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
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
	if err := json.Unmarshal(tagsJSON, &snap.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &snap.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	rows, err := e.getQuerier(ctx).Query(ctx, `
		SELECT id, seq, role, content, token_count, is_summary, summarized_ids, superseded, created_at
		FROM recall_messages
		WHERE conversation_id = $1
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
			idsJSON []byte
		)
		if err := rows.Scan(&m.ID, &m.SequenceNumber, &role, &m.Content, &m.TokenCount,
			&m.IsSummary, &idsJSON, &m.Superseded, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = conversation.Role(role)
		if err := json.Unmarshal(idsJSON, &m.SummarizedMessageIDs); err != nil {
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
		       (SELECT COUNT(*) FROM recall_messages m WHERE m.conversation_id = c.id),
		       c.tags, c.metadata, c.archived, c.created_at, c.updated_at
		FROM recall_conversations c
		WHERE TRUE`
	var args []any

	if !filter.IncludeArchived {
		query += " AND c.archived = FALSE"
	}
	if filter.Model != "" {
		args = append(args, filter.Model)
		query += fmt.Sprintf(" AND c.model = $%d", len(args))
	}
	if filter.Tag != "" {
		args = append(args, filter.Tag)
		query += fmt.Sprintf(" AND c.tags @> jsonb_build_array($%d::text)", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY c.updated_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := e.getQuerier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []storage.ConversationInfo
	for rows.Next() {
		var (
			info     storage.ConversationInfo
			tagsJSON []byte
			metaJSON []byte
		)
		if err := rows.Scan(&info.ID, &info.Title, &info.Model, &info.MaxTokens,
			&info.TotalTokens, &info.MessageCount, &tagsJSON, &metaJSON,
			&info.Archived, &info.CreatedAt, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if err := json.Unmarshal(tagsJSON, &info.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &info.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return out, nil
}

// Search runs a ranked full-text query over message content. Archived
// conversations are searched too.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]storage.SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := e.getQuerier(ctx).Query(ctx, `
		SELECT m.id, m.conversation_id, c.title, m.role, m.created_at,
		       ts_headline('english', m.content, q,
		                   'StartSel=<mark>, StopSel=</mark>, MaxWords=32') AS snippet
		FROM recall_messages m
		JOIN recall_conversations c ON m.conversation_id = c.id,
		     websearch_to_tsquery('english', $1) q
		WHERE m.search_tsv @@ q
		ORDER BY ts_rank(m.search_tsv, q) DESC
		LIMIT $2
	`, query, limit)
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
	tag, err := e.getQuerier(ctx).Exec(ctx,
		`UPDATE recall_conversations SET archived = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to archive conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return nil
}

// Delete removes the conversation; messages cascade.
func (e *Engine) Delete(ctx context.Context, id string) error {
	tag, err := e.getQuerier(ctx).Exec(ctx,
		`DELETE FROM recall_conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return nil
}

// Purge hard-deletes stale non-archived conversations.
func (e *Engine) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := e.getQuerier(ctx).Exec(ctx,
		`DELETE FROM recall_conversations WHERE archived = FALSE AND updated_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge conversations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Stats reports storage counters plus on-disk relation sizes.
func (e *Engine) Stats(ctx context.Context) (storage.Stats, error) {
	var stats storage.Stats

	err := e.getQuerier(ctx).QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE archived),
		       COALESCE(SUM(total_tokens), 0)
		FROM recall_conversations
	`).Scan(&stats.Conversations, &stats.Archived, &stats.TotalTokens)
	if err != nil {
		return stats, fmt.Errorf("failed to count conversations: %w", err)
	}

	err = e.getQuerier(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM recall_messages`).Scan(&stats.Messages)
	if err != nil {
		return stats, fmt.Errorf("failed to count messages: %w", err)
	}

	err = e.getQuerier(ctx).QueryRow(ctx, `
		SELECT pg_total_relation_size('recall_conversations') +
		       pg_total_relation_size('recall_messages')
	`).Scan(&stats.SizeBytes)
	if err != nil {
		return stats, fmt.Errorf("failed to measure relations: %w", err)
	}

	return stats, nil
}
