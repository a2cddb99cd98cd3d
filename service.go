package recall

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/youssefsiam38/recall/compaction"
	"github.com/youssefsiam38/recall/conversation"
	"github.com/youssefsiam38/recall/events"
	"github.com/youssefsiam38/recall/export"
	"github.com/youssefsiam38/recall/maintenance"
	"github.com/youssefsiam38/recall/provider"
	"github.com/youssefsiam38/recall/storage"
	"github.com/youssefsiam38/recall/token"
)

// Service is the memory engine: it caches conversations, serializes all
// work per conversation id, prices messages, runs compaction, and keeps
// storage in sync through saves and background flushes.
//
// All methods are safe for concurrent use. Operations on different
// conversation ids proceed in parallel; operations on one id are
// serialized by its entry mutex.
type Service struct {
	engine   storage.Engine
	config   Config
	logger   Logger
	counter  *token.Counter
	provider provider.Provider
	bus      *events.Bus
	ownsBus  bool

	mu      sync.Mutex
	entries map[string]*entry
	current string

	// Background services
	autosave *maintenance.AutoSaver
	purger   *maintenance.Purger

	// State
	started atomic.Bool

	// Cancellation
	cancel context.CancelFunc
}

// New creates a memory service over the given storage engine. Zero
// config fields resolve to defaults; options attach runtime
// collaborators.
//
// Example:
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
//	defer svc.Stop(ctx)
//
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
func New(engine storage.Engine, cfg Config, opts ...Option) (*Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: storage engine is required", ErrInvalidConfig)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		engine:  engine,
		config:  cfg,
		logger:  NopLogger(),
		counter: token.NewCounter(),
		bus:     events.NewBus(),
		ownsBus: true,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start begins background operations: the auto-save flusher and, when
// retention is enabled, the purge service.
func (s *Service) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	// Create cancellable context
	ctx, s.cancel = context.WithCancel(ctx)

	s.autosave = maintenance.NewAutoSaver(s, &maintenance.AutoSaveConfig{
		Interval: s.config.AutoSaveInterval,
		OnFlush: func(count int) {
			s.logger.Debug("auto-save flushed conversations", "count", count)
		},
		OnError: func(err error) {
			s.logger.Error("auto-save pass failed", "error", err)
		},
	})
	if err := s.autosave.Start(ctx); err != nil {
		s.started.Store(false)
		return fmt.Errorf("failed to start auto-save: %w", err)
	}

	if retention, ok := s.config.retention(); ok {
		s.purger = maintenance.NewPurger(s.engine, &maintenance.PurgeConfig{
			Retention: retention,
			OnPurge: func(count int64) {
				s.logger.Info("retention purge removed conversations", "count", count)
				s.bus.Publish(events.Event{Type: events.EventPurgeCompleted, Purged: count})
			},
			OnError: func(err error) {
				s.logger.Error("retention purge failed", "error", err)
			},
		})
		if err := s.purger.Start(ctx); err != nil {
			_ = s.autosave.Stop(ctx) // best-effort cleanup
			s.started.Store(false)
			return fmt.Errorf("failed to start retention purge: %w", err)
		}
	}

	s.logger.Info("memory service started",
		"auto_save_interval", s.config.AutoSaveInterval,
		"retention_days", s.config.RetentionDays)
	return nil
}

// Stop shuts the service down: background services stop, then every
// dirty conversation is flushed to storage. The bus is closed last when
// the service owns it.
func (s *Service) Stop(ctx context.Context) error {
	if !s.started.Load() {
		return ErrNotStarted
	}

	if s.cancel != nil {
		s.cancel()
	}

	// Stop services in reverse order (best-effort, continue on errors)
	if s.purger != nil && s.purger.IsRunning() {
		_ = s.purger.Stop(ctx)
	}
	if s.autosave != nil && s.autosave.IsRunning() {
		_ = s.autosave.Stop(ctx)
	}

	// Final drain: unsaved work lands before the service reports
	// stopped. Failed entries keep their dirty flag, but with the
	// service gone nothing retries them, so the error surfaces.
	count, err := s.FlushDirty(ctx)
	if count > 0 {
		s.logger.Info("final flush persisted conversations", "count", count)
	}

	if s.ownsBus {
		s.bus.Close()
	}

	s.started.Store(false)
	if err != nil {
		return NewMemoryError("Stop", err)
	}
	return nil
}

// IsRunning returns true if the background services are running.
func (s *Service) IsRunning() bool {
	return s.started.Load()
}

// Bus returns the event bus carrying service events.
func (s *Service) Bus() *events.Bus {
	return s.bus
}

// Engine returns the storage engine for direct access.
func (s *Service) Engine() storage.Engine {
	return s.engine
}

// Config returns the resolved service configuration.
func (s *Service) Config() Config {
	return s.config
}

// ===== Conversation lifecycle =====

// CreateParams customizes a new conversation. Zero fields inherit the
// service configuration.
type CreateParams struct {
	// Title overrides the title otherwise derived from the first user
	// message.
	Title string

	// Model and MaxTokens override the configured defaults. A custom
	// model with no explicit budget gets the model's default budget.
	Model     string
	MaxTokens int

	// Strategy, WindowSize and SummaryThreshold override the configured
	// compaction settings. They are snapshotted into the conversation
	// and fixed for its lifetime.
	Strategy         conversation.Strategy
	WindowSize       int
	SummaryThreshold int

	// Tags and Metadata are attached as-is.
	Tags     []string
	Metadata map[string]string
}

// CreateConversation creates, persists, and caches a new conversation,
// makes it current, and returns its snapshot.
func (s *Service) CreateConversation(ctx context.Context, params CreateParams) (conversation.Snapshot, error) {
	model := params.Model
	if model == "" {
		model = s.config.Model
	}
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		if params.Model != "" {
			maxTokens = token.GetModelInfo(model).DefaultBudget
		} else {
			maxTokens = s.config.MaxTokens
		}
	}

	strategy := params.Strategy
	if strategy == "" {
		strategy = s.config.Strategy
	}
	// Only the settings the strategy reads are snapshotted. An unused
	// window size would otherwise hijack the fallback path, which picks
	// window eviction whenever one is present.
	settings := conversation.Settings{Strategy: strategy}
	switch strategy {
	case conversation.StrategySlidingWindow, conversation.StrategyHybrid:
		settings.WindowSize = s.config.WindowSize
		if params.WindowSize > 0 {
			settings.WindowSize = params.WindowSize
		}
	}
	switch strategy {
	case conversation.StrategySummarization, conversation.StrategyHybrid:
		switch {
		case params.SummaryThreshold > 0:
			settings.SummaryThreshold = params.SummaryThreshold
		case params.MaxTokens > 0 || params.Model != "":
			// The configured threshold was resolved against the
			// configured budget; re-derive it for a custom one.
			settings.SummaryThreshold = maxTokens / 2
		default:
			settings.SummaryThreshold = s.config.SummaryThreshold
		}
	}

	conv, err := conversation.New(model, maxTokens, settings)
	if err != nil {
		return conversation.Snapshot{}, NewMemoryError("CreateConversation", err)
	}
	if params.Title != "" {
		conv.SetTitle(params.Title)
	}
	if len(params.Tags) > 0 {
		conv.SetTags(params.Tags)
	}
	if len(params.Metadata) > 0 {
		conv.SetMetadata(params.Metadata)
	}

	if err := s.engine.Save(ctx, conv); err != nil {
		return conversation.Snapshot{}, NewMemoryErrorWithConversation("CreateConversation", conv.ID(), err)
	}
	snap := conv.Snapshot()

	s.mu.Lock()
	s.entries[conv.ID()] = &entry{conv: conv}
	s.current = conv.ID()
	s.mu.Unlock()

	s.logger.Info("conversation created",
		"conversation", conv.ID(),
		"model", model,
		"strategy", string(settings.Strategy))
	s.bus.Publish(events.Event{Type: events.EventConversationCreated, ConversationID: conv.ID()})
	return snap, nil
}

// AddMessage appends one message, priced for the conversation's model,
// and runs at most one compaction pass when active tokens reach the
// trigger. Compaction failures never fail the append; the fallback path
// keeps the context bounded and errors are logged. An empty id targets
// the current conversation.
func (s *Service) AddMessage(ctx context.Context, id string, role conversation.Role, content string) (conversation.Message, error) {
	id, err := s.resolveID(id)
	if err != nil {
		return conversation.Message{}, NewMemoryError("AddMessage", err)
	}
	e, err := s.acquire(ctx, id)
	if err != nil {
		return conversation.Message{}, NewMemoryErrorWithConversation("AddMessage", id, err)
	}
	defer e.mu.Unlock()

	conv := e.conv
	tokens := s.counter.CountMessage(role, content, conv.Model())
	msg, err := conv.Append(role, content, tokens)
	if err != nil {
		return conversation.Message{}, NewMemoryErrorWithConversation("AddMessage", id, err)
	}
	e.dirty = true
	s.bus.Publish(events.Event{
		Type:           events.EventMessageAppended,
		ConversationID: id,
		Message:        &msg,
	})

	if !e.compacting && compaction.ShouldCompact(conv, s.config.TriggerRatio) {
		s.compact(ctx, e, id)
	}
	return msg, nil
}

// Context returns the inference context for the conversation under its
// own budget: pinned messages first, then the newest run of active
// messages that fits, in chronological order. An empty id targets the
// current conversation.
func (s *Service) Context(ctx context.Context, id string) ([]conversation.ContextMessage, error) {
	return s.ContextWithBudget(ctx, id, 0)
}

// ContextWithBudget is Context with an explicit token budget. A budget
// of zero or less falls back to the conversation's own.
func (s *Service) ContextWithBudget(ctx context.Context, id string, maxTokens int) ([]conversation.ContextMessage, error) {
	id, err := s.resolveID(id)
	if err != nil {
		return nil, NewMemoryError("Context", err)
	}
	e, err := s.acquire(ctx, id)
	if err != nil {
		return nil, NewMemoryErrorWithConversation("Context", id, err)
	}
	defer e.mu.Unlock()

	msgs, err := e.conv.ContextForInference(maxTokens)
	if err != nil {
		return nil, NewMemoryErrorWithConversation("Context", id, err)
	}
	return msgs, nil
}

// Get returns a point-in-time snapshot of the full conversation,
// loading it into the cache when absent.
func (s *Service) Get(ctx context.Context, id string) (conversation.Snapshot, error) {
	e, err := s.acquire(ctx, id)
	if err != nil {
		return conversation.Snapshot{}, NewMemoryErrorWithConversation("Get", id, err)
	}
	defer e.mu.Unlock()
	return e.conv.Snapshot(), nil
}

// Save persists the conversation now, regardless of dirtiness.
func (s *Service) Save(ctx context.Context, id string) error {
	e, err := s.acquire(ctx, id)
	if err != nil {
		return NewMemoryErrorWithConversation("Save", id, err)
	}
	defer e.mu.Unlock()

	if err := s.engine.Save(ctx, e.conv); err != nil {
		s.bus.Publish(events.Event{Type: events.EventSaveFailed, ConversationID: id, Err: err.Error()})
		return NewMemoryErrorWithConversation("Save", id, err)
	}
	e.dirty = false
	s.bus.Publish(events.Event{Type: events.EventConversationSaved, ConversationID: id})
	return nil
}

// Archive saves any unsaved changes, then marks the conversation
// read-only in storage and in memory. It waits for in-flight work on
// the same id; a summarization round trip completing afterwards aborts
// its apply.
func (s *Service) Archive(ctx context.Context, id string) error {
	e, err := s.acquire(ctx, id)
	if err != nil {
		return NewMemoryErrorWithConversation("Archive", id, err)
	}
	defer e.mu.Unlock()

	if e.dirty {
		if err := s.engine.Save(ctx, e.conv); err != nil {
			return NewMemoryErrorWithConversation("Archive", id, err)
		}
		e.dirty = false
	}
	if err := s.engine.Archive(ctx, id); err != nil {
		return NewMemoryErrorWithConversation("Archive", id, err)
	}
	e.conv.Archive()

	s.logger.Info("conversation archived", "conversation", id)
	s.bus.Publish(events.Event{Type: events.EventConversationArchived, ConversationID: id})
	return nil
}

// Delete removes the conversation from storage and the cache. It waits
// for in-flight work on the same id, then flips the entry's deleted
// flag so a late summary apply aborts instead of resurrecting rows.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return NewMemoryErrorWithConversation("Delete", id, fmt.Errorf("%w: %s", storage.ErrNotFound, id))
	}

	cached := e.conv != nil
	e.deleted = true
	if err := s.engine.Delete(ctx, id); err != nil {
		// A cached conversation that never reached storage still
		// deletes cleanly; anything else reverts the flag.
		if !(errors.Is(err, storage.ErrNotFound) && cached) {
			e.deleted = false
			return NewMemoryErrorWithConversation("Delete", id, err)
		}
	}

	s.mu.Lock()
	delete(s.entries, id)
	if s.current == id {
		s.current = ""
	}
	s.mu.Unlock()

	s.logger.Info("conversation deleted", "conversation", id)
	s.bus.Publish(events.Event{Type: events.EventConversationDeleted, ConversationID: id})
	return nil
}

// Current returns the id of the current conversation, or empty when
// none is selected. CreateConversation selects the new conversation
// automatically.
func (s *Service) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetCurrent selects the current conversation, loading it to verify it
// exists. An empty id clears the selection.
func (s *Service) SetCurrent(ctx context.Context, id string) error {
	if id == "" {
		s.mu.Lock()
		s.current = ""
		s.mu.Unlock()
		return nil
	}
	e, err := s.acquire(ctx, id)
	if err != nil {
		return NewMemoryErrorWithConversation("SetCurrent", id, err)
	}
	e.mu.Unlock()

	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
	return nil
}

// CurrentConversation returns the full state of the current
// conversation, or ErrNoConversation when none is selected.
func (s *Service) CurrentConversation(ctx context.Context) (conversation.Snapshot, error) {
	id, err := s.resolveID("")
	if err != nil {
		return conversation.Snapshot{}, NewMemoryError("CurrentConversation", err)
	}
	return s.Get(ctx, id)
}

// resolveID substitutes the current conversation for an empty id.
func (s *Service) resolveID(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	if cur := s.Current(); cur != "" {
		return cur, nil
	}
	return "", ErrNoConversation
}

// ===== Storage passthroughs =====

// List returns conversation metadata from storage, newest activity
// first. Unsaved in-memory changes appear after the next save cycle.
func (s *Service) List(ctx context.Context, filter storage.ListFilter) ([]storage.ConversationInfo, error) {
	infos, err := s.engine.List(ctx, filter)
	if err != nil {
		return nil, NewMemoryError("List", err)
	}
	return infos, nil
}

// SearchMessages runs a ranked full-text query across all saved
// conversations, archived included.
func (s *Service) SearchMessages(ctx context.Context, query string, limit int) ([]storage.SearchResult, error) {
	results, err := s.engine.Search(ctx, query, limit)
	if err != nil {
		return nil, NewMemoryError("SearchMessages", err)
	}
	return results, nil
}

// Stats reports storage-level counters.
func (s *Service) Stats(ctx context.Context) (storage.Stats, error) {
	st, err := s.engine.Stats(ctx)
	if err != nil {
		return storage.Stats{}, NewMemoryError("Stats", err)
	}
	return st, nil
}

// ===== Export =====

// ExportFormat selects a transcript rendering.
type ExportFormat string

const (
	// FormatJSON is the versioned envelope that re-imports losslessly.
	FormatJSON ExportFormat = "json"

	// FormatText is a plain-text transcript.
	FormatText ExportFormat = "text"

	// FormatMarkdown is a Markdown transcript.
	FormatMarkdown ExportFormat = "markdown"

	// FormatHTML is the Markdown transcript rendered to a sanitized
	// HTML fragment.
	FormatHTML ExportFormat = "html"
)

// Export renders the conversation in the given format.
func (s *Service) Export(ctx context.Context, id string, format ExportFormat, opts export.Options) ([]byte, error) {
	e, err := s.acquire(ctx, id)
	if err != nil {
		return nil, NewMemoryErrorWithConversation("Export", id, err)
	}
	defer e.mu.Unlock()

	switch format {
	case FormatJSON:
		data, err := export.JSON(e.conv, opts)
		if err != nil {
			return nil, NewMemoryErrorWithConversation("Export", id, err)
		}
		return data, nil
	case FormatText:
		return []byte(export.Text(e.conv, opts)), nil
	case FormatMarkdown:
		return []byte(export.Markdown(e.conv, opts)), nil
	case FormatHTML:
		html, err := export.HTML(e.conv, opts)
		if err != nil {
			return nil, NewMemoryErrorWithConversation("Export", id, err)
		}
		return []byte(html), nil
	default:
		return nil, NewMemoryErrorWithConversation("Export", id,
			fmt.Errorf("%w: unknown export format %q", ErrValidation, format))
	}
}

// Import loads an exported JSON envelope as a new cached conversation
// and persists it. The conversation keeps its original id; importing
// over an existing id updates it.
func (s *Service) Import(ctx context.Context, data []byte) (conversation.Snapshot, error) {
	conv, err := export.FromJSON(data)
	if err != nil {
		return conversation.Snapshot{}, NewMemoryError("Import", err)
	}
	// The reconstructed aggregate starts clean; every row must reach
	// storage here.
	conv.MarkAllPending()
	if err := s.engine.Save(ctx, conv); err != nil {
		return conversation.Snapshot{}, NewMemoryErrorWithConversation("Import", conv.ID(), err)
	}
	snap := conv.Snapshot()

	s.mu.Lock()
	s.entries[conv.ID()] = &entry{conv: conv}
	s.mu.Unlock()

	s.logger.Info("conversation imported", "conversation", conv.ID(), "messages", len(snap.Messages))
	return snap, nil
}

// ===== Persistence sweep =====

// FlushDirty persists every cached conversation with unsaved changes
// and reports how many landed. Entries that fail to save stay dirty so
// the next cycle retries them; the first error is returned after the
// whole sweep.
func (s *Service) FlushDirty(ctx context.Context) (int, error) {
	ids, list := s.snapshotEntries()

	count := 0
	var firstErr error
	for i, e := range list {
		e.mu.Lock()
		if e.deleted || e.conv == nil || !e.dirty {
			e.mu.Unlock()
			continue
		}
		if err := s.engine.Save(ctx, e.conv); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.logger.Error("flush failed", "conversation", ids[i], "error", err)
			s.bus.Publish(events.Event{Type: events.EventSaveFailed, ConversationID: ids[i], Err: err.Error()})
		} else {
			e.dirty = false
			count++
		}
		e.mu.Unlock()
	}
	return count, firstErr
}

// ===== Compaction =====

// compact runs one bounded compaction pass for the locked entry and
// reports the outcome. The entry mutex is held on entry and exit.
func (s *Service) compact(ctx context.Context, e *entry, id string) {
	start := time.Now()
	result, err := s.runCompaction(ctx, e)
	if err != nil {
		s.logger.Error("compaction failed", "conversation", id, "error", err)
		return
	}
	if !result.Changed() {
		return
	}
	result.Duration = time.Since(start)
	e.dirty = true

	s.logger.Info("compaction applied",
		"conversation", id,
		"strategy", string(result.Strategy),
		"evicted", result.Evicted,
		"summarized", result.Summarized,
		"tokens_before", result.TokensBefore,
		"tokens_after", result.TokensAfter,
		"fallback", result.Fallback)
	s.bus.Publish(events.Event{
		Type:           events.EventCompactionApplied,
		ConversationID: id,
		Compaction:     result,
	})
}

// runCompaction executes the pass: the configured planner first, one
// retry on conflict, then the eviction-only fallback for strategies
// that wanted a model. The entry mutex is released only around the
// provider call.
func (s *Service) runCompaction(ctx context.Context, e *entry) (*compaction.Result, error) {
	conv := e.conv
	settings := conv.Settings()
	cfg := s.config.compactionConfig()

	planner, err := compaction.NewPlanner(settings, cfg)
	if err != nil {
		return nil, err
	}
	result := &compaction.Result{
		Strategy:     planner.Name(),
		TokensBefore: conv.ActiveTokens(),
	}

	// Summaries need a provider; without one, eviction is all there is.
	needsModel := settings.Strategy == conversation.StrategySummarization ||
		settings.Strategy == conversation.StrategyHybrid
	if needsModel && s.provider == nil {
		s.applyFallback(e, cfg, result)
		result.TokensAfter = conv.ActiveTokens()
		return result, nil
	}

	err = s.applyPlan(ctx, e, planner, result)
	if errors.Is(err, ErrConflict) && !e.deleted && !conv.Archived() {
		// One retry against fresh state; messages may have arrived
		// while the lock was released.
		err = s.applyPlan(ctx, e, planner, result)
	}
	if err != nil {
		if !needsModel || e.deleted || conv.Archived() {
			result.TokensAfter = conv.ActiveTokens()
			return result, err
		}
		s.logger.Warn("summarization failed, evicting instead",
			"conversation", conv.ID(), "error", err)
		s.applyFallback(e, cfg, result)
	}
	result.TokensAfter = conv.ActiveTokens()
	return result, nil
}

// applyPlan computes and applies one planner pass. Evictions apply
// under the lock; a summarize block goes through the provider round
// trip with the lock released.
func (s *Service) applyPlan(ctx context.Context, e *entry, planner compaction.Planner, result *compaction.Result) error {
	conv := e.conv
	plan, err := planner.Plan(conv)
	if err != nil {
		return err
	}
	if plan.Empty() {
		return nil
	}

	if len(plan.Evict) > 0 {
		n, err := conv.Supersede(plan.Evict...)
		if err != nil {
			return err
		}
		result.Evicted += n
	}
	if len(plan.Summarize) == 0 {
		return nil
	}

	if err := s.summarizeBlock(ctx, e, plan, result); err != nil {
		return err
	}

	// The summary landed; the follow-up re-plans against fresh state,
	// bounding message count including anything appended during the
	// round trip.
	if plan.FollowUp != nil {
		fp, err := plan.FollowUp.Plan(conv)
		if err != nil {
			return err
		}
		if len(fp.Evict) > 0 {
			n, err := conv.Supersede(fp.Evict...)
			if err != nil {
				return err
			}
			result.Evicted += n
		}
	}
	return nil
}

// summarizeBlock runs the provider round trip for the plan's block. The
// entry mutex is released during the model call; after re-acquiring it
// the conversation is validated again, because anything may have
// happened in between. A block that is no longer intact maps to
// ErrConflict so the caller can retry or fall back.
func (s *Service) summarizeBlock(ctx context.Context, e *entry, plan *compaction.Plan, result *compaction.Result) error {
	conv := e.conv
	ids := plan.SummarizeIDs()
	summarizer := compaction.NewSummarizer(s.provider, s.config.summaryModel(conv.Model()), s.config.MaxSummaryTokens)

	e.compacting = true
	e.mu.Unlock()
	text, err := summarizer.Summarize(ctx, plan.Summarize)
	e.mu.Lock()
	e.compacting = false

	if err != nil {
		return err
	}
	if e.deleted {
		return fmt.Errorf("%w: deleted during summarization", ErrConflict)
	}
	if conv.Archived() {
		return fmt.Errorf("%w: archived during summarization", ErrConflict)
	}

	tokens := s.counter.CountMessage(conversation.RoleAssistant, text, conv.Model())
	summary, err := conv.ApplySummary(text, tokens, ids)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	result.Summarized += len(ids)
	result.SummaryID = summary.ID
	return nil
}

// applyFallback applies the eviction-only fallback plan. No provider
// call, no lock release, no conflicts.
func (s *Service) applyFallback(e *entry, cfg compaction.Config, result *compaction.Result) {
	conv := e.conv
	plan := compaction.FallbackPlan(conv, cfg)
	if plan.Empty() {
		return
	}
	n, err := conv.Supersede(plan.Evict...)
	if err != nil {
		s.logger.Error("fallback eviction failed", "conversation", conv.ID(), "error", err)
		return
	}
	result.Evicted += n
	result.Fallback = true
	result.Strategy = conversation.StrategySlidingWindow
}
