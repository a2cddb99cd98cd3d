package recall

import (
	"context"
	"fmt"
	"sync"

	"github.com/youssefsiam38/recall/conversation"
	"github.com/youssefsiam38/recall/storage"
)

// entry is one cached conversation plus its coordination state. The
// entry mutex serializes all mutation and persistence for its id;
// different ids proceed fully in parallel.
type entry struct {
	mu   sync.Mutex
	conv *conversation.Conversation

	// dirty marks unsaved changes. Set on every successful mutation,
	// cleared when a save round-trips. A failed save leaves it set so
	// the next auto-save cycle retries.
	dirty bool

	// compacting is true while a summarization round trip holds a
	// snapshot of this conversation with the mutex released. At most
	// one pass runs per entry at a time.
	compacting bool

	// deleted means the conversation was removed while this entry was
	// handed out. Late lock holders must abort instead of resurrecting
	// rows.
	deleted bool
}

// acquire returns the entry for id with its mutex held, loading the
// conversation from storage on first touch. The caller must unlock.
func (s *Service) acquire(ctx context.Context, id string) (*entry, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if e.conv == nil {
		conv, err := s.engine.Load(ctx, id)
		if err != nil {
			e.mu.Unlock()
			s.dropPlaceholder(id, e)
			return nil, err
		}
		e.conv = conv
	}
	return e, nil
}

// dropPlaceholder removes an entry that never received a conversation,
// so a failed load does not pin an empty slot in the cache.
func (s *Service) dropPlaceholder(id string, e *entry) {
	s.mu.Lock()
	if cur, ok := s.entries[id]; ok && cur == e && cur.conv == nil {
		delete(s.entries, id)
	}
	s.mu.Unlock()
}

// snapshotEntries returns the cached entries and their ids at this
// moment, without holding the cache lock while callers work through
// them.
func (s *Service) snapshotEntries() (ids []string, list []*entry) {
	s.mu.Lock()
	ids = make([]string, 0, len(s.entries))
	list = make([]*entry, 0, len(s.entries))
	for id, e := range s.entries {
		ids = append(ids, id)
		list = append(list, e)
	}
	s.mu.Unlock()
	return ids, list
}
