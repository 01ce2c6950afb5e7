// Package memory provides an in-memory storage.TranscriptStore for tests,
// the CLI and lightweight deployments. Transcripts are lost when the process
// exits. Optional LRU eviction bounds memory usage.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"

	"github.com/rhuss/routeway/pkg/storage"
)

// entry holds a stored transcript and its LRU position.
type entry struct {
	t       *storage.Transcript
	lruElem *list.Element
}

// Store is an in-memory TranscriptStore with optional LRU eviction.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	lruList *list.List // front = most recently used
	maxSize int        // 0 = unlimited
}

var _ storage.TranscriptStore = (*Store)(nil)

// New creates a store. If maxSize is 0 the store grows without limit;
// otherwise the least recently used transcript is evicted at capacity.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// Save stores t. The tenant is taken from ctx.
func (s *Store) Save(ctx context.Context, t *storage.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[t.ID]; exists {
		return storage.ErrConflict
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	cp := *t
	cp.Tenant = storage.TenantFromContext(ctx)
	elem := s.lruList.PushFront(t.ID)
	s.entries[t.ID] = &entry{t: &cp, lruElem: elem}
	return nil
}

// Get returns a transcript by ID and marks it recently used.
func (s *Store) Get(ctx context.Context, id string) (*storage.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || !storage.Visible(ctx, e.t.Tenant) {
		return nil, storage.ErrNotFound
	}
	s.lruList.MoveToFront(e.lruElem)
	cp := *e.t
	return &cp, nil
}

// Delete removes a transcript.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || !storage.Visible(ctx, e.t.Tenant) {
		return storage.ErrNotFound
	}
	s.lruList.Remove(e.lruElem)
	delete(s.entries, id)
	return nil
}

// List returns a page of transcripts visible from ctx, sorted by creation
// time with cursor-based pagination.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) (*storage.TranscriptList, error) {
	opts = opts.Normalize()

	s.mu.Lock()
	var matches []*storage.Transcript
	for _, e := range s.entries {
		if !storage.Visible(ctx, e.t.Tenant) {
			continue
		}
		if opts.Model != "" && e.t.Model != opts.Model {
			continue
		}
		cp := *e.t
		matches = append(matches, &cp)
	}
	s.mu.Unlock()

	asc := opts.Order == "asc"
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if asc {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if asc {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})

	switch {
	case opts.After != "":
		matches = afterCursor(matches, opts.After)
	case opts.Before != "":
		matches = beforeCursor(matches, opts.Before)
	}

	hasMore := len(matches) > opts.Limit
	if hasMore {
		matches = matches[:opts.Limit]
	}

	result := &storage.TranscriptList{
		Data:    matches,
		HasMore: hasMore,
	}
	if len(matches) > 0 {
		result.FirstID = matches[0].ID
		result.LastID = matches[len(matches)-1].ID
	}
	if result.Data == nil {
		result.Data = []*storage.Transcript{}
	}
	return result, nil
}

func afterCursor(ts []*storage.Transcript, id string) []*storage.Transcript {
	for i, t := range ts {
		if t.ID == id {
			return ts[i+1:]
		}
	}
	return nil
}

func beforeCursor(ts []*storage.Transcript, id string) []*storage.Transcript {
	for i, t := range ts {
		if t.ID == id {
			return ts[:i]
		}
	}
	return nil
}

// Len returns the number of stored transcripts across all tenants.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// evictOldest removes the least recently used entry.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}
