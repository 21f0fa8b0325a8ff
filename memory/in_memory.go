package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/cognimesh/core"
)

// InMemoryStore is a process-local core.MemoryStore. Memories are kept in
// insertion order, which doubles as creation order.
//
// Concurrency: protected by RWMutex.
// Search: linear keyword scan over knowledge memories (see RankKnowledge).
// Suitable for tests, demos and single-process agents.
type InMemoryStore struct {
	mu       sync.RWMutex
	memories []core.Memory
	index    map[string]int // id -> position in memories
}

// NewInMemoryStore creates a new in-memory memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{index: make(map[string]int)}
}

// CreateMemory stores m, assigning an id and timestamp when missing.
func (s *InMemoryStore) CreateMemory(_ context.Context, m core.Memory) (string, error) {
	if m.Type == "" {
		return "", core.NewError(core.CodeInvalidInput, "memory type is required")
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	m.Metadata = copyMetadata(m.Metadata)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[m.ID]; exists {
		return "", core.Errorf(core.CodeDuplicate, "memory %s already exists", m.ID)
	}

	s.index[m.ID] = len(s.memories)
	s.memories = append(s.memories, m)

	return m.ID, nil
}

// GetMemories returns copies of the matching memories, oldest first. A
// positive filter limit keeps the most recent matches.
func (s *InMemoryStore) GetMemories(_ context.Context, filter core.MemoryFilter) ([]core.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Memory, 0)

	for _, m := range s.memories {
		if filter.Matches(m) {
			m.Metadata = copyMetadata(m.Metadata)
			out = append(out, m)
		}
	}

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}

	return out, nil
}

// DeleteMemories removes memories by id. Unknown ids are ignored.
func (s *InMemoryStore) DeleteMemories(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.memories = slices.DeleteFunc(s.memories, func(m core.Memory) bool {
		_, ok := drop[m.ID]
		return ok
	})

	s.index = make(map[string]int, len(s.memories))
	for i, m := range s.memories {
		s.index[m.ID] = i
	}

	return nil
}

// SearchKnowledge ranks knowledge memories by keyword overlap with query.
func (s *InMemoryStore) SearchKnowledge(ctx context.Context, query string, limit int) ([]core.KnowledgeItem, error) {
	candidates, err := s.GetMemories(ctx, core.MemoryFilter{Type: core.MemoryKnowledge})
	if err != nil {
		return nil, err
	}

	return RankKnowledge(candidates, query, limit), nil
}

// Len returns the number of stored memories.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.memories)
}

var _ core.MemoryStore = (*InMemoryStore)(nil)
