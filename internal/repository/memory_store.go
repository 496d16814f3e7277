package repository

import (
	"context"
	"sync"

	"concierge-agent/internal/domain"
)

// MemoryStore is the process-scoped store: one ordered slice per
// conversation, nothing shared between conversations.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]domain.MemoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]domain.MemoryEntry)}
}

func (s *MemoryStore) History(ctx context.Context, conversationID string, window int) ([]domain.MemoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sessions[conversationID]
	if window > 0 && len(all) > window {
		all = all[len(all)-window:]
	}
	out := make([]domain.MemoryEntry, len(all))
	copy(out, all)
	return out, nil
}

func (s *MemoryStore) Append(ctx context.Context, conversationID string, entry domain.MemoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[conversationID] = append(s.sessions[conversationID], entry)
	return nil
}
