package storage

import (
	"context"
	"sync"

	"github.com/shiftgrid/realtime/internal/model"
)

// MemoryStore keeps queues in process memory. Nothing survives a restart;
// intended for tests and explicitly ephemeral sessions.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]model.QueuedAction
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]model.QueuedAction)}
}

func (s *MemoryStore) Load(ctx context.Context, key string) ([]model.QueuedAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.data[key]
	out := make([]model.QueuedAction, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *MemoryStore) Save(ctx context.Context, key string, actions []model.QueuedAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]model.QueuedAction, len(actions))
	copy(stored, actions)
	s.data[key] = stored
	return nil
}
