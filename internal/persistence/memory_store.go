package persistence

import (
	"context"
	"slices"
	"sync"

	"github.com/petrijr/flowstate/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe implementation of InstanceStore
// backed by a map.
type InMemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*api.InstanceSnapshot
	order     []string
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		instances: make(map[string]*api.InstanceSnapshot),
	}
}

// Ensure InMemoryStore implements InstanceStore.
var _ InstanceStore = (*InMemoryStore)(nil)

func cloneSnapshot(s api.InstanceSnapshot) api.InstanceSnapshot {
	s.History = slices.Clone(s.History)
	return s
}

func (s *InMemoryStore) SaveInstance(ctx context.Context, snap api.InstanceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[snap.ID]; ok {
		return ErrInstanceExists
	}
	stored := cloneSnapshot(snap)
	s.instances[snap.ID] = &stored
	s.order = append(s.order, snap.ID)
	return nil
}

func (s *InMemoryStore) GetInstance(ctx context.Context, id string) (api.InstanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.instances[id]
	if !ok {
		return api.InstanceSnapshot{}, ErrInstanceNotFound
	}
	return cloneSnapshot(*snap), nil
}

func (s *InMemoryStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]api.InstanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []api.InstanceSnapshot
	for _, id := range s.order {
		snap := s.instances[id]
		if filter.State != "" && snap.State != filter.State {
			continue
		}
		result = append(result, cloneSnapshot(*snap))
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

func (s *InMemoryStore) AppendTransition(ctx context.Context, id string, rec api.TransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.instances[id]
	if !ok {
		return ErrInstanceNotFound
	}
	if snap.State != rec.From {
		return ErrStateConflict
	}
	snap.State = rec.To
	snap.History = append(snap.History, rec)
	snap.UpdatedAt = rec.At
	return nil
}
