package reminder

import (
	"context"
	"strings"
	"sync"
)

// MemStore is an in-memory Store for tests and single-process deployments
// without a database. Safe for concurrent use.
type MemStore struct {
	mu    sync.Mutex
	items []Reminder
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Create appends a copy of r.
func (s *MemStore) Create(_ context.Context, r *Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, *r)
	return nil
}

// List returns reminders in creation order.
func (s *MemStore) List(_ context.Context) ([]Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Reminder, len(s.items))
	copy(out, s.items)
	return out, nil
}

// DeleteByTopic removes the first reminder whose topic contains topic.
func (s *MemStore) DeleteByTopic(_ context.Context, topic string) (Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(topic)
	for i, r := range s.items {
		if strings.Contains(strings.ToLower(r.Topic), needle) {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return r, nil
		}
	}
	return Reminder{}, ErrNotFound
}
