package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirakosyanara/gropos-sub007/internal/models"
)

// MemoryStore is an in-memory queue with the same commit semantics as
// the SQLite store. It backs tests and ephemeral registers.
type MemoryStore struct {
	mu     sync.Mutex
	items  []*models.QueuedItem
	closed bool

	// DrainCalls counts Drain invocations, for tests.
	DrainCalls int
}

// NewMemoryStore creates an in-memory queue store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Enqueue appends an item.
func (s *MemoryStore) Enqueue(ctx context.Context, item *models.QueuedItem) error {
	if len(item.Payload) == 0 {
		return ErrEmptyPayload
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now().UTC()
	}

	copied := *item
	s.items = append(s.items, &copied)
	return nil
}

// PendingCount returns the current backlog size.
func (s *MemoryStore) PendingCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items), nil
}

// Items returns a snapshot of pending items.
func (s *MemoryStore) Items(ctx context.Context) ([]*models.QueuedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]*models.QueuedItem, len(s.items))
	for i, item := range s.items {
		copied := *item
		items[i] = &copied
	}
	return items, nil
}

// Drain processes pending items in FIFO order.
func (s *MemoryStore) Drain(ctx context.Context, handler Handler) (int, error) {
	s.mu.Lock()
	s.DrainCalls++
	snapshot := make([]*models.QueuedItem, len(s.items))
	copy(snapshot, s.items)
	s.mu.Unlock()

	synced := 0
	for _, item := range snapshot {
		if err := ctx.Err(); err != nil {
			return synced, err
		}

		result := handler(ctx, item)

		s.mu.Lock()
		switch result.Verdict {
		case models.VerdictSuccess, models.VerdictAbandon:
			s.remove(item.ID)
		case models.VerdictRetry:
			if stored := s.find(item.ID); stored != nil {
				stored.Attempts++
				stored.LastError = result.Reason
			}
		}
		s.mu.Unlock()

		if result.Verdict == models.VerdictSuccess {
			synced++
		}
	}

	return synced, nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// remove expects s.mu held.
func (s *MemoryStore) remove(id string) {
	for i, item := range s.items {
		if item.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

// find expects s.mu held.
func (s *MemoryStore) find(id string) *models.QueuedItem {
	for _, item := range s.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}
