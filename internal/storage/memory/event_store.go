package memory

import (
	"context"
	"sort"
	"sync"

	"escrow-sale/internal/domain"
	"escrow-sale/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.SaleEvent // keyed by event id
	bySale map[string][]string          // sale id -> event ids in insert order
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data:   make(map[string]*domain.SaleEvent),
		bySale: make(map[string][]string),
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if the id exists.
func (s *EventStore) Insert(_ context.Context, e *domain.SaleEvent) error {
	if e == nil || e.ID == "" || e.SaleID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.ID]; exists {
		return storage.ErrDuplicateKey
	}

	eventCopy := *e
	s.data[e.ID] = &eventCopy
	s.bySale[e.SaleID] = append(s.bySale[e.SaleID], e.ID)
	return nil
}

// GetBySale returns events of a sale, oldest first.
func (s *EventStore) GetBySale(_ context.Context, saleID string, limit int) ([]*domain.SaleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.bySale[saleID]
	result := make([]*domain.SaleEvent, 0, len(ids))
	for _, id := range ids {
		eventCopy := *s.data[id]
		result = append(result, &eventCopy)
	}

	// Stable so that insert order breaks timestamp ties
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OccurredAt < result[j].OccurredAt
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.EventStore = (*EventStore)(nil)
