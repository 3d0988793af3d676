package storage

import (
	"context"

	"escrow-sale/internal/domain"
)

// Journal appends published sale events to an EventStore.
type Journal struct {
	store EventStore
}

// NewJournal creates a Journal writing to store.
func NewJournal(store EventStore) *Journal {
	return &Journal{store: store}
}

// Publish inserts a copy of e.
func (j *Journal) Publish(ctx context.Context, e domain.SaleEvent) error {
	return j.store.Insert(ctx, &e)
}
