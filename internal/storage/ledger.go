package storage

import (
	"context"

	"escrow-sale/internal/domain"
)

// Ledger is the host a sale runs on: a key-value store plus value accounts,
// with every operation serialized against one sale namespace.
type Ledger interface {
	// Atomic runs fn as a single serialized unit.
	// Writes and transfers staged through tx commit only if fn returns nil.
	// Otherwise nothing fn did is observable.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the view of the ledger inside one Atomic unit.
type Tx interface {
	// Get returns the value stored under key.
	// Returns ErrNotFound if the key was never written.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Put stores value under key.
	Put(ctx context.Context, key, value []byte) error

	// Transfer moves t.Amount of t.Asset from t.From to t.To.
	// Returns ErrInsufficientFunds, ErrNotOptedIn or ErrBalanceOverflow.
	Transfer(ctx context.Context, t domain.Transfer) error

	// OptIn registers account as holder of the token asset. Idempotent.
	OptIn(ctx context.Context, account domain.Identity, assetID uint64) error

	// Balance returns the holdings of account in asset. Zero if none.
	Balance(ctx context.Context, account domain.Identity, asset domain.Asset) (uint64, error)
}

// EventStore is an append-only journal of committed sale events.
type EventStore interface {
	// Insert adds an event. Returns ErrDuplicateKey if the event id exists.
	Insert(ctx context.Context, e *domain.SaleEvent) error

	// GetBySale returns events of a sale ordered by occurrence, oldest first.
	// limit <= 0 means no limit.
	GetBySale(ctx context.Context, saleID string, limit int) ([]*domain.SaleEvent, error)
}
