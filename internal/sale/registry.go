package sale

import (
	"context"
	"errors"
	"fmt"

	"escrow-sale/internal/codec"
	"escrow-sale/internal/domain"
	"escrow-sale/internal/storage"
)

// Registry is the data-access layer for sale records inside one atomic unit.
// It is never shared across units, so a load followed by a store cannot
// interleave with another operation.
type Registry struct {
	tx storage.Tx
}

// NewRegistry binds a registry to tx.
func NewRegistry(tx storage.Tx) *Registry {
	return &Registry{tx: tx}
}

// Load returns the record of id and whether it exists.
// A settled record is present with zero fields, which is distinct from absent.
func (r *Registry) Load(ctx context.Context, id domain.Identity) (domain.ContributorRecord, bool, error) {
	raw, err := r.tx.Get(ctx, codec.RecordKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return domain.ContributorRecord{}, false, nil
	}
	if err != nil {
		return domain.ContributorRecord{}, false, fmt.Errorf("load record: %w", err)
	}

	rec, err := codec.DecodeRecord(raw)
	if err != nil {
		return domain.ContributorRecord{}, false, fmt.Errorf("%w: %w", ErrCorruptState, err)
	}
	return rec, true, nil
}

// Store writes the record of id.
func (r *Registry) Store(ctx context.Context, id domain.Identity, rec domain.ContributorRecord) error {
	if err := r.tx.Put(ctx, codec.RecordKey(id), codec.EncodeRecord(rec)); err != nil {
		return fmt.Errorf("store record: %w", err)
	}
	return nil
}

// Accumulate loads or creates the record of id and adds a pledge and its tokens.
func (r *Registry) Accumulate(ctx context.Context, id domain.Identity, pledged, owed uint64) (domain.ContributorRecord, error) {
	rec, _, err := r.Load(ctx, id)
	if err != nil {
		return rec, err
	}

	if rec.Pledged, err = addU64(rec.Pledged, pledged); err != nil {
		return rec, err
	}
	if rec.Owed, err = addU64(rec.Owed, owed); err != nil {
		return rec, err
	}
	return rec, r.Store(ctx, id, rec)
}

// Settle zeroes both fields of the record of id, keeping it present.
func (r *Registry) Settle(ctx context.Context, id domain.Identity) error {
	return r.Store(ctx, id, domain.ContributorRecord{})
}

// LoadState returns the global sale record.
// Returns ErrNotInitialized if the sale was never created.
func (r *Registry) LoadState(ctx context.Context) (domain.SaleState, error) {
	raw, err := r.tx.Get(ctx, codec.StateKey())
	if errors.Is(err, storage.ErrNotFound) {
		return domain.SaleState{}, ErrNotInitialized
	}
	if err != nil {
		return domain.SaleState{}, fmt.Errorf("load state: %w", err)
	}

	state, err := codec.DecodeState(raw)
	if err != nil {
		return domain.SaleState{}, fmt.Errorf("%w: %w", ErrCorruptState, err)
	}
	return state, nil
}

// StoreState writes the global sale record.
func (r *Registry) StoreState(ctx context.Context, state domain.SaleState) error {
	if err := r.tx.Put(ctx, codec.StateKey(), codec.EncodeState(state)); err != nil {
		return fmt.Errorf("store state: %w", err)
	}
	return nil
}
