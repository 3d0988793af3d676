package sqlite

import (
	"context"
	"fmt"

	"escrow-sale/internal/domain"
	"escrow-sale/internal/storage"
)

// EventStore implements storage.EventStore on SQLite.
type EventStore struct {
	db *DB
}

// NewEventStore creates a new EventStore.
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *EventStore) Insert(ctx context.Context, e *domain.SaleEvent) error {
	if e == nil || e.ID == "" || e.SaleID == "" {
		return storage.ErrInvalidInput
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	res, err := s.db.sqlDB.ExecContext(ctx, `
		INSERT INTO sale_events (
			event_id, sale_id, kind, actor, counterparty,
			amount, tokens, rate, total, status, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING`,
		e.ID,
		e.SaleID,
		string(e.Kind),
		e.Actor.String(),
		e.Counterparty.String(),
		formatAmount(e.Amount),
		formatAmount(e.Tokens),
		formatAmount(e.Rate),
		formatAmount(e.Total),
		int(e.Status),
		e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert sale event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert sale event: %w", err)
	}
	if n == 0 {
		return storage.ErrDuplicateKey
	}
	return nil
}

// GetBySale returns events of a sale ordered by occurred_at, then insert order.
func (s *EventStore) GetBySale(ctx context.Context, saleID string, limit int) ([]*domain.SaleEvent, error) {
	query := `
		SELECT event_id, sale_id, kind, actor, counterparty,
		       amount, tokens, rate, total, status, occurred_at
		FROM sale_events
		WHERE sale_id = ?
		ORDER BY occurred_at ASC, seq ASC`
	args := []any{saleID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sale events: %w", err)
	}
	defer rows.Close()

	var result []*domain.SaleEvent
	for rows.Next() {
		var (
			e                           domain.SaleEvent
			kind, actor, counterparty   string
			amount, tokens, rate, total string
			status                      int
		)
		if err := rows.Scan(&e.ID, &e.SaleID, &kind, &actor, &counterparty,
			&amount, &tokens, &rate, &total, &status, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan sale event: %w", err)
		}

		e.Kind = domain.EventKind(kind)
		e.Status = domain.SaleStatus(status)
		if e.Actor, err = domain.ParseIdentity(actor); err != nil {
			return nil, err
		}
		if e.Counterparty, err = domain.ParseIdentity(counterparty); err != nil {
			return nil, err
		}
		for _, f := range []struct {
			src string
			dst *uint64
		}{{amount, &e.Amount}, {tokens, &e.Tokens}, {rate, &e.Rate}, {total, &e.Total}} {
			if *f.dst, err = parseAmount(f.src); err != nil {
				return nil, err
			}
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale events: %w", err)
	}
	return result, nil
}
