package clickhouse

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"escrow-sale/internal/domain"
	"escrow-sale/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
// The table is a ReplacingMergeTree, so uniqueness is checked before insert.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// Insert adds a new event. Returns ErrDuplicateKey if the event id exists.
func (s *EventStore) Insert(ctx context.Context, e *domain.SaleEvent) error {
	if e == nil || e.SaleID == "" {
		return storage.ErrInvalidInput
	}
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return fmt.Errorf("%w: event id: %v", storage.ErrInvalidInput, err)
	}

	exists, err := s.exists(ctx, id)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO sale_events (
			event_id, sale_id, kind, actor, counterparty,
			amount, tokens, rate, total, status, occurred_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		id, e.SaleID, string(e.Kind), e.Actor.String(), e.Counterparty.String(),
		e.Amount, e.Tokens, e.Rate, e.Total, uint8(e.Status), e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetBySale returns events of a sale ordered by occurred_at.
func (s *EventStore) GetBySale(ctx context.Context, saleID string, limit int) ([]*domain.SaleEvent, error) {
	query := `
		SELECT toString(event_id), sale_id, kind, actor, counterparty,
		       amount, tokens, rate, total, status, occurred_at
		FROM sale_events FINAL
		WHERE sale_id = ?
		ORDER BY occurred_at ASC, event_id ASC
	`
	args := []any{saleID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sale events: %w", err)
	}
	defer rows.Close()

	var result []*domain.SaleEvent
	for rows.Next() {
		var (
			e                         domain.SaleEvent
			kind, actor, counterparty string
			status                    uint8
		)
		err := rows.Scan(&e.ID, &e.SaleID, &kind, &actor, &counterparty,
			&e.Amount, &e.Tokens, &e.Rate, &e.Total, &status, &e.OccurredAt)
		if err != nil {
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
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale events: %w", err)
	}
	return result, nil
}

func (s *EventStore) exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count() FROM sale_events WHERE event_id = ?`, id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
