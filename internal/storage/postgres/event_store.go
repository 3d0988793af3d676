package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"escrow-sale/internal/domain"
	"escrow-sale/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *EventStore) Insert(ctx context.Context, e *domain.SaleEvent) error {
	if e == nil || e.ID == "" || e.SaleID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO sale_events (
			event_id, sale_id, kind, actor, counterparty,
			amount, tokens, rate, total, status, occurred_at
		) VALUES (
			$1::uuid, $2, $3, $4, $5,
			$6::text::numeric, $7::text::numeric, $8::text::numeric, $9::text::numeric, $10, $11
		)
	`

	_, err := s.pool.Exec(ctx, query,
		e.ID,
		e.SaleID,
		string(e.Kind),
		e.Actor.String(),
		e.Counterparty.String(),
		numeric(e.Amount),
		numeric(e.Tokens),
		numeric(e.Rate),
		numeric(e.Total),
		int16(e.Status),
		e.OccurredAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert sale event: %w", err)
	}
	return nil
}

// GetBySale returns events of a sale ordered by occurred_at, then insert order.
func (s *EventStore) GetBySale(ctx context.Context, saleID string, limit int) ([]*domain.SaleEvent, error) {
	query := `
		SELECT event_id::text, sale_id, kind, actor, counterparty,
		       amount::text, tokens::text, rate::text, total::text, status, occurred_at
		FROM sale_events
		WHERE sale_id = $1
		ORDER BY occurred_at ASC, seq ASC
	`
	args := []any{saleID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sale events: %w", err)
	}
	defer rows.Close()

	var result []*domain.SaleEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale events: %w", err)
	}
	return result, nil
}

func scanEvent(row pgx.Row) (*domain.SaleEvent, error) {
	var (
		e                           domain.SaleEvent
		kind, actor, counterparty   string
		amount, tokens, rate, total string
		status                      int16
	)
	err := row.Scan(&e.ID, &e.SaleID, &kind, &actor, &counterparty,
		&amount, &tokens, &rate, &total, &status, &e.OccurredAt)
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
	for _, f := range []struct {
		src string
		dst *uint64
	}{{amount, &e.Amount}, {tokens, &e.Tokens}, {rate, &e.Rate}, {total, &e.Total}} {
		if *f.dst, err = parseNumeric(f.src); err != nil {
			return nil, err
		}
	}
	return &e, nil
}
