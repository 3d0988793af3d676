package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"escrow-sale/internal/domain"
	"escrow-sale/internal/storage"
)

// querier is the subset of pgx shared by Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger implements storage.Ledger on PostgreSQL.
// Each Atomic unit is one transaction holding a transaction-scoped advisory
// lock on the sale id, so units of the same sale run one at a time.
type Ledger struct {
	pool   *Pool
	saleID string
}

// NewLedger creates a ledger for the sale namespace saleID.
func NewLedger(pool *Pool, saleID string) *Ledger {
	return &Ledger{pool: pool, saleID: saleID}
}

// Compile-time interface check.
var _ storage.Ledger = (*Ledger)(nil)

// Atomic runs fn inside a transaction. The transaction commits only if fn returns nil.
func (l *Ledger) Atomic(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, l.saleID); err != nil {
		return fmt.Errorf("lock sale %s: %w", l.saleID, err)
	}

	if err := fn(&ledgerTx{q: tx, saleID: l.saleID}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

// Deposit credits amount of asset to account outside any sale operation.
func (l *Ledger) Deposit(ctx context.Context, account domain.Identity, asset domain.Asset, amount uint64) error {
	if asset.IsToken() {
		ok, err := isHolder(ctx, l.pool, account, asset.ID)
		if err != nil {
			return err
		}
		if !ok {
			return storage.ErrNotOptedIn
		}
	}
	return credit(ctx, l.pool, account, asset, amount)
}

// OptIn registers account as holder of assetID outside any sale operation.
func (l *Ledger) OptIn(ctx context.Context, account domain.Identity, assetID uint64) error {
	return optIn(ctx, l.pool, account, assetID)
}

// Balance returns the committed balance of account in asset.
func (l *Ledger) Balance(ctx context.Context, account domain.Identity, asset domain.Asset) (uint64, error) {
	return balance(ctx, l.pool, account, asset)
}

type ledgerTx struct {
	q      querier
	saleID string
}

func (tx *ledgerTx) Get(ctx context.Context, key []byte) ([]byte, error) {
	var value []byte
	err := tx.q.QueryRow(ctx,
		`SELECT value FROM sale_kv WHERE sale_id = $1 AND key = $2`,
		tx.saleID, key,
	).Scan(&value)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get sale key: %w", err)
	}
	return value, nil
}

func (tx *ledgerTx) Put(ctx context.Context, key, value []byte) error {
	if len(key) == 0 {
		return storage.ErrInvalidInput
	}
	_, err := tx.q.Exec(ctx, `
		INSERT INTO sale_kv (sale_id, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (sale_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, tx.saleID, key, value)
	if err != nil {
		return fmt.Errorf("put sale key: %w", err)
	}
	return nil
}

func (tx *ledgerTx) Transfer(ctx context.Context, t domain.Transfer) error {
	if t.Asset.IsToken() {
		ok, err := isHolder(ctx, tx.q, t.To, t.Asset.ID)
		if err != nil {
			return err
		}
		if !ok {
			return storage.ErrNotOptedIn
		}
	}
	if t.Amount == 0 {
		return nil
	}

	tag, err := tx.q.Exec(ctx, `
		UPDATE ledger_balances SET amount = amount - $3::text::numeric
		WHERE account = $1 AND asset = $2 AND amount >= $3::text::numeric
	`, t.From[:], t.Asset.String(), numeric(t.Amount))
	if err != nil {
		return fmt.Errorf("debit %s: %w", t.Asset, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrInsufficientFunds
	}

	return credit(ctx, tx.q, t.To, t.Asset, t.Amount)
}

func (tx *ledgerTx) OptIn(ctx context.Context, account domain.Identity, assetID uint64) error {
	return optIn(ctx, tx.q, account, assetID)
}

func (tx *ledgerTx) Balance(ctx context.Context, account domain.Identity, asset domain.Asset) (uint64, error) {
	return balance(ctx, tx.q, account, asset)
}

func credit(ctx context.Context, q querier, account domain.Identity, asset domain.Asset, amount uint64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO ledger_balances (account, asset, amount) VALUES ($1, $2, $3::text::numeric)
		ON CONFLICT (account, asset) DO UPDATE SET amount = ledger_balances.amount + EXCLUDED.amount
	`, account[:], asset.String(), numeric(amount))
	if err != nil {
		if isCheckViolation(err) {
			return storage.ErrBalanceOverflow
		}
		return fmt.Errorf("credit %s: %w", asset, err)
	}
	return nil
}

func optIn(ctx context.Context, q querier, account domain.Identity, assetID uint64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO ledger_holders (account, asset_id) VALUES ($1, $2::text::numeric)
		ON CONFLICT DO NOTHING
	`, account[:], numeric(assetID))
	if err != nil {
		return fmt.Errorf("opt in: %w", err)
	}
	return nil
}

func isHolder(ctx context.Context, q querier, account domain.Identity, assetID uint64) (bool, error) {
	var ok bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM ledger_holders WHERE account = $1 AND asset_id = $2::text::numeric)
	`, account[:], numeric(assetID)).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check holder: %w", err)
	}
	return ok, nil
}

func balance(ctx context.Context, q querier, account domain.Identity, asset domain.Asset) (uint64, error) {
	var amount string
	err := q.QueryRow(ctx,
		`SELECT amount::text FROM ledger_balances WHERE account = $1 AND asset = $2`,
		account[:], asset.String(),
	).Scan(&amount)
	if err != nil {
		if isNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return parseNumeric(amount)
}
