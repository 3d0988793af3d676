package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"escrow-sale/internal/domain"
	"escrow-sale/internal/storage"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Ledger implements storage.Ledger on SQLite for one sale namespace.
type Ledger struct {
	db     *DB
	saleID string
}

// NewLedger creates a ledger for the sale namespace saleID.
func NewLedger(db *DB, saleID string) *Ledger {
	return &Ledger{db: db, saleID: saleID}
}

// Compile-time interface check.
var _ storage.Ledger = (*Ledger)(nil)

// Atomic runs fn inside an immediate transaction that commits only if fn returns nil.
func (l *Ledger) Atomic(ctx context.Context, fn func(tx storage.Tx) error) error {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()

	tx, err := l.db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&ledgerTx{q: tx, saleID: l.saleID}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

// Deposit credits amount of asset to account outside any sale operation.
func (l *Ledger) Deposit(ctx context.Context, account domain.Identity, asset domain.Asset, amount uint64) error {
	return l.Atomic(ctx, func(tx storage.Tx) error {
		t := tx.(*ledgerTx)
		if asset.IsToken() {
			ok, err := t.isHolder(ctx, account, asset.ID)
			if err != nil {
				return err
			}
			if !ok {
				return storage.ErrNotOptedIn
			}
		}
		return t.credit(ctx, account, asset, amount)
	})
}

// OptIn registers account as holder of assetID outside any sale operation.
func (l *Ledger) OptIn(ctx context.Context, account domain.Identity, assetID uint64) error {
	return l.Atomic(ctx, func(tx storage.Tx) error {
		return tx.OptIn(ctx, account, assetID)
	})
}

// Balance returns the committed balance of account in asset.
func (l *Ledger) Balance(ctx context.Context, account domain.Identity, asset domain.Asset) (uint64, error) {
	return (&ledgerTx{q: l.db.sqlDB, saleID: l.saleID}).Balance(ctx, account, asset)
}

type ledgerTx struct {
	q      querier
	saleID string
}

func (tx *ledgerTx) Get(ctx context.Context, key []byte) ([]byte, error) {
	var value []byte
	err := tx.q.QueryRowContext(ctx,
		`SELECT value FROM sale_kv WHERE sale_id = ? AND key = ?`,
		tx.saleID, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	_, err := tx.q.ExecContext(ctx,
		`INSERT INTO sale_kv (sale_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (sale_id, key) DO UPDATE SET value = excluded.value`,
		tx.saleID, key, value,
	)
	if err != nil {
		return fmt.Errorf("put sale key: %w", err)
	}
	return nil
}

func (tx *ledgerTx) Transfer(ctx context.Context, t domain.Transfer) error {
	if t.Asset.IsToken() {
		ok, err := tx.isHolder(ctx, t.To, t.Asset.ID)
		if err != nil {
			return err
		}
		if !ok {
			return storage.ErrNotOptedIn
		}
	}

	fromBal, err := tx.Balance(ctx, t.From, t.Asset)
	if err != nil {
		return err
	}
	if fromBal < t.Amount {
		return storage.ErrInsufficientFunds
	}
	if t.From == t.To || t.Amount == 0 {
		return nil
	}

	toBal, err := tx.Balance(ctx, t.To, t.Asset)
	if err != nil {
		return err
	}
	if toBal > math.MaxUint64-t.Amount {
		return storage.ErrBalanceOverflow
	}

	if err := tx.setBalance(ctx, t.From, t.Asset, fromBal-t.Amount); err != nil {
		return err
	}
	return tx.setBalance(ctx, t.To, t.Asset, toBal+t.Amount)
}

func (tx *ledgerTx) OptIn(ctx context.Context, account domain.Identity, assetID uint64) error {
	_, err := tx.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO ledger_holders (account, asset_id) VALUES (?, ?)`,
		account[:], formatAmount(assetID),
	)
	if err != nil {
		return fmt.Errorf("opt in: %w", err)
	}
	return nil
}

func (tx *ledgerTx) Balance(ctx context.Context, account domain.Identity, asset domain.Asset) (uint64, error) {
	var amount string
	err := tx.q.QueryRowContext(ctx,
		`SELECT amount FROM ledger_balances WHERE account = ? AND asset = ?`,
		account[:], asset.String(),
	).Scan(&amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return parseAmount(amount)
}

func (tx *ledgerTx) credit(ctx context.Context, account domain.Identity, asset domain.Asset, amount uint64) error {
	bal, err := tx.Balance(ctx, account, asset)
	if err != nil {
		return err
	}
	if bal > math.MaxUint64-amount {
		return storage.ErrBalanceOverflow
	}
	return tx.setBalance(ctx, account, asset, bal+amount)
}

func (tx *ledgerTx) setBalance(ctx context.Context, account domain.Identity, asset domain.Asset, amount uint64) error {
	_, err := tx.q.ExecContext(ctx,
		`INSERT INTO ledger_balances (account, asset, amount) VALUES (?, ?, ?)
		 ON CONFLICT (account, asset) DO UPDATE SET amount = excluded.amount`,
		account[:], asset.String(), formatAmount(amount),
	)
	if err != nil {
		return fmt.Errorf("set balance %s: %w", asset, err)
	}
	return nil
}

func (tx *ledgerTx) isHolder(ctx context.Context, account domain.Identity, assetID uint64) (bool, error) {
	var found int
	err := tx.q.QueryRowContext(ctx,
		`SELECT 1 FROM ledger_holders WHERE account = ? AND asset_id = ?`,
		account[:], formatAmount(assetID),
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check holder: %w", err)
	}
	return true, nil
}
