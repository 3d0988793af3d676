package memory

import (
	"context"
	"math"
	"sync"

	"escrow-sale/internal/domain"
	"escrow-sale/internal/storage"
)

type balanceKey struct {
	account domain.Identity
	asset   domain.Asset
}

type holderKey struct {
	account domain.Identity
	assetID uint64
}

// Ledger is an in-memory implementation of storage.Ledger.
// Atomic units hold the lock for their whole duration and stage their
// effects in an overlay that is merged only on success.
//
// Keys are scoped to the ledger's sale namespace. Balances and holders are
// shared by every namespace view of the same ledger.
type Ledger struct {
	mu        *sync.Mutex
	namespace string
	kv        map[string][]byte
	balances  map[balanceKey]uint64
	holders   map[holderKey]struct{}
}

// NewLedger creates an empty in-memory ledger with the default namespace.
func NewLedger() *Ledger {
	return &Ledger{
		mu:       &sync.Mutex{},
		kv:       make(map[string][]byte),
		balances: make(map[balanceKey]uint64),
		holders:  make(map[holderKey]struct{}),
	}
}

// ForSale returns a view of l whose keys live in the saleID namespace.
// Accounts are shared with l and its other views.
func (l *Ledger) ForSale(saleID string) *Ledger {
	view := *l
	view.namespace = saleID
	return &view
}

func (l *Ledger) key(k string) string {
	if l.namespace == "" {
		return k
	}
	return l.namespace + "\x00" + k
}

// Atomic runs fn against a staged view of the ledger.
func (l *Ledger) Atomic(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &ledgerTx{
		base:     l,
		kv:       make(map[string][]byte),
		balances: make(map[balanceKey]uint64),
		holders:  make(map[holderKey]struct{}),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for k, v := range tx.kv {
		l.kv[l.key(k)] = v
	}
	for k, v := range tx.balances {
		l.balances[k] = v
	}
	for k := range tx.holders {
		l.holders[k] = struct{}{}
	}
	return nil
}

// Deposit credits amount of asset to account outside any sale operation.
// Token deposits require the account to be opted in.
func (l *Ledger) Deposit(_ context.Context, account domain.Identity, asset domain.Asset, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if asset.IsToken() {
		if _, ok := l.holders[holderKey{account, asset.ID}]; !ok {
			return storage.ErrNotOptedIn
		}
	}

	k := balanceKey{account, asset}
	if l.balances[k] > math.MaxUint64-amount {
		return storage.ErrBalanceOverflow
	}
	l.balances[k] += amount
	return nil
}

// OptIn registers account as holder of assetID outside any sale operation.
func (l *Ledger) OptIn(_ context.Context, account domain.Identity, assetID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.holders[holderKey{account, assetID}] = struct{}{}
	return nil
}

// Balance returns the committed balance of account in asset.
func (l *Ledger) Balance(_ context.Context, account domain.Identity, asset domain.Asset) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.balances[balanceKey{account, asset}], nil
}

// ledgerTx is the staged overlay of one Atomic unit. Only used under Ledger.mu.
type ledgerTx struct {
	base     *Ledger
	kv       map[string][]byte
	balances map[balanceKey]uint64
	holders  map[holderKey]struct{}
}

func (tx *ledgerTx) Get(_ context.Context, key []byte) ([]byte, error) {
	v, ok := tx.kv[string(key)]
	if !ok {
		v, ok = tx.base.kv[tx.base.key(string(key))]
	}
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (tx *ledgerTx) Put(_ context.Context, key, value []byte) error {
	if len(key) == 0 {
		return storage.ErrInvalidInput
	}
	v := make([]byte, len(value))
	copy(v, value)
	tx.kv[string(key)] = v
	return nil
}

func (tx *ledgerTx) Transfer(_ context.Context, t domain.Transfer) error {
	if t.Asset.IsToken() && !tx.isHolder(t.To, t.Asset.ID) {
		return storage.ErrNotOptedIn
	}

	from := balanceKey{t.From, t.Asset}
	to := balanceKey{t.To, t.Asset}

	fromBal := tx.balance(from)
	if fromBal < t.Amount {
		return storage.ErrInsufficientFunds
	}
	if from == to {
		return nil
	}

	toBal := tx.balance(to)
	if toBal > math.MaxUint64-t.Amount {
		return storage.ErrBalanceOverflow
	}

	tx.balances[from] = fromBal - t.Amount
	tx.balances[to] = toBal + t.Amount
	return nil
}

func (tx *ledgerTx) OptIn(_ context.Context, account domain.Identity, assetID uint64) error {
	tx.holders[holderKey{account, assetID}] = struct{}{}
	return nil
}

func (tx *ledgerTx) Balance(_ context.Context, account domain.Identity, asset domain.Asset) (uint64, error) {
	return tx.balance(balanceKey{account, asset}), nil
}

func (tx *ledgerTx) balance(k balanceKey) uint64 {
	if v, ok := tx.balances[k]; ok {
		return v
	}
	return tx.base.balances[k]
}

func (tx *ledgerTx) isHolder(account domain.Identity, assetID uint64) bool {
	k := holderKey{account, assetID}
	if _, ok := tx.holders[k]; ok {
		return true
	}
	_, ok := tx.base.holders[k]
	return ok
}

var _ storage.Ledger = (*Ledger)(nil)
