package storage

import "errors"

// Storage errors for append-only stores.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists. Append-only stores do not allow updates.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// Ledger errors reported by Tx.Transfer.
var (
	// ErrInsufficientFunds is returned when the sender balance does not cover a transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotOptedIn is returned when a token transfer targets an account
	// that has not registered as holder of the asset.
	ErrNotOptedIn = errors.New("account not opted in to asset")

	// ErrBalanceOverflow is returned when a credit would exceed the u64 balance range.
	ErrBalanceOverflow = errors.New("balance overflow")
)
