package sale

import (
	"errors"

	"escrow-sale/internal/codec"
)

// Operation errors. Every precondition failure maps to exactly one of these.
var (
	ErrAlreadyInitialized = errors.New("sale already initialized")
	ErrNotInitialized     = errors.New("sale not initialized")
	ErrPermissionDenied   = errors.New("permission denied: creator only")
	ErrInvalidState       = errors.New("operation not allowed in current sale status")
	ErrDeadlineNotReached = errors.New("deadline not reached")
	ErrDeadlinePassed     = errors.New("deadline passed")
	ErrDustRejected       = errors.New("contribution yields zero tokens")
	ErrRecordNotFound     = errors.New("contributor record not found")
	ErrAlreadySettled     = errors.New("contributor record already settled")
	ErrInvalidAmount      = errors.New("amount must be positive")

	// ErrTransferFailed wraps the ledger error that rejected a value movement.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrOverflow is returned when an amount does not fit 64 bits.
	ErrOverflow = errors.New("arithmetic overflow")

	// ErrInsolventReclaim is returned under strict reclaim when the amount
	// would leave escrow unable to pay outstanding entitlements.
	ErrInsolventReclaim = errors.New("reclaim exceeds unowed token balance")

	// ErrCorruptState is returned when a persisted record cannot be decoded.
	ErrCorruptState = errors.New("corrupt persisted state")
)

// Stable error codes for clients and metrics labels.
const (
	CodeOK                 = "OK"
	CodeAlreadyInitialized = "ALREADY_INITIALIZED"
	CodeNotInitialized     = "NOT_INITIALIZED"
	CodePermissionDenied   = "PERMISSION_DENIED"
	CodeInvalidState       = "INVALID_STATE"
	CodeDeadlineNotReached = "DEADLINE_NOT_REACHED"
	CodeDeadlinePassed     = "DEADLINE_PASSED"
	CodeDustRejected       = "DUST_REJECTED"
	CodeRecordNotFound     = "RECORD_NOT_FOUND"
	CodeAlreadySettled     = "ALREADY_SETTLED"
	CodeInvalidAmount      = "INVALID_AMOUNT"
	CodeTransferFailed     = "TRANSFER_FAILED"
	CodeOverflow           = "OVERFLOW"
	CodeInsolventReclaim   = "INSOLVENT_RECLAIM"
	CodeCorruptState       = "CORRUPT_STATE"
	CodeInternal           = "INTERNAL"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrAlreadyInitialized, CodeAlreadyInitialized},
	{ErrNotInitialized, CodeNotInitialized},
	{ErrPermissionDenied, CodePermissionDenied},
	{ErrInvalidState, CodeInvalidState},
	{ErrDeadlineNotReached, CodeDeadlineNotReached},
	{ErrDeadlinePassed, CodeDeadlinePassed},
	{ErrDustRejected, CodeDustRejected},
	{ErrRecordNotFound, CodeRecordNotFound},
	{ErrAlreadySettled, CodeAlreadySettled},
	{ErrInvalidAmount, CodeInvalidAmount},
	{ErrTransferFailed, CodeTransferFailed},
	{ErrOverflow, CodeOverflow},
	{ErrInsolventReclaim, CodeInsolventReclaim},
	{ErrCorruptState, CodeCorruptState},
	{codec.ErrInvalidLength, CodeCorruptState},
}

// ErrorCode returns the stable code of err. CodeOK for nil, CodeInternal if unknown.
func ErrorCode(err error) string {
	if err == nil {
		return CodeOK
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}
