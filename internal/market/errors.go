package market

import "errors"

var (
	// ErrInvalidRequest indicates caller misuse: a malformed trade request
	// that can never succeed and must not be retried.
	ErrInvalidRequest = errors.New("invalid trade request")

	// ErrNotFound indicates an unknown item id.
	ErrNotFound = errors.New("item not found")

	// ErrCorruptState indicates the persisted catalog could not be parsed.
	// Fatal at startup: the host must refuse to run with partial data.
	ErrCorruptState = errors.New("corrupt catalog state")

	// ErrRetriesExhausted indicates the optimistic retry budget was spent
	// under contention. The whole operation is safe to retry.
	ErrRetriesExhausted = errors.New("optimistic retry budget exhausted")
)

// RejectedError is a business-rule refusal from the pricing policy or the
// per-actor trade limits. Nothing was mutated and no ledger call happened.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "trade rejected: " + e.Reason
}

// LedgerError wraps a failure reported by the external economy provider.
// Use errors.Is with ledger.ErrInsufficientFunds to distinguish a short
// balance from a provider outage.
type LedgerError struct {
	Err error
}

func (e *LedgerError) Error() string {
	return "ledger failure: " + e.Err.Error()
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}
