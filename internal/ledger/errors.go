package ledger

import "errors"

var (
	// ErrUnbalanced is returned when a transaction's entries do not sum to
	// zero per currency. The engine treats this as a fatal, non-retryable
	// bug (spec §7 LedgerImbalance) since it can only mean an accounting
	// error in the caller, never a transient condition.
	ErrUnbalanced = errors.New("ledger: transaction entries do not balance")

	ErrAccountNotFound    = errors.New("ledger: account not found")
	ErrVelocityExceeded   = errors.New("ledger: velocity limit exceeded")
	ErrAccountSetNotFound = errors.New("ledger: account set not found")
)
