// Package ledger defines the double-entry ledger contract the engine
// consumes (spec §4.6). The engine never implements ledger internals; it
// depends on this interface, satisfied in production by a remote ledger
// service and in tests by the in-memory InMemoryLedger below.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currency is the unit an account or entry is denominated in.
type Currency string

const (
	USD Currency = "USD"
	BTC Currency = "BTC"
)

// NormalBalanceSide is the side that increases an account's balance.
type NormalBalanceSide string

const (
	Debit  NormalBalanceSide = "debit"
	Credit NormalBalanceSide = "credit"
)

// Account is an identified ledger account with a fixed normal balance side
// and currency.
type Account struct {
	ID       uuid.UUID
	Name     string
	Side     NormalBalanceSide
	Currency Currency

	// CategoryTag is an opaque reporting label (e.g. "institutional:asset")
	// a chart-of-accounts consumer can group by without re-deriving it from
	// the owning facility's customer. Optional: empty for accounts with no
	// customer-classification dimension (e.g. bank-wide omnibus accounts).
	CategoryTag string
}

// AccountSet is a hierarchical aggregation node; its balance is the sum of
// its members' balances.
type AccountSet struct {
	ID      uuid.UUID
	Name    string
	Members []uuid.UUID
}

// Entry is one leg of a transaction: a directed amount against one account.
type Entry struct {
	AccountID uuid.UUID
	Direction NormalBalanceSide
	Amount    decimal.Decimal
	Currency  Currency
}

// Transaction posts a balanced set of entries (sum debits = sum credits,
// per currency). ExternalID is the idempotency key: re-posting the same
// ExternalID is a no-op that returns the original posting's result.
type Transaction struct {
	ExternalID  uuid.UUID
	Entries     []Entry
	EffectiveAt time.Time
	Description string
}

// Balance reports an account's pending, settled, and encumbered amounts.
type Balance struct {
	Pending    decimal.Decimal
	Settled    decimal.Decimal
	Encumbered decimal.Decimal
}

// VelocityLimit bounds the rate or amount of postings against an account,
// e.g. "uncovered_outstanding may not exceed the facility's commitment".
type VelocityLimit struct {
	AccountID uuid.UUID
	MaxAmount decimal.Decimal
}

// Ledger is the contract the engine requires of its double-entry ledger.
type Ledger interface {
	CreateAccount(ctx context.Context, account Account) error
	CreateAccountSet(ctx context.Context, set AccountSet) error

	// Post submits tx. If tx.ExternalID has already been posted, Post
	// returns nil without reapplying the entries (idempotent no-op). If
	// the entries do not balance, Post returns ErrUnbalanced and posts
	// nothing — this is the engine's LedgerImbalance disposition, always
	// fatal to the calling job, never retried.
	Post(ctx context.Context, tx Transaction) error

	BalanceOf(ctx context.Context, accountID uuid.UUID) (Balance, error)
	SetVelocityLimit(ctx context.Context, limit VelocityLimit) error
}
