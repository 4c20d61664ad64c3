package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InMemoryLedger is a reference implementation of Ledger used by engine
// tests, grounded on the same in-process, mutex-guarded store pattern the
// rest of this codebase uses for mocks. It is not meant for production:
// balances live only in process memory and are lost on restart.
type InMemoryLedger struct {
	mu sync.Mutex

	accounts    map[uuid.UUID]Account
	accountSets map[uuid.UUID]AccountSet
	settled     map[uuid.UUID]decimal.Decimal
	posted      map[uuid.UUID]struct{} // external tx ids already applied
	velocity    map[uuid.UUID]decimal.Decimal
}

// NewInMemoryLedger constructs an empty ledger.
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		accounts:    make(map[uuid.UUID]Account),
		accountSets: make(map[uuid.UUID]AccountSet),
		settled:     make(map[uuid.UUID]decimal.Decimal),
		posted:      make(map[uuid.UUID]struct{}),
		velocity:    make(map[uuid.UUID]decimal.Decimal),
	}
}

func (l *InMemoryLedger) CreateAccount(ctx context.Context, account Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[account.ID] = account
	if _, ok := l.settled[account.ID]; !ok {
		l.settled[account.ID] = decimal.Zero
	}
	return nil
}

func (l *InMemoryLedger) CreateAccountSet(ctx context.Context, set AccountSet) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accountSets[set.ID] = set
	return nil
}

// Post validates balance per currency, idempotency, and velocity limits,
// then applies every entry atomically under the ledger's lock.
func (l *InMemoryLedger) Post(ctx context.Context, tx Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, already := l.posted[tx.ExternalID]; already {
		return nil
	}

	totals := make(map[Currency]decimal.Decimal)
	for _, e := range tx.Entries {
		signed := e.Amount
		if e.Direction == Debit {
			signed = signed.Neg()
		}
		totals[e.Currency] = totals[e.Currency].Add(signed)
	}
	for _, total := range totals {
		if !total.IsZero() {
			return ErrUnbalanced
		}
	}

	newBalances := make(map[uuid.UUID]decimal.Decimal, len(tx.Entries))
	for _, e := range tx.Entries {
		acct, ok := l.accounts[e.AccountID]
		if !ok {
			return ErrAccountNotFound
		}
		delta := e.Amount
		if e.Direction != acct.Side {
			delta = delta.Neg()
		}
		current, staged := newBalances[e.AccountID]
		if !staged {
			current = l.settled[e.AccountID]
		}
		newBalance := current.Add(delta)
		if limit, hasLimit := l.velocity[e.AccountID]; hasLimit && newBalance.GreaterThan(limit) {
			return ErrVelocityExceeded
		}
		newBalances[e.AccountID] = newBalance
	}
	for id, b := range newBalances {
		l.settled[id] = b
	}

	l.posted[tx.ExternalID] = struct{}{}
	return nil
}

func (l *InMemoryLedger) BalanceOf(ctx context.Context, accountID uuid.UUID) (Balance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	settled, ok := l.settled[accountID]
	if !ok {
		return Balance{}, ErrAccountNotFound
	}
	return Balance{Settled: settled}, nil
}

func (l *InMemoryLedger) SetVelocityLimit(ctx context.Context, limit VelocityLimit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.velocity[limit.AccountID] = limit.MaxAmount
	return nil
}

var _ Ledger = (*InMemoryLedger)(nil)
