package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment represents funds received into a facility's payment_holding
// account, awaiting allocation against outstanding obligations.
type Payment struct {
	ID              uuid.UUID
	FacilityID      uuid.UUID
	SourceAccountID uuid.UUID
	Amount          decimal.Decimal
	EffectiveAt     time.Time
	RecordedAt      time.Time
}

// PaymentAllocation debits payment_holding and credits one obligation's
// receivable account by an amount not exceeding that obligation's
// outstanding balance.
type PaymentAllocation struct {
	ID           uuid.UUID
	PaymentID    uuid.UUID
	ObligationID uuid.UUID
	Amount       decimal.Decimal
}

// waterfallRank orders obligations into the six-step priority list: overdue
// interest, overdue principal, due interest, due principal, not-yet-due
// interest, not-yet-due principal.
func waterfallRank(o *Obligation) int {
	switch o.Status {
	case ObligationOverdue, ObligationDefaulted:
		if o.Type == ObligationInterest {
			return 0
		}
		return 1
	case ObligationDue:
		if o.Type == ObligationInterest {
			return 2
		}
		return 3
	default: // NotYetDue
		if o.Type == ObligationInterest {
			return 4
		}
		return 5
	}
}

// AllocatePayment distributes payment across outstanding obligations in
// waterfall priority order. Within a rank, obligations are ordered by
// effective date ascending (oldest first). Returns one allocation per
// obligation that received funds; the remainder left in payment_holding is
// payment minus the sum of all allocation amounts.
//
// Invariant enforced: sum(allocation.Amount) <= payment, and no allocation
// exceeds its obligation's outstanding balance.
func AllocatePayment(payment decimal.Decimal, obligations []*Obligation) []PaymentAllocation {
	candidates := make([]*Obligation, 0, len(obligations))
	for _, o := range obligations {
		if o.Status != ObligationPaid && o.OutstandingAmount.IsPositive() {
			candidates = append(candidates, o)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := waterfallRank(candidates[i]), waterfallRank(candidates[j])
		if ri != rj {
			return ri < rj
		}
		return candidates[i].EffectiveAt.Before(candidates[j].EffectiveAt)
	})

	remaining := payment
	var allocations []PaymentAllocation
	for _, o := range candidates {
		if !remaining.IsPositive() {
			break
		}
		amount := decimal.Min(remaining, o.OutstandingAmount)
		if !amount.IsPositive() {
			continue
		}
		allocations = append(allocations, PaymentAllocation{
			ID:           uuid.New(),
			ObligationID: o.ID,
			Amount:       amount,
		})
		remaining = remaining.Sub(amount)
	}
	return allocations
}
