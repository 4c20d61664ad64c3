package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ObligationType distinguishes principal drawdowns from posted interest.
type ObligationType string

const (
	ObligationDisbursal ObligationType = "disbursal"
	ObligationInterest  ObligationType = "interest"
)

// ObligationStatus is the timer-and-payment-driven lifecycle state of an
// Obligation.
type ObligationStatus string

const (
	ObligationNotYetDue ObligationStatus = "not_yet_due"
	ObligationDue       ObligationStatus = "due"
	ObligationOverdue   ObligationStatus = "overdue"
	ObligationDefaulted ObligationStatus = "defaulted"
	ObligationPaid      ObligationStatus = "paid"
)

// receivableAccount maps an (obligation type, status) pair to the ledger
// account identifier currently holding it.
func receivableAccount(accounts LedgerAccountIDSet, obType ObligationType, status ObligationStatus) uuid.UUID {
	if obType == ObligationDisbursal {
		switch status {
		case ObligationNotYetDue:
			return accounts.DisbursedNotYetDue
		case ObligationDue:
			return accounts.DisbursedDue
		case ObligationOverdue:
			return accounts.DisbursedOverdue
		case ObligationDefaulted:
			return accounts.DisbursedDefaulted
		}
	}
	switch status {
	case ObligationNotYetDue:
		return accounts.InterestNotYetDue
	case ObligationDue:
		return accounts.InterestDue
	case ObligationOverdue:
		return accounts.InterestOverdue
	case ObligationDefaulted:
		return accounts.InterestDefaulted
	}
	return uuid.Nil
}

// Obligation is a materialized debt owed by the borrower.
type Obligation struct {
	ID               uuid.UUID
	FacilityID       uuid.UUID
	Type             ObligationType
	InitialAmount    decimal.Decimal
	OutstandingAmount decimal.Decimal
	DueAt            time.Time
	OverdueAt        time.Time
	DefaultedAt      time.Time
	Status           ObligationStatus
	RecordedAt       time.Time
	EffectiveAt      time.Time
	Version          int64
}

// NewObligation constructs an obligation due at dueAt, with overdue/defaulted
// timestamps derived from the facility's terms grace durations.
func NewObligation(facilityID uuid.UUID, obType ObligationType, amount decimal.Decimal, effective, dueAt time.Time, overdueAfter, defaultedAfter time.Duration) *Obligation {
	return &Obligation{
		ID:                uuid.New(),
		FacilityID:        facilityID,
		Type:              obType,
		InitialAmount:     amount,
		OutstandingAmount: amount,
		DueAt:             dueAt,
		OverdueAt:         dueAt.Add(overdueAfter),
		DefaultedAt:       dueAt.Add(defaultedAfter),
		Status:            ObligationNotYetDue,
		RecordedAt:        time.Now().UTC(),
		EffectiveAt:       effective,
		Version:           1,
	}
}

// ReceivableAccount returns the ledger account currently holding this
// obligation's outstanding balance.
func (o *Obligation) ReceivableAccount(accounts LedgerAccountIDSet) uuid.UUID {
	return receivableAccount(accounts, o.Type, o.Status)
}

// ReceivableAccountForStatus returns the ledger account that holds this
// obligation's balance under the given status, used to find the "from"
// account of a status-transition's balancing ledger entry.
func (o *Obligation) ReceivableAccountForStatus(accounts LedgerAccountIDSet, status ObligationStatus) uuid.UUID {
	return receivableAccount(accounts, o.Type, status)
}

// AdvanceTimerStatus applies the timer-driven transitions
// (NotYetDue -> Due -> Overdue -> Defaulted) for the given now. Returns the
// previous status so the caller can post the balancing ledger entry
// between the two receivable accounts; returns ("", false) if no
// transition applies.
func (o *Obligation) AdvanceTimerStatus(now time.Time) (from ObligationStatus, transitioned bool) {
	if o.Status == ObligationPaid {
		return "", false
	}
	from = o.Status
	switch o.Status {
	case ObligationNotYetDue:
		if !now.Before(o.DueAt) {
			o.Status = ObligationDue
		}
	case ObligationDue:
		if !now.Before(o.OverdueAt) {
			o.Status = ObligationOverdue
		}
	case ObligationOverdue:
		if !now.Before(o.DefaultedAt) {
			o.Status = ObligationDefaulted
		}
	}
	if o.Status == from {
		return "", false
	}
	o.Version++
	return from, true
}

// ApplyPayment reduces outstanding by amount (capped at outstanding) and
// transitions to Paid if it reaches zero from any non-terminal status.
// Returns the amount actually applied.
func (o *Obligation) ApplyPayment(amount decimal.Decimal) decimal.Decimal {
	if o.Status == ObligationPaid || !amount.IsPositive() {
		return decimal.Zero
	}
	applied := decimal.Min(amount, o.OutstandingAmount)
	o.OutstandingAmount = o.OutstandingAmount.Sub(applied)
	if o.OutstandingAmount.IsZero() {
		o.Status = ObligationPaid
	}
	o.Version++
	return applied
}

// IsOverdueOrWorse reports whether status is Overdue or Defaulted, used by
// the payment allocation waterfall's priority ordering.
func (s ObligationStatus) IsOverdueOrWorse() bool {
	return s == ObligationOverdue || s == ObligationDefaulted
}
