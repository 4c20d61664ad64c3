package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RepaymentPlanEntryStatus mirrors ObligationStatus with one addition,
// Upcoming, for forecast entries that have no materialized obligation yet.
type RepaymentPlanEntryStatus string

const (
	EntryUpcoming   RepaymentPlanEntryStatus = "upcoming"
	EntryNotYetDue  RepaymentPlanEntryStatus = "not_yet_due"
	EntryDue        RepaymentPlanEntryStatus = "due"
	EntryOverdue    RepaymentPlanEntryStatus = "overdue"
	EntryDefaulted  RepaymentPlanEntryStatus = "defaulted"
	EntryPaid       RepaymentPlanEntryStatus = "paid"
)

// RepaymentPlanEntry is a read-model row: either a materialized obligation
// (ObligationID set) or a forecast row (ObligationID nil).
type RepaymentPlanEntry struct {
	Type             ObligationType
	ObligationID     *uuid.UUID
	Status           RepaymentPlanEntryStatus
	InitialAmount    decimal.Decimal
	OutstandingAmount decimal.Decimal
	DueAt            *time.Time
	OverdueAt        *time.Time
	DefaultedAt      *time.Time
	RecordedAt       time.Time
	EffectiveAt      time.Time
}

// RepaymentPlan is the per-facility projection rebuilt by folding the
// event log. It owns nothing mutable in the engine's entity store; it is
// a pure derived view.
type RepaymentPlan struct {
	FacilityAmount        decimal.Decimal
	Terms                 *Terms
	ActivatedAt           *time.Time
	LastInterestAccrualAt *time.Time
	LastUpdatedSequence   int64

	Entries []RepaymentPlanEntry

	appliedAllocations map[uuid.UUID]struct{}
	appliedAccruals    map[uuid.UUID]struct{}
}

// NewRepaymentPlan constructs an empty plan ready to fold events.
func NewRepaymentPlan() *RepaymentPlan {
	return &RepaymentPlan{
		appliedAllocations: make(map[uuid.UUID]struct{}),
		appliedAccruals:    make(map[uuid.UUID]struct{}),
	}
}

// SeenAllocationIDs returns the dedup set of applied payment allocation
// ids, for snapshotting.
func (p *RepaymentPlan) SeenAllocationIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.appliedAllocations))
	for id := range p.appliedAllocations {
		ids = append(ids, id)
	}
	return ids
}

// SeenAccrualIDs returns the dedup set of applied accrual ledger tx ids,
// for snapshotting.
func (p *RepaymentPlan) SeenAccrualIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.appliedAccruals))
	for id := range p.appliedAccruals {
		ids = append(ids, id)
	}
	return ids
}

// RestoreDedup repopulates the dedup sets after loading a snapshot, so
// events already folded into it are not re-applied on replay-forward.
func (p *RepaymentPlan) RestoreDedup(allocationIDs, accrualIDs []uuid.UUID) {
	for _, id := range allocationIDs {
		p.appliedAllocations[id] = struct{}{}
	}
	for _, id := range accrualIDs {
		p.appliedAccruals[id] = struct{}{}
	}
}

// ExistingObligations returns the materialized (non-upcoming) entries.
func (p *RepaymentPlan) ExistingObligations() []RepaymentPlanEntry {
	var out []RepaymentPlanEntry
	for _, e := range p.Entries {
		if e.Status != EntryUpcoming {
			out = append(out, e)
		}
	}
	return out
}

// ApplyProposalCreated sets terms/amount and projects the initial forecast:
// planned disbursal(s) and all planned interest accruals from now to
// maturity. Mirrors the original's planned_disbursals / planned_interest_accruals
// split, including a separate structuring-fee entry when the fee is nonzero.
func (p *RepaymentPlan) ApplyProposalCreated(terms Terms, amountCents int64, now time.Time, sequence int64) {
	p.Terms = &terms
	p.FacilityAmount = decimal.NewFromInt(amountCents).Div(decimal.NewFromInt(100))
	p.LastUpdatedSequence = sequence
	p.regenerateForecast(now)
}

// ApplyFacilityActivated fixes the activation timestamp and re-projects
// future accruals starting from it.
func (p *RepaymentPlan) ApplyFacilityActivated(activatedAt time.Time, sequence int64) {
	p.ActivatedAt = &activatedAt
	p.LastUpdatedSequence = sequence
	p.regenerateForecast(activatedAt)
}

// ApplyObligationCreated converts the matching upcoming forecast entry
// into a materialized entry keyed by obligation id.
func (p *RepaymentPlan) ApplyObligationCreated(o *Obligation, sequence int64) {
	for i := range p.Entries {
		e := &p.Entries[i]
		if e.Status != EntryUpcoming || e.Type != o.Type {
			continue
		}
		if !e.EffectiveAt.Equal(o.EffectiveAt) {
			continue
		}
		id := o.ID
		e.ObligationID = &id
		e.Status = EntryNotYetDue
		e.InitialAmount = o.InitialAmount
		e.OutstandingAmount = o.OutstandingAmount
		due := o.DueAt
		overdue := o.OverdueAt
		defaulted := o.DefaultedAt
		e.DueAt = &due
		e.OverdueAt = &overdue
		e.DefaultedAt = &defaulted
		break
	}
	p.LastUpdatedSequence = sequence
}

// ApplyPaymentAllocated decrements the referenced entry's outstanding by
// allocation.Amount. Idempotent via a dedup set of seen allocation ids.
func (p *RepaymentPlan) ApplyPaymentAllocated(alloc PaymentAllocation, sequence int64) {
	if _, seen := p.appliedAllocations[alloc.ID]; seen {
		return
	}
	p.appliedAllocations[alloc.ID] = struct{}{}
	for i := range p.Entries {
		e := &p.Entries[i]
		if e.ObligationID != nil && *e.ObligationID == alloc.ObligationID {
			e.OutstandingAmount = e.OutstandingAmount.Sub(alloc.Amount)
			break
		}
	}
	p.LastUpdatedSequence = sequence
}

// ApplyObligationStatusChanged updates the matching entry's status.
// Naturally idempotent: applying the same status twice is a no-op.
func (p *RepaymentPlan) ApplyObligationStatusChanged(obligationID uuid.UUID, status RepaymentPlanEntryStatus, sequence int64) {
	for i := range p.Entries {
		e := &p.Entries[i]
		if e.ObligationID != nil && *e.ObligationID == obligationID {
			e.Status = status
			break
		}
	}
	p.LastUpdatedSequence = sequence
}

// ApplyAccrualPosted records a zero-interest marker when amount is zero,
// deduped by ledger transaction id so replay never double-records it.
func (p *RepaymentPlan) ApplyAccrualPosted(ledgerTxID uuid.UUID, periodEnd time.Time, amount decimal.Decimal, sequence int64) {
	if _, seen := p.appliedAccruals[ledgerTxID]; seen {
		return
	}
	p.appliedAccruals[ledgerTxID] = struct{}{}
	p.LastInterestAccrualAt = &periodEnd
	if amount.IsZero() {
		p.Entries = append(p.Entries, RepaymentPlanEntry{
			Type:        ObligationInterest,
			Status:      EntryPaid,
			EffectiveAt: periodEnd,
			RecordedAt:  time.Now().UTC(),
		})
	}
	p.LastUpdatedSequence = sequence
	p.regenerateForecast(periodEnd)
}

// regenerateForecast recomputes the Upcoming entries (disbursal(s) and
// planned interest accruals) from current state, leaving materialized
// entries untouched, then re-sorts the full entry list.
func (p *RepaymentPlan) regenerateForecast(now time.Time) {
	if p.Terms == nil {
		return
	}
	var materialized []RepaymentPlanEntry
	for _, e := range p.Entries {
		if e.Status != EntryUpcoming {
			materialized = append(materialized, e)
		}
	}

	var maturity time.Time
	if p.ActivatedAt != nil {
		maturity = p.ActivatedAt.Add(p.Terms.Duration)
	} else {
		maturity = now.Add(p.Terms.Duration)
	}

	forecast := p.plannedDisbursals(maturity)
	forecast = append(forecast, p.plannedInterestAccruals(now, maturity)...)

	p.Entries = append(materialized, forecast...)
	sort.SliceStable(p.Entries, func(i, j int) bool {
		a, b := p.Entries[i], p.Entries[j]
		if !a.EffectiveAt.Equal(b.EffectiveAt) {
			return a.EffectiveAt.Before(b.EffectiveAt)
		}
		if !a.RecordedAt.Equal(b.RecordedAt) {
			return a.RecordedAt.Before(b.RecordedAt)
		}
		// disbursal precedes interest at the same date
		return a.Type == ObligationDisbursal && b.Type != ObligationDisbursal
	})
}

// plannedDisbursals emits the principal disbursal entry, plus a separate
// structuring-fee entry when the fee rate is nonzero, both due at maturity.
func (p *RepaymentPlan) plannedDisbursals(maturity time.Time) []RepaymentPlanEntry {
	var out []RepaymentPlanEntry
	out = append(out, RepaymentPlanEntry{
		Type:              ObligationDisbursal,
		Status:            EntryUpcoming,
		InitialAmount:     p.FacilityAmount,
		OutstandingAmount: p.FacilityAmount,
		EffectiveAt:       maturity,
		RecordedAt:        time.Now().UTC(),
	})
	if p.Terms.StructuringFeeRate.IsPositive() {
		fee := p.FacilityAmount.Mul(p.Terms.StructuringFeeRate).Div(decimal.NewFromInt(100))
		out = append(out, RepaymentPlanEntry{
			Type:              ObligationDisbursal,
			Status:            EntryUpcoming,
			InitialAmount:     fee,
			OutstandingAmount: fee,
			EffectiveAt:       maturity,
			RecordedAt:        time.Now().UTC(),
		})
	}
	return out
}

// plannedInterestAccruals projects one forecast entry per remaining cycle
// interval from the last accrual point (or activation) to maturity.
func (p *RepaymentPlan) plannedInterestAccruals(now, maturity time.Time) []RepaymentPlanEntry {
	start := now
	if p.LastInterestAccrualAt != nil {
		start = *p.LastInterestAccrualAt
	} else if p.ActivatedAt != nil {
		start = *p.ActivatedAt
	}

	var out []RepaymentPlanEntry
	cur := start
	for cur.Before(maturity) {
		next := cur.Add(p.Terms.AccrualCycleInterval)
		if next.After(maturity) {
			next = maturity
		}
		out = append(out, RepaymentPlanEntry{
			Type:        ObligationInterest,
			Status:      EntryUpcoming,
			EffectiveAt: next,
			RecordedAt:  time.Now().UTC(),
		})
		cur = next
	}
	return out
}
