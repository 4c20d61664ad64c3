package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DomainEventType names one of the events the repayment-plan projector
// folds over. This is the engine's internal event-log representation,
// kept distinct from the outbox package's wire envelope: the projector
// consumes strongly-typed payloads directly, while the outbox serializes
// a subset of the same facts for external subscribers.
type DomainEventType string

const (
	EventProposalCreated      DomainEventType = "proposal_created"
	EventFacilityActivatedEvt DomainEventType = "facility_activated"
	EventObligationCreatedEvt DomainEventType = "obligation_created"
	EventPaymentAllocatedEvt  DomainEventType = "payment_allocated"
	EventObligationStatusEvt  DomainEventType = "obligation_status_changed"
	EventAccrualPostedEvt     DomainEventType = "accrual_posted"
)

// DomainEvent is one row of a facility's event log, carrying a monotonic
// per-facility sequence number used for ordering and for resuming
// projections from a snapshot.
type DomainEvent struct {
	Sequence   int64
	FacilityID uuid.UUID
	Type       DomainEventType
	Payload    interface{}
	RecordedAt time.Time
}

type ProposalCreatedPayload struct {
	Terms       Terms
	AmountCents int64
}

type FacilityActivatedPayload struct {
	ActivatedAt time.Time
}

type ObligationCreatedPayload struct {
	Obligation *Obligation
}

type PaymentAllocatedPayload struct {
	Allocation PaymentAllocation
}

type ObligationStatusChangedPayload struct {
	ObligationID uuid.UUID
	Status       RepaymentPlanEntryStatus
}

type AccrualPostedPayload struct {
	LedgerTxID uuid.UUID
	PeriodEnd  time.Time
	Amount     decimal.Decimal
}

// Fold applies a DomainEvent to the repayment plan, dispatching on type.
// Replaying the full ordered event log through Fold regenerates
// bit-identical plan state (accrual idempotence, spec property 4).
func (p *RepaymentPlan) Fold(evt DomainEvent) {
	switch evt.Type {
	case EventProposalCreated:
		payload := evt.Payload.(ProposalCreatedPayload)
		p.ApplyProposalCreated(payload.Terms, payload.AmountCents, evt.RecordedAt, evt.Sequence)
	case EventFacilityActivatedEvt:
		payload := evt.Payload.(FacilityActivatedPayload)
		p.ApplyFacilityActivated(payload.ActivatedAt, evt.Sequence)
	case EventObligationCreatedEvt:
		payload := evt.Payload.(ObligationCreatedPayload)
		p.ApplyObligationCreated(payload.Obligation, evt.Sequence)
	case EventPaymentAllocatedEvt:
		payload := evt.Payload.(PaymentAllocatedPayload)
		p.ApplyPaymentAllocated(payload.Allocation, evt.Sequence)
	case EventObligationStatusEvt:
		payload := evt.Payload.(ObligationStatusChangedPayload)
		p.ApplyObligationStatusChanged(payload.ObligationID, payload.Status, evt.Sequence)
	case EventAccrualPostedEvt:
		payload := evt.Payload.(AccrualPostedPayload)
		p.ApplyAccrualPosted(payload.LedgerTxID, payload.PeriodEnd, payload.Amount, evt.Sequence)
	}
}

// Rebuild folds an ordered event log into a fresh plan from scratch.
func Rebuild(events []DomainEvent) *RepaymentPlan {
	plan := NewRepaymentPlan()
	for _, evt := range events {
		plan.Fold(evt)
	}
	return plan
}
