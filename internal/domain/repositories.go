package domain

import (
	"context"

	"github.com/google/uuid"
)

// Repository ports consumed by the service layer. Each mutating method
// enforces optimistic concurrency via the entity's Version field: callers
// pass back the version they read, and the repository returns
// ErrVersionConflict (wrapped as ConcurrentModification) if it has since
// changed.

type ProposalRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*Proposal, error)
	Create(ctx context.Context, p *Proposal) error
	Update(ctx context.Context, p *Proposal, expectedVersion int64) error
}

type PendingFacilityRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*PendingCreditFacility, error)
	Create(ctx context.Context, pf *PendingCreditFacility) error
	Update(ctx context.Context, pf *PendingCreditFacility, expectedVersion int64) error
}

type FacilityRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*CreditFacility, error)
	Create(ctx context.Context, f *CreditFacility) error
	Update(ctx context.Context, f *CreditFacility, expectedVersion int64) error
	ListActive(ctx context.Context) ([]*CreditFacility, error)
}

type AccrualCycleRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*InterestAccrualCycle, error)
	GetCurrentForFacility(ctx context.Context, facilityID uuid.UUID) (*InterestAccrualCycle, error)
	Create(ctx context.Context, c *InterestAccrualCycle) error
	Update(ctx context.Context, c *InterestAccrualCycle, expectedVersion int64) error
	ListDueForExecution(ctx context.Context) ([]*InterestAccrualCycle, error)
}

type ObligationRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*Obligation, error)
	Create(ctx context.Context, o *Obligation) error
	Update(ctx context.Context, o *Obligation, expectedVersion int64) error
	ListByFacility(ctx context.Context, facilityID uuid.UUID) ([]*Obligation, error)
	ListOutstandingByFacility(ctx context.Context, facilityID uuid.UUID) ([]*Obligation, error)
	ListDueForTimerAdvance(ctx context.Context) ([]*Obligation, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	CreateAllocations(ctx context.Context, allocations []PaymentAllocation) error
	ListAllocationIDs(ctx context.Context, facilityID uuid.UUID) (map[uuid.UUID]struct{}, error)
}

// EventRepository is the append-only event log each aggregate's mutations
// are recorded to, and the source the repayment-plan projector folds over.
type EventRepository interface {
	Append(ctx context.Context, facilityID uuid.UUID, eventType DomainEventType, payload interface{}) (DomainEvent, error)
	ListSince(ctx context.Context, facilityID uuid.UUID, afterSequence int64) ([]DomainEvent, error)
}

// RepaymentPlanRepository persists the projector's last-applied sequence
// and entries snapshot per facility (spec §9 event-sourced projections).
type RepaymentPlanRepository interface {
	Load(ctx context.Context, facilityID uuid.UUID) (*RepaymentPlan, int64, error) // plan, lastAppliedSequence
	Save(ctx context.Context, facilityID uuid.UUID, plan *RepaymentPlan) error
}
