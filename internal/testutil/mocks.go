package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/creditcore/creditd/internal/domain"
)

// MockProposalRepository is a map-backed deterministic repository double,
// grounded on the teacher's MockUserRepository pattern: every stored
// entity is a pointer value keyed by id, with optimistic-concurrency
// checks faithful to what the real Postgres repository enforces.
type MockProposalRepository struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*domain.Proposal
}

func NewMockProposalRepository() *MockProposalRepository {
	return &MockProposalRepository{byID: make(map[uuid.UUID]*domain.Proposal)}
}

func (m *MockProposalRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, domain.NewEngineError(domain.KindNotFound, "MockProposalRepository.Get", domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *MockProposalRepository) Create(ctx context.Context, p *domain.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *MockProposalRepository) Update(ctx context.Context, p *domain.Proposal, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.byID[p.ID]
	if !ok {
		return domain.NewEngineError(domain.KindNotFound, "MockProposalRepository.Update", domain.ErrNotFound)
	}
	if existing.Version != expectedVersion {
		return domain.NewEngineError(domain.KindConcurrentModification, "MockProposalRepository.Update", domain.ErrVersionConflict)
	}
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

// MockPendingFacilityRepository is the pending-facility analogue.
type MockPendingFacilityRepository struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*domain.PendingCreditFacility
}

func NewMockPendingFacilityRepository() *MockPendingFacilityRepository {
	return &MockPendingFacilityRepository{byID: make(map[uuid.UUID]*domain.PendingCreditFacility)}
}

func (m *MockPendingFacilityRepository) Get(ctx context.Context, id uuid.UUID) (*domain.PendingCreditFacility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pf, ok := m.byID[id]
	if !ok {
		return nil, domain.NewEngineError(domain.KindNotFound, "MockPendingFacilityRepository.Get", domain.ErrNotFound)
	}
	cp := *pf
	return &cp, nil
}

func (m *MockPendingFacilityRepository) Create(ctx context.Context, pf *domain.PendingCreditFacility) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pf
	m.byID[pf.ID] = &cp
	return nil
}

func (m *MockPendingFacilityRepository) Update(ctx context.Context, pf *domain.PendingCreditFacility, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.byID[pf.ID]
	if !ok {
		return domain.NewEngineError(domain.KindNotFound, "MockPendingFacilityRepository.Update", domain.ErrNotFound)
	}
	if existing.Version != expectedVersion {
		return domain.NewEngineError(domain.KindConcurrentModification, "MockPendingFacilityRepository.Update", domain.ErrVersionConflict)
	}
	cp := *pf
	m.byID[pf.ID] = &cp
	return nil
}

// MockFacilityRepository is the active-facility analogue.
type MockFacilityRepository struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*domain.CreditFacility
}

func NewMockFacilityRepository() *MockFacilityRepository {
	return &MockFacilityRepository{byID: make(map[uuid.UUID]*domain.CreditFacility)}
}

func (m *MockFacilityRepository) Get(ctx context.Context, id uuid.UUID) (*domain.CreditFacility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.byID[id]
	if !ok {
		return nil, domain.NewEngineError(domain.KindNotFound, "MockFacilityRepository.Get", domain.ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

func (m *MockFacilityRepository) Create(ctx context.Context, f *domain.CreditFacility) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	m.byID[f.ID] = &cp
	return nil
}

func (m *MockFacilityRepository) Update(ctx context.Context, f *domain.CreditFacility, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.byID[f.ID]
	if !ok {
		return domain.NewEngineError(domain.KindNotFound, "MockFacilityRepository.Update", domain.ErrNotFound)
	}
	if existing.Version != expectedVersion {
		return domain.NewEngineError(domain.KindConcurrentModification, "MockFacilityRepository.Update", domain.ErrVersionConflict)
	}
	cp := *f
	m.byID[f.ID] = &cp
	return nil
}

func (m *MockFacilityRepository) ListActive(ctx context.Context) ([]*domain.CreditFacility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.CreditFacility
	for _, f := range m.byID {
		if f.Status == domain.FacilityActive {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MockObligationRepository is the obligation analogue.
type MockObligationRepository struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*domain.Obligation
}

func NewMockObligationRepository() *MockObligationRepository {
	return &MockObligationRepository{byID: make(map[uuid.UUID]*domain.Obligation)}
}

func (m *MockObligationRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Obligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, domain.NewEngineError(domain.KindNotFound, "MockObligationRepository.Get", domain.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (m *MockObligationRepository) Create(ctx context.Context, o *domain.Obligation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *MockObligationRepository) Update(ctx context.Context, o *domain.Obligation, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.byID[o.ID]
	if !ok {
		return domain.NewEngineError(domain.KindNotFound, "MockObligationRepository.Update", domain.ErrNotFound)
	}
	if existing.Version != expectedVersion {
		return domain.NewEngineError(domain.KindConcurrentModification, "MockObligationRepository.Update", domain.ErrVersionConflict)
	}
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *MockObligationRepository) ListByFacility(ctx context.Context, facilityID uuid.UUID) ([]*domain.Obligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Obligation
	for _, o := range m.byID {
		if o.FacilityID == facilityID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockObligationRepository) ListOutstandingByFacility(ctx context.Context, facilityID uuid.UUID) ([]*domain.Obligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Obligation
	for _, o := range m.byID {
		if o.FacilityID == facilityID && o.Status != domain.ObligationPaid {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockObligationRepository) ListDueForTimerAdvance(ctx context.Context) ([]*domain.Obligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Obligation
	for _, o := range m.byID {
		if o.Status != domain.ObligationPaid {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MockPaymentRepository collects payments and allocations in memory.
type MockPaymentRepository struct {
	mu          sync.Mutex
	Payments    []*domain.Payment
	Allocations []domain.PaymentAllocation
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{}
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Payments = append(m.Payments, p)
	return nil
}

func (m *MockPaymentRepository) CreateAllocations(ctx context.Context, allocations []domain.PaymentAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Allocations = append(m.Allocations, allocations...)
	return nil
}

func (m *MockPaymentRepository) ListAllocationIDs(ctx context.Context, facilityID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[uuid.UUID]struct{})
	for _, a := range m.Allocations {
		ids[a.ID] = struct{}{}
	}
	return ids, nil
}

// MockEventRepository is an in-memory append-only log, assigning sequence
// numbers per facility exactly as the Postgres identity column would.
type MockEventRepository struct {
	mu     sync.Mutex
	events map[uuid.UUID][]domain.DomainEvent
}

func NewMockEventRepository() *MockEventRepository {
	return &MockEventRepository{events: make(map[uuid.UUID][]domain.DomainEvent)}
}

func (m *MockEventRepository) Append(ctx context.Context, facilityID uuid.UUID, eventType domain.DomainEventType, payload interface{}) (domain.DomainEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := int64(len(m.events[facilityID]) + 1)
	evt := domain.DomainEvent{Sequence: seq, FacilityID: facilityID, Type: eventType, Payload: payload, RecordedAt: time.Now().UTC()}
	m.events[facilityID] = append(m.events[facilityID], evt)
	return evt, nil
}

func (m *MockEventRepository) ListSince(ctx context.Context, facilityID uuid.UUID, afterSequence int64) ([]domain.DomainEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DomainEvent
	for _, e := range m.events[facilityID] {
		if e.Sequence > afterSequence {
			out = append(out, e)
		}
	}
	return out, nil
}

// MockAccrualCycleRepository is the interest accrual cycle analogue.
type MockAccrualCycleRepository struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*domain.InterestAccrualCycle
}

func NewMockAccrualCycleRepository() *MockAccrualCycleRepository {
	return &MockAccrualCycleRepository{byID: make(map[uuid.UUID]*domain.InterestAccrualCycle)}
}

func (m *MockAccrualCycleRepository) Get(ctx context.Context, id uuid.UUID) (*domain.InterestAccrualCycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, domain.NewEngineError(domain.KindNotFound, "MockAccrualCycleRepository.Get", domain.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *MockAccrualCycleRepository) GetCurrentForFacility(ctx context.Context, facilityID uuid.UUID) (*domain.InterestAccrualCycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.InterestAccrualCycle
	for _, c := range m.byID {
		if c.FacilityID != facilityID {
			continue
		}
		if latest == nil || c.CycleIndex > latest.CycleIndex {
			latest = c
		}
	}
	if latest == nil {
		return nil, domain.NewEngineError(domain.KindNotFound, "MockAccrualCycleRepository.GetCurrentForFacility", domain.ErrNotFound)
	}
	cp := *latest
	return &cp, nil
}

func (m *MockAccrualCycleRepository) Create(ctx context.Context, c *domain.InterestAccrualCycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.byID[c.ID] = &cp
	return nil
}

func (m *MockAccrualCycleRepository) Update(ctx context.Context, c *domain.InterestAccrualCycle, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.byID[c.ID]
	if !ok {
		return domain.NewEngineError(domain.KindNotFound, "MockAccrualCycleRepository.Update", domain.ErrNotFound)
	}
	if existing.Version != expectedVersion {
		return domain.NewEngineError(domain.KindConcurrentModification, "MockAccrualCycleRepository.Update", domain.ErrVersionConflict)
	}
	cp := *c
	m.byID[c.ID] = &cp
	return nil
}

func (m *MockAccrualCycleRepository) ListDueForExecution(ctx context.Context) ([]*domain.InterestAccrualCycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.InterestAccrualCycle
	for _, c := range m.byID {
		if c.Status == domain.CycleInProgress {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MockRepaymentPlanRepository stores one plan snapshot per facility,
// mirroring the Postgres repository's upsert-by-facility semantics.
type MockRepaymentPlanRepository struct {
	mu    sync.Mutex
	plans map[uuid.UUID]*domain.RepaymentPlan
}

func NewMockRepaymentPlanRepository() *MockRepaymentPlanRepository {
	return &MockRepaymentPlanRepository{plans: make(map[uuid.UUID]*domain.RepaymentPlan)}
}

func (m *MockRepaymentPlanRepository) Load(ctx context.Context, facilityID uuid.UUID) (*domain.RepaymentPlan, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.plans[facilityID]
	if !ok {
		return domain.NewRepaymentPlan(), 0, nil
	}
	cp := domain.NewRepaymentPlan()
	cp.FacilityAmount = stored.FacilityAmount
	cp.Terms = stored.Terms
	cp.ActivatedAt = stored.ActivatedAt
	cp.LastInterestAccrualAt = stored.LastInterestAccrualAt
	cp.LastUpdatedSequence = stored.LastUpdatedSequence
	cp.Entries = append([]domain.RepaymentPlanEntry(nil), stored.Entries...)
	cp.RestoreDedup(stored.SeenAllocationIDs(), stored.SeenAccrualIDs())
	return cp, stored.LastUpdatedSequence, nil
}

func (m *MockRepaymentPlanRepository) Save(ctx context.Context, facilityID uuid.UUID, plan *domain.RepaymentPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := domain.NewRepaymentPlan()
	cp.FacilityAmount = plan.FacilityAmount
	cp.Terms = plan.Terms
	cp.ActivatedAt = plan.ActivatedAt
	cp.LastInterestAccrualAt = plan.LastInterestAccrualAt
	cp.LastUpdatedSequence = plan.LastUpdatedSequence
	cp.Entries = append([]domain.RepaymentPlanEntry(nil), plan.Entries...)
	cp.RestoreDedup(plan.SeenAllocationIDs(), plan.SeenAccrualIDs())
	m.plans[facilityID] = cp
	return nil
}
