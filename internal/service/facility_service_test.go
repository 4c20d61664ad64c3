package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditcore/creditd/internal/domain"
	"github.com/creditcore/creditd/internal/ledger"
	"github.com/creditcore/creditd/internal/outbox"
	"github.com/creditcore/creditd/internal/service"
	"github.com/creditcore/creditd/internal/testutil"
)

func newLifecycleTestTerms() domain.Terms {
	return domain.Terms{
		AnnualInterestRate:       decimal.NewFromInt(12),
		AccrualInterval:          domain.AccrualIntervalDaily,
		AccrualCycleInterval:     30 * 24 * time.Hour,
		StructuringFeeRate:       decimal.NewFromInt(1),
		DisbursalPolicy:          domain.DisbursalPolicySingle,
		Duration:                 365 * 24 * time.Hour,
		InitialCVLPct:            decimal.NewFromInt(150),
		MarginCallCVLPct:         decimal.NewFromInt(120),
		LiquidationCVLPct:        decimal.NewFromInt(105),
		ObligationOverdueAfter:   24 * time.Hour,
		ObligationDefaultedAfter: 7 * 24 * time.Hour,
	}
}

type facilityTestDeps struct {
	svc         *service.FacilityService
	led         *ledger.InMemoryLedger
	facilities  *testutil.MockFacilityRepository
	obligations *testutil.MockObligationRepository
	cycles      *testutil.MockAccrualCycleRepository
	payments    *testutil.MockPaymentRepository
	events      *testutil.MockEventRepository
}

func newTestFacilityService() (*service.FacilityService, *ledger.InMemoryLedger, *testutil.MockFacilityRepository) {
	d := newFacilityTestDeps()
	return d.svc, d.led, d.facilities
}

func newFacilityTestDeps() facilityTestDeps {
	proposals := testutil.NewMockProposalRepository()
	pending := testutil.NewMockPendingFacilityRepository()
	facilities := testutil.NewMockFacilityRepository()
	obligations := testutil.NewMockObligationRepository()
	cycles := testutil.NewMockAccrualCycleRepository()
	payments := testutil.NewMockPaymentRepository()
	events := testutil.NewMockEventRepository()
	led := ledger.NewInMemoryLedger()
	prices := service.NewStaticPriceOracle(decimal.NewFromInt(50000))

	svc := service.NewFacilityService(proposals, pending, facilities, obligations, cycles, payments, events,
		led, prices, outbox.NoOpPublisher{}, 5, decimal.NewFromInt(5), zerolog.Nop())
	return facilityTestDeps{svc, led, facilities, obligations, cycles, payments, events}
}

func TestFacilityService_FullLifecycle_ProposalToActivation(t *testing.T) {
	svc, led, facilities := newTestFacilityService()
	ctx := context.Background()

	customer := domain.Customer{ID: "cust-1", Classification: domain.ClassificationBank, KYCVerified: true}
	proposal, err := svc.CreateProposal(ctx, customer, 100000, newLifecycleTestTerms(), nil, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalPendingCustomerApproval, proposal.Status)

	proposal, err = svc.ConcludeCustomerApproval(ctx, proposal.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalPendingApproval, proposal.Status)

	pf, err := svc.ConcludeGovernanceApproval(ctx, proposal.ID, true)
	require.NoError(t, err)
	require.NotNil(t, pf)
	assert.Equal(t, domain.PendingCollateralization, pf.Status)

	required := pf.RequiredCollateral(decimal.NewFromInt(50000))
	facility, pfAfter, err := svc.UpdatePendingCollateral(ctx, pf.ID, required)
	require.NoError(t, err)
	assert.Equal(t, domain.PendingCompleted, pfAfter.Status)
	require.NotNil(t, facility)
	assert.Equal(t, domain.FacilityActive, facility.Status)
	assert.True(t, facility.HasDisbursal)

	stored, err := facilities.Get(ctx, facility.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FacilityActive, stored.Status)

	feeBalance, err := led.BalanceOf(ctx, facility.Accounts.FeeIncome)
	require.NoError(t, err)
	assert.True(t, feeBalance.Settled.Equal(decimal.NewFromInt(10)), "fee_income settled = %s, want 10 (credited side of the 1%% structuring fee posting)", feeBalance.Settled)

	facilityAcctBalance, err := led.BalanceOf(ctx, facility.Accounts.Facility)
	require.NoError(t, err)
	assert.True(t, facilityAcctBalance.Settled.Equal(decimal.NewFromInt(1000)), "facility settled = %s, want 1000", facilityAcctBalance.Settled)
}

func TestFacilityService_ConcludeGovernanceApproval_Denied(t *testing.T) {
	svc, _, _ := newTestFacilityService()
	ctx := context.Background()

	customer := domain.Customer{ID: "cust-2", Classification: domain.ClassificationBank, KYCVerified: true}
	proposal, err := svc.CreateProposal(ctx, customer, 100000, newLifecycleTestTerms(), nil, uuid.New())
	require.NoError(t, err)

	proposal, err = svc.ConcludeCustomerApproval(ctx, proposal.ID, true)
	require.NoError(t, err)

	pf, err := svc.ConcludeGovernanceApproval(ctx, proposal.ID, false)
	require.NoError(t, err)
	assert.Nil(t, pf)
}

func activateLifecycleFacility(t *testing.T, d facilityTestDeps, terms domain.Terms) *domain.CreditFacility {
	t.Helper()
	ctx := context.Background()
	customer := domain.Customer{ID: "cust-3", Classification: domain.ClassificationBank, KYCVerified: true}
	proposal, err := d.svc.CreateProposal(ctx, customer, 100000, terms, nil, uuid.New())
	require.NoError(t, err)

	proposal, err = d.svc.ConcludeCustomerApproval(ctx, proposal.ID, true)
	require.NoError(t, err)

	pf, err := d.svc.ConcludeGovernanceApproval(ctx, proposal.ID, true)
	require.NoError(t, err)
	require.NotNil(t, pf)

	required := pf.RequiredCollateral(decimal.NewFromInt(50000))
	facility, _, err := d.svc.UpdatePendingCollateral(ctx, pf.ID, required)
	require.NoError(t, err)
	require.NotNil(t, facility)
	return facility
}

func TestFacilityService_Activate_PostsStructuringFeeAsRevenue(t *testing.T) {
	d := newFacilityTestDeps()
	terms := newLifecycleTestTerms()
	terms.StructuringFeeRate = decimal.NewFromInt(2)
	facility := activateLifecycleFacility(t, d, terms)

	ctx := context.Background()
	feeBalance, err := d.led.BalanceOf(ctx, facility.Accounts.FeeIncome)
	require.NoError(t, err)
	assert.True(t, feeBalance.Settled.Equal(decimal.NewFromInt(20)), "fee_income settled = %s, want 20 (credited side of the 2%% structuring fee on a 1000 facility)", feeBalance.Settled)

	receivableBalance, err := d.led.BalanceOf(ctx, facility.Accounts.DisbursedNotYetDue)
	require.NoError(t, err)
	assert.True(t, receivableBalance.Settled.Equal(decimal.NewFromInt(1020)), "disbursed_not_yet_due settled = %s, want 1020 (1000 disbursal + 20 fee, both debited)", receivableBalance.Settled)
}

func TestFacilityService_InitiateDisbursal_MultiDisbursalPolicy(t *testing.T) {
	d := newFacilityTestDeps()
	terms := newLifecycleTestTerms()
	terms.DisbursalPolicy = domain.DisbursalPolicyMultiple
	facility := activateLifecycleFacility(t, d, terms)
	assert.False(t, facility.HasDisbursal, "multi-disbursal policy must not auto-disburse at activation")

	ctx := context.Background()
	obligation, err := d.svc.InitiateDisbursal(ctx, facility.ID, 40000)
	require.NoError(t, err)
	assert.True(t, obligation.OutstandingAmount.Equal(decimal.NewFromInt(400)))

	// A second draw is still permitted under the multi-disbursal policy.
	obligation2, err := d.svc.InitiateDisbursal(ctx, facility.ID, 10000)
	require.NoError(t, err)
	assert.True(t, obligation2.OutstandingAmount.Equal(decimal.NewFromInt(100)))

	stored, err := d.facilities.Get(ctx, facility.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasDisbursal)

	facilityBalance, err := d.led.BalanceOf(ctx, facility.Accounts.Facility)
	require.NoError(t, err)
	assert.True(t, facilityBalance.Settled.Equal(decimal.NewFromInt(500)), "facility settled = %s, want 500 across both draws", facilityBalance.Settled)
}

func TestFacilityService_DisburseRepayComplete_FullCycle(t *testing.T) {
	d := newFacilityTestDeps()
	require.NoError(t, d.svc.Bootstrap(context.Background()))

	terms := newLifecycleTestTerms()
	facility := activateLifecycleFacility(t, d, terms)
	require.True(t, facility.HasDisbursal)

	ctx := context.Background()
	outstanding, err := d.obligations.ListOutstandingByFacility(ctx, facility.ID)
	require.NoError(t, err)
	require.Len(t, outstanding, 1)
	owed := outstanding[0].OutstandingAmount

	payment, err := d.svc.RecordPayment(ctx, facility, uuid.New(), owed, time.Now().UTC())
	require.NoError(t, err)

	obligationSvc := service.NewObligationService(d.facilities, d.obligations, d.payments, d.events, d.led, outbox.NoOpPublisher{}, 15, 5, zerolog.Nop())
	allocations, err := obligationSvc.AllocatePayment(ctx, payment)
	require.NoError(t, err)
	require.Len(t, allocations, 1)

	// Complete requires no accrual cycle in progress; the accrual engine's
	// own progression to CycleCompleted is exercised in accrual_engine_test.go,
	// so here the cycle is forced to its completed state directly.
	cycle, err := d.cycles.GetCurrentForFacility(ctx, facility.ID)
	require.NoError(t, err)
	cycle.Status = domain.CycleCompleted
	require.NoError(t, d.cycles.Update(ctx, cycle, cycle.Version))

	closed, err := d.svc.Complete(ctx, facility.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FacilityClosed, closed.Status)
}
