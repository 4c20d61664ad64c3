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

func newTestFacilityWithLedger(t *testing.T, led *ledger.InMemoryLedger) *domain.CreditFacility {
	t.Helper()
	accounts := domain.NewLedgerAccountIDSet()
	f := &domain.CreditFacility{
		ID:           uuid.New(),
		CustomerID:   "cust-1",
		AmountCents:  100000,
		ActivatedAt:  time.Now().UTC(),
		MaturityDate: time.Now().UTC().Add(365 * 24 * time.Hour),
		Accounts:     accounts,
		Status:       domain.FacilityActive,
		Version:      1,
	}
	for _, spec := range domain.LedgerAccountSpecs {
		var id uuid.UUID
		switch spec.Name {
		case "facility":
			id = accounts.Facility
		case "collateral":
			id = accounts.Collateral
		case "disbursed_not_yet_due":
			id = accounts.DisbursedNotYetDue
		case "disbursed_due":
			id = accounts.DisbursedDue
		case "disbursed_overdue":
			id = accounts.DisbursedOverdue
		case "disbursed_defaulted":
			id = accounts.DisbursedDefaulted
		case "interest_not_yet_due":
			id = accounts.InterestNotYetDue
		case "interest_due":
			id = accounts.InterestDue
		case "interest_overdue":
			id = accounts.InterestOverdue
		case "interest_defaulted":
			id = accounts.InterestDefaulted
		case "interest_income":
			id = accounts.InterestIncome
		case "fee_income":
			id = accounts.FeeIncome
		case "payment_holding":
			id = accounts.PaymentHolding
		case "uncovered_outstanding":
			id = accounts.UncoveredOutstanding
		}
		side := ledger.Debit
		if spec.Side == domain.SideCredit {
			side = ledger.Credit
		}
		require.NoError(t, led.CreateAccount(context.Background(), ledger.Account{ID: id, Name: spec.Name, Side: side, Currency: ledger.USD}))
	}
	return f
}

func TestObligationService_AllocatePayment_PostsBalancedLedgerEntries(t *testing.T) {
	led := ledger.NewInMemoryLedger()
	facility := newTestFacilityWithLedger(t, led)

	facilities := testutil.NewMockFacilityRepository()
	require.NoError(t, facilities.Create(context.Background(), facility))

	obligations := testutil.NewMockObligationRepository()
	due := domain.NewObligation(facility.ID, domain.ObligationDisbursal, decimal.NewFromInt(100), time.Now(), time.Now(), 24*time.Hour, 7*24*time.Hour)
	due.Status = domain.ObligationDue
	require.NoError(t, obligations.Create(context.Background(), due))

	events := testutil.NewMockEventRepository()
	payments := testutil.NewMockPaymentRepository()

	svc := service.NewObligationService(facilities, obligations, payments, events, led, outbox.NoOpPublisher{}, 15, 5, zerolog.Nop())

	payment := &domain.Payment{ID: uuid.New(), FacilityID: facility.ID, Amount: decimal.NewFromInt(60), EffectiveAt: time.Now(), RecordedAt: time.Now()}
	allocations, err := svc.AllocatePayment(context.Background(), payment)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, due.ID, allocations[0].ObligationID)
	assert.True(t, allocations[0].Amount.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, payment.ID, allocations[0].PaymentID)

	holdingBalance, err := led.BalanceOf(context.Background(), facility.Accounts.PaymentHolding)
	require.NoError(t, err)
	assert.True(t, holdingBalance.Settled.Equal(decimal.NewFromInt(-60)), "payment_holding settled = %s, want -60 (credited side reduced by the debit)", holdingBalance.Settled)

	dueBalance, err := led.BalanceOf(context.Background(), facility.Accounts.DisbursedDue)
	require.NoError(t, err)
	assert.True(t, dueBalance.Settled.Equal(decimal.NewFromInt(-60)), "disbursed_due settled = %s, want -60", dueBalance.Settled)

	updated, err := obligations.Get(context.Background(), due.ID)
	require.NoError(t, err)
	assert.True(t, updated.OutstandingAmount.Equal(decimal.NewFromInt(40)))
}

func TestObligationService_AllocatePayment_NoOutstandingObligationsIsNoOp(t *testing.T) {
	led := ledger.NewInMemoryLedger()
	facility := newTestFacilityWithLedger(t, led)

	facilities := testutil.NewMockFacilityRepository()
	require.NoError(t, facilities.Create(context.Background(), facility))

	obligations := testutil.NewMockObligationRepository()
	events := testutil.NewMockEventRepository()
	payments := testutil.NewMockPaymentRepository()

	svc := service.NewObligationService(facilities, obligations, payments, events, led, outbox.NoOpPublisher{}, 15, 5, zerolog.Nop())

	payment := &domain.Payment{ID: uuid.New(), FacilityID: facility.ID, Amount: decimal.NewFromInt(60), EffectiveAt: time.Now(), RecordedAt: time.Now()}
	allocations, err := svc.AllocatePayment(context.Background(), payment)
	require.NoError(t, err)
	assert.Empty(t, allocations)
	assert.Empty(t, payments.Allocations)
}

func TestObligationService_AdvanceTimers_NotYetDueToDueReclassifiesReceivable(t *testing.T) {
	led := ledger.NewInMemoryLedger()
	facility := newTestFacilityWithLedger(t, led)

	facilities := testutil.NewMockFacilityRepository()
	require.NoError(t, facilities.Create(context.Background(), facility))

	obligations := testutil.NewMockObligationRepository()
	past := time.Now().Add(-time.Hour)
	notYetDue := domain.NewObligation(facility.ID, domain.ObligationDisbursal, decimal.NewFromInt(500), time.Now().Add(-48*time.Hour), past, 24*time.Hour, 7*24*time.Hour)
	require.NoError(t, obligations.Create(context.Background(), notYetDue))

	events := testutil.NewMockEventRepository()
	payments := testutil.NewMockPaymentRepository()
	svc := service.NewObligationService(facilities, obligations, payments, events, led, outbox.NoOpPublisher{}, 15, 5, zerolog.Nop())

	require.NoError(t, svc.AdvanceTimers(context.Background(), time.Now()))

	updated, err := obligations.Get(context.Background(), notYetDue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ObligationDue, updated.Status)

	notYetDueBalance, err := led.BalanceOf(context.Background(), facility.Accounts.DisbursedNotYetDue)
	require.NoError(t, err)
	assert.True(t, notYetDueBalance.Settled.Equal(decimal.NewFromInt(-500)), "disbursed_not_yet_due settled = %s, want -500 (credited side of the reclass)", notYetDueBalance.Settled)

	dueBalance, err := led.BalanceOf(context.Background(), facility.Accounts.DisbursedDue)
	require.NoError(t, err)
	assert.True(t, dueBalance.Settled.Equal(decimal.NewFromInt(500)), "disbursed_due settled = %s, want 500 (debited side of the reclass)", dueBalance.Settled)
}
