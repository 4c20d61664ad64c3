package service_test

import (
	"context"
	"testing"
	"time"

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

func TestInterestAccrualEngine_RunsFullCycleToCompletion(t *testing.T) {
	led := ledger.NewInMemoryLedger()
	facility := newTestFacilityWithLedger(t, led)
	facility.Terms.AnnualInterestRate = decimal.NewFromInt(12)
	facility.Terms.AccrualInterval = domain.AccrualIntervalDaily

	facilities := testutil.NewMockFacilityRepository()
	require.NoError(t, facilities.Create(context.Background(), facility))

	obligations := testutil.NewMockObligationRepository()
	disbursal := domain.NewObligation(facility.ID, domain.ObligationDisbursal, decimal.NewFromInt(1000), time.Now(), time.Now().Add(365*24*time.Hour), 24*time.Hour, 7*24*time.Hour)
	require.NoError(t, obligations.Create(context.Background(), disbursal))

	cycles := testutil.NewMockAccrualCycleRepository()
	start := time.Now().UTC()
	cycle := domain.NewInterestAccrualCycle(facility.ID, 1, start, 24*time.Hour, start.Add(365*24*time.Hour))
	require.NoError(t, cycles.Create(context.Background(), cycle))

	events := testutil.NewMockEventRepository()
	engine := service.NewInterestAccrualEngine(facilities, cycles, obligations, events, led, outbox.NoOpPublisher{}, 5, 12, time.Hour, zerolog.Nop())

	// accrue_period: posts the single day's interest, advances the period
	// index, stays in accrue_period (one call per sub-period).
	require.NoError(t, engine.Step(context.Background(), cycle.ID))
	c, err := cycles.Get(context.Background(), cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateAccruePeriod, c.ExecutionState)
	assert.True(t, c.AccruedSoFar.IsPositive(), "one day's interest on a 1000 outstanding balance must be positive")

	// accrue_period again: periods are exhausted, transitions to
	// await_obligations_sync.
	require.NoError(t, engine.Step(context.Background(), cycle.ID))
	c, err = cycles.Get(context.Background(), cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateAwaitObligationsSync, c.ExecutionState)

	// await_obligations_sync: obligation isn't due yet, so nothing to sync;
	// immediately reports synced and advances to complete_cycle.
	require.NoError(t, engine.Step(context.Background(), cycle.ID))
	c, err = cycles.Get(context.Background(), cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleteCycle, c.ExecutionState)

	// complete_cycle: posts the interest_due reclassification, creates the
	// interest obligation, marks the cycle completed, schedules the next one.
	require.NoError(t, engine.Step(context.Background(), cycle.ID))
	c, err = cycles.Get(context.Background(), cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CycleCompleted, c.Status)

	dueBalance, err := led.BalanceOf(context.Background(), facility.Accounts.InterestDue)
	require.NoError(t, err)
	assert.True(t, dueBalance.Settled.Equal(c.AccruedSoFar), "interest_due settled = %s, want %s (debit side of the reclass, an increase to this debit-normal asset account)", dueBalance.Settled, c.AccruedSoFar)

	notYetDueBalance, err := led.BalanceOf(context.Background(), facility.Accounts.InterestNotYetDue)
	require.NoError(t, err)
	assert.True(t, notYetDueBalance.Settled.IsZero(), "interest_not_yet_due settled = %s, want 0 (accrual posted then fully reclassified out)", notYetDueBalance.Settled)

	interestObligations, err := obligations.ListByFacility(context.Background(), facility.ID)
	require.NoError(t, err)
	foundInterest := false
	for _, o := range interestObligations {
		if o.Type == domain.ObligationInterest {
			foundInterest = true
			assert.Equal(t, domain.ObligationDue, o.Status)
		}
	}
	assert.True(t, foundInterest, "expected an interest obligation to be materialized by completeCycle")

	next, err := cycles.GetCurrentForFacility(context.Background(), facility.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, next.CycleIndex)
}
