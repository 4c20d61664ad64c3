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
	"github.com/creditcore/creditd/internal/outbox"
	"github.com/creditcore/creditd/internal/service"
	"github.com/creditcore/creditd/internal/testutil"
)

func TestCollateralMonitor_Tick_DowngradesOnPriceDrop(t *testing.T) {
	facilities := testutil.NewMockFacilityRepository()
	obligations := testutil.NewMockObligationRepository()
	prices := service.NewStaticPriceOracle(decimal.NewFromInt(10000))

	facility := &domain.CreditFacility{
		ID:                uuid.New(),
		Accounts:          domain.NewLedgerAccountIDSet(),
		CollateralBTC:     decimal.NewFromFloat(0.11),
		Status:            domain.FacilityActive,
		Collateralization: domain.StateFullyCollateralized,
		Terms: domain.Terms{
			InitialCVLPct:     decimal.NewFromInt(150),
			MarginCallCVLPct:  decimal.NewFromInt(120),
			LiquidationCVLPct: decimal.NewFromInt(105),
		},
		Version: 1,
	}
	require.NoError(t, facilities.Create(context.Background(), facility))

	outstanding := domain.NewObligation(facility.ID, domain.ObligationDisbursal, decimal.NewFromInt(1000), time.Now(), time.Now(), time.Hour, 24*time.Hour)
	require.NoError(t, obligations.Create(context.Background(), outstanding))

	monitor := service.NewCollateralMonitor(facilities, obligations, prices, outbox.NoOpPublisher{}, 5, decimal.NewFromInt(5), zerolog.Nop())
	require.NoError(t, monitor.Tick(context.Background()))

	updated, err := facilities.Get(context.Background(), facility.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateUnderMarginCall, updated.Collateralization)
}

func TestCollateralMonitor_Tick_NoChangeIsNoOp(t *testing.T) {
	facilities := testutil.NewMockFacilityRepository()
	obligations := testutil.NewMockObligationRepository()
	prices := service.NewStaticPriceOracle(decimal.NewFromInt(50000))

	facility := &domain.CreditFacility{
		ID:                uuid.New(),
		Accounts:          domain.NewLedgerAccountIDSet(),
		CollateralBTC:     decimal.NewFromFloat(0.03),
		Status:            domain.FacilityActive,
		Collateralization: domain.StateFullyCollateralized,
		Terms: domain.Terms{
			InitialCVLPct:     decimal.NewFromInt(150),
			MarginCallCVLPct:  decimal.NewFromInt(120),
			LiquidationCVLPct: decimal.NewFromInt(105),
		},
		Version: 1,
	}
	require.NoError(t, facilities.Create(context.Background(), facility))

	outstanding := domain.NewObligation(facility.ID, domain.ObligationDisbursal, decimal.NewFromInt(1000), time.Now(), time.Now(), time.Hour, 24*time.Hour)
	require.NoError(t, obligations.Create(context.Background(), outstanding))

	monitor := service.NewCollateralMonitor(facilities, obligations, prices, outbox.NoOpPublisher{}, 5, decimal.NewFromInt(5), zerolog.Nop())
	require.NoError(t, monitor.Tick(context.Background()))

	updated, err := facilities.Get(context.Background(), facility.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFullyCollateralized, updated.Collateralization)
	assert.Equal(t, int64(1), updated.Version)
}
