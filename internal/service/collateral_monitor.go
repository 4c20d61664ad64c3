package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/creditcore/creditd/internal/domain"
	"github.com/creditcore/creditd/internal/outbox"
	"github.com/creditcore/creditd/internal/scheduler"
)

// CollateralMonitor recomputes each active facility's CVL on price and
// collateral changes and applies the hysteresis state machine (spec §4.3).
// It never blocks initiate_disbursal itself — that precondition is checked
// inline by domain.CreditFacility.CanDisburse, called from
// FacilityService.InitiateDisbursal, against a freshly read price — but
// it is the component responsible for reacting to price ticks between
// disbursal requests.
type CollateralMonitor struct {
	facilities    domain.FacilityRepository
	obligations   domain.ObligationRepository
	prices        PriceOracle
	publisher     outbox.Publisher
	writerPolicy  scheduler.RetryPolicy
	upgradeBuffer decimal.Decimal
	logger        zerolog.Logger
}

func NewCollateralMonitor(
	facilities domain.FacilityRepository,
	obligations domain.ObligationRepository,
	prices PriceOracle,
	publisher outbox.Publisher,
	writerMaxAttempts int,
	upgradeBuffer decimal.Decimal,
	logger zerolog.Logger,
) *CollateralMonitor {
	return &CollateralMonitor{
		facilities:    facilities,
		obligations:   obligations,
		prices:        prices,
		publisher:     publisher,
		writerPolicy:  scheduler.WriterPolicy(writerMaxAttempts),
		upgradeBuffer: upgradeBuffer,
		logger:        logger.With().Str("component", "collateral_monitor").Logger(),
	}
}

// Tick re-evaluates every active facility's CVL against the current price
// and applies any resulting state transition, emitting
// FacilityCollateralizationChanged exactly once per transition (never on a
// tick that leaves the state unchanged, per the hysteresis requirement).
func (m *CollateralMonitor) Tick(ctx context.Context) error {
	price, err := m.prices.CurrentBTCUSD(ctx)
	if err != nil {
		return domain.NewEngineError(domain.KindExternalUnavailable, "CollateralMonitor.Tick", err)
	}

	facilities, err := m.facilities.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, f := range facilities {
		if err := m.evaluateOne(ctx, f.ID, price); err != nil {
			m.logger.Error().Err(err).Str("facility_id", f.ID.String()).Msg("collateral monitor evaluation failed")
		}
	}
	return nil
}

func (m *CollateralMonitor) evaluateOne(ctx context.Context, facilityID uuid.UUID, price decimal.Decimal) error {
	return scheduler.Do(ctx, m.writerPolicy, func(ctx context.Context) error {
		f, err := m.facilities.Get(ctx, facilityID)
		if err != nil {
			return err
		}
		outstanding, err := m.totalOutstanding(ctx, facilityID)
		if err != nil {
			return err
		}

		cvl := domain.CurrentCVL(f.CollateralBTC, price, outstanding)
		next := domain.NextCollateralizationState(cvl, f.Terms, f.Collateralization, m.upgradeBuffer)
		if next == f.Collateralization {
			return nil
		}

		expected := f.Version
		f.Collateralization = next
		f.Version++
		if err := m.facilities.Update(ctx, f, expected); err != nil {
			return err
		}

		m.publisher.Publish(facilityID, outbox.NewEvent(facilityID, outbox.EventFacilityCollateralizationChanged, outbox.CollateralizationChangedPayload{
			State: string(next), CollateralBTC: f.CollateralBTC.String(), PriceUSD: price.String(),
			RecordedAt: time.Now().UTC(), Effective: time.Now().UTC(),
		}))
		m.logger.Info().Str("facility_id", facilityID.String()).Str("state", string(next)).Msg("collateralization state changed")
		return nil
	})
}

func (m *CollateralMonitor) totalOutstanding(ctx context.Context, facilityID uuid.UUID) (decimal.Decimal, error) {
	obligations, err := m.obligations.ListOutstandingByFacility(ctx, facilityID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, o := range obligations {
		total = total.Add(o.OutstandingAmount)
	}
	return total, nil
}
