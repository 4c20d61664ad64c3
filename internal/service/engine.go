package service

import (
	"github.com/rs/zerolog"

	"github.com/creditcore/creditd/internal/config"
	"github.com/creditcore/creditd/internal/domain"
	"github.com/creditcore/creditd/internal/ledger"
	"github.com/creditcore/creditd/internal/outbox"
)

// Engine composes the five subsystems (spec §2) into the single dependency
// a calling surface (GraphQL, command queue — out of this repository's
// scope) wires up once and invokes directly. The daemon in cmd/creditd only
// runs the three tick-driven workers and a read-only ops surface; it is not
// itself that calling surface.
type Engine struct {
	Facility   *FacilityService
	Obligation *ObligationService
	Collateral *CollateralMonitor
	Accrual    *InterestAccrualEngine
	Plans      *RepaymentPlanProjector
}

// NewEngine wires every subsystem from its repository ports and external
// dependencies in one place.
func NewEngine(
	proposals domain.ProposalRepository,
	pending domain.PendingFacilityRepository,
	facilities domain.FacilityRepository,
	obligations domain.ObligationRepository,
	cycles domain.AccrualCycleRepository,
	payments domain.PaymentRepository,
	events domain.EventRepository,
	plans domain.RepaymentPlanRepository,
	led ledger.Ledger,
	prices PriceOracle,
	publisher outbox.Publisher,
	cfg *config.Config,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		Facility: NewFacilityService(
			proposals, pending, facilities, obligations, cycles, payments, events,
			led, prices, publisher, cfg.WriterMaxAttempts, cfg.CVLUpgradeBufferPct, logger,
		),
		Obligation: NewObligationService(
			facilities, obligations, payments, events, led, publisher,
			cfg.PaymentAllocationMaxAttempts, cfg.WriterMaxAttempts, logger,
		),
		Collateral: NewCollateralMonitor(
			facilities, obligations, prices, publisher, cfg.WriterMaxAttempts, cfg.CVLUpgradeBufferPct, logger,
		),
		Accrual: NewInterestAccrualEngine(
			facilities, cycles, obligations, events, led, publisher,
			cfg.WriterMaxAttempts, cfg.AwaitSyncMaxReschedules, cfg.AwaitSyncRescheduleDelay, logger,
		),
		Plans: NewRepaymentPlanProjector(events, plans, logger),
	}
}

// Workers returns the three tick-driven background workers, not yet
// started, using the poll intervals from cfg.
func (e *Engine) Workers(cfg *config.Config, logger zerolog.Logger) []*TickWorker {
	return []*TickWorker{
		NewAccrualWorker(e.Accrual, cfg.AccrualPollInterval, logger),
		NewObligationTimerWorker(e.Obligation, cfg.ObligationTimerPollInterval, logger),
		NewCollateralMonitorWorker(e.Collateral, cfg.CollateralMonitorPollInterval, logger),
	}
}
