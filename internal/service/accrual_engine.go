package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/creditcore/creditd/internal/domain"
	"github.com/creditcore/creditd/internal/ledger"
	"github.com/creditcore/creditd/internal/outbox"
	"github.com/creditcore/creditd/internal/scheduler"
)

// InterestAccrualEngine drives the per-facility accrual cycle job through
// its execution-state machine (spec §4.2): AccruePeriod, then
// AwaitObligationsSync, then CompleteCycle, one step at a time so a crashed
// worker resumes exactly where it left off from the persisted
// ExecutionState rather than from in-memory coroutine state.
type InterestAccrualEngine struct {
	facilities   domain.FacilityRepository
	cycles       domain.AccrualCycleRepository
	obligations  domain.ObligationRepository
	events       domain.EventRepository
	ledger       ledger.Ledger
	publisher    outbox.Publisher
	writerPolicy scheduler.RetryPolicy

	awaitSyncMaxReschedules  int
	awaitSyncRescheduleDelay time.Duration

	logger zerolog.Logger
}

func NewInterestAccrualEngine(
	facilities domain.FacilityRepository,
	cycles domain.AccrualCycleRepository,
	obligations domain.ObligationRepository,
	events domain.EventRepository,
	led ledger.Ledger,
	publisher outbox.Publisher,
	writerMaxAttempts int,
	awaitSyncMaxReschedules int,
	awaitSyncRescheduleDelay time.Duration,
	logger zerolog.Logger,
) *InterestAccrualEngine {
	return &InterestAccrualEngine{
		facilities:               facilities,
		cycles:                   cycles,
		obligations:              obligations,
		events:                   events,
		ledger:                   led,
		publisher:                publisher,
		writerPolicy:             scheduler.WriterPolicy(writerMaxAttempts),
		awaitSyncMaxReschedules:  awaitSyncMaxReschedules,
		awaitSyncRescheduleDelay: awaitSyncRescheduleDelay,
		logger:                   logger.With().Str("component", "interest_accrual_engine").Logger(),
	}
}

// RunDueCycles executes one step for every cycle currently in progress.
// Each cycle's step is independent; a failure on one does not block the
// others. Called by AccrualWorker on each tick.
func (e *InterestAccrualEngine) RunDueCycles(ctx context.Context) error {
	cycles, err := e.cycles.ListDueForExecution(ctx)
	if err != nil {
		return err
	}
	for _, c := range cycles {
		if err := scheduler.RunJob(ctx, func(ctx context.Context) error {
			return e.Step(ctx, c.ID)
		}); err != nil {
			e.logger.Error().Err(err).Str("cycle_id", c.ID.String()).Msg("accrual cycle step failed")
		}
	}
	return nil
}

// Step dispatches a single execution-state transition for the cycle.
func (e *InterestAccrualEngine) Step(ctx context.Context, cycleID uuid.UUID) error {
	c, err := e.cycles.Get(ctx, cycleID)
	if err != nil {
		return err
	}
	switch c.ExecutionState {
	case domain.StateAccruePeriod:
		return e.accruePeriod(ctx, c)
	case domain.StateAwaitObligationsSync:
		return e.awaitObligationsSync(ctx, c)
	case domain.StateCompleteCycle:
		return e.completeCycle(ctx, c)
	}
	return nil
}

// accruePeriod computes and posts interest for the next sub-period not yet
// accrued, then either reschedules at the next period or moves on to
// AwaitObligationsSync once the cycle's periods are exhausted.
func (e *InterestAccrualEngine) accruePeriod(ctx context.Context, c *domain.InterestAccrualCycle) error {
	facility, err := e.facilities.Get(ctx, c.FacilityID)
	if err != nil {
		return err
	}
	periods := c.Periods(facility.Terms.AccrualInterval)
	if c.CurrentPeriodIdx >= len(periods) {
		return e.transitionToAwaitSync(ctx, c)
	}
	period := periods[c.CurrentPeriodIdx]

	return scheduler.Do(ctx, e.writerPolicy, func(ctx context.Context) error {
		outstanding, err := e.outstandingDisbursed(ctx, c.FacilityID)
		if err != nil {
			return err
		}
		interest := period.InterestFor(facility.Terms.AnnualInterestRate, outstanding)

		txID := domain.AccrualTransactionID(c.FacilityID, c.CycleIndex, period.Index, domain.StateAccruePeriod)
		rctx, cancel := scheduler.WithRPCTimeout(ctx)
		err = e.ledger.Post(rctx, ledger.Transaction{
			ExternalID: txID,
			Entries: []ledger.Entry{
				{AccountID: facility.Accounts.InterestNotYetDue, Direction: ledger.Debit, Amount: interest, Currency: ledger.USD},
				{AccountID: facility.Accounts.InterestIncome, Direction: ledger.Credit, Amount: interest, Currency: ledger.USD},
			},
			EffectiveAt: period.End,
		})
		cancel()
		if err != nil {
			return err
		}

		expected := c.Version
		c.AccruedSoFar = c.AccruedSoFar.Add(interest)
		c.CurrentPeriodIdx++
		if err := e.cycles.Update(ctx, c, expected); err != nil {
			return err
		}

		if _, err := e.events.Append(ctx, c.FacilityID, domain.EventAccrualPostedEvt, domain.AccrualPostedPayload{
			LedgerTxID: txID, PeriodEnd: period.End, Amount: interest,
		}); err != nil {
			return err
		}
		e.publisher.Publish(c.FacilityID, outbox.NewEvent(c.FacilityID, outbox.EventAccrualPosted, outbox.AccrualPostedPayload{
			LedgerTxID: txID, AmountCents: interest.Mul(decimal.NewFromInt(100)).IntPart(),
			PeriodStart: period.Start, PeriodEnd: period.End, DueAt: period.End,
			RecordedAt: time.Now().UTC(), Effective: period.End,
		}))
		return nil
	})
}

func (e *InterestAccrualEngine) transitionToAwaitSync(ctx context.Context, c *domain.InterestAccrualCycle) error {
	return scheduler.Do(ctx, e.writerPolicy, func(ctx context.Context) error {
		expected := c.Version
		c.ExecutionState = domain.StateAwaitObligationsSync
		return e.cycles.Update(ctx, c, expected)
	})
}

// awaitObligationsSync waits for every obligation materialized off this
// cycle's accruals to have its timer-driven status synced before the cycle
// finalizes, capped at a bounded number of reschedules (spec open
// question, resolved in DESIGN.md) past which the cycle escalates by
// completing anyway rather than stalling forever.
func (e *InterestAccrualEngine) awaitObligationsSync(ctx context.Context, c *domain.InterestAccrualCycle) error {
	synced, err := e.obligationsSynced(ctx, c)
	if err != nil {
		return err
	}
	facility, err := e.facilities.Get(ctx, c.FacilityID)
	if err != nil {
		return err
	}
	// CurrentPeriodIdx equals the period count on entering this state, so
	// only the excess over it counts reschedules.
	reschedules := c.CurrentPeriodIdx - len(c.Periods(facility.Terms.AccrualInterval))
	if synced || reschedules >= e.awaitSyncMaxReschedules {
		return scheduler.Do(ctx, e.writerPolicy, func(ctx context.Context) error {
			expected := c.Version
			c.ExecutionState = domain.StateCompleteCycle
			return e.cycles.Update(ctx, c, expected)
		})
	}
	// not yet synced: bump the reschedule counter (reused as a generic
	// progress counter once periods are exhausted) and wait before retry.
	return scheduler.Do(ctx, e.writerPolicy, func(ctx context.Context) error {
		expected := c.Version
		c.CurrentPeriodIdx++
		return e.cycles.Update(ctx, c, expected)
	})
}

// obligationsSynced reports whether all obligations tied to this facility
// have no pending timer transition as of now — a conservative proxy for
// "the obligation service has caught up with this cycle's postings".
func (e *InterestAccrualEngine) obligationsSynced(ctx context.Context, c *domain.InterestAccrualCycle) (bool, error) {
	obligations, err := e.obligations.ListOutstandingByFacility(ctx, c.FacilityID)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	for _, o := range obligations {
		probe := *o
		if _, transitioned := probe.AdvanceTimerStatus(now); transitioned {
			return false, nil
		}
	}
	return true, nil
}

// completeCycle posts the cycle-finalization transaction (zeroes the
// cycle's accrued amount out of interest_not_yet_due into interest_due;
// no entry is posted to uncovered_outstanding), creates the resulting Interest
// Obligation, and spawns the next cycle's job if the facility has not yet
// matured.
func (e *InterestAccrualEngine) completeCycle(ctx context.Context, c *domain.InterestAccrualCycle) error {
	facility, err := e.facilities.Get(ctx, c.FacilityID)
	if err != nil {
		return err
	}

	return scheduler.Do(ctx, e.writerPolicy, func(ctx context.Context) error {
		if c.AccruedSoFar.IsPositive() {
			txID := domain.AccrualTransactionID(c.FacilityID, c.CycleIndex, 0, domain.StateCompleteCycle)
			rctx, cancel := scheduler.WithRPCTimeout(ctx)
			// Reclassification between the not-yet-due and due interest
			// receivable accounts, the same balanced shape as
			// ObligationService.advanceOne's timer-driven transfer.
			err := e.ledger.Post(rctx, ledger.Transaction{
				ExternalID: txID,
				Entries: []ledger.Entry{
					{AccountID: facility.Accounts.InterestDue, Direction: ledger.Debit, Amount: c.AccruedSoFar, Currency: ledger.USD},
					{AccountID: facility.Accounts.InterestNotYetDue, Direction: ledger.Credit, Amount: c.AccruedSoFar, Currency: ledger.USD},
				},
				EffectiveAt: c.PeriodEnd,
			})
			cancel()
			if err != nil {
				return err
			}

			obligation := domain.NewObligation(c.FacilityID, domain.ObligationInterest, c.AccruedSoFar, c.PeriodEnd, c.PeriodEnd,
				facility.Terms.ObligationOverdueAfter, facility.Terms.ObligationDefaultedAfter)
			obligation.Status = domain.ObligationDue // already posted to interest_due above
			if err := e.obligations.Create(ctx, obligation); err != nil {
				return err
			}
			if _, err := e.events.Append(ctx, c.FacilityID, domain.EventObligationCreatedEvt, domain.ObligationCreatedPayload{Obligation: obligation}); err != nil {
				return err
			}
			e.publisher.Publish(c.FacilityID, outbox.NewEvent(c.FacilityID, outbox.EventObligationCreated, outbox.ObligationPayload{
				ObligationID: obligation.ID, Status: string(obligation.Status),
			}))
		}

		expected := c.Version
		c.Status = domain.CycleCompleted
		if err := e.cycles.Update(ctx, c, expected); err != nil {
			return err
		}

		if time.Now().UTC().Before(facility.MaturityDate) && c.PeriodEnd.Before(facility.MaturityDate) {
			next := domain.NewInterestAccrualCycle(c.FacilityID, c.CycleIndex+1, c.PeriodEnd, facility.Terms.AccrualCycleInterval, facility.MaturityDate)
			if err := e.cycles.Create(ctx, next); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *InterestAccrualEngine) outstandingDisbursed(ctx context.Context, facilityID uuid.UUID) (decimal.Decimal, error) {
	obligations, err := e.obligations.ListOutstandingByFacility(ctx, facilityID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, o := range obligations {
		if o.Type == domain.ObligationDisbursal {
			total = total.Add(o.OutstandingAmount)
		}
	}
	return total, nil
}
