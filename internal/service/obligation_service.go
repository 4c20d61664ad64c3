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

// ObligationService implements the timer-driven obligation lifecycle and
// the payment allocation waterfall (spec §4.4).
type ObligationService struct {
	facilities       domain.FacilityRepository
	obligations      domain.ObligationRepository
	payments         domain.PaymentRepository
	events           domain.EventRepository
	ledger           ledger.Ledger
	publisher        outbox.Publisher
	allocationPolicy scheduler.RetryPolicy
	writerPolicy     scheduler.RetryPolicy
	logger           zerolog.Logger
}

func NewObligationService(
	facilities domain.FacilityRepository,
	obligations domain.ObligationRepository,
	payments domain.PaymentRepository,
	events domain.EventRepository,
	led ledger.Ledger,
	publisher outbox.Publisher,
	paymentAllocationMaxAttempts int,
	writerMaxAttempts int,
	logger zerolog.Logger,
) *ObligationService {
	return &ObligationService{
		facilities:       facilities,
		obligations:      obligations,
		payments:         payments,
		events:           events,
		ledger:           led,
		publisher:        publisher,
		allocationPolicy: scheduler.PaymentAllocationPolicy(paymentAllocationMaxAttempts),
		writerPolicy:     scheduler.WriterPolicy(writerMaxAttempts),
		logger:           logger.With().Str("component", "obligation_service").Logger(),
	}
}

// entryStatus maps an ObligationStatus to the RepaymentPlanEntryStatus the
// projector's event payload expects.
func entryStatus(s domain.ObligationStatus) domain.RepaymentPlanEntryStatus {
	switch s {
	case domain.ObligationNotYetDue:
		return domain.EntryNotYetDue
	case domain.ObligationDue:
		return domain.EntryDue
	case domain.ObligationOverdue:
		return domain.EntryOverdue
	case domain.ObligationDefaulted:
		return domain.EntryDefaulted
	case domain.ObligationPaid:
		return domain.EntryPaid
	default:
		return domain.EntryNotYetDue
	}
}

// AdvanceTimers runs the timer-driven NotYetDue -> Due -> Overdue ->
// Defaulted transitions for every obligation due for a check, posting the
// balancing entry between the old and new receivable accounts for each one
// that transitions.
func (s *ObligationService) AdvanceTimers(ctx context.Context, now time.Time) error {
	obligations, err := s.obligations.ListDueForTimerAdvance(ctx)
	if err != nil {
		return err
	}
	for _, o := range obligations {
		if err := s.advanceOne(ctx, o.ID, now); err != nil {
			s.logger.Error().Err(err).Str("obligation_id", o.ID.String()).Msg("failed to advance obligation timer")
		}
	}
	return nil
}

func (s *ObligationService) advanceOne(ctx context.Context, obligationID uuid.UUID, now time.Time) error {
	return scheduler.Do(ctx, s.writerPolicy, func(ctx context.Context) error {
		o, err := s.obligations.Get(ctx, obligationID)
		if err != nil {
			return err
		}
		expected := o.Version
		from, transitioned := o.AdvanceTimerStatus(now)
		if !transitioned {
			return nil
		}

		facility, err := s.facilities.Get(ctx, o.FacilityID)
		if err != nil {
			return err
		}
		fromAccount := o.ReceivableAccountForStatus(facility.Accounts, from)
		toAccount := o.ReceivableAccount(facility.Accounts)

		txID := uuid.NewSHA1(uuid.NameSpaceOID, []byte("timer:"+obligationID.String()+":"+string(o.Status)))
		rctx, cancel := scheduler.WithRPCTimeout(ctx)
		err = s.ledger.Post(rctx, ledger.Transaction{
			ExternalID: txID,
			Entries: []ledger.Entry{
				{AccountID: toAccount, Direction: ledger.Debit, Amount: o.OutstandingAmount, Currency: ledger.USD},
				{AccountID: fromAccount, Direction: ledger.Credit, Amount: o.OutstandingAmount, Currency: ledger.USD},
			},
			EffectiveAt: now,
		})
		cancel()
		if err != nil {
			return err
		}

		if err := s.obligations.Update(ctx, o, expected); err != nil {
			return err
		}
		if _, err := s.events.Append(ctx, o.FacilityID, domain.EventObligationStatusEvt, domain.ObligationStatusChangedPayload{
			ObligationID: o.ID, Status: entryStatus(o.Status),
		}); err != nil {
			return err
		}
		s.publisher.Publish(o.FacilityID, outbox.NewEvent(o.FacilityID, statusEventType(o.Status), outbox.ObligationPayload{
			ObligationID: o.ID, Status: string(o.Status), OutstandingCents: o.OutstandingAmount.Mul(decimal.NewFromInt(100)).IntPart(),
		}))
		return nil
	})
}

func statusEventType(status domain.ObligationStatus) outbox.EventType {
	switch status {
	case domain.ObligationDue:
		return outbox.EventObligationDue
	case domain.ObligationOverdue:
		return outbox.EventObligationOverdue
	case domain.ObligationDefaulted:
		return outbox.EventObligationDefaulted
	default:
		return outbox.EventObligationCreated
	}
}

// AllocatePayment implements the payment allocation waterfall: reads the
// facility's outstanding obligations, allocates payment.Amount across them
// in priority order, posts one balanced ledger entry per allocation (debit
// payment_holding, credit the obligation's receivable account; no entry is
// posted to uncovered_outstanding), and
// persists the allocations. Retries up to the payment-allocation budget
// (15 attempts) on concurrent modification.
func (s *ObligationService) AllocatePayment(ctx context.Context, payment *domain.Payment) ([]domain.PaymentAllocation, error) {
	var allocations []domain.PaymentAllocation
	err := scheduler.Do(ctx, s.allocationPolicy, func(ctx context.Context) error {
		facility, err := s.facilities.Get(ctx, payment.FacilityID)
		if err != nil {
			return err
		}
		outstanding, err := s.obligations.ListOutstandingByFacility(ctx, payment.FacilityID)
		if err != nil {
			return err
		}

		allocations = domain.AllocatePayment(payment.Amount, outstanding)
		if len(allocations) == 0 {
			return nil
		}

		byID := make(map[uuid.UUID]*domain.Obligation, len(outstanding))
		for _, o := range outstanding {
			byID[o.ID] = o
		}

		for i := range allocations {
			allocations[i].PaymentID = payment.ID
			o := byID[allocations[i].ObligationID]
			expected := o.Version
			receivable := o.ReceivableAccount(facility.Accounts)
			o.ApplyPayment(allocations[i].Amount)

			// Inverse of RecordPayment's Debit UncoveredOutstanding / Credit
			// PaymentHolding entry: funds leave payment_holding and pay down
			// the obligation's receivable balance. The account is resolved
			// against the obligation's status before ApplyPayment, which may
			// flip it to Paid — a status receivableAccount does not map.
			rctx, cancel := scheduler.WithRPCTimeout(ctx)
			err := s.ledger.Post(rctx, ledger.Transaction{
				ExternalID: allocations[i].ID,
				Entries: []ledger.Entry{
					{AccountID: facility.Accounts.PaymentHolding, Direction: ledger.Debit, Amount: allocations[i].Amount, Currency: ledger.USD},
					{AccountID: receivable, Direction: ledger.Credit, Amount: allocations[i].Amount, Currency: ledger.USD},
				},
				EffectiveAt: time.Now().UTC(),
			})
			cancel()
			if err != nil {
				return err
			}

			if err := s.obligations.Update(ctx, o, expected); err != nil {
				return err
			}
			if _, err := s.events.Append(ctx, payment.FacilityID, domain.EventObligationStatusEvt, domain.ObligationStatusChangedPayload{
				ObligationID: o.ID, Status: entryStatus(o.Status),
			}); err != nil {
				return err
			}
			if _, err := s.events.Append(ctx, payment.FacilityID, domain.EventPaymentAllocatedEvt, domain.PaymentAllocatedPayload{Allocation: allocations[i]}); err != nil {
				return err
			}
		}

		if err := s.payments.CreateAllocations(ctx, allocations); err != nil {
			return err
		}
		for _, a := range allocations {
			s.publisher.Publish(payment.FacilityID, outbox.NewEvent(payment.FacilityID, outbox.EventPaymentAllocated, outbox.PaymentAllocatedPayload{
				AllocationID: a.ID, PaymentID: a.PaymentID, ObligationID: a.ObligationID,
				AmountCents: a.Amount.Mul(decimal.NewFromInt(100)).IntPart(),
			}))
		}
		return nil
	})
	return allocations, err
}
