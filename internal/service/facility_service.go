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

// bankCollateralOmnibusAccountID is the bank-wide account collateral is
// returned to on facility completion (spec §4.1). It is fixed rather than
// minted per facility: it belongs to the bank's books, not any one facility.
var bankCollateralOmnibusAccountID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("bank:collateral_omnibus"))

// FacilityService implements the facility state machine (spec §4.1):
// proposal creation through activation, disbursal, payment intake, and
// completion. Mutating methods write to the entity store, the ledger, and
// the outbox one after another with no enclosing transaction; a failure
// part-way leaves the earlier writes in place.
type FacilityService struct {
	proposals    domain.ProposalRepository
	pending      domain.PendingFacilityRepository
	facilities   domain.FacilityRepository
	obligations  domain.ObligationRepository
	cycles       domain.AccrualCycleRepository
	payments     domain.PaymentRepository
	events       domain.EventRepository
	ledger       ledger.Ledger
	prices       PriceOracle
	publisher    outbox.Publisher
	writerPolicy scheduler.RetryPolicy
	upgradeBuffer decimal.Decimal
	logger       zerolog.Logger
}

func NewFacilityService(
	proposals domain.ProposalRepository,
	pending domain.PendingFacilityRepository,
	facilities domain.FacilityRepository,
	obligations domain.ObligationRepository,
	cycles domain.AccrualCycleRepository,
	payments domain.PaymentRepository,
	events domain.EventRepository,
	led ledger.Ledger,
	prices PriceOracle,
	publisher outbox.Publisher,
	writerMaxAttempts int,
	upgradeBuffer decimal.Decimal,
	logger zerolog.Logger,
) *FacilityService {
	return &FacilityService{
		proposals:     proposals,
		pending:       pending,
		facilities:    facilities,
		obligations:   obligations,
		cycles:        cycles,
		payments:      payments,
		events:        events,
		ledger:        led,
		prices:        prices,
		publisher:     publisher,
		writerPolicy:  scheduler.WriterPolicy(writerMaxAttempts),
		upgradeBuffer: upgradeBuffer,
		logger:        logger.With().Str("component", "facility_service").Logger(),
	}
}

// CreateProposal implements create_proposal. Fails PreconditionFailed if
// KYC is required and unverified, or terms fail validation.
func (s *FacilityService) CreateProposal(ctx context.Context, customer domain.Customer, amountCents int64, terms domain.Terms, custodianID *uuid.UUID, disbursalAccount uuid.UUID) (*domain.Proposal, error) {
	proposal, err := domain.NewProposal(customer, amountCents, terms, custodianID, disbursalAccount)
	if err != nil {
		return nil, err
	}

	if err := s.proposals.Create(ctx, proposal); err != nil {
		return nil, err
	}
	if _, err := s.events.Append(ctx, proposal.ID, domain.EventProposalCreated, domain.ProposalCreatedPayload{
		Terms: terms, AmountCents: amountCents,
	}); err != nil {
		return nil, err
	}

	s.publisher.Publish(proposal.ID, outbox.NewEvent(proposal.ID, outbox.EventFacilityProposalCreated, outbox.FacilityProposalCreatedPayload{
		ProposalID:  proposal.ID,
		CustomerID:  proposal.CustomerID,
		AmountCents: amountCents,
		CreatedAt:   proposal.CreatedAt,
	}))
	s.logger.Info().Str("proposal_id", proposal.ID.String()).Msg("proposal created")
	return proposal, nil
}

// ConcludeCustomerApproval implements conclude_customer_approval.
// Idempotent: a proposal that has already left PendingCustomerApproval is
// returned unchanged, not an error (AlreadyApplied surfaces as success).
func (s *FacilityService) ConcludeCustomerApproval(ctx context.Context, proposalID uuid.UUID, accepted bool) (*domain.Proposal, error) {
	var result *domain.Proposal
	err := scheduler.Do(ctx, s.writerPolicy, func(ctx context.Context) error {
		p, err := s.proposals.Get(ctx, proposalID)
		if err != nil {
			return err
		}
		expected := p.Version
		updated, executed := p.ConcludeCustomerApproval(accepted)
		result = updated
		if !executed {
			return nil
		}
		if err := s.proposals.Update(ctx, updated, expected); err != nil {
			return err
		}
		s.publisher.Publish(proposalID, outbox.NewEvent(proposalID, outbox.EventFacilityProposalConcluded, outbox.FacilityProposalConcludedPayload{
			ProposalID: proposalID, Status: string(updated.Status),
		}))
		return nil
	})
	return result, err
}

// ConcludeGovernanceApproval implements conclude_governance_approval. On
// approval it spawns a PendingCreditFacility and mints its two
// ledger accounts (facility, collateral).
func (s *FacilityService) ConcludeGovernanceApproval(ctx context.Context, proposalID uuid.UUID, approved bool) (*domain.PendingCreditFacility, error) {
	var pf *domain.PendingCreditFacility
	err := scheduler.Do(ctx, s.writerPolicy, func(ctx context.Context) error {
		p, err := s.proposals.Get(ctx, proposalID)
		if err != nil {
			return err
		}
		expected := p.Version
		updated, executed := p.ConcludeGovernanceApproval(approved)
		if !executed {
			return nil
		}
		if err := s.proposals.Update(ctx, updated, expected); err != nil {
			return err
		}
		s.publisher.Publish(proposalID, outbox.NewEvent(proposalID, outbox.EventFacilityProposalConcluded, outbox.FacilityProposalConcludedPayload{
			ProposalID: proposalID, Status: string(updated.Status),
		}))
		if !approved {
			return nil
		}

		newPF := domain.NewPendingCreditFacility(updated)
		offBalanceTag := domain.LedgerAccountSetCategory(newPF.Classification, domain.CategoryOffBalance)
		if err := s.mintAccount(ctx, newPF.FacilityAccountID, "facility", ledger.Credit, ledger.BTC, offBalanceTag); err != nil {
			return err
		}
		if err := s.mintAccount(ctx, newPF.CollateralAccountID, "collateral", ledger.Credit, ledger.BTC, offBalanceTag); err != nil {
			return err
		}
		if err := s.pending.Create(ctx, newPF); err != nil {
			return err
		}
		pf = newPF
		return nil
	})
	return pf, err
}

// Bootstrap mints the bank-wide ledger accounts that exist independently of
// any one facility. It is idempotent and must run once before the first
// Complete call that returns collateral.
func (s *FacilityService) Bootstrap(ctx context.Context) error {
	return s.mintAccount(ctx, bankCollateralOmnibusAccountID, "bank_collateral_omnibus", ledger.Debit, ledger.BTC, "bank")
}

func (s *FacilityService) mintAccount(ctx context.Context, id uuid.UUID, name string, side ledger.NormalBalanceSide, currency ledger.Currency, categoryTag string) error {
	rctx, cancel := scheduler.WithRPCTimeout(ctx)
	defer cancel()
	return s.ledger.CreateAccount(rctx, ledger.Account{ID: id, Name: name, Side: side, Currency: currency, CategoryTag: categoryTag})
}

// UpdatePendingCollateral implements update_pending_collateral. If the new
// amount meets the required threshold, it transitions to Completed and
// triggers activation.
func (s *FacilityService) UpdatePendingCollateral(ctx context.Context, pendingID uuid.UUID, newAmountBTC decimal.Decimal) (*domain.CreditFacility, *domain.PendingCreditFacility, error) {
	price, err := s.prices.CurrentBTCUSD(ctx)
	if err != nil {
		return nil, nil, domain.NewEngineError(domain.KindExternalUnavailable, "UpdatePendingCollateral", err)
	}

	var pf *domain.PendingCreditFacility
	var triggered bool
	err = scheduler.Do(ctx, s.writerPolicy, func(ctx context.Context) error {
		loaded, err := s.pending.Get(ctx, pendingID)
		if err != nil {
			return err
		}
		expected := loaded.Version
		triggered = loaded.UpdateCollateral(newAmountBTC, price)
		if err := s.pending.Update(ctx, loaded, expected); err != nil {
			return err
		}
		pf = loaded

		state := domain.StateNoCollateral
		if pf.Status == domain.PendingCompleted {
			state = domain.StateFullyCollateralized
		}
		s.publisher.Publish(pendingID, outbox.NewEvent(pendingID, outbox.EventPendingFacilityCollateralizationChanged, outbox.CollateralizationChangedPayload{
			State: string(state), CollateralBTC: newAmountBTC.String(), PriceUSD: price.String(),
			RecordedAt: time.Now().UTC(), Effective: time.Now().UTC(),
		}))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if !triggered {
		return nil, pf, nil
	}

	facility, err := s.Activate(ctx, pendingID)
	return facility, pf, err
}

// Activate implements activate: allocates the remaining twelve ledger
// accounts, posts the structuring fee, posts the initial disbursal under a
// single-disbursal policy, and schedules the first accrual cycle.
func (s *FacilityService) Activate(ctx context.Context, pendingID uuid.UUID) (*domain.CreditFacility, error) {
	pf, err := s.pending.Get(ctx, pendingID)
	if err != nil {
		return nil, err
	}
	if pf.Status != domain.PendingCompleted {
		return nil, domain.NewEngineError(domain.KindPreconditionFailed, "Activate", domain.ErrInsufficientCollateral)
	}

	now := time.Now().UTC()
	facility := domain.ActivateFromPending(pf, now)

	for _, spec := range domain.LedgerAccountSpecs[2:] { // facility, collateral already minted
		id := accountIDByName(facility.Accounts, spec.Name)
		side := ledger.Credit
		if spec.Side == domain.SideDebit {
			side = ledger.Debit
		}
		tag := domain.LedgerAccountSetCategory(facility.Classification, spec.Category)
		if err := s.mintAccount(ctx, id, spec.Name, side, ledger.USD, tag); err != nil {
			return nil, err
		}
	}

	if facility.Terms.StructuringFeeRate.IsPositive() {
		amount := decimal.NewFromInt(facility.AmountCents).Div(decimal.NewFromInt(100))
		fee := amount.Mul(facility.Terms.StructuringFeeRate).Div(decimal.NewFromInt(100))
		if err := s.post(ctx, uuid.NewSHA1(uuid.NameSpaceOID, []byte("fee:"+facility.ID.String())),
			facility.Accounts.DisbursedNotYetDue, facility.Accounts.FeeIncome, fee, now); err != nil {
			return nil, err
		}
	}

	if facility.Terms.DisbursalPolicy == domain.DisbursalPolicySingle {
		if _, err := s.disburse(ctx, facility, facility.AmountCents, now); err != nil {
			return nil, err
		}
		facility.HasDisbursal = true
	}

	if err := s.facilities.Create(ctx, facility); err != nil {
		return nil, err
	}
	if _, err := s.events.Append(ctx, facility.ID, domain.EventFacilityActivatedEvt, domain.FacilityActivatedPayload{ActivatedAt: now}); err != nil {
		return nil, err
	}

	firstCycle := domain.NewInterestAccrualCycle(facility.ID, 1, now, facility.Terms.AccrualCycleInterval, facility.MaturityDate)
	if err := s.cycles.Create(ctx, firstCycle); err != nil {
		return nil, err
	}

	s.publisher.Publish(facility.ID, outbox.NewEvent(facility.ID, outbox.EventFacilityActivated, outbox.FacilityActivatedPayload{
		ActivatedAt: now, AmountCents: facility.AmountCents,
	}))
	s.logger.Info().Str("facility_id", facility.ID.String()).Msg("facility activated")
	return facility, nil
}

func accountIDByName(accounts domain.LedgerAccountIDSet, name string) uuid.UUID {
	switch name {
	case "disbursed_not_yet_due":
		return accounts.DisbursedNotYetDue
	case "disbursed_due":
		return accounts.DisbursedDue
	case "disbursed_overdue":
		return accounts.DisbursedOverdue
	case "disbursed_defaulted":
		return accounts.DisbursedDefaulted
	case "interest_not_yet_due":
		return accounts.InterestNotYetDue
	case "interest_due":
		return accounts.InterestDue
	case "interest_overdue":
		return accounts.InterestOverdue
	case "interest_defaulted":
		return accounts.InterestDefaulted
	case "interest_income":
		return accounts.InterestIncome
	case "fee_income":
		return accounts.FeeIncome
	case "payment_holding":
		return accounts.PaymentHolding
	case "uncovered_outstanding":
		return accounts.UncoveredOutstanding
	}
	return uuid.Nil
}

// post submits a two-entry balanced transaction debiting debitAcct and
// crediting creditAcct by amount, idempotent on externalID.
func (s *FacilityService) post(ctx context.Context, externalID, debitAcct, creditAcct uuid.UUID, amount decimal.Decimal, effective time.Time) error {
	rctx, cancel := scheduler.WithRPCTimeout(ctx)
	defer cancel()
	return s.ledger.Post(rctx, ledger.Transaction{
		ExternalID: externalID,
		Entries: []ledger.Entry{
			{AccountID: debitAcct, Direction: ledger.Debit, Amount: amount, Currency: ledger.USD},
			{AccountID: creditAcct, Direction: ledger.Credit, Amount: amount, Currency: ledger.USD},
		},
		EffectiveAt: effective,
	})
}

// disburse posts a disbursal obligation and its ledger entry, used both by
// Activate (initial disbursal) and InitiateDisbursal (subsequent draws).
func (s *FacilityService) disburse(ctx context.Context, facility *domain.CreditFacility, amountCents int64, now time.Time) (*domain.Obligation, error) {
	amount := decimal.NewFromInt(amountCents).Div(decimal.NewFromInt(100))
	obligation := domain.NewObligation(facility.ID, domain.ObligationDisbursal, amount, now, facility.MaturityDate,
		facility.Terms.ObligationOverdueAfter, facility.Terms.ObligationDefaultedAfter)

	txID := uuid.NewSHA1(uuid.NameSpaceOID, []byte("disbursal:"+obligation.ID.String()))
	if err := s.post(ctx, txID, facility.Accounts.DisbursedNotYetDue, facility.Accounts.Facility, amount, now); err != nil {
		return nil, err
	}
	if err := s.obligations.Create(ctx, obligation); err != nil {
		return nil, err
	}
	if _, err := s.events.Append(ctx, facility.ID, domain.EventObligationCreatedEvt, domain.ObligationCreatedPayload{Obligation: obligation}); err != nil {
		return nil, err
	}
	s.publisher.Publish(facility.ID, outbox.NewEvent(facility.ID, outbox.EventObligationCreated, outbox.ObligationPayload{
		ObligationID: obligation.ID, Status: string(obligation.Status), OutstandingCents: amountCents,
	}))
	return obligation, nil
}

// InitiateDisbursal implements initiate_disbursal.
func (s *FacilityService) InitiateDisbursal(ctx context.Context, facilityID uuid.UUID, amountCents int64) (*domain.Obligation, error) {
	price, err := s.prices.CurrentBTCUSD(ctx)
	if err != nil {
		return nil, domain.NewEngineError(domain.KindExternalUnavailable, "InitiateDisbursal", err)
	}

	var obligation *domain.Obligation
	err = scheduler.Do(ctx, s.writerPolicy, func(ctx context.Context) error {
		facility, err := s.facilities.Get(ctx, facilityID)
		if err != nil {
			return err
		}
		outstanding, err := s.totalOutstanding(ctx, facilityID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := facility.CanDisburse(amountCents, price, outstanding, now); err != nil {
			return err
		}

		obligation, err = s.disburse(ctx, facility, amountCents, now)
		if err != nil {
			return err
		}
		expected := facility.Version
		facility.HasDisbursal = true
		facility.Version++
		return s.facilities.Update(ctx, facility, expected)
	})
	return obligation, err
}

func (s *FacilityService) totalOutstanding(ctx context.Context, facilityID uuid.UUID) (decimal.Decimal, error) {
	obligations, err := s.obligations.ListOutstandingByFacility(ctx, facilityID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, o := range obligations {
		total = total.Add(o.OutstandingAmount)
	}
	return total, nil
}

// RecordPayment implements record_payment: the funds are received into
// payment_holding and the Payment is stored. Nothing is queued; waterfall
// allocation (§4.4) is a separate call to ObligationService.AllocatePayment.
func (s *FacilityService) RecordPayment(ctx context.Context, facility *domain.CreditFacility, sourceAccountID uuid.UUID, amount decimal.Decimal, effectiveAt time.Time) (*domain.Payment, error) {
	payment := &domain.Payment{
		ID:              uuid.New(),
		FacilityID:      facility.ID,
		SourceAccountID: sourceAccountID,
		Amount:          amount,
		EffectiveAt:     effectiveAt,
		RecordedAt:      time.Now().UTC(),
	}
	txID := uuid.NewSHA1(uuid.NameSpaceOID, []byte("payment_holding:"+payment.ID.String()))
	if err := s.post(ctx, txID, facility.Accounts.UncoveredOutstanding, facility.Accounts.PaymentHolding, amount, effectiveAt); err != nil {
		return nil, err
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// Complete implements complete: closes the facility once no accrual cycle
// is in progress and no balances remain outstanding. Idempotent.
func (s *FacilityService) Complete(ctx context.Context, facilityID uuid.UUID) (*domain.CreditFacility, error) {
	var facility *domain.CreditFacility
	err := scheduler.Do(ctx, s.writerPolicy, func(ctx context.Context) error {
		f, err := s.facilities.Get(ctx, facilityID)
		if err != nil {
			return err
		}
		facility = f
		if f.Status == domain.FacilityClosed {
			return nil // AlreadyApplied
		}

		cycle, err := s.cycles.GetCurrentForFacility(ctx, facilityID)
		cycleInProgress := err == nil && cycle.Status == domain.CycleInProgress
		outstanding, err := s.totalOutstanding(ctx, facilityID)
		if err != nil {
			return err
		}
		if err := f.CanComplete(cycleInProgress, outstanding); err != nil {
			return err
		}

		expected := f.Version
		f.Complete()
		if err := s.facilities.Update(ctx, f, expected); err != nil {
			return err
		}

		if f.CollateralBTC.IsPositive() {
			txID := uuid.NewSHA1(uuid.NameSpaceOID, []byte("return_collateral:"+f.ID.String()))
			rctx, cancel := scheduler.WithRPCTimeout(ctx)
			err := s.ledger.Post(rctx, ledger.Transaction{
				ExternalID: txID,
				Entries: []ledger.Entry{
					{AccountID: f.Accounts.Collateral, Direction: ledger.Debit, Amount: f.CollateralBTC, Currency: ledger.BTC},
					{AccountID: bankCollateralOmnibusAccountID, Direction: ledger.Credit, Amount: f.CollateralBTC, Currency: ledger.BTC},
				},
				EffectiveAt: time.Now().UTC(),
			})
			cancel()
			if err != nil {
				return err
			}
		}

		s.publisher.Publish(facilityID, outbox.NewEvent(facilityID, outbox.EventFacilityCompleted, outbox.FacilityCompletedPayload{
			FacilityID: facilityID, CollateralReturnedBTC: f.CollateralBTC.String(), CompletedAt: time.Now().UTC(),
		}))
		return nil
	})
	return facility, err
}
