package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProposalStatus is the lifecycle state of a CreditFacilityProposal.
type ProposalStatus string

const (
	ProposalPendingCustomerApproval ProposalStatus = "pending_customer_approval"
	ProposalPendingApproval         ProposalStatus = "pending_approval"
	ProposalCustomerDenied          ProposalStatus = "customer_denied"
	ProposalDenied                  ProposalStatus = "denied"
	ProposalApproved                ProposalStatus = "approved"
)

// terminal reports whether status accepts no further transitions.
func (s ProposalStatus) terminal() bool {
	switch s {
	case ProposalCustomerDenied, ProposalDenied, ProposalApproved:
		return true
	default:
		return false
	}
}

// Proposal is a request to extend credit, awaiting customer acceptance and
// committee approval before it can spawn a PendingCreditFacility.
type Proposal struct {
	ID               uuid.UUID
	CustomerID       string
	Classification   CustomerClassification
	CustodianID      *uuid.UUID
	AmountCents      int64
	Terms            Terms
	DisbursalAccount uuid.UUID
	Status           ProposalStatus
	Version          int64
	CreatedAt        time.Time
}

// NewProposal validates terms and KYC status and constructs a proposal in
// its initial status. Returns PreconditionFailed if KYC is required and the
// customer has not completed it, or if terms fail validation.
func NewProposal(customer Customer, amountCents int64, terms Terms, custodianID *uuid.UUID, disbursalAccount uuid.UUID) (*Proposal, error) {
	if customer.Classification.RequiresKYC() && !customer.KYCVerified {
		return nil, NewEngineError(KindPreconditionFailed, "CreateProposal", ErrCustomerNotVerified)
	}
	if amountCents <= 0 {
		return nil, NewEngineError(KindPreconditionFailed, "CreateProposal", ErrInvalidInput)
	}
	if err := terms.Validate(); err != nil {
		return nil, err
	}
	return &Proposal{
		ID:               uuid.New(),
		CustomerID:       customer.ID,
		Classification:   customer.Classification,
		CustodianID:      custodianID,
		AmountCents:      amountCents,
		Terms:            terms,
		DisbursalAccount: disbursalAccount,
		Status:           ProposalPendingCustomerApproval,
		Version:          1,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

// ConcludeCustomerApproval transitions PendingCustomerApproval to
// PendingApproval (accepted) or CustomerDenied (rejected). Idempotent: a
// repeat call once the proposal has left PendingCustomerApproval is a
// no-op returning the unchanged proposal, not an error — the engine
// distinguishes "already applied" from "precondition violated".
func (p *Proposal) ConcludeCustomerApproval(accepted bool) (*Proposal, bool) {
	if p.Status != ProposalPendingCustomerApproval {
		return p, false
	}
	if accepted {
		p.Status = ProposalPendingApproval
	} else {
		p.Status = ProposalCustomerDenied
	}
	p.Version++
	return p, true
}

// ConcludeGovernanceApproval transitions PendingApproval to Approved or
// Denied. Idempotent under the same rule as ConcludeCustomerApproval.
func (p *Proposal) ConcludeGovernanceApproval(approved bool) (*Proposal, bool) {
	if p.Status != ProposalPendingApproval {
		return p, false
	}
	if approved {
		p.Status = ProposalApproved
	} else {
		p.Status = ProposalDenied
	}
	p.Version++
	return p, true
}

// RequiredInitialCollateral derives the collateral a PendingCreditFacility
// spawned from this proposal needs, given the current BTC price.
func (p *Proposal) RequiredInitialCollateral(priceUSD decimal.Decimal) decimal.Decimal {
	amount := decimal.NewFromInt(p.AmountCents).Div(decimal.NewFromInt(100))
	return p.Terms.RequiredCollateral(amount, priceUSD)
}
