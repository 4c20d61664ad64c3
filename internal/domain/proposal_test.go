package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func validTestTerms() Terms {
	return Terms{
		AnnualInterestRate:     decimal.NewFromInt(12),
		AccrualInterval:        AccrualIntervalDaily,
		AccrualCycleInterval:   30 * 24 * time.Hour,
		Duration:               365 * 24 * time.Hour,
		InitialCVLPct:          decimal.NewFromInt(150),
		MarginCallCVLPct:       decimal.NewFromInt(120),
		LiquidationCVLPct:      decimal.NewFromInt(105),
		ObligationOverdueAfter: 24 * time.Hour,
		ObligationDefaultedAfter: 7 * 24 * time.Hour,
	}
}

func TestNewProposal_RequiresKYCForIndividual(t *testing.T) {
	customer := Customer{ID: "cust-1", Classification: ClassificationIndividual, KYCVerified: false}
	_, err := NewProposal(customer, 100000, validTestTerms(), nil, uuid.New())
	if err == nil {
		t.Fatal("expected an error when an unverified individual customer creates a proposal")
	}
	kind, ok := KindOf(err)
	if !ok || kind != KindPreconditionFailed {
		t.Errorf("KindOf(err) = (%s, %v), want (PreconditionFailed, true)", kind, ok)
	}
}

func TestNewProposal_SkipsKYCForInstitutionalCustomer(t *testing.T) {
	customer := Customer{ID: "cust-2", Classification: ClassificationBank, KYCVerified: false}
	p, err := NewProposal(customer, 100000, validTestTerms(), nil, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error for an institutional customer: %v", err)
	}
	if p.Status != ProposalPendingCustomerApproval {
		t.Errorf("new proposal status = %s, want pending_customer_approval", p.Status)
	}
}

func TestNewProposal_RejectsNonPositiveAmount(t *testing.T) {
	customer := Customer{ID: "cust-3", Classification: ClassificationBank, KYCVerified: true}
	_, err := NewProposal(customer, 0, validTestTerms(), nil, uuid.New())
	if err == nil {
		t.Fatal("expected an error for a zero amount proposal")
	}
}

func TestProposal_ConcludeCustomerApproval_Idempotent(t *testing.T) {
	customer := Customer{ID: "cust-4", Classification: ClassificationBank, KYCVerified: true}
	p, err := NewProposal(customer, 100000, validTestTerms(), nil, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, applied := p.ConcludeCustomerApproval(true)
	if !applied || p.Status != ProposalPendingApproval {
		t.Fatalf("first accept: applied=%v status=%s, want applied status=pending_approval", applied, p.Status)
	}

	// Calling it again after the transition already happened is a no-op,
	// not an error.
	_, appliedAgain := p.ConcludeCustomerApproval(true)
	if appliedAgain {
		t.Errorf("repeat ConcludeCustomerApproval after transition must be a no-op")
	}
	if p.Status != ProposalPendingApproval {
		t.Errorf("status must remain pending_approval after a repeated call, got %s", p.Status)
	}
}

func TestProposal_ConcludeGovernanceApproval_Denied(t *testing.T) {
	customer := Customer{ID: "cust-5", Classification: ClassificationBank, KYCVerified: true}
	p, _ := NewProposal(customer, 100000, validTestTerms(), nil, uuid.New())
	p.ConcludeCustomerApproval(true)

	_, applied := p.ConcludeGovernanceApproval(false)
	if !applied || p.Status != ProposalDenied {
		t.Fatalf("governance denial: applied=%v status=%s, want applied status=denied", applied, p.Status)
	}
}
