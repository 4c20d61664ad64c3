package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestRepaymentPlan_ApplyProposalCreated_ProjectsForecast(t *testing.T) {
	p := NewRepaymentPlan()
	terms := Terms{
		Duration:             30 * 24 * time.Hour,
		AccrualCycleInterval: 10 * 24 * time.Hour,
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p.ApplyProposalCreated(terms, 100000, now, 1)

	if p.FacilityAmount.Cmp(decimal.NewFromInt(1000)) != 0 {
		t.Errorf("FacilityAmount = %s, want 1000 (100000 cents)", p.FacilityAmount)
	}
	if len(p.Entries) == 0 {
		t.Fatal("expected forecast entries to be projected")
	}
	if p.LastUpdatedSequence != 1 {
		t.Errorf("LastUpdatedSequence = %d, want 1", p.LastUpdatedSequence)
	}
}

func TestRepaymentPlan_ApplyPaymentAllocated_IsIdempotent(t *testing.T) {
	p := NewRepaymentPlan()
	obligationID := uuid.New()
	p.Entries = []RepaymentPlanEntry{{
		ObligationID:      &obligationID,
		OutstandingAmount: decimal.NewFromInt(100),
	}}

	alloc := PaymentAllocation{ID: uuid.New(), ObligationID: obligationID, Amount: decimal.NewFromInt(40)}

	p.ApplyPaymentAllocated(alloc, 5)
	p.ApplyPaymentAllocated(alloc, 5) // replayed event must not double-apply

	if !p.Entries[0].OutstandingAmount.Equal(decimal.NewFromInt(60)) {
		t.Errorf("OutstandingAmount after duplicate allocation replay = %s, want 60", p.Entries[0].OutstandingAmount)
	}
}

func TestRepaymentPlan_ApplyAccrualPosted_IsIdempotent(t *testing.T) {
	p := NewRepaymentPlan()
	txID := uuid.New()
	periodEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	p.ApplyAccrualPosted(txID, periodEnd, decimal.Zero, 3)
	countAfterFirst := len(p.Entries)
	p.ApplyAccrualPosted(txID, periodEnd, decimal.Zero, 3)

	if len(p.Entries) != countAfterFirst {
		t.Errorf("replaying the same accrual event must not append a second entry, got %d entries after replay, want %d", len(p.Entries), countAfterFirst)
	}
}

func TestRepaymentPlan_RestoreDedup_PreventsReapplicationAfterSnapshotLoad(t *testing.T) {
	obligationID := uuid.New()
	allocID := uuid.New()

	original := NewRepaymentPlan()
	original.Entries = []RepaymentPlanEntry{{ObligationID: &obligationID, OutstandingAmount: decimal.NewFromInt(100)}}
	original.ApplyPaymentAllocated(PaymentAllocation{ID: allocID, ObligationID: obligationID, Amount: decimal.NewFromInt(40)}, 1)

	// Simulate a fresh load from a snapshot: new plan instance, dedup set restored.
	restored := NewRepaymentPlan()
	restored.Entries = append([]RepaymentPlanEntry(nil), original.Entries...)
	restored.RestoreDedup(original.SeenAllocationIDs(), original.SeenAccrualIDs())

	restored.ApplyPaymentAllocated(PaymentAllocation{ID: allocID, ObligationID: obligationID, Amount: decimal.NewFromInt(40)}, 2)

	if !restored.Entries[0].OutstandingAmount.Equal(decimal.NewFromInt(60)) {
		t.Errorf("OutstandingAmount after replaying an already-applied allocation post-restore = %s, want 60", restored.Entries[0].OutstandingAmount)
	}
}

func TestRepaymentPlan_ApplyObligationCreated_MaterializesUpcomingEntry(t *testing.T) {
	p := NewRepaymentPlan()
	effective := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.Entries = []RepaymentPlanEntry{{
		Type:        ObligationDisbursal,
		Status:      EntryUpcoming,
		EffectiveAt: effective,
	}}

	o := NewObligation(uuid.New(), ObligationDisbursal, decimal.NewFromInt(500), effective, effective, time.Hour, 24*time.Hour)
	p.ApplyObligationCreated(o, 2)

	if p.Entries[0].Status != EntryNotYetDue {
		t.Errorf("status after materialization = %s, want not_yet_due", p.Entries[0].Status)
	}
	if p.Entries[0].ObligationID == nil || *p.Entries[0].ObligationID != o.ID {
		t.Errorf("materialized entry's ObligationID must be set to the new obligation's id")
	}
}
