package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PendingFacilityStatus is the lifecycle state of a PendingCreditFacility.
type PendingFacilityStatus string

const (
	PendingCollateralization PendingFacilityStatus = "pending_collateralization"
	PendingCompleted         PendingFacilityStatus = "completed"
)

// PendingCreditFacility exists once a proposal is approved but before
// sufficient collateral has been posted to activate it.
type PendingCreditFacility struct {
	ID                 uuid.UUID
	ProposalID         uuid.UUID
	CustomerID         string
	Classification     CustomerClassification
	Terms              Terms
	AmountCents        int64
	DisbursalAccount   uuid.UUID
	CustodianID        *uuid.UUID
	FacilityAccountID  uuid.UUID
	CollateralAccountID uuid.UUID
	CurrentCollateralBTC decimal.Decimal
	Status             PendingFacilityStatus
	Version            int64
	CreatedAt          time.Time
}

// NewPendingCreditFacility spawns the interim entity from an approved
// proposal, minting the facility and collateral ledger accounts.
func NewPendingCreditFacility(p *Proposal) *PendingCreditFacility {
	return &PendingCreditFacility{
		ID:                  uuid.New(),
		ProposalID:          p.ID,
		CustomerID:          p.CustomerID,
		Classification:      p.Classification,
		Terms:               p.Terms,
		AmountCents:         p.AmountCents,
		DisbursalAccount:    p.DisbursalAccount,
		CustodianID:         p.CustodianID,
		FacilityAccountID:   uuid.New(),
		CollateralAccountID: uuid.New(),
		CurrentCollateralBTC: decimal.Zero,
		Status:              PendingCollateralization,
		Version:             1,
		CreatedAt:           time.Now().UTC(),
	}
}

// RequiredCollateral returns the BTC collateral needed at the current
// price to satisfy the terms' initial CVL.
func (pf *PendingCreditFacility) RequiredCollateral(priceUSD decimal.Decimal) decimal.Decimal {
	amount := decimal.NewFromInt(pf.AmountCents).Div(decimal.NewFromInt(100))
	return pf.Terms.RequiredCollateral(amount, priceUSD)
}

// UpdateCollateral records a new collateral posting and, if it now meets
// the required threshold, transitions to Completed. Returns true if this
// call caused the Completed transition (the caller then activates).
func (pf *PendingCreditFacility) UpdateCollateral(newAmountBTC decimal.Decimal, priceUSD decimal.Decimal) bool {
	if pf.Status != PendingCollateralization {
		return false
	}
	pf.CurrentCollateralBTC = newAmountBTC
	pf.Version++
	if newAmountBTC.GreaterThanOrEqual(pf.RequiredCollateral(priceUSD)) {
		pf.Status = PendingCompleted
		return true
	}
	return false
}
