package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FacilityStatus is the lifecycle state of an active CreditFacility.
type FacilityStatus string

const (
	FacilityActive  FacilityStatus = "active"
	FacilityMatured FacilityStatus = "matured"
	FacilityClosed  FacilityStatus = "closed"
)

// CollateralizationState is the output of the collateralization monitor.
type CollateralizationState string

const (
	StateFullyCollateralized    CollateralizationState = "fully_collateralized"
	StateUnderMarginCall        CollateralizationState = "under_margin_call"
	StateUnderLiquidationThreshold CollateralizationState = "under_liquidation_threshold"
	StateNoCollateral           CollateralizationState = "no_collateral"
)

// CreditFacility is the active agreement. Amount, terms, and ledger account
// identifiers are fixed at activation and never change afterward.
type CreditFacility struct {
	ID              uuid.UUID
	CustomerID      string
	Classification  CustomerClassification
	Terms           Terms
	AmountCents     int64
	ActivatedAt     time.Time
	MaturityDate    time.Time
	Accounts        LedgerAccountIDSet
	CollateralBTC   decimal.Decimal
	Status          FacilityStatus
	Collateralization CollateralizationState
	HasDisbursal    bool
	Version         int64
}

// ActivateFromPending allocates the remaining twelve ledger accounts onto the
// facility, pinned facility and collateral account identifiers are carried
// over unchanged from the pending entity.
func ActivateFromPending(pf *PendingCreditFacility, now time.Time) *CreditFacility {
	accounts := NewLedgerAccountIDSet()
	accounts.Facility = pf.FacilityAccountID
	accounts.Collateral = pf.CollateralAccountID

	return &CreditFacility{
		ID:            uuid.New(),
		CustomerID:    pf.CustomerID,
		Classification: pf.Classification,
		Terms:         pf.Terms,
		AmountCents:   pf.AmountCents,
		ActivatedAt:   now,
		MaturityDate:  now.Add(pf.Terms.Duration),
		Accounts:      accounts,
		CollateralBTC: pf.CurrentCollateralBTC,
		Status:        FacilityActive,
		Collateralization: StateFullyCollateralized,
		Version:       1,
	}
}

// CurrentCVL computes collateral value / outstanding as a percentage (the
// ratio times 100), per the collateralization monitor formula, so it
// compares directly with the *CVLPct terms. Returns nil (representing infinity)
// when outstanding is zero.
func CurrentCVL(collateralBTC, priceUSD, outstanding decimal.Decimal) *decimal.Decimal {
	if outstanding.IsZero() {
		return nil
	}
	value := collateralBTC.Mul(priceUSD)
	cvl := value.Div(outstanding).Mul(decimal.NewFromInt(100))
	return &cvl
}

// NextCollateralizationState applies the hysteresis rule: downgrades occur
// at strict threshold crossings; upgrades back toward FullyCollateralized
// or out of a lower state require clearing the threshold by upgradeBuffer
// percentage points, so a facility oscillating around a boundary does not
// flap between states every tick.
func NextCollateralizationState(cvl *decimal.Decimal, terms Terms, current CollateralizationState, upgradeBufferPct decimal.Decimal) CollateralizationState {
	if cvl == nil {
		return StateFullyCollateralized
	}
	if collateralIsZero(*cvl) {
		return StateNoCollateral
	}

	v := *cvl
	switch current {
	case StateFullyCollateralized:
		switch {
		case v.LessThan(terms.LiquidationCVLPct):
			return StateUnderLiquidationThreshold
		case v.LessThan(terms.MarginCallCVLPct):
			return StateUnderMarginCall
		default:
			return StateFullyCollateralized
		}
	case StateUnderMarginCall:
		switch {
		case v.LessThan(terms.LiquidationCVLPct):
			return StateUnderLiquidationThreshold
		case v.GreaterThanOrEqual(terms.InitialCVLPct.Add(upgradeBufferPct)):
			return StateFullyCollateralized
		default:
			return StateUnderMarginCall
		}
	case StateUnderLiquidationThreshold:
		switch {
		case v.GreaterThanOrEqual(terms.InitialCVLPct.Add(upgradeBufferPct)):
			return StateFullyCollateralized
		case v.GreaterThanOrEqual(terms.MarginCallCVLPct.Add(upgradeBufferPct)):
			return StateUnderMarginCall
		default:
			return StateUnderLiquidationThreshold
		}
	default: // StateNoCollateral
		if v.GreaterThanOrEqual(terms.InitialCVLPct.Add(upgradeBufferPct)) {
			return StateFullyCollateralized
		}
		return StateNoCollateral
	}
}

func collateralIsZero(cvl decimal.Decimal) bool {
	return cvl.IsZero()
}

// CanDisburse reports whether initiate_disbursal's preconditions hold:
// facility active, not past maturity, single-disbursal policy not already
// exhausted, and post-disbursal CVL would still meet the initial threshold.
func (f *CreditFacility) CanDisburse(amountCents int64, priceUSD decimal.Decimal, currentOutstanding decimal.Decimal, now time.Time) error {
	if f.Status != FacilityActive {
		return NewEngineError(KindPreconditionFailed, "InitiateDisbursal", ErrFacilityNotActive)
	}
	if !now.Before(f.MaturityDate) {
		return NewEngineError(KindPreconditionFailed, "InitiateDisbursal", ErrDisbursalPastMaturity)
	}
	if f.Terms.DisbursalPolicy == DisbursalPolicySingle && f.HasDisbursal {
		return NewEngineError(KindPreconditionFailed, "InitiateDisbursal", ErrOnlyOneDisbursalAllowed)
	}
	postOutstanding := currentOutstanding.Add(decimal.NewFromInt(amountCents).Div(decimal.NewFromInt(100)))
	cvl := CurrentCVL(f.CollateralBTC, priceUSD, postOutstanding)
	if cvl == nil {
		return nil
	}
	if cvl.LessThan(f.Terms.InitialCVLPct) {
		return NewEngineError(KindPreconditionFailed, "InitiateDisbursal", ErrBelowMarginLimit)
	}
	return nil
}

// CanComplete reports whether complete()'s preconditions hold: no accrual
// cycle in progress and no outstanding-or-defaulted balances.
func (f *CreditFacility) CanComplete(cycleInProgress bool, totalOutstanding decimal.Decimal) error {
	if f.Status == FacilityClosed {
		return nil // idempotent no-op, caller treats as AlreadyApplied
	}
	if cycleInProgress {
		return NewEngineError(KindPreconditionFailed, "Complete", ErrCycleInProgress)
	}
	if totalOutstanding.IsPositive() {
		return NewEngineError(KindPreconditionFailed, "Complete", ErrInvalidInput)
	}
	return nil
}

// Complete closes the facility. Idempotent: calling it again on an
// already-Closed facility is a no-op.
func (f *CreditFacility) Complete() bool {
	if f.Status == FacilityClosed {
		return false
	}
	f.Status = FacilityClosed
	f.Version++
	return true
}
