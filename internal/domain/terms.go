package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccrualInterval is the interval at which individual interest accruals are
// computed within a cycle.
type AccrualInterval string

const (
	AccrualIntervalDaily       AccrualInterval = "daily"
	AccrualIntervalEndOfMonth  AccrualInterval = "end_of_month"
)

// DisbursalPolicy governs how many disbursals a facility permits.
type DisbursalPolicy string

const (
	DisbursalPolicySingle   DisbursalPolicy = "single_disbursal"
	DisbursalPolicyMultiple DisbursalPolicy = "multi_disbursal"
)

// Terms is an immutable value object fixed on a proposal at creation and
// carried unchanged onto the CreditFacility it spawns.
type Terms struct {
	AnnualInterestRate  decimal.Decimal
	AccrualInterval     AccrualInterval
	AccrualCycleInterval time.Duration
	StructuringFeeRate  decimal.Decimal
	DisbursalPolicy     DisbursalPolicy
	Duration            time.Duration

	InitialCVLPct     decimal.Decimal
	MarginCallCVLPct  decimal.Decimal
	LiquidationCVLPct decimal.Decimal

	ObligationOverdueAfter   time.Duration
	ObligationDefaultedAfter time.Duration
}

// Validate enforces the CVL ordering and non-negativity invariants called
// out in the facility state machine's create_proposal precondition.
func (t Terms) Validate() error {
	hundred := decimal.NewFromInt(100)
	switch {
	case t.AnnualInterestRate.IsNegative():
		return NewEngineError(KindPreconditionFailed, "Terms.Validate", ErrInvalidInput)
	case t.StructuringFeeRate.IsNegative():
		return NewEngineError(KindPreconditionFailed, "Terms.Validate", ErrInvalidInput)
	case t.Duration <= 0:
		return NewEngineError(KindPreconditionFailed, "Terms.Validate", ErrInvalidInput)
	case t.LiquidationCVLPct.LessThan(hundred):
		return NewEngineError(KindPreconditionFailed, "Terms.Validate", ErrInvalidInput)
	case !t.InitialCVLPct.GreaterThan(t.MarginCallCVLPct):
		return NewEngineError(KindPreconditionFailed, "Terms.Validate", ErrInvalidInput)
	case !t.MarginCallCVLPct.GreaterThan(t.LiquidationCVLPct):
		return NewEngineError(KindPreconditionFailed, "Terms.Validate", ErrInvalidInput)
	case t.ObligationDefaultedAfter < t.ObligationOverdueAfter:
		return NewEngineError(KindPreconditionFailed, "Terms.Validate", ErrInvalidInput)
	}
	return nil
}

// RequiredCollateral returns the BTC collateral needed to satisfy the
// initial CVL threshold against amount at price.
func (t Terms) RequiredCollateral(amount decimal.Decimal, priceUSD decimal.Decimal) decimal.Decimal {
	if priceUSD.IsZero() {
		return decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	requiredValue := amount.Mul(t.InitialCVLPct).Div(hundred)
	return requiredValue.Div(priceUSD)
}
