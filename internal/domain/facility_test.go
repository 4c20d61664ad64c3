package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func cvlTestTerms() Terms {
	return Terms{
		InitialCVLPct:     decimal.NewFromInt(150),
		MarginCallCVLPct:  decimal.NewFromInt(120),
		LiquidationCVLPct: decimal.NewFromInt(105),
	}
}

func pct(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func TestNextCollateralizationState_DowngradesAtStrictThreshold(t *testing.T) {
	terms := cvlTestTerms()

	got := NextCollateralizationState(pct(119), terms, StateFullyCollateralized, decimal.NewFromInt(5))
	if got != StateUnderMarginCall {
		t.Errorf("119%% CVL from fully collateralized = %s, want under_margin_call", got)
	}

	got = NextCollateralizationState(pct(104), terms, StateUnderMarginCall, decimal.NewFromInt(5))
	if got != StateUnderLiquidationThreshold {
		t.Errorf("104%% CVL from under_margin_call = %s, want under_liquidation_threshold", got)
	}
}

func TestNextCollateralizationState_UpgradeRequiresBuffer(t *testing.T) {
	terms := cvlTestTerms()
	buffer := decimal.NewFromInt(5)

	// Clearing the initial threshold alone isn't enough: needs threshold+buffer.
	got := NextCollateralizationState(pct(152), terms, StateUnderMarginCall, buffer)
	if got != StateUnderMarginCall {
		t.Errorf("152%% (below 150+5 buffer) from under_margin_call = %s, want to remain under_margin_call", got)
	}

	got = NextCollateralizationState(pct(155), terms, StateUnderMarginCall, buffer)
	if got != StateFullyCollateralized {
		t.Errorf("155%% (at 150+5 buffer) from under_margin_call = %s, want fully_collateralized", got)
	}
}

func TestNextCollateralizationState_UpgradeDoesNotFlapAtRawThreshold(t *testing.T) {
	terms := cvlTestTerms()
	buffer := decimal.NewFromInt(5)

	// Without the buffer this would flap between fully_collateralized and
	// under_margin_call around the 150% line; with it, staying at exactly
	// the threshold is not enough to upgrade back out of margin call.
	got := NextCollateralizationState(pct(150), terms, StateUnderMarginCall, buffer)
	if got != StateUnderMarginCall {
		t.Errorf("150%% without buffer clearance from under_margin_call = %s, want to remain under_margin_call", got)
	}
}

func TestNextCollateralizationState_NoOutstandingIsFullyCollateralized(t *testing.T) {
	terms := cvlTestTerms()
	got := NextCollateralizationState(nil, terms, StateUnderLiquidationThreshold, decimal.NewFromInt(5))
	if got != StateFullyCollateralized {
		t.Errorf("nil CVL (no outstanding) = %s, want fully_collateralized", got)
	}
}

func TestNextCollateralizationState_ZeroCollateralIsNoCollateral(t *testing.T) {
	terms := cvlTestTerms()
	got := NextCollateralizationState(pct(0), terms, StateFullyCollateralized, decimal.NewFromInt(5))
	if got != StateNoCollateral {
		t.Errorf("zero CVL = %s, want no_collateral", got)
	}
}

func TestCurrentCVL_NilWhenNoOutstanding(t *testing.T) {
	got := CurrentCVL(decimal.NewFromFloat(1.5), decimal.NewFromInt(60000), decimal.Zero)
	if got != nil {
		t.Errorf("CurrentCVL with zero outstanding = %v, want nil", got)
	}
}

func TestCurrentCVL_Computation(t *testing.T) {
	// 1 BTC at 60000 USD, 40000 outstanding -> 150%
	got := CurrentCVL(decimal.NewFromInt(1), decimal.NewFromInt(60000), decimal.NewFromInt(40000))
	if got == nil {
		t.Fatal("expected non-nil CVL")
	}
	want := decimal.NewFromInt(150)
	if !got.Equal(want) {
		t.Errorf("CurrentCVL() = %s, want %s", got, want)
	}
}
