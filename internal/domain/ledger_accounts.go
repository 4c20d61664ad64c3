package domain

import "github.com/google/uuid"

// NormalBalanceSide is the side (debit or credit) that increases an
// account's balance.
type NormalBalanceSide string

const (
	SideDebit  NormalBalanceSide = "debit"
	SideCredit NormalBalanceSide = "credit"
)

// LedgerAccountCategory groups an account for chart-of-accounts purposes.
type LedgerAccountCategory string

const (
	CategoryOffBalance     LedgerAccountCategory = "off_balance"
	CategoryAsset          LedgerAccountCategory = "asset"
	CategoryRevenue        LedgerAccountCategory = "revenue"
	CategoryAssetContra    LedgerAccountCategory = "asset_contra"
)

// LedgerAccountIDSet holds the fourteen account identifiers owned by one
// facility. All fourteen are minted at activate() time except facility and
// collateral, which are minted earlier at conclude_governance_approval.
type LedgerAccountIDSet struct {
	Facility             uuid.UUID
	Collateral           uuid.UUID
	DisbursedNotYetDue   uuid.UUID
	DisbursedDue         uuid.UUID
	DisbursedOverdue     uuid.UUID
	DisbursedDefaulted   uuid.UUID
	InterestNotYetDue    uuid.UUID
	InterestDue          uuid.UUID
	InterestOverdue      uuid.UUID
	InterestDefaulted    uuid.UUID
	InterestIncome       uuid.UUID
	FeeIncome            uuid.UUID
	PaymentHolding       uuid.UUID
	UncoveredOutstanding uuid.UUID
}

// NewLedgerAccountIDSet mints fresh identifiers for all fourteen accounts.
func NewLedgerAccountIDSet() LedgerAccountIDSet {
	return LedgerAccountIDSet{
		Facility:             uuid.New(),
		Collateral:           uuid.New(),
		DisbursedNotYetDue:   uuid.New(),
		DisbursedDue:         uuid.New(),
		DisbursedOverdue:     uuid.New(),
		DisbursedDefaulted:   uuid.New(),
		InterestNotYetDue:    uuid.New(),
		InterestDue:          uuid.New(),
		InterestOverdue:      uuid.New(),
		InterestDefaulted:    uuid.New(),
		InterestIncome:       uuid.New(),
		FeeIncome:            uuid.New(),
		PaymentHolding:       uuid.New(),
		UncoveredOutstanding: uuid.New(),
	}
}

// ledgerAccountSpec describes one account's normal balance side and
// category, independent of any facility instance.
type ledgerAccountSpec struct {
	Name     string
	Side     NormalBalanceSide
	Category LedgerAccountCategory
}

// LedgerAccountSpecs is the fixed chart-of-accounts template applied to
// every facility, in the order given in the data model.
var LedgerAccountSpecs = []ledgerAccountSpec{
	{"facility", SideCredit, CategoryOffBalance},
	{"collateral", SideCredit, CategoryOffBalance},
	{"disbursed_not_yet_due", SideDebit, CategoryAsset},
	{"disbursed_due", SideDebit, CategoryAsset},
	{"disbursed_overdue", SideDebit, CategoryAsset},
	{"disbursed_defaulted", SideDebit, CategoryAsset},
	{"interest_not_yet_due", SideDebit, CategoryAsset},
	{"interest_due", SideDebit, CategoryAsset},
	{"interest_overdue", SideDebit, CategoryAsset},
	{"interest_defaulted", SideDebit, CategoryAsset},
	{"interest_income", SideCredit, CategoryRevenue},
	{"fee_income", SideCredit, CategoryRevenue},
	{"payment_holding", SideCredit, CategoryAssetContra},
	{"uncovered_outstanding", SideCredit, CategoryOffBalance},
}

// LedgerAccountSetCategory maps a (customer classification, ledger account
// category) pair to the chart-of-accounts reporting tag its minted account
// rolls up under. This is the pure function in place of dynamic dispatch
// over customer types: institutional counterparties (banks, government
// entities, financial institutions) and offshore counterparties (foreign
// agencies/subsidiaries, non-domiciled companies) roll up separately from
// retail, so a regulatory reporting consumer can group exposure by
// counterparty type without reaching back into the customer service.
// FacilityService.mintAccount stamps every ledger account it creates with
// this tag.
func LedgerAccountSetCategory(classification CustomerClassification, stage LedgerAccountCategory) string {
	switch classification {
	case ClassificationGovernmentEntity, ClassificationBank, ClassificationFinancialInstitution:
		return "institutional:" + string(stage)
	case ClassificationForeignAgencyOrSubsidiary, ClassificationNonDomiciledCompany:
		return "offshore:" + string(stage)
	default:
		return "retail:" + string(stage)
	}
}
