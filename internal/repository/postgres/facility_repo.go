package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creditcore/creditd/internal/domain"
)

// FacilityRepository persists the active CreditFacility aggregate,
// including its fixed fourteen ledger account identifiers.
type FacilityRepository struct {
	pool      *pgxpool.Pool
	proposals *ProposalRepository
}

func NewFacilityRepository(pool *pgxpool.Pool, proposals *ProposalRepository) *FacilityRepository {
	return &FacilityRepository{pool: pool, proposals: proposals}
}

func (r *FacilityRepository) Get(ctx context.Context, id uuid.UUID) (*domain.CreditFacility, error) {
	var (
		f          domain.CreditFacility
		collateral pgtype.Numeric
		proposalID uuid.UUID
	)
	row := r.pool.QueryRow(ctx, `
		SELECT id, customer_id, proposal_id, amount_cents, activated_at, maturity_date,
		       facility_account_id, collateral_account_id, disbursed_not_yet_due_account_id,
		       disbursed_due_account_id, disbursed_overdue_account_id, disbursed_defaulted_account_id,
		       interest_not_yet_due_account_id, interest_due_account_id, interest_overdue_account_id,
		       interest_defaulted_account_id, interest_income_account_id, fee_income_account_id,
		       payment_holding_account_id, uncovered_outstanding_account_id,
		       collateral_btc, status, collateralization_state, has_disbursal, version
		  FROM credit_facilities WHERE id = $1`, id)
	if err := row.Scan(
		&f.ID, &f.CustomerID, &proposalID, &f.AmountCents, &f.ActivatedAt, &f.MaturityDate,
		&f.Accounts.Facility, &f.Accounts.Collateral, &f.Accounts.DisbursedNotYetDue,
		&f.Accounts.DisbursedDue, &f.Accounts.DisbursedOverdue, &f.Accounts.DisbursedDefaulted,
		&f.Accounts.InterestNotYetDue, &f.Accounts.InterestDue, &f.Accounts.InterestOverdue,
		&f.Accounts.InterestDefaulted, &f.Accounts.InterestIncome, &f.Accounts.FeeIncome,
		&f.Accounts.PaymentHolding, &f.Accounts.UncoveredOutstanding,
		&collateral, &f.Status, &f.Collateralization, &f.HasDisbursal, &f.Version,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewEngineError(domain.KindNotFound, "FacilityRepository.Get", domain.ErrNotFound)
		}
		return nil, err
	}
	f.CollateralBTC = pgNumericToDecimal(collateral)

	proposal, err := r.proposals.Get(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	f.Terms = proposal.Terms
	return &f, nil
}

func (r *FacilityRepository) Create(ctx context.Context, f *domain.CreditFacility) error {
	collateral, err := decimalToPgNumeric(f.CollateralBTC)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO credit_facilities (
			id, customer_id, amount_cents, activated_at, maturity_date,
			facility_account_id, collateral_account_id, disbursed_not_yet_due_account_id,
			disbursed_due_account_id, disbursed_overdue_account_id, disbursed_defaulted_account_id,
			interest_not_yet_due_account_id, interest_due_account_id, interest_overdue_account_id,
			interest_defaulted_account_id, interest_income_account_id, fee_income_account_id,
			payment_holding_account_id, uncovered_outstanding_account_id,
			collateral_btc, status, collateralization_state, has_disbursal, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`,
		f.ID, f.CustomerID, f.AmountCents, f.ActivatedAt, f.MaturityDate,
		f.Accounts.Facility, f.Accounts.Collateral, f.Accounts.DisbursedNotYetDue,
		f.Accounts.DisbursedDue, f.Accounts.DisbursedOverdue, f.Accounts.DisbursedDefaulted,
		f.Accounts.InterestNotYetDue, f.Accounts.InterestDue, f.Accounts.InterestOverdue,
		f.Accounts.InterestDefaulted, f.Accounts.InterestIncome, f.Accounts.FeeIncome,
		f.Accounts.PaymentHolding, f.Accounts.UncoveredOutstanding,
		collateral, f.Status, f.Collateralization, f.HasDisbursal, f.Version)
	return err
}

func (r *FacilityRepository) Update(ctx context.Context, f *domain.CreditFacility, expectedVersion int64) error {
	collateral, err := decimalToPgNumeric(f.CollateralBTC)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE credit_facilities
		   SET collateral_btc = $1, status = $2, collateralization_state = $3,
		       has_disbursal = $4, version = $5
		 WHERE id = $6 AND version = $7`,
		collateral, f.Status, f.Collateralization, f.HasDisbursal, f.Version, f.ID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NewEngineError(domain.KindConcurrentModification, "FacilityRepository.Update", domain.ErrVersionConflict)
	}
	return nil
}

func (r *FacilityRepository) ListActive(ctx context.Context) ([]*domain.CreditFacility, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM credit_facilities WHERE status = $1`, domain.FacilityActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	facilities := make([]*domain.CreditFacility, 0, len(ids))
	for _, id := range ids {
		f, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		facilities = append(facilities, f)
	}
	return facilities, nil
}
