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

// PendingFacilityRepository persists PendingCreditFacility aggregates.
// Terms are looked up through the originating proposal rather than
// duplicated, keeping the proposal the single source of truth for
// immutable deal economics; the amount is stored on the pending row itself.
type PendingFacilityRepository struct {
	pool      *pgxpool.Pool
	proposals *ProposalRepository
}

func NewPendingFacilityRepository(pool *pgxpool.Pool, proposals *ProposalRepository) *PendingFacilityRepository {
	return &PendingFacilityRepository{pool: pool, proposals: proposals}
}

func (r *PendingFacilityRepository) Get(ctx context.Context, id uuid.UUID) (*domain.PendingCreditFacility, error) {
	var (
		pf           domain.PendingCreditFacility
		collateral   pgtype.Numeric
		custodianID  *uuid.UUID
	)
	row := r.pool.QueryRow(ctx, `
		SELECT id, proposal_id, customer_id, amount_cents, disbursal_account_id,
		       custodian_id, facility_account_id, collateral_account_id,
		       current_collateral_btc, status, version, created_at
		  FROM pending_credit_facilities WHERE id = $1`, id)
	if err := row.Scan(
		&pf.ID, &pf.ProposalID, &pf.CustomerID, &pf.AmountCents, &pf.DisbursalAccount,
		&custodianID, &pf.FacilityAccountID, &pf.CollateralAccountID,
		&collateral, &pf.Status, &pf.Version, &pf.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewEngineError(domain.KindNotFound, "PendingFacilityRepository.Get", domain.ErrNotFound)
		}
		return nil, err
	}
	pf.CustodianID = custodianID
	pf.CurrentCollateralBTC = pgNumericToDecimal(collateral)

	proposal, err := r.proposals.Get(ctx, pf.ProposalID)
	if err != nil {
		return nil, err
	}
	pf.Terms = proposal.Terms
	return &pf, nil
}

func (r *PendingFacilityRepository) Create(ctx context.Context, pf *domain.PendingCreditFacility) error {
	collateral, err := decimalToPgNumeric(pf.CurrentCollateralBTC)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO pending_credit_facilities (
			id, proposal_id, customer_id, amount_cents, disbursal_account_id,
			custodian_id, facility_account_id, collateral_account_id,
			current_collateral_btc, status, version, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		pf.ID, pf.ProposalID, pf.CustomerID, pf.AmountCents, pf.DisbursalAccount,
		pf.CustodianID, pf.FacilityAccountID, pf.CollateralAccountID,
		collateral, pf.Status, pf.Version, pf.CreatedAt)
	return err
}

func (r *PendingFacilityRepository) Update(ctx context.Context, pf *domain.PendingCreditFacility, expectedVersion int64) error {
	collateral, err := decimalToPgNumeric(pf.CurrentCollateralBTC)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE pending_credit_facilities
		   SET current_collateral_btc = $1, status = $2, version = $3
		 WHERE id = $4 AND version = $5`,
		collateral, pf.Status, pf.Version, pf.ID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NewEngineError(domain.KindConcurrentModification, "PendingFacilityRepository.Update", domain.ErrVersionConflict)
	}
	return nil
}
