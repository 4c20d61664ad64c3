package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/creditcore/creditd/internal/domain"
)

// ProposalRepository persists CreditFacilityProposal aggregates.
type ProposalRepository struct {
	pool *pgxpool.Pool
}

func NewProposalRepository(pool *pgxpool.Pool) *ProposalRepository {
	return &ProposalRepository{pool: pool}
}

func (r *ProposalRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Proposal, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, customer_id, classification, custodian_id, amount_cents,
		       annual_interest_rate, accrual_interval, accrual_cycle_interval_seconds,
		       structuring_fee_rate, disbursal_policy, duration_seconds,
		       initial_cvl_pct, margin_call_cvl_pct, liquidation_cvl_pct,
		       obligation_overdue_after_seconds, obligation_defaulted_after_seconds,
		       disbursal_account_id, status, version, created_at
		  FROM credit_facility_proposals WHERE id = $1`, id)
	p, err := scanProposal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewEngineError(domain.KindNotFound, "ProposalRepository.Get", domain.ErrNotFound)
	}
	return p, err
}

func (r *ProposalRepository) Create(ctx context.Context, p *domain.Proposal) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO credit_facility_proposals (
			id, customer_id, classification, custodian_id, amount_cents,
			annual_interest_rate, accrual_interval, accrual_cycle_interval_seconds,
			structuring_fee_rate, disbursal_policy, duration_seconds,
			initial_cvl_pct, margin_call_cvl_pct, liquidation_cvl_pct,
			obligation_overdue_after_seconds, obligation_defaulted_after_seconds,
			disbursal_account_id, status, version, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		p.ID, p.CustomerID, p.Classification, p.CustodianID, p.AmountCents,
		mustNumeric(p.Terms.AnnualInterestRate), p.Terms.AccrualInterval, int64(p.Terms.AccrualCycleInterval.Seconds()),
		mustNumeric(p.Terms.StructuringFeeRate), p.Terms.DisbursalPolicy, int64(p.Terms.Duration.Seconds()),
		mustNumeric(p.Terms.InitialCVLPct), mustNumeric(p.Terms.MarginCallCVLPct), mustNumeric(p.Terms.LiquidationCVLPct),
		int64(p.Terms.ObligationOverdueAfter.Seconds()), int64(p.Terms.ObligationDefaultedAfter.Seconds()),
		p.DisbursalAccount, p.Status, p.Version, p.CreatedAt,
	)
	return err
}

func (r *ProposalRepository) Update(ctx context.Context, p *domain.Proposal, expectedVersion int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE credit_facility_proposals SET status = $1, version = $2
		 WHERE id = $3 AND version = $4`,
		p.Status, p.Version, p.ID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NewEngineError(domain.KindConcurrentModification, "ProposalRepository.Update", domain.ErrVersionConflict)
	}
	return nil
}

func mustNumeric(d decimal.Decimal) interface{} {
	n, err := decimalToPgNumeric(d)
	if err != nil {
		return d.String()
	}
	return n
}

func scanProposal(row pgx.Row) (*domain.Proposal, error) {
	var (
		p                                                         domain.Proposal
		accrualIntervalSeconds, durationSeconds                   int64
		overdueAfterSeconds, defaultedAfterSeconds                int64
		annualRate, feeRate, initialCVL, marginCVL, liquidationCVL pgtype.Numeric
	)
	if err := row.Scan(
		&p.ID, &p.CustomerID, &p.Classification, &p.CustodianID, &p.AmountCents,
		&annualRate, &p.Terms.AccrualInterval, &accrualIntervalSeconds,
		&feeRate, &p.Terms.DisbursalPolicy, &durationSeconds,
		&initialCVL, &marginCVL, &liquidationCVL,
		&overdueAfterSeconds, &defaultedAfterSeconds,
		&p.DisbursalAccount, &p.Status, &p.Version, &p.CreatedAt,
	); err != nil {
		return nil, err
	}
	p.Terms.AnnualInterestRate = pgNumericToDecimal(annualRate)
	p.Terms.StructuringFeeRate = pgNumericToDecimal(feeRate)
	p.Terms.InitialCVLPct = pgNumericToDecimal(initialCVL)
	p.Terms.MarginCallCVLPct = pgNumericToDecimal(marginCVL)
	p.Terms.LiquidationCVLPct = pgNumericToDecimal(liquidationCVL)
	p.Terms.AccrualCycleInterval = time.Duration(accrualIntervalSeconds) * time.Second
	p.Terms.Duration = time.Duration(durationSeconds) * time.Second
	p.Terms.ObligationOverdueAfter = time.Duration(overdueAfterSeconds) * time.Second
	p.Terms.ObligationDefaultedAfter = time.Duration(defaultedAfterSeconds) * time.Second
	return &p, nil
}
