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

// AccrualCycleRepository persists InterestAccrualCycle jobs, including the
// execution_state variant a crashed worker resumes from (spec §9
// state-machine persistence).
type AccrualCycleRepository struct {
	pool *pgxpool.Pool
}

func NewAccrualCycleRepository(pool *pgxpool.Pool) *AccrualCycleRepository {
	return &AccrualCycleRepository{pool: pool}
}

func scanCycle(row pgx.Row) (*domain.InterestAccrualCycle, error) {
	var c domain.InterestAccrualCycle
	var accrued pgtype.Numeric
	if err := row.Scan(
		&c.ID, &c.FacilityID, &c.CycleIndex, &c.PeriodStart, &c.PeriodEnd,
		&accrued, &c.Status, &c.ExecutionState, &c.CurrentPeriodIdx, &c.Version,
	); err != nil {
		return nil, err
	}
	c.AccruedSoFar = pgNumericToDecimal(accrued)
	return &c, nil
}

func (r *AccrualCycleRepository) Get(ctx context.Context, id uuid.UUID) (*domain.InterestAccrualCycle, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, facility_id, cycle_index, period_start, period_end,
		       accrued_so_far, status, execution_state, current_period_idx, version
		  FROM interest_accrual_cycles WHERE id = $1`, id)
	c, err := scanCycle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewEngineError(domain.KindNotFound, "AccrualCycleRepository.Get", domain.ErrNotFound)
	}
	return c, err
}

func (r *AccrualCycleRepository) GetCurrentForFacility(ctx context.Context, facilityID uuid.UUID) (*domain.InterestAccrualCycle, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, facility_id, cycle_index, period_start, period_end,
		       accrued_so_far, status, execution_state, current_period_idx, version
		  FROM interest_accrual_cycles
		 WHERE facility_id = $1
		 ORDER BY cycle_index DESC LIMIT 1`, facilityID)
	c, err := scanCycle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewEngineError(domain.KindNotFound, "AccrualCycleRepository.GetCurrentForFacility", domain.ErrNotFound)
	}
	return c, err
}

func (r *AccrualCycleRepository) Create(ctx context.Context, c *domain.InterestAccrualCycle) error {
	accrued, err := decimalToPgNumeric(c.AccruedSoFar)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO interest_accrual_cycles (
			id, facility_id, cycle_index, period_start, period_end,
			accrued_so_far, status, execution_state, current_period_idx, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		c.ID, c.FacilityID, c.CycleIndex, c.PeriodStart, c.PeriodEnd,
		accrued, c.Status, c.ExecutionState, c.CurrentPeriodIdx, c.Version)
	return err
}

func (r *AccrualCycleRepository) Update(ctx context.Context, c *domain.InterestAccrualCycle, expectedVersion int64) error {
	accrued, err := decimalToPgNumeric(c.AccruedSoFar)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE interest_accrual_cycles
		   SET accrued_so_far = $1, status = $2, execution_state = $3,
		       current_period_idx = $4, version = $5
		 WHERE id = $6 AND version = $7`,
		accrued, c.Status, c.ExecutionState, c.CurrentPeriodIdx, c.Version, c.ID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NewEngineError(domain.KindConcurrentModification, "AccrualCycleRepository.Update", domain.ErrVersionConflict)
	}
	return nil
}

func (r *AccrualCycleRepository) ListDueForExecution(ctx context.Context) ([]*domain.InterestAccrualCycle, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, facility_id, cycle_index, period_start, period_end,
		       accrued_so_far, status, execution_state, current_period_idx, version
		  FROM interest_accrual_cycles
		 WHERE status = $1`, domain.CycleInProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []*domain.InterestAccrualCycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}
