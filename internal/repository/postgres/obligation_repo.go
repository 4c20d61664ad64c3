package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creditcore/creditd/internal/domain"
)

// ObligationRepository persists materialized Obligation entities.
type ObligationRepository struct {
	pool *pgxpool.Pool
}

func NewObligationRepository(pool *pgxpool.Pool) *ObligationRepository {
	return &ObligationRepository{pool: pool}
}

func scanObligation(row pgx.Row) (*domain.Obligation, error) {
	var o domain.Obligation
	var initial, outstanding pgtype.Numeric
	if err := row.Scan(
		&o.ID, &o.FacilityID, &o.Type, &initial, &outstanding,
		&o.DueAt, &o.OverdueAt, &o.DefaultedAt, &o.Status,
		&o.RecordedAt, &o.EffectiveAt, &o.Version,
	); err != nil {
		return nil, err
	}
	o.InitialAmount = pgNumericToDecimal(initial)
	o.OutstandingAmount = pgNumericToDecimal(outstanding)
	return &o, nil
}

const obligationColumns = `id, facility_id, type, initial_amount, outstanding_amount,
	due_at, overdue_at, defaulted_at, status, recorded_at, effective_at, version`

func (r *ObligationRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Obligation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+obligationColumns+` FROM obligations WHERE id = $1`, id)
	o, err := scanObligation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewEngineError(domain.KindNotFound, "ObligationRepository.Get", domain.ErrNotFound)
	}
	return o, err
}

func (r *ObligationRepository) Create(ctx context.Context, o *domain.Obligation) error {
	initial, err := decimalToPgNumeric(o.InitialAmount)
	if err != nil {
		return err
	}
	outstanding, err := decimalToPgNumeric(o.OutstandingAmount)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO obligations (`+obligationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		o.ID, o.FacilityID, o.Type, initial, outstanding,
		o.DueAt, o.OverdueAt, o.DefaultedAt, o.Status, o.RecordedAt, o.EffectiveAt, o.Version)
	return err
}

func (r *ObligationRepository) Update(ctx context.Context, o *domain.Obligation, expectedVersion int64) error {
	outstanding, err := decimalToPgNumeric(o.OutstandingAmount)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE obligations SET outstanding_amount = $1, status = $2, version = $3
		 WHERE id = $4 AND version = $5`,
		outstanding, o.Status, o.Version, o.ID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NewEngineError(domain.KindConcurrentModification, "ObligationRepository.Update", domain.ErrVersionConflict)
	}
	return nil
}

func (r *ObligationRepository) ListByFacility(ctx context.Context, facilityID uuid.UUID) ([]*domain.Obligation, error) {
	return r.queryList(ctx, `SELECT `+obligationColumns+` FROM obligations WHERE facility_id = $1`, facilityID)
}

func (r *ObligationRepository) ListOutstandingByFacility(ctx context.Context, facilityID uuid.UUID) ([]*domain.Obligation, error) {
	return r.queryList(ctx, `
		SELECT `+obligationColumns+` FROM obligations
		 WHERE facility_id = $1 AND status != $2`, facilityID, domain.ObligationPaid)
}

func (r *ObligationRepository) ListDueForTimerAdvance(ctx context.Context) ([]*domain.Obligation, error) {
	now := time.Now().UTC()
	return r.queryList(ctx, `
		SELECT `+obligationColumns+` FROM obligations
		 WHERE status != $1
		   AND ((status = $2 AND due_at <= $3)
		     OR (status = $4 AND overdue_at <= $3)
		     OR (status = $5 AND defaulted_at <= $3))`,
		domain.ObligationPaid,
		domain.ObligationNotYetDue, now,
		domain.ObligationDue,
		domain.ObligationOverdue)
}

func (r *ObligationRepository) queryList(ctx context.Context, sql string, args ...interface{}) ([]*domain.Obligation, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
