package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creditcore/creditd/internal/domain"
)

// PaymentRepository persists Payments and their PaymentAllocations.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	amount, err := decimalToPgNumeric(p.Amount)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO payments (id, facility_id, source_account_id, amount, effective_at, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.FacilityID, p.SourceAccountID, amount, p.EffectiveAt, p.RecordedAt)
	return err
}

// CreateAllocations inserts allocations in a single transaction, so a
// partial write never leaves some allocations persisted without others
// from the same waterfall pass.
func (r *PaymentRepository) CreateAllocations(ctx context.Context, allocations []domain.PaymentAllocation) error {
	if len(allocations) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, a := range allocations {
		amount, err := decimalToPgNumeric(a.Amount)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO payment_allocations (id, payment_id, obligation_id, amount)
			VALUES ($1,$2,$3,$4)`,
			a.ID, a.PaymentID, a.ObligationID, amount); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PaymentRepository) ListAllocationIDs(ctx context.Context, facilityID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT pa.id FROM payment_allocations pa
		  JOIN payments p ON p.id = pa.payment_id
		 WHERE p.facility_id = $1`, facilityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}
