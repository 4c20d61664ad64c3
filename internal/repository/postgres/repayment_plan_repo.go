package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creditcore/creditd/internal/domain"
)

// planSnapshot is the JSON-serializable projection of RepaymentPlan stored
// in the plan snapshot; RepaymentPlan's dedup sets are reconstructed on
// load from the appliedAllocations/appliedAccruals id lists.
type planSnapshot struct {
	Entries    []domain.RepaymentPlanEntry `json:"entries"`
	AllocIDs   []uuid.UUID                 `json:"appliedAllocations"`
	AccrualIDs []uuid.UUID                 `json:"appliedAccruals"`
}

// RepaymentPlanRepository persists the repayment-plan projection's
// snapshot and last-applied sequence per facility (spec §9: "Store the
// last-applied sequence per aggregate. On replay, start from the snapshot
// and replay forward.").
type RepaymentPlanRepository struct {
	pool *pgxpool.Pool
}

func NewRepaymentPlanRepository(pool *pgxpool.Pool) *RepaymentPlanRepository {
	return &RepaymentPlanRepository{pool: pool}
}

func (r *RepaymentPlanRepository) Load(ctx context.Context, facilityID uuid.UUID) (*domain.RepaymentPlan, int64, error) {
	var (
		raw      []byte
		sequence int64
	)
	err := r.pool.QueryRow(ctx, `
		SELECT snapshot, last_applied_sequence
		  FROM repayment_plan_snapshots WHERE facility_id = $1`, facilityID).Scan(&raw, &sequence)
	if err == pgx.ErrNoRows {
		return domain.NewRepaymentPlan(), 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	var snap planSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, 0, err
	}
	plan := domain.NewRepaymentPlan()
	plan.Entries = snap.Entries
	plan.LastUpdatedSequence = sequence
	plan.RestoreDedup(snap.AllocIDs, snap.AccrualIDs)
	return plan, sequence, nil
}

func (r *RepaymentPlanRepository) Save(ctx context.Context, facilityID uuid.UUID, plan *domain.RepaymentPlan) error {
	snap := planSnapshot{
		Entries:    plan.Entries,
		AllocIDs:   plan.SeenAllocationIDs(),
		AccrualIDs: plan.SeenAccrualIDs(),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO repayment_plan_snapshots (facility_id, snapshot, last_applied_sequence)
		VALUES ($1, $2, $3)
		ON CONFLICT (facility_id) DO UPDATE
		   SET snapshot = EXCLUDED.snapshot, last_applied_sequence = EXCLUDED.last_applied_sequence`,
		facilityID, data, plan.LastUpdatedSequence)
	return err
}
