package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditcore/creditd/internal/domain"
	"github.com/creditcore/creditd/internal/service"
	"github.com/creditcore/creditd/internal/testutil"
)

func TestRepaymentPlanProjector_Project_AdvancesPastLastSnapshot(t *testing.T) {
	events := testutil.NewMockEventRepository()
	plans := testutil.NewMockRepaymentPlanRepository()
	facilityID := uuid.New()

	terms := domain.Terms{Duration: 30 * 24 * time.Hour, AccrualCycleInterval: 10 * 24 * time.Hour}
	_, err := events.Append(context.Background(), facilityID, domain.EventProposalCreated, domain.ProposalCreatedPayload{Terms: terms, AmountCents: 100000})
	require.NoError(t, err)

	projector := service.NewRepaymentPlanProjector(events, plans, zerolog.Nop())
	plan, err := projector.Project(context.Background(), facilityID)
	require.NoError(t, err)
	assert.NotEmpty(t, plan.Entries)
	assert.Equal(t, int64(1), plan.LastUpdatedSequence)

	// a second call with no new events must be a cheap no-op returning the
	// same snapshot, not re-folding anything.
	plan2, err := projector.Project(context.Background(), facilityID)
	require.NoError(t, err)
	assert.Equal(t, plan.LastUpdatedSequence, plan2.LastUpdatedSequence)
}

func TestRepaymentPlanProjector_Rebuild_MatchesIncrementalProjection(t *testing.T) {
	events := testutil.NewMockEventRepository()
	plans := testutil.NewMockRepaymentPlanRepository()
	facilityID := uuid.New()

	terms := domain.Terms{Duration: 30 * 24 * time.Hour, AccrualCycleInterval: 10 * 24 * time.Hour}
	_, err := events.Append(context.Background(), facilityID, domain.EventProposalCreated, domain.ProposalCreatedPayload{Terms: terms, AmountCents: 100000})
	require.NoError(t, err)
	_, err = events.Append(context.Background(), facilityID, domain.EventFacilityActivatedEvt, domain.FacilityActivatedPayload{ActivatedAt: time.Now().UTC()})
	require.NoError(t, err)

	projector := service.NewRepaymentPlanProjector(events, plans, zerolog.Nop())
	incremental, err := projector.Project(context.Background(), facilityID)
	require.NoError(t, err)

	rebuilt, err := projector.Rebuild(context.Background(), facilityID)
	require.NoError(t, err)

	assert.Equal(t, incremental.LastUpdatedSequence, rebuilt.LastUpdatedSequence)
	assert.Equal(t, len(incremental.Entries), len(rebuilt.Entries))
}
