package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccrualExecutionState is the persisted state a facility's interest
// accrual job resumes from after each reschedule. Persisting this instead
// of keeping it in an in-memory coroutine means a crashed worker resumes
// exactly where it left off.
type AccrualExecutionState string

const (
	StateAccruePeriod         AccrualExecutionState = "accrue_period"
	StateAwaitObligationsSync AccrualExecutionState = "await_obligations_sync"
	StateCompleteCycle        AccrualExecutionState = "complete_cycle"
)

// CycleStatus is the lifecycle state of an InterestAccrualCycle.
type CycleStatus string

const (
	CycleInProgress CycleStatus = "in_progress"
	CycleCompleted  CycleStatus = "completed"
)

// AccrualPeriod is one sub-period within a cycle over which a single
// interest posting is computed.
type AccrualPeriod struct {
	Index int
	Start time.Time
	End   time.Time
}

// yearBasis is the bankers' day-count denominator (actual/360), the
// documented resolution of the day-count open question.
const yearBasis = 360

// InterestFor computes interest for the period using actual/360 day-count:
// annual_rate × days_in_period / 360 × outstanding. Decimal arithmetic
// throughout, rounded to the cent at the end with half-even rounding.
func (p AccrualPeriod) InterestFor(annualRatePct decimal.Decimal, outstanding decimal.Decimal) decimal.Decimal {
	days := decimal.NewFromInt(int64(p.End.Sub(p.Start).Hours() / 24))
	rate := annualRatePct.Div(decimal.NewFromInt(100))
	interest := rate.Mul(days).Div(decimal.NewFromInt(yearBasis)).Mul(outstanding)
	return interest.RoundBank(2) // decimal.RoundBank rounds half to even (banker's rounding)
}

// InterestAccrualCycle is a finite sequence of periods within one cycle
// interval, identified by a monotonically increasing index per facility.
type InterestAccrualCycle struct {
	ID              uuid.UUID
	FacilityID      uuid.UUID
	CycleIndex      int
	PeriodStart     time.Time
	PeriodEnd       time.Time
	AccruedSoFar    decimal.Decimal
	Status          CycleStatus
	ExecutionState  AccrualExecutionState
	CurrentPeriodIdx int
	Version         int64
}

// NewInterestAccrualCycle starts cycle cycleIndex covering
// [periodStart, periodStart+cycleInterval), capped at maturity.
func NewInterestAccrualCycle(facilityID uuid.UUID, cycleIndex int, periodStart time.Time, cycleInterval time.Duration, maturity time.Time) *InterestAccrualCycle {
	end := periodStart.Add(cycleInterval)
	if end.After(maturity) {
		end = maturity
	}
	return &InterestAccrualCycle{
		ID:             uuid.New(),
		FacilityID:     facilityID,
		CycleIndex:     cycleIndex,
		PeriodStart:    periodStart,
		PeriodEnd:      end,
		AccruedSoFar:   decimal.Zero,
		Status:         CycleInProgress,
		ExecutionState: StateAccruePeriod,
		Version:        1,
	}
}

// Periods enumerates the sub-periods of the cycle given the accrual
// interval (daily or end-of-month).
func (c *InterestAccrualCycle) Periods(interval AccrualInterval) []AccrualPeriod {
	var periods []AccrualPeriod
	idx := 0
	cur := c.PeriodStart
	for cur.Before(c.PeriodEnd) {
		var next time.Time
		switch interval {
		case AccrualIntervalDaily:
			next = cur.AddDate(0, 0, 1)
		case AccrualIntervalEndOfMonth:
			next = endOfMonth(cur)
		default:
			next = cur.AddDate(0, 0, 1)
		}
		if next.After(c.PeriodEnd) {
			next = c.PeriodEnd
		}
		periods = append(periods, AccrualPeriod{Index: idx, Start: cur, End: next})
		cur = next
		idx++
	}
	return periods
}

func endOfMonth(t time.Time) time.Time {
	firstOfNextMonth := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
	return firstOfNextMonth
}

// AccrualTransactionID derives a deterministic idempotency id for a given
// (facility, cycle, period, state) so retried jobs never double-post.
func AccrualTransactionID(facilityID uuid.UUID, cycleIndex, periodIndex int, state AccrualExecutionState) uuid.UUID {
	key := fmt.Sprintf("%s:%d:%d:%s", facilityID, cycleIndex, periodIndex, state)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key))
}
