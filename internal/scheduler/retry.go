// Package scheduler provides the retry and backoff plumbing shared by the
// engine's concurrent writers: payment allocation, the interest accrual
// job, and the collateralization monitor. Grounded on the teacher's
// ProjectionWorker run-loop shape (internal/service/projection_worker.go),
// generalized from a single ticking sync loop into a retry-with-backoff
// helper usable by any transactional operation.
package scheduler

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/creditcore/creditd/internal/domain"
)

// ErrAttemptsExhausted is returned when a retryable operation fails on
// every attempt within its budget.
var ErrAttemptsExhausted = errors.New("scheduler: retry attempts exhausted")

// RetryPolicy bounds how many times a transactional writer retries on
// ConcurrentModification/ExternalUnavailable before surfacing the error,
// per spec §5 (payment allocation: 15 attempts; other writers: 5).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// PaymentAllocationPolicy is the retry budget for payment allocation.
func PaymentAllocationPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, BaseDelay: 10 * time.Millisecond, MaxDelay: 500 * time.Millisecond}
}

// WriterPolicy is the retry budget for all other transactional writers
// (accrual posting, collateral updates, facility transitions).
func WriterPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, BaseDelay: 20 * time.Millisecond, MaxDelay: 1 * time.Second}
}

// Do runs op, retrying on domain errors the engine marks retryable
// (ConcurrentModification, ExternalUnavailable) with exponential backoff
// up to policy.MaxAttempts. Any other error, or a cancelled context, stops
// immediately. ctx is checked before every attempt's suspension point, per
// the cancellation-token discipline in §5.
func Do(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error {
	delay := policy.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !domain.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return errors.Join(ErrAttemptsExhausted, lastErr)
}

// RPCLimiter caps the rate of outbound ledger RPCs issued by a single
// worker, independent of the retry budget above — it exists so a
// misbehaving retry loop cannot itself become the source of ledger RPC
// pressure during an ExternalUnavailable episode.
type RPCLimiter struct {
	limiter *rate.Limiter
}

// NewRPCLimiter builds a limiter allowing ratePerSecond sustained calls
// with a burst of the same size.
func NewRPCLimiter(ratePerSecond float64) *RPCLimiter {
	return &RPCLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), int(ratePerSecond)+1)}
}

// Wait blocks until the limiter admits the next call or ctx is cancelled.
func (r *RPCLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
