package scheduler

import (
	"context"
	"errors"
	"time"
)

// ErrCancelled is the non-fatal result a job returns when its cancellation
// token fired before a suspension point; the caller re-enqueues the job
// rather than treating this as a failure.
var ErrCancelled = errors.New("scheduler: job cancelled")

// DefaultRPCTimeout is the per-ledger-RPC timeout (spec §5: default 30s).
const DefaultRPCTimeout = 30 * time.Second

// DefaultJobTimeout is the per-job-run timeout before automatic reschedule
// (spec §5: default 5 min).
const DefaultJobTimeout = 5 * time.Minute

// RunJob wraps fn with the job-run timeout and maps a context cancellation
// observed at a suspension point to ErrCancelled so callers can distinguish
// "ran out of time, reschedule" from "genuine failure".
func RunJob(parent context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, DefaultJobTimeout)
	defer cancel()

	err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrCancelled
	}
	return err
}

// WithRPCTimeout scopes a single ledger RPC to DefaultRPCTimeout.
func WithRPCTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultRPCTimeout)
}
