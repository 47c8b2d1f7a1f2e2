package domain

import (
	"context"
	"time"
)

// JobStore is the persistent job queue. All worker coordination flows through
// its atomic conditional updates; no in-memory state is shared between
// workers.
type JobStore interface {
	// EnqueueBatch inserts the batch row and all of its jobs as one atomic
	// set. No job ever references a batch that was not created.
	EnqueueBatch(ctx context.Context, batch *Batch, jobs []*Job) error
	// ClaimNext claims the oldest eligible job (pending, or rate_limited
	// past its retry_at) for workerID, transitioning it to processing.
	// Returns ErrNoJob when nothing is eligible.
	ClaimNext(ctx context.Context, workerID string) (*Job, error)
	// ReclaimStaleLocks resets processing jobs whose lock is older than
	// timeout back to pending, recovering from crashed workers.
	ReclaimStaleLocks(ctx context.Context, timeout time.Duration) (int, error)
	// IncrementAttempt bumps the attempt counter and returns the new value.
	IncrementAttempt(ctx context.Context, id string) (int, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errorMessage string) error
	MarkRateLimited(ctx context.Context, id string, retryAt time.Time, errorMessage string) error
	GetJob(ctx context.Context, id string) (*Job, error)
}

// BatchStore reads batches and finalizes them from their jobs' outcomes.
type BatchStore interface {
	GetBatch(ctx context.Context, id string) (*Batch, error)
	// FinalizeBatch finalizes the batch iff all of its jobs are terminal and
	// it is still generating. Re-running it on a terminal batch is a no-op.
	FinalizeBatch(ctx context.Context, id string) (*Batch, error)
}

// PhotoStore persists generated photo records.
type PhotoStore interface {
	Insert(ctx context.Context, photo *Photo) error
	ListByBatch(ctx context.Context, batchID string) ([]Photo, error)
}
