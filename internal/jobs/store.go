package jobs

import (
	"context"
	"time"
)

// ListFilter narrows and paginates job listings.
type ListFilter struct {
	Status   string
	JobType  string
	PageSize int
	Cursor   *Cursor
}

// Cursor is a keyset pagination position (created_at DESC, job_id DESC).
type Cursor struct {
	CreatedAt time.Time
	JobID     string
}

// Store persists job records. Implementations must make CreateOrGet an
// atomic check-and-insert on the idempotency key, Claim an atomic
// pending→processing transition, and ApplyDelta a single atomic step so
// that a concurrent reader never observes a partially applied counter
// update.
type Store interface {
	// CreateOrGet inserts the job unless another job already holds its
	// idempotency key, in which case the existing job is returned and
	// isNew is false. Jobs without a key are always inserted.
	CreateOrGet(ctx context.Context, job *Job) (stored *Job, isNew bool, err error)

	// GetByID returns the job or ErrJobNotFound.
	GetByID(ctx context.Context, jobID string) (*Job, error)

	// List returns up to PageSize+1 jobs ordered by (created_at, job_id)
	// descending; the caller trims the extra row to detect more pages.
	List(ctx context.Context, filter ListFilter) ([]Job, error)

	// Claim flips pending→processing and stamps started_at. Returns
	// ErrJobNotClaimable if the job is not pending, ErrJobNotFound if
	// it does not exist.
	Claim(ctx context.Context, jobID string) (*Job, error)

	// SetTotal records the resolved item total for a processing job.
	SetTotal(ctx context.Context, jobID string, total int) error

	// ApplyDelta applies one item's counter delta. A non-empty errMsg
	// overwrites the job's error message with the latest item failure.
	ApplyDelta(ctx context.Context, jobID string, delta Delta, errMsg string) error

	// Transition moves the job to a new status. Terminal states are
	// final; transitioning an already-terminal job returns ErrJobTerminal.
	Transition(ctx context.Context, jobID string, status string, errMsg string) error

	// RequestCancel sets the cooperative cancellation flag. Returns
	// ErrJobTerminal if the job already finished.
	RequestCancel(ctx context.Context, jobID string) error

	// CancelRequested reports the cancellation flag.
	CancelRequested(ctx context.Context, jobID string) (bool, error)
}
