package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dnguyen/collections-be/internal/collections"
)

// Executor drives a bulk-add job from pending to a terminal state.
// Exactly one executor run owns a given job at a time: the claim step
// flips pending→processing atomically and only the claimer proceeds.
type Executor struct {
	store       Store
	memberships collections.Store
	logger      *slog.Logger
	addThrottle time.Duration
}

// ExecutorConfig holds executor dependencies.
type ExecutorConfig struct {
	Store       Store
	Memberships collections.Store
	Logger      *slog.Logger

	// AddThrottle, when positive, paces successful adds to avoid
	// hammering the membership store.
	AddThrottle time.Duration
}

// NewExecutor creates an executor.
func NewExecutor(cfg *ExecutorConfig) *Executor {
	return &Executor{
		store:       cfg.Store,
		memberships: cfg.Memberships,
		logger:      cfg.Logger,
		addThrottle: cfg.AddThrottle,
	}
}

// Run claims and executes one job to a terminal state. It returns
// ErrJobNotClaimable when another worker already owns the job, and a
// storage error only when the job record itself could not be driven;
// per-item membership failures are accounted in counters and never
// abort the run.
func (e *Executor) Run(ctx context.Context, jobID string) error {
	job, err := e.store.Claim(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotClaimable) || errors.Is(err, ErrJobNotFound) {
			return err
		}
		return NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	e.logger.Info("Job claimed",
		slog.String("job_id", job.ID),
		slog.String("selection_kind", job.Selection.Kind),
	)

	if err := e.validate(ctx, job); err != nil {
		return e.fail(ctx, job.ID, err)
	}

	ids, err := NewResolver(e.memberships).Resolve(ctx, job.SourceCollectionID, job.Selection)
	if err != nil {
		return e.fail(ctx, job.ID, err)
	}

	if err := e.store.SetTotal(ctx, job.ID, len(ids)); err != nil {
		return NewRetryableError(fmt.Errorf("failed to record job total: %w", err))
	}

	for _, companyID := range ids {
		// Cancellation is cooperative and forward-only: checked between
		// items, never rolling back already-added members.
		cancelled, err := e.store.CancelRequested(ctx, job.ID)
		if err != nil {
			return NewRetryableError(fmt.Errorf("failed to read cancellation flag: %w", err))
		}
		if cancelled {
			if err := e.store.Transition(ctx, job.ID, StatusCancelled, ""); err != nil {
				return fmt.Errorf("failed to mark job cancelled: %w", err)
			}
			e.logger.Info("Job cancelled",
				slog.String("job_id", job.ID),
			)
			return nil
		}

		delta, itemErr := e.processItem(ctx, job.TargetCollectionID, companyID)

		errMsg := ""
		if itemErr != nil {
			errMsg = fmt.Sprintf("failed to add company %d: %s", companyID, itemErr.Error())
			e.logger.Warn("Item failed, continuing",
				slog.String("job_id", job.ID),
				slog.Int64("company_id", companyID),
				slog.String("error", itemErr.Error()),
			)
		}

		// One atomic counter step per item so pollers always observe
		// processed == added + skipped + failed.
		if err := e.store.ApplyDelta(ctx, job.ID, delta, errMsg); err != nil {
			return NewRetryableError(fmt.Errorf("failed to update job counters: %w", err))
		}

		if e.addThrottle > 0 && delta.Added == 1 {
			time.Sleep(e.addThrottle)
		}
	}

	if err := e.store.Transition(ctx, job.ID, StatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	e.logger.Info("Job completed",
		slog.String("job_id", job.ID),
		slog.Int("total_items", len(ids)),
	)
	return nil
}

// validate rejects jobs that can never execute meaningfully. Each
// violation is fatal and routes the job to failed before any item is
// processed.
func (e *Executor) validate(ctx context.Context, job *Job) error {
	if job.SourceCollectionID == job.TargetCollectionID {
		return fmt.Errorf("%w: %s", ErrSourceEqualsTarget, job.SourceCollectionID)
	}

	sourceExists, err := e.memberships.Exists(ctx, job.SourceCollectionID)
	if err != nil {
		return fmt.Errorf("failed to check source collection: %w", err)
	}
	if !sourceExists {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, job.SourceCollectionID)
	}

	targetExists, err := e.memberships.Exists(ctx, job.TargetCollectionID)
	if err != nil {
		return fmt.Errorf("failed to check target collection: %w", err)
	}
	if !targetExists {
		return fmt.Errorf("target collection not found: %s", job.TargetCollectionID)
	}

	return nil
}

// processItem classifies one company against the target collection and
// returns the single-item delta to apply.
func (e *Executor) processItem(ctx context.Context, targetCollectionID string, companyID int64) (Delta, error) {
	present, err := e.memberships.Contains(ctx, targetCollectionID, companyID)
	if err != nil {
		return Delta{Processed: 1, Failed: 1}, err
	}
	if present {
		return Delta{Processed: 1, Skipped: 1}, nil
	}

	if err := e.memberships.Add(ctx, targetCollectionID, companyID); err != nil {
		return Delta{Processed: 1, Failed: 1}, err
	}
	return Delta{Processed: 1, Added: 1}, nil
}

// fail transitions the job to failed with a descriptive message. The
// original cause is returned to the caller only through the job record;
// execution-time errors never cross the submit boundary.
func (e *Executor) fail(ctx context.Context, jobID string, cause error) error {
	e.logger.Error("Job failed",
		slog.String("job_id", jobID),
		slog.String("error", cause.Error()),
	)

	if err := e.store.Transition(ctx, jobID, StatusFailed, cause.Error()); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}
