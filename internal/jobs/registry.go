package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Registry indexes jobs by id and by idempotency key on top of an
// injected Store. At most one job is ever created per idempotency key,
// even under concurrent duplicate submissions; the store's CreateOrGet
// is the atomic check-and-insert that guarantees it.
type Registry struct {
	store  Store
	logger *slog.Logger
}

// NewRegistry creates a registry backed by the given store.
func NewRegistry(store Store, logger *slog.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger,
	}
}

// NewJobParams carries everything needed to create a bulk-add job.
type NewJobParams struct {
	SourceCollectionID string
	TargetCollectionID string
	Selection          Selection
	IdempotencyKey     string
}

// CreateOrGet creates a new pending job, or returns the existing job
// when the idempotency key is already taken (any status — callers must
// not submit conflicting specs under the same key). Without a key a
// fresh job is always created.
func (r *Registry) CreateOrGet(ctx context.Context, params NewJobParams) (*Job, bool, error) {
	now := time.Now()
	job := &Job{
		ID:                 uuid.New().String(),
		JobType:            JobTypeBulkAdd,
		IdempotencyKey:     params.IdempotencyKey,
		SourceCollectionID: params.SourceCollectionID,
		TargetCollectionID: params.TargetCollectionID,
		Selection:          params.Selection,
		Status:             StatusPending,
		Counters:           Counters{Total: estimateTotal(params.Selection)},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	stored, isNew, err := r.store.CreateOrGet(ctx, job)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create job: %w", err)
	}

	if isNew {
		r.logger.Info("Job created",
			slog.String("job_id", stored.ID),
			slog.String("selection_kind", stored.Selection.Kind),
			slog.String("source_collection_id", stored.SourceCollectionID),
			slog.String("target_collection_id", stored.TargetCollectionID),
		)
	} else {
		r.logger.Info("Idempotency hit, returning existing job",
			slog.String("job_id", stored.ID),
			slog.String("status", stored.Status),
		)
	}

	return stored, isNew, nil
}

// estimateTotal is the submit-time progress denominator: exact for
// explicit selections (after dedup), advisory snapshot count for
// all_matching. The executor overwrites it with the resolved count.
func estimateTotal(sel Selection) int {
	switch sel.Kind {
	case SelectionExplicit:
		return len(dedupIDs(sel.IDs))
	case SelectionAllMatching:
		return sel.TotalAtSnapshot
	}
	return 0
}

// Get returns the job or ErrJobNotFound.
func (r *Registry) Get(ctx context.Context, jobID string) (*Job, error) {
	return r.store.GetByID(ctx, jobID)
}

// List returns a page of jobs plus the extra lookahead row.
func (r *Registry) List(ctx context.Context, filter ListFilter) ([]Job, error) {
	return r.store.List(ctx, filter)
}

// RequestCancel sets the cooperative cancellation flag. It does not
// change the job's status; the executor observes the flag between
// items and transitions to cancelled itself.
func (r *Registry) RequestCancel(ctx context.Context, jobID string) error {
	if err := r.store.RequestCancel(ctx, jobID); err != nil {
		return err
	}

	r.logger.Info("Job cancellation requested",
		slog.String("job_id", jobID),
	)
	return nil
}
