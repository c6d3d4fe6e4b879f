// Package postgres holds the sqlx-backed implementations of the job
// store and the collection membership store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/dnguyen/collections-be/internal/jobs"
)

// JobStore implements jobs.Store on PostgreSQL.
type JobStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewJobStore creates a Postgres-backed job store.
func NewJobStore(db *sqlx.DB, logger *slog.Logger) *JobStore {
	return &JobStore{
		db:     db,
		logger: logger,
	}
}

// jobRow maps the jobs table.
type jobRow struct {
	JobID              string          `db:"job_id"`
	JobType            string          `db:"job_type"`
	IdempotencyKey     sql.NullString  `db:"idempotency_key"`
	SourceCollectionID string          `db:"source_collection_id"`
	TargetCollectionID string          `db:"target_collection_id"`
	SelectionKind      string          `db:"selection_kind"`
	SelectionData      json.RawMessage `db:"selection_data"`
	Status             string          `db:"status"`
	TotalItems         int             `db:"total_items"`
	ProcessedItems     int             `db:"processed_items"`
	AddedItems         int             `db:"added_items"`
	SkippedItems       int             `db:"skipped_items"`
	FailedItems        int             `db:"failed_items"`
	CancelRequested    bool            `db:"cancel_requested"`
	ErrorMessage       sql.NullString  `db:"error_message"`
	CreatedAt          sql.NullTime    `db:"created_at"`
	UpdatedAt          sql.NullTime    `db:"updated_at"`
	StartedAt          sql.NullTime    `db:"started_at"`
	CompletedAt        sql.NullTime    `db:"completed_at"`
}

const jobColumns = `
	job_id, job_type, idempotency_key, source_collection_id, target_collection_id,
	selection_kind, selection_data, status,
	total_items, processed_items, added_items, skipped_items, failed_items,
	cancel_requested, error_message, created_at, updated_at, started_at, completed_at
`

func (r *jobRow) toJob() (*jobs.Job, error) {
	job := &jobs.Job{
		ID:                 r.JobID,
		JobType:            r.JobType,
		SourceCollectionID: r.SourceCollectionID,
		TargetCollectionID: r.TargetCollectionID,
		Status:             r.Status,
		Counters: jobs.Counters{
			Total:     r.TotalItems,
			Processed: r.ProcessedItems,
			Added:     r.AddedItems,
			Skipped:   r.SkippedItems,
			Failed:    r.FailedItems,
		},
		CancelRequested: r.CancelRequested,
	}

	job.Selection.Kind = r.SelectionKind
	if len(r.SelectionData) > 0 {
		if err := json.Unmarshal(r.SelectionData, &job.Selection); err != nil {
			return nil, fmt.Errorf("failed to decode selection data: %w", err)
		}
		job.Selection.Kind = r.SelectionKind
	}

	if r.IdempotencyKey.Valid {
		job.IdempotencyKey = r.IdempotencyKey.String
	}
	if r.ErrorMessage.Valid {
		job.ErrorMessage = r.ErrorMessage.String
	}
	if r.CreatedAt.Valid {
		job.CreatedAt = r.CreatedAt.Time
	}
	if r.UpdatedAt.Valid {
		job.UpdatedAt = r.UpdatedAt.Time
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Time
		job.StartedAt = &t
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		job.CompletedAt = &t
	}

	return job, nil
}

func (s *JobStore) CreateOrGet(ctx context.Context, job *jobs.Job) (*jobs.Job, bool, error) {
	selectionData, err := json.Marshal(job.Selection)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode selection data: %w", err)
	}

	var key interface{}
	if job.IdempotencyKey != "" {
		key = job.IdempotencyKey
	}

	// ON CONFLICT DO NOTHING makes the check-and-insert atomic: under
	// concurrent duplicate submissions exactly one row wins the key.
	query := `
		INSERT INTO jobs (
			job_id, job_type, idempotency_key, source_collection_id, target_collection_id,
			selection_kind, selection_data, status, total_items,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11
		)
		ON CONFLICT (idempotency_key) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.JobType,
		key,
		job.SourceCollectionID,
		job.TargetCollectionID,
		job.Selection.Kind,
		selectionData,
		job.Status,
		job.Counters.Total,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 1 {
		stored := *job
		return &stored, true, nil
	}

	// Lost the insert race or the key was already taken: return the
	// existing job for that idempotency key.
	existing, err := s.getByKey(ctx, job.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *JobStore) getByKey(ctx context.Context, key string) (*jobs.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE idempotency_key = $1`

	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, key); err != nil {
		if err == sql.ErrNoRows {
			return nil, jobs.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job by idempotency key: %w", err)
	}
	return row.toJob()
}

func (s *JobStore) GetByID(ctx context.Context, jobID string) (*jobs.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, jobID); err != nil {
		if err == sql.ErrNoRows {
			return nil, jobs.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.toJob()
}

func (s *JobStore) List(ctx context.Context, filter jobs.ListFilter) ([]jobs.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.JobType != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, filter.JobType)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, job_id DESC for consistent pagination.
	query += " ORDER BY created_at DESC, job_id DESC"

	// Fetch one extra to determine if there are more results.
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	out := make([]jobs.Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toJob()
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, nil
}

func (s *JobStore) Claim(ctx context.Context, jobID string) (*jobs.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    started_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = $3
		RETURNING ` + jobColumns

	var row jobRow
	err := s.db.GetContext(ctx, &row, query, jobs.StatusProcessing, jobID, jobs.StatusPending)
	if err != nil {
		if err == sql.ErrNoRows {
			// Distinguish a missing job from one already claimed.
			if _, getErr := s.GetByID(ctx, jobID); getErr != nil {
				return nil, getErr
			}
			s.logger.Warn("Failed to claim job - not in pending status",
				slog.String("job_id", jobID),
			)
			return nil, jobs.ErrJobNotClaimable
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	return row.toJob()
}

func (s *JobStore) SetTotal(ctx context.Context, jobID string, total int) error {
	query := `
		UPDATE jobs
		SET total_items = $1,
		    updated_at = NOW()
		WHERE job_id = $2
	`

	if err := s.execOne(ctx, query, total, jobID); err != nil {
		return fmt.Errorf("failed to set job total: %w", err)
	}
	return nil
}

func (s *JobStore) ApplyDelta(ctx context.Context, jobID string, delta jobs.Delta, errMsg string) error {
	// A single UPDATE per item keeps the counter invariant visible to
	// concurrent status reads.
	query := `
		UPDATE jobs
		SET processed_items = processed_items + $1,
		    added_items = added_items + $2,
		    skipped_items = skipped_items + $3,
		    failed_items = failed_items + $4,
		    error_message = COALESCE(NULLIF($5, ''), error_message),
		    updated_at = NOW()
		WHERE job_id = $6
	`

	if err := s.execOne(ctx, query, delta.Processed, delta.Added, delta.Skipped, delta.Failed, errMsg, jobID); err != nil {
		return fmt.Errorf("failed to update job counters: %w", err)
	}
	return nil
}

func (s *JobStore) Transition(ctx context.Context, jobID string, status string, errMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    error_message = COALESCE(NULLIF($2, ''), error_message),
		    completed_at = CASE WHEN $1 IN ($3, $4, $5) THEN NOW() ELSE completed_at END,
		    updated_at = NOW()
		WHERE job_id = $6
		  AND status NOT IN ($3, $4, $5)
	`

	result, err := s.db.ExecContext(ctx, query,
		status, errMsg,
		jobs.StatusCompleted, jobs.StatusFailed, jobs.StatusCancelled,
		jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, getErr := s.GetByID(ctx, jobID); getErr != nil {
			return getErr
		}
		return jobs.ErrJobTerminal
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", status),
	)
	return nil
}

func (s *JobStore) RequestCancel(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET cancel_requested = TRUE,
		    updated_at = NOW()
		WHERE job_id = $1
		  AND status NOT IN ($2, $3, $4)
	`

	result, err := s.db.ExecContext(ctx, query, jobID,
		jobs.StatusCompleted, jobs.StatusFailed, jobs.StatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to request job cancellation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, getErr := s.GetByID(ctx, jobID); getErr != nil {
			return getErr
		}
		return jobs.ErrJobTerminal
	}
	return nil
}

func (s *JobStore) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	var cancelRequested bool
	err := s.db.GetContext(ctx, &cancelRequested,
		`SELECT cancel_requested FROM jobs WHERE job_id = $1`, jobID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, jobs.ErrJobNotFound
		}
		return false, fmt.Errorf("failed to read cancellation flag: %w", err)
	}
	return cancelRequested, nil
}

func (s *JobStore) execOne(ctx context.Context, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return jobs.ErrJobNotFound
	}
	return nil
}
