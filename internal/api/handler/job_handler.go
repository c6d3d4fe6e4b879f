package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dnguyen/collections-be/internal/api/dto"
	"github.com/dnguyen/collections-be/internal/jobs"
)

// BulkAdd handles POST /api/v1/jobs/bulk-add
// Creates (or returns, on an idempotency hit) the bulk-add job and
// hands it to the dispatcher. Never blocks on execution.
func (h *JobHandler) BulkAdd(c *gin.Context) {
	var req dto.BulkAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if err := validateBulkAddRequest(&req); err != nil {
		h.logger.Error("Invalid bulk add request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	params := jobs.NewJobParams{
		SourceCollectionID: req.SourceCollectionID,
		TargetCollectionID: req.TargetCollectionID,
		IdempotencyKey:     req.IdempotencyKey,
		Selection: jobs.Selection{
			Kind:            req.SelectionKind,
			IDs:             req.SelectionData.IDs,
			TotalAtSnapshot: req.SelectionData.TotalAtSnapshot,
		},
	}

	job, isNew, err := h.registry.CreateOrGet(c.Request.Context(), params)
	if err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	if isNew {
		if err := h.dispatcher.Dispatch(c.Request.Context(), job.ID); err != nil {
			h.logger.Error("Failed to dispatch job",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to dispatch job",
			})
			return
		}
	}

	status := http.StatusOK
	if isNew {
		status = http.StatusAccepted
	}

	c.JSON(status, dto.BulkAddResponse{
		JobID:          job.ID,
		Status:         job.Status,
		EstimatedTotal: job.Counters.Total,
		CreatedAt:      job.CreatedAt.Format(time.RFC3339),
	})
}

// validateBulkAddRequest checks request shape only. Unknown collections
// and source==target are execution-time failures, surfaced through the
// status projection instead of the submit response.
func validateBulkAddRequest(req *dto.BulkAddRequest) error {
	if _, err := uuid.Parse(req.SourceCollectionID); err != nil {
		return errors.New("source_collection_id must be a valid UUID")
	}
	if _, err := uuid.Parse(req.TargetCollectionID); err != nil {
		return errors.New("target_collection_id must be a valid UUID")
	}

	switch req.SelectionKind {
	case jobs.SelectionExplicit:
		if req.SelectionData.IDs == nil {
			return errors.New("selection_data.ids is required for explicit selection")
		}
	case jobs.SelectionAllMatching:
		if req.SelectionData.TotalAtSnapshot < 0 {
			return errors.New("selection_data.total_at_snapshot must not be negative")
		}
	default:
		return errors.New("selection_kind must be one of: explicit, all_matching")
	}

	return nil
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns the polling-friendly status projection of a job.
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.registry.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, jobStatusView(job))
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
// Requests cooperative cancellation; the executor observes the flag
// between items, so the stop is not immediate.
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	err := h.registry.RequestCancel(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
		case errors.Is(err, jobs.ErrJobTerminal):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Cannot cancel job in terminal status",
			})
		default:
			h.logger.Error("Failed to cancel job", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to cancel job",
			})
		}
		return
	}

	c.JSON(http.StatusOK, dto.CancelResponse{
		Message: "Cancellation requested",
		JobID:   jobID,
	})
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs with optional status filtering and cursor pagination.
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := jobs.ListFilter{
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	page, err := h.registry.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(page) > req.PageSize
	if hasMore {
		page = page[:req.PageSize]
	}

	views := make([]dto.JobStatusResponse, len(page))
	for i := range page {
		views[i] = jobStatusView(&page[i])
	}

	var nextCursor string
	if hasMore {
		last := page[len(page)-1]
		nextCursor, err = EncodeJobCursor(&jobs.Cursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.ID,
		})
		if err != nil {
			h.logger.Error("Failed to encode next cursor", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to encode next cursor",
			})
			return
		}
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       views,
		NextCursor: nextCursor,
	})
}

// jobStatusView projects a job record into the polling response shape.
func jobStatusView(job *jobs.Job) dto.JobStatusResponse {
	return dto.JobStatusResponse{
		JobID:          job.ID,
		Status:         job.Status,
		TotalItems:     job.Counters.Total,
		ProcessedItems: job.Counters.Processed,
		AddedItems:     job.Counters.Added,
		SkippedItems:   job.Counters.Skipped,
		FailedItems:    job.Counters.Failed,
		ProgressPct:    job.ProgressPct(),
		ErrorMessage:   job.ErrorMessage,
	}
}
