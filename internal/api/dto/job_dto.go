package dto

// SelectionData carries the variant payload of a bulk-add selection.
// Exactly one of IDs (explicit) or TotalAtSnapshot (all_matching) is
// meaningful per selection kind.
type SelectionData struct {
	IDs             []int64 `json:"ids,omitempty"`
	TotalAtSnapshot int     `json:"total_at_snapshot,omitempty"`
}

type BulkAddRequest struct {
	SourceCollectionID string        `json:"source_collection_id" binding:"required"`
	TargetCollectionID string        `json:"target_collection_id" binding:"required"`
	SelectionKind      string        `json:"selection_kind" binding:"required"`
	SelectionData      SelectionData `json:"selection_data"`
	IdempotencyKey     string        `json:"idempotency_key,omitempty"`
}

type BulkAddResponse struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	EstimatedTotal int    `json:"estimated_total"`
	CreatedAt      string `json:"created_at"`
}

type JobStatusResponse struct {
	JobID          string  `json:"job_id"`
	Status         string  `json:"status"`
	TotalItems     int     `json:"total_items"`
	ProcessedItems int     `json:"processed_items"`
	AddedItems     int     `json:"added_items"`
	SkippedItems   int     `json:"skipped_items"`
	FailedItems    int     `json:"failed_items"`
	ProgressPct    float64 `json:"progress_pct"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

type CancelResponse struct {
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobStatusResponse `json:"jobs"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

type CollectionCountResponse struct {
	Count          int    `json:"count"`
	CollectionID   string `json:"collection_id"`
	CollectionName string `json:"collection_name"`
}
