package jobs

import (
	"math"
	"time"
)

// Job status values. pending and processing are the only non-terminal
// states; once a job reaches a terminal state its counters are frozen.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Selection kinds
const (
	SelectionExplicit    = "explicit"
	SelectionAllMatching = "all_matching"
)

// JobTypeBulkAdd is the only job type the engine executes.
const JobTypeBulkAdd = "bulk_add_companies"

// IsTerminal reports whether a status is terminal.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Selection describes which companies a job should copy from the
// source collection. Exactly one variant is meaningful: explicit
// carries IDs, all_matching carries an advisory snapshot count that is
// never trusted at execution time.
type Selection struct {
	Kind            string  `json:"kind"`
	IDs             []int64 `json:"ids,omitempty"`
	TotalAtSnapshot int     `json:"total_at_snapshot,omitempty"`
}

// Counters tracks per-item accounting for a job. The invariant
// Processed == Added + Skipped + Failed holds at every observable
// instant, and Processed never exceeds Total.
type Counters struct {
	Total     int
	Processed int
	Added     int
	Skipped   int
	Failed    int
}

// Delta is a single-item counter update applied atomically by the
// store so that concurrent readers never observe a torn snapshot.
// Exactly one of Added/Skipped/Failed is 1 per processed item.
type Delta struct {
	Processed int
	Added     int
	Skipped   int
	Failed    int
}

// Job is the record of one bulk-add operation. The registry owns
// storage, the executor owns mutation; the API layer holds read access
// plus a narrow cancel-request capability.
type Job struct {
	ID                 string
	JobType            string
	IdempotencyKey     string
	SourceCollectionID string
	TargetCollectionID string
	Selection          Selection
	Status             string
	Counters           Counters
	CancelRequested    bool
	ErrorMessage       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
}

// ProgressPct computes the polling-friendly progress percentage,
// rounded, clamped to [0, 100] by the counter invariants.
func (j *Job) ProgressPct() float64 {
	total := j.Counters.Total
	if total < 1 {
		total = 1
	}
	return math.Round(100 * float64(j.Counters.Processed) / float64(total))
}
