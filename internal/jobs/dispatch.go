package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Dispatcher hands a created job off for asynchronous execution.
// Submission never blocks on execution: both implementations return as
// soon as the job is en route.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// InlineDispatcher runs each job on its own goroutine inside the API
// process. Used in single-process deployments and tests.
type InlineDispatcher struct {
	executor *Executor
	logger   *slog.Logger
}

// NewInlineDispatcher creates a dispatcher that executes jobs in-process.
func NewInlineDispatcher(executor *Executor, logger *slog.Logger) *InlineDispatcher {
	return &InlineDispatcher{
		executor: executor,
		logger:   logger,
	}
}

// Dispatch spawns a goroutine per job. The job's own claim step keeps
// duplicate dispatches harmless.
func (d *InlineDispatcher) Dispatch(ctx context.Context, jobID string) error {
	go func() {
		// Detached from the request context: the job outlives the
		// HTTP submission that created it.
		if err := d.executor.Run(context.Background(), jobID); err != nil {
			d.logger.Error("Inline job execution failed",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
	}()
	return nil
}

// Publisher is the narrow messaging capability the queue dispatcher
// needs; satisfied by shared/rabbitmq.Client.
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// QueueDispatcher publishes the job id to the work queue for the
// worker service to claim and execute.
type QueueDispatcher struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewQueueDispatcher creates a dispatcher that enqueues jobs.
func NewQueueDispatcher(publisher Publisher, logger *slog.Logger) *QueueDispatcher {
	return &QueueDispatcher{
		publisher: publisher,
		logger:    logger,
	}
}

// JobMessage is the queue payload between the API and worker services.
type JobMessage struct {
	JobID string `json:"job_id"`
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, jobID string) error {
	body, err := json.Marshal(JobMessage{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}

	if err := d.publisher.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish job message: %w", err)
	}

	d.logger.Debug("Job dispatched to queue",
		slog.String("job_id", jobID),
	)
	return nil
}
