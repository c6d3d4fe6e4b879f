// Package worker consumes job ids from RabbitMQ and drives them through
// the job executor. The executor's atomic claim keeps redelivered or
// duplicated messages harmless: only one consumer ever owns a job.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dnguyen/collections-be/internal/jobs"
	"github.com/dnguyen/collections-be/shared/rabbitmq"
)

// Config holds worker configuration.
type Config struct {
	Logger        *slog.Logger
	RabbitClient  *rabbitmq.Client
	Executor      *jobs.Executor
	Concurrency   int
	PrefetchCount int
}

// Worker consumes bulk-add job messages and executes them on a
// fixed-size goroutine pool.
type Worker struct {
	logger        *slog.Logger
	rabbitClient  *rabbitmq.Client
	executor      *jobs.Executor
	concurrency   int
	prefetchCount int
	workerID      string
	jobsChan      chan *jobMessage
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

type jobMessage struct {
	JobID       string
	DeliveryTag uint64
}

// NewWorker creates a new worker instance.
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:        cfg.Logger,
		rabbitClient:  cfg.RabbitClient,
		executor:      cfg.Executor,
		concurrency:   cfg.Concurrency,
		prefetchCount: cfg.PrefetchCount,
		workerID:      "worker-" + uuid.New().String()[:8],
		jobsChan:      make(chan *jobMessage),
		stopChan:      make(chan struct{}),
	}
}

// Start begins consuming and processing jobs until the context is
// canceled or Stop is called.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

// spawnWorkerPool spawns N goroutines that execute jobs from jobsChan.
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop is the main processing loop for each pool goroutine. Each
// message is one job; the executor drives it to a terminal state.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				return
			}

			w.logger.Info("Worker received job",
				slog.String("worker_name", workerName),
				slog.String("job_id", msg.JobID),
			)

			err := w.executor.Run(ctx, msg.JobID)

			channel := w.rabbitClient.GetChannel()
			if channel == nil {
				w.logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
					slog.String("worker_name", workerName),
					slog.String("job_id", msg.JobID),
				)
				continue
			}

			if err != nil {
				requeue := w.shouldRequeueJob(err)
				w.logger.Error("Job run failed",
					slog.String("worker_name", workerName),
					slog.String("job_id", msg.JobID),
					slog.String("error", err.Error()),
					slog.Bool("requeue", requeue),
				)

				if nackErr := channel.Nack(msg.DeliveryTag, false, requeue); nackErr != nil {
					w.logger.Error("Failed to NACK message",
						slog.String("job_id", msg.JobID),
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			if ackErr := channel.Ack(msg.DeliveryTag, false); ackErr != nil {
				w.logger.Error("Failed to ACK message",
					slog.String("job_id", msg.JobID),
					slog.String("error", ackErr.Error()),
				)
			}
		}
	}
}

// shouldRequeueJob decides the NACK requeue flag based on the error.
// Claim conflicts and missing jobs are final for this delivery;
// transient storage errors get another attempt.
func (w *Worker) shouldRequeueJob(err error) bool {
	if errors.Is(err, jobs.ErrJobNotClaimable) {
		return false
	}
	if errors.Is(err, jobs.ErrJobNotFound) {
		return false
	}

	var retryableErr *jobs.RetryableError
	if errors.As(err, &retryableErr) {
		return true
	}

	return false
}
