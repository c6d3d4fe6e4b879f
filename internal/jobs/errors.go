package jobs

import "errors"

var (
	// ErrJobNotFound is returned when a job id does not resolve.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobTerminal is returned when cancelling a job that already
	// reached a terminal state.
	ErrJobTerminal = errors.New("job already in terminal state")

	// ErrJobNotClaimable is returned when the pending→processing claim
	// fails because another worker already owns the job.
	ErrJobNotClaimable = errors.New("job already claimed or not in pending status")

	// ErrSourceNotFound is returned by the resolver when the source
	// collection does not exist. Fatal for the job.
	ErrSourceNotFound = errors.New("source collection not found")

	// ErrSourceEqualsTarget is returned when a job names the same
	// collection as both source and target. Fatal for the job.
	ErrSourceEqualsTarget = errors.New("source and target collection are the same")

	// ErrInvalidSelection is returned when a selection spec has no
	// usable variant.
	ErrInvalidSelection = errors.New("invalid selection spec")
)

// RetryableError wraps transient storage errors so the queue consumer
// can decide to requeue a delivery.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error.
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
