package inference

import "errors"

// Domain errors for the inference package.
var (
	// ErrQueueFull is returned when a submission would exceed the
	// configured queue depth.
	ErrQueueFull = errors.New("inference: queue full")

	// ErrJobNotFound is returned when a job ID is neither live nor in the
	// completed-job history ring.
	ErrJobNotFound = errors.New("inference: job not found")

	// ErrJobTimeout is returned by Await when the job does not complete
	// within the caller's timeout.
	ErrJobTimeout = errors.New("inference: job timed out")

	// ErrBackendUnavailable is returned when the retry budget is exhausted
	// or no healthy backend exists to dispatch to.
	ErrBackendUnavailable = errors.New("inference: no backend available")

	// ErrClosed is returned when submitting to a queue that has been shut down.
	ErrClosed = errors.New("inference: queue closed")
)
