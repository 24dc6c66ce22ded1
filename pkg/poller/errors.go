package poller

import (
	"errors"
	"fmt"
)

var (
	// ErrStopped is returned by Poll after Stop, and by loops cut short by it.
	ErrStopped = errors.New("poller stopped")

	// ErrPollTimeout matches every TimeoutError.
	ErrPollTimeout = errors.New("poll timed out")

	// errAbandoned ends a loop whose last waiter left. A caller that joins
	// such a loop late restarts it.
	errAbandoned = errors.New("poll abandoned")
)

// TimeoutError is the client-side timeout outcome: MaxAttempts fetches saw no
// terminal state. The job may still be running on the server.
type TimeoutError struct {
	JobID    string
	Attempts int
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s not finished after %d attempts", e.JobID, e.Attempts)
}

// Is makes errors.Is(err, ErrPollTimeout) true.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrPollTimeout
}

// PollError ends a loop after too many consecutive fetch failures.
type PollError struct {
	JobID    string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *PollError) Error() string {
	return fmt.Sprintf("polling job %s failed after %d attempts: %v", e.JobID, e.Attempts, e.Err)
}

// Unwrap returns the last fetch error.
func (e *PollError) Unwrap() error {
	return e.Err
}

// IsTimeout returns true if err is a poll timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrPollTimeout)
}
