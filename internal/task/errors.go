package task

import (
	"errors"
	"fmt"
)

// permanentError marks a handler failure as non-retryable. Everything else a
// handler returns is treated as transient and retried with backoff.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.err)
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent wraps err so the worker fails the task immediately instead of
// retrying. Used for failures that no retry can fix, such as invalid
// configuration.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
