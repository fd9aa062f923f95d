package directory

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped when the directory answers 404.
var ErrNotFound = errors.New("directory: not found")

// Error describes a failed directory call. Transient errors are safe to retry.
type Error struct {
	Op         string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("directory %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("directory %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable directory failure.
func IsTransient(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Transient
	}
	return false
}

func classifyStatus(status int) bool {
	return status == 429 || status >= 500
}
