package exam

import (
	"errors"
	"fmt"
)

// Sentinel errors for the attempt lifecycle. Handlers map these to HTTP
// statuses; the strings are stable because clients branch on them.
var (
	ErrExamNotFound     = errors.New("exam not found")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrResultNotFound   = errors.New("result not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrDuplicateUser    = errors.New("username or email already taken")
	ErrExamInactive     = errors.New("exam is not active")
	ErrExamNotStarted   = errors.New("exam has not opened yet")
	ErrExamClosed       = errors.New("exam has already closed")
	ErrAlreadyAttempted = errors.New("exam already attempted")
	ErrAlreadyCompleted = errors.New("attempt already completed")
	ErrNotAttemptOwner  = errors.New("attempt belongs to another student")
)

// ConflictError wraps a conflict sentinel with the id of the resource that
// already occupies the slot, so callers can navigate to it instead of
// retrying blindly.
type ConflictError struct {
	Err        error
	ExistingID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s (existing id %s)", e.Err, e.ExistingID)
}

func (e *ConflictError) Unwrap() error { return e.Err }
