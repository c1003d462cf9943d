package message

import "errors"

// ErrMessageCreation matches every *CreationError with errors.Is.
var ErrMessageCreation = errors.New("message creation failed")

// CreationError reports caller input that cannot form a valid Message.
// It is never transient; retrying with the same input fails again.
type CreationError struct {
	Reason string
}

func newCreationError(reason string) *CreationError {
	return &CreationError{Reason: reason}
}

func (e *CreationError) Error() string { return "message: " + e.Reason }

func (e *CreationError) Is(target error) bool { return target == ErrMessageCreation }
