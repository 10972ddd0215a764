package gift

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("invalid organizer secret")
	ErrDuplicateName = errors.New("a participant with this name already exists in this session")
	ErrSessionClosed = errors.New("this session is already complete")
)

// ValidationError reports a field that is missing or out of range.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// errorKind names an error for metrics labels.
func errorKind(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrDuplicateName):
		return "duplicate_name"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	default:
		return "internal"
	}
}
