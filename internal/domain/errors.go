package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports bad input to a task mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a reference to a task that doesn't exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// CompletionServiceError wraps any failure of the text completion call.
type CompletionServiceError struct {
	Err error
}

func (e *CompletionServiceError) Error() string {
	return "completion service: " + e.Err.Error()
}

func (e *CompletionServiceError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
