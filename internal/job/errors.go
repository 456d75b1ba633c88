package job

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfig marks fatal top-level configuration problems (bad root
// directory, unusable job list). These pre-empt per-job validation.
var ErrConfig = errors.New("invalid configuration")

// ValidationError describes one independent per-job validation failure.
type ValidationError struct {
	Job    string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("job %q: %s", e.Job, e.Reason)
	}
	return fmt.Sprintf("job %q: %s: %s", e.Job, e.Field, e.Reason)
}

// AggregateError collects every validation failure found during one
// Register pass. Validation never stops at the first failure, so the
// caller can discover all problems at once.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes the underlying errors to errors.Is / errors.As.
func (e *AggregateError) Unwrap() []error { return e.Errors }

func (e *AggregateError) append(errs ...error) {
	e.Errors = append(e.Errors, errs...)
}

// orNil returns the aggregate when it holds at least one error.
func (e *AggregateError) orNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}
