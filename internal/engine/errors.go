package engine

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrSolverFailure is returned when the optimizer errors or hands back an invalid assignment.
	ErrSolverFailure = errors.New("engine: solver failure")
	// ErrModelTooLarge is returned when the variable count exceeds Options.MaxVariables.
	ErrModelTooLarge = errors.New("engine: model too large")
)

// ValidationError collects every input problem found in one pass.
type ValidationError struct {
	Issues []string `json:"issues"`
}

func (v *ValidationError) Error() string {
	if v == nil || len(v.Issues) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(v.Issues, "; ")
}

// HasIssues reports whether anything was recorded.
func (v *ValidationError) HasIssues() bool {
	return v != nil && len(v.Issues) > 0
}

func (v *ValidationError) add(issue string) {
	v.Issues = append(v.Issues, issue)
}

// ErrorKind maps engine errors to a stable label for logs and HTTP status mapping.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrModelTooLarge):
		return "model_too_large"
	case errors.Is(err, ErrSolverFailure):
		return "solver_failure"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	return "unexpected"
}
