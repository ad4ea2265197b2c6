package views

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSelection is returned when the advisor has nothing to evaluate.
	ErrNoSelection = errors.New("no image selected")
	// ErrUnknownRecord is returned when selecting an id the view does not hold.
	ErrUnknownRecord = errors.New("record not in view")
)

// EvaluationError wraps a failed risk evaluation.
type EvaluationError struct {
	ImageID string
	Err     error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate risk for %s: %v", e.ImageID, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }
