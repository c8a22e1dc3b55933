package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below unwrap to one of these.
var (
	ErrDuplicateID       = errors.New("duplicate task id")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrMissingID         = errors.New("task has no id")
	ErrCyclicDependency  = errors.New("cyclic dependency")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidStatus     = errors.New("invalid task status")
	ErrInvalidPriority   = errors.New("invalid task priority")
	ErrTaskNotFound      = errors.New("task not found")
)

// DuplicateIDError reports two tasks sharing an ID.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate task id %q", e.ID)
}

func (e *DuplicateIDError) Unwrap() error { return ErrDuplicateID }

// UnknownDependencyError reports a depends_on entry naming a task that does not exist.
type UnknownDependencyError struct {
	TaskID    string
	MissingID string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on unknown task %q", e.TaskID, e.MissingID)
}

func (e *UnknownDependencyError) Unwrap() error { return ErrUnknownDependency }

// MissingIDError reports a task record without an ID. Index is the record's
// position in the input slice.
type MissingIDError struct {
	Index int
}

func (e *MissingIDError) Error() string {
	return fmt.Sprintf("task at index %d has no id", e.Index)
}

func (e *MissingIDError) Unwrap() error { return ErrMissingID }

// CyclicDependencyError is returned by every scheduling query on a graph that
// contains at least one cycle.
type CyclicDependencyError struct {
	Cycles []Cycle
}

func (e *CyclicDependencyError) Error() string {
	parts := make([]string, len(e.Cycles))
	for i, c := range e.Cycles {
		parts[i] = c.String()
	}
	return fmt.Sprintf("graph contains %d dependency cycle(s): %s", len(e.Cycles), strings.Join(parts, "; "))
}

func (e *CyclicDependencyError) Unwrap() error { return ErrCyclicDependency }

// InvalidTransitionError reports a rejected status change.
type InvalidTransitionError struct {
	TaskID string
	From   Status
	To     Status
}

func (e *InvalidTransitionError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("cannot transition %s -> %s", e.From, e.To)
	}
	return fmt.Sprintf("task %q cannot transition %s -> %s", e.TaskID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// BuildError collects every structural problem found while building a graph.
type BuildError struct {
	Problems []error
}

func (e *BuildError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid task graph: " + e.Problems[0].Error()
	}
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("invalid task graph: %d problems: %s", len(e.Problems), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual problems to errors.Is and errors.As.
func (e *BuildError) Unwrap() []error { return e.Problems }
