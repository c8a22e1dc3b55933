package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aristath/taskgraph/internal/scheduler"
)

// Exit codes.
const (
	exitOK         = 0
	exitFailure    = 1
	exitStructural = 2
)

// exitError carries an exit code for a result that has already been written.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// problem is one structural defect in the JSON error object.
type problem struct {
	Kind      string `json:"kind"`
	TaskID    string `json:"task_id,omitempty"`
	MissingID string `json:"missing_id,omitempty"`
	Index     *int   `json:"index,omitempty"`
	Message   string `json:"message"`
}

// errorReport is printed on stdout for structural graph errors.
type errorReport struct {
	Error    string            `json:"error"`
	Problems []problem         `json:"problems,omitempty"`
	Cycles   []scheduler.Cycle `json:"cycles,omitempty"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeLine writes v as a single line of JSON.
func writeLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// structuralReport describes err when it is a graph structure error.
func structuralReport(err error) (errorReport, bool) {
	var buildErr *scheduler.BuildError
	if errors.As(err, &buildErr) {
		report := errorReport{Error: "invalid task graph"}
		for _, p := range buildErr.Problems {
			report.Problems = append(report.Problems, describeProblem(p))
		}
		return report, true
	}

	var cycleErr *scheduler.CyclicDependencyError
	if errors.As(err, &cycleErr) {
		return errorReport{Error: scheduler.ErrCyclicDependency.Error(), Cycles: cycleErr.Cycles}, true
	}
	return errorReport{}, false
}

func describeProblem(err error) problem {
	p := problem{Message: err.Error()}

	var (
		dup     *scheduler.DuplicateIDError
		unknown *scheduler.UnknownDependencyError
		missing *scheduler.MissingIDError
	)
	switch {
	case errors.As(err, &dup):
		p.Kind, p.TaskID = "duplicate_id", dup.ID
	case errors.As(err, &unknown):
		p.Kind, p.TaskID, p.MissingID = "unknown_dependency", unknown.TaskID, unknown.MissingID
	case errors.As(err, &missing):
		idx := missing.Index
		p.Kind, p.Index = "missing_id", &idx
	default:
		p.Kind = "other"
	}
	return p
}

// reportError writes err in the form its kind calls for and returns the exit code.
func reportError(stdout, stderr io.Writer, err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}

	if report, ok := structuralReport(err); ok {
		if werr := writeJSON(stdout, report); werr != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return exitStructural
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitFailure
}
