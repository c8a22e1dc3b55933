package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a task.
type Status int

const (
	StatusTodo       Status = iota // Created, waiting to be picked up
	StatusInProgress               // Being worked on
	StatusBlocked                  // Parked by its owner
	StatusDone                     // Finished, satisfies dependents
	StatusCancelled                // Abandoned, never satisfies dependents
)

var statusNames = map[Status]string{
	StatusTodo:       "Todo",
	StatusInProgress: "InProgress",
	StatusBlocked:    "Blocked",
	StatusDone:       "Done",
	StatusCancelled:  "Cancelled",
}

// statusAliases maps normalized spellings to statuses. COMPLETE comes from the
// older task files, CANCELED from org-mode exports.
var statusAliases = map[string]Status{
	"todo":       StatusTodo,
	"inprogress": StatusInProgress,
	"blocked":    StatusBlocked,
	"done":       StatusDone,
	"complete":   StatusDone,
	"cancelled":  StatusCancelled,
	"canceled":   StatusCancelled,
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// IsValid reports whether s is one of the declared statuses.
func (s Status) IsValid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatus, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name; see ParseStatus.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus maps a status string onto the closed Status enum.
// Matching ignores case, spaces, '-' and '_'. Unknown values are an error.
func ParseStatus(raw string) (Status, error) {
	if st, ok := statusAliases[normalizeEnum(raw)]; ok {
		return st, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// Priority orders ready tasks. It is only ever a tie-break between tasks
// whose dependencies are already satisfied.
type Priority int

const (
	PriorityMedium   Priority = iota // Default when unspecified
	PriorityLow
	PriorityHigh
	PriorityCritical
)

var priorityNames = map[Priority]string{
	PriorityCritical: "Critical",
	PriorityHigh:     "High",
	PriorityMedium:   "Medium",
	PriorityLow:      "Low",
}

// Rank returns the sort position of p: 0 for Critical through 3 for Low.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

// IsValid reports whether p is one of the declared priorities.
func (p Priority) IsValid() bool {
	_, ok := priorityNames[p]
	return ok
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

// MarshalText encodes the priority by name.
func (p Priority) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText decodes a priority name; see ParsePriority.
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePriority maps a priority string onto the closed Priority enum.
// An empty string yields PriorityMedium; any other unknown value is an error.
func ParsePriority(raw string) (Priority, error) {
	switch normalizeEnum(raw) {
	case "":
		return PriorityMedium, nil
	case "critical":
		return PriorityCritical, nil
	case "high":
		return PriorityHigh, nil
	case "medium":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPriority, raw)
}

func normalizeEnum(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ', '\t':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(raw)))
}

// Task is a unit of work in the dependency graph.
type Task struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Priority  Priority  `json:"priority"`
	DependsOn []string  `json:"depends_on"`           // Authoritative dependency declaration
	Blocks    []string  `json:"blocks,omitempty"`     // Advisory; validated against DependsOn
	Scope     []string  `json:"scope,omitempty"`      // Resources this task will modify
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	cp := t
	if t.DependsOn != nil {
		cp.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.Blocks != nil {
		cp.Blocks = append([]string(nil), t.Blocks...)
	}
	if t.Scope != nil {
		cp.Scope = append([]string(nil), t.Scope...)
	}
	return cp
}

// ValidateTransition checks whether a task may move from one status to another.
// Moving to the current status is always allowed.
func ValidateTransition(from, to Status) error {
	if !to.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidStatus, int(to))
	}
	if from == to {
		return nil
	}

	allowed := false
	switch from {
	case StatusTodo:
		allowed = to == StatusInProgress || to == StatusBlocked || to == StatusCancelled || to == StatusDone
	case StatusInProgress:
		allowed = to == StatusTodo || to == StatusBlocked || to == StatusDone || to == StatusCancelled
	case StatusBlocked:
		allowed = to == StatusTodo || to == StatusInProgress || to == StatusCancelled
	case StatusDone, StatusCancelled:
		allowed = false
	}

	if !allowed {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}
