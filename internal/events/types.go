package events

import (
	"strings"
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants. An event's topic is the prefix of its type.
const (
	TopicTask  = "task"
	TopicGraph = "graph"
	TopicRun   = "run"
)

// Event type constants
const (
	EventTypeStatusChanged = "task.status_changed"
	EventTypeTaskReady     = "task.ready"
	EventTypeTaskRemoved   = "task.removed"
	EventTypeGraphRebuilt  = "graph.rebuilt"
	EventTypeRunProgress   = "run.progress"
)

// TopicOf returns the topic an event is published under.
func TopicOf(e Event) string {
	topic, _, _ := strings.Cut(e.EventType(), ".")
	return topic
}

// StatusChangedEvent is published after a status transition has been applied.
type StatusChangedEvent struct {
	ID        string
	From      string
	To        string
	Timestamp time.Time
}

func (e StatusChangedEvent) EventType() string { return EventTypeStatusChanged }
func (e StatusChangedEvent) TaskID() string    { return e.ID }

// TaskReadyEvent is published when a transition leaves a dependent with every
// dependency Done.
type TaskReadyEvent struct {
	ID         string
	UnlockedBy string
	Timestamp  time.Time
}

func (e TaskReadyEvent) EventType() string { return EventTypeTaskReady }
func (e TaskReadyEvent) TaskID() string    { return e.ID }

// TaskRemovedEvent is published when a task record is deleted.
type TaskRemovedEvent struct {
	ID        string
	Timestamp time.Time
}

func (e TaskRemovedEvent) EventType() string { return EventTypeTaskRemoved }
func (e TaskRemovedEvent) TaskID() string    { return e.ID }

// GraphRebuiltEvent is published whenever a new graph snapshot is installed.
type GraphRebuiltEvent struct {
	Tasks     int
	Ready     int
	Cycles    int
	Warnings  int
	Timestamp time.Time
}

func (e GraphRebuiltEvent) EventType() string { return EventTypeGraphRebuilt }
func (e GraphRebuiltEvent) TaskID() string    { return "" }

// RunProgressEvent is published by the runner after each batch.
type RunProgressEvent struct {
	Batch     int
	Total     int
	Done      int
	Running   int
	Blocked   int
	Remaining int
	Timestamp time.Time
}

func (e RunProgressEvent) EventType() string { return EventTypeRunProgress }
func (e RunProgressEvent) TaskID() string    { return "" }
