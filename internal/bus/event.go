// Package bus provides the in-process publish/subscribe hub that sequences
// cross-component notifications: worker lifecycle, task lifecycle, tool
// execution, and error escalation.
package bus

import "time"

// EventType is a dot-namespaced event type string (e.g. "task.completed").
type EventType string

// Stable event type vocabulary. Components subscribe to these constants
// rather than raw strings.
const (
	// EventAgentStarted indicates a worker has started.
	EventAgentStarted EventType = "agent.started"
	// EventAgentStopped indicates a worker has stopped.
	EventAgentStopped EventType = "agent.stopped"
	// EventAgentError indicates a worker failed and needs a cooldown.
	EventAgentError EventType = "agent.error"
	// EventAgentMessage carries a free-form message between workers.
	EventAgentMessage EventType = "agent.message"
	// EventTaskCreated indicates a task was submitted.
	EventTaskCreated EventType = "task.created"
	// EventTaskAssigned indicates the router assigned a task to a worker.
	EventTaskAssigned EventType = "task.assigned"
	// EventTaskStarted indicates a task or workflow step began executing.
	EventTaskStarted EventType = "task.started"
	// EventTaskCompleted indicates a task or workflow step completed.
	EventTaskCompleted EventType = "task.completed"
	// EventTaskFailed indicates a task or workflow step failed.
	EventTaskFailed EventType = "task.failed"
	// EventToolExecuted indicates a tool invocation succeeded.
	EventToolExecuted EventType = "tool.executed"
	// EventToolFailed indicates a tool invocation failed.
	EventToolFailed EventType = "tool.failed"
	// EventPlanGenerated indicates the planner produced a plan.
	EventPlanGenerated EventType = "plan.generated"
	// EventPlanApproved indicates a plan was approved for execution.
	EventPlanApproved EventType = "plan.approved"
	// EventPlanExecuted indicates a plan finished executing.
	EventPlanExecuted EventType = "plan.executed"
	// EventSystemReady indicates the embedding application finished startup.
	EventSystemReady EventType = "system.ready"
	// EventSystemShutdown indicates the embedding application is stopping.
	EventSystemShutdown EventType = "system.shutdown"
	// EventFileChanged indicates a watched file was modified.
	EventFileChanged EventType = "file.changed"
	// EventFileCreated indicates a watched file was created.
	EventFileCreated EventType = "file.created"
	// EventFileDeleted indicates a watched file was removed.
	EventFileDeleted EventType = "file.deleted"
)

// Event is an immutable, typed, timestamped notification. Events are
// created by Publish and never mutated afterwards.
type Event struct {
	// ID is the unique identifier assigned at publish time.
	ID string
	// Type is the dot-namespaced event type.
	Type EventType
	// Data is the typed payload.
	Data any
	// Timestamp is when the event was published.
	Timestamp time.Time
	// Source identifies the publishing component.
	Source string
	// Priority orders this event relative to others of the same type
	// in history queries; it does not affect delivery order.
	Priority int
	// Tags are free-form labels for history filtering.
	Tags []string
	// CorrelationID links related events across components.
	CorrelationID string
}

// PublishOptions carries the optional fields of a published event.
type PublishOptions struct {
	// Source identifies the publishing component.
	Source string
	// Priority is the event's priority.
	Priority int
	// Tags are free-form labels.
	Tags []string
	// CorrelationID links related events.
	CorrelationID string
}

// Filter is a predicate over events. Subscribers with a filter silently
// skip non-matching events; history queries return matching events only.
type Filter func(Event) bool

// Handler processes a delivered event. Handlers run synchronously during
// Publish; a panicking handler is recovered and logged without affecting
// other subscribers or the publisher.
type Handler func(Event)
