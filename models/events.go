package models

import "time"

// EventType names a domain event on the in-process bus
type EventType string

const (
	EventTaskCreated           EventType = "task.created"
	EventTaskAssigned          EventType = "task.assigned"
	EventTaskStatusChanged     EventType = "task.status_changed"
	EventTaskCompleted         EventType = "task.completed"
	EventEmergencyTaskCreated  EventType = "task.emergency_created"
	EventSuiteCreated          EventType = "suite.created"
	EventSuiteStatusChanged    EventType = "suite.status_changed"
	EventNoteCreated           EventType = "note.created"
	EventEmployeeStatusChanged EventType = "employee.status_changed"
)

// DomainEvent is published after a business mutation has been persisted.
// ActorID is the user who performed the mutation; AssigneeID and SuiteID
// are set only where the event carries them.
type DomainEvent struct {
	Type       EventType   `json:"type"`
	EntityType string      `json:"entity_type"`
	EntityID   string      `json:"entity_id"`
	ActorID    string      `json:"actor_id,omitempty"`
	AssigneeID string      `json:"assignee_id,omitempty"`
	SuiteID    string      `json:"suite_id,omitempty"`
	Data       interface{} `json:"data"`
	OccurredAt time.Time   `json:"occurred_at"`
}
