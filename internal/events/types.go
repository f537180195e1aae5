package events

import (
	"time"

	"github.com/google/uuid"
)

// Type is one of the closed set of event kinds the orchestration engine
// and its subscribers exchange (C3).
type Type string

const (
	TaskCreated         Type = "task_created"
	TaskCompleted       Type = "task_completed"
	AgentStatusChanged  Type = "agent_status_changed"
	ProposalSubmitted   Type = "proposal_submitted"
	WorkflowStarted     Type = "workflow_started"
	WorkflowCompleted   Type = "workflow_completed"
)

// Priority mirrors the teacher's four-level urgency scale. It is stored
// with each event and orders SQLiteStore.GetPending results; live
// delivery through Bus.Publish does not look at it.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityNormal   = 3
	PriorityLow      = 4
)

// Event is a single published occurrence. Payload carries the
// type-specific fields (e.g. task id, agent id, decision id) as a
// plain map so subscribers that only care about routing do not need to
// import the model package.
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	Source    string                 `json:"source"`
	Target    string                 `json:"target"`
	Priority  int                    `json:"priority"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// New creates an event with an auto-generated id and timestamp.
func New(eventType Type, source, target string, priority int, payload map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Target:    target,
		Priority:  priority,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// AllTypes returns every defined event type.
func AllTypes() []Type {
	return []Type{
		TaskCreated,
		TaskCompleted,
		AgentStatusChanged,
		ProposalSubmitted,
		WorkflowStarted,
		WorkflowCompleted,
	}
}
