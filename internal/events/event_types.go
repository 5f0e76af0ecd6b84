package events

import (
	"time"

	"github.com/spec-kit/maintenance-dispatch/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRequestCreated       EventType = "request_created"
	EventRequestAssigned      EventType = "request_assigned"
	EventRequestStatusChanged EventType = "request_status_changed"
	EventRequestEscalated     EventType = "request_escalated"
	EventRequestCancelled     EventType = "request_cancelled"
	EventRequestScheduled     EventType = "request_scheduled"
	EventRequestRated         EventType = "request_rated"
	EventSnapshotApplied      EventType = "snapshot_applied"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Role domain.Role `json:"role"`
	ID   string      `json:"id,omitempty"`
}

// Event represents a domain event emitted by the dispatch engine.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// RequestCreatedPayload payload.
type RequestCreatedPayload struct {
	Title    string                 `json:"title"`
	Location string                 `json:"location"`
	Category string                 `json:"category"`
	Priority domain.RequestPriority `json:"priority"`
}

// RequestAssignedPayload payload.
type RequestAssignedPayload struct {
	TechnicianID     string  `json:"technician_id"`
	PrevTechnicianID *string `json:"prev_technician_id,omitempty"`
}

// RequestStatusChangedPayload payload.
type RequestStatusChangedPayload struct {
	OldStatus domain.RequestStatus `json:"old_status"`
	NewStatus domain.RequestStatus `json:"new_status"`
}

// RequestScheduledPayload payload.
type RequestScheduledPayload struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

// RequestRatedPayload payload.
type RequestRatedPayload struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// SnapshotAppliedPayload payload.
type SnapshotAppliedPayload struct {
	Received int `json:"received"`
	Applied  int `json:"applied"`
	Skipped  int `json:"skipped"`
}
