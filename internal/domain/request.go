package domain

import "time"

// RequestStatus enumerates lifecycle states for maintenance requests.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusAssigned  RequestStatus = "ASSIGNED"
	RequestStatusActive    RequestStatus = "ACTIVE"
	RequestStatusCompleted RequestStatus = "COMPLETED"
	RequestStatusCancelled RequestStatus = "CANCELLED"
	RequestStatusEscalated RequestStatus = "ESCALATED"
)

// IsTerminal reports whether no further transitions are possible.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusCancelled
}

// RequestPriority enumerates urgency levels.
type RequestPriority string

const (
	RequestPriorityLow    RequestPriority = "LOW"
	RequestPriorityMedium RequestPriority = "MEDIUM"
	RequestPriorityHigh   RequestPriority = "HIGH"
	RequestPriorityUrgent RequestPriority = "URGENT"
)

// ValidPriority reports whether p is one of the known priorities.
func ValidPriority(p RequestPriority) bool {
	switch p {
	case RequestPriorityLow, RequestPriorityMedium, RequestPriorityHigh, RequestPriorityUrgent:
		return true
	}
	return false
}

// Request is the aggregate for one maintenance ticket.
//
// Invariants maintained by the dispatch engine:
//   - TechnicianID set implies Status in {ASSIGNED, ACTIVE, COMPLETED}
//   - TechnicianID nil implies Status in {PENDING, ESCALATED, CANCELLED}
//   - Rating set only when Status == COMPLETED
type Request struct {
	ID            string
	Title         string
	Location      string
	Category      string
	Description   string
	Priority      RequestPriority
	Status        RequestStatus
	RequesterID   string
	TechnicianID  *string
	PhotoURL      *string
	ScheduledAt   *time.Time
	CreatedAt     time.Time
	CompletedAt   *time.Time
	Rating        *int
	RatingComment *string
}

// AssignedTo reports whether the request is currently assigned to the given technician.
func (r *Request) AssignedTo(technicianID string) bool {
	return r.TechnicianID != nil && *r.TechnicianID == technicianID
}

// CountsTowardLoad reports whether the request occupies a technician slot.
func (r *Request) CountsTowardLoad() bool {
	return r.Status == RequestStatusAssigned || r.Status == RequestStatusActive
}
