package dto

import (
	"time"

	"github.com/spec-kit/maintenance-dispatch/internal/domain"
)

// CreateRequestRequest payload.
type CreateRequestRequest struct {
	Title       string                 `json:"title"`
	Location    string                 `json:"location"`
	Category    string                 `json:"category"`
	Description string                 `json:"description"`
	Priority    domain.RequestPriority `json:"priority"`
	PhotoURL    *string                `json:"photo_url,omitempty"`
}

// AssignRequest payload.
type AssignRequest struct {
	TechnicianID string `json:"technician_id"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.RequestStatus `json:"status"`
}

// ScheduleRequest payload.
type ScheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

// RatingRequest payload.
type RatingRequest struct {
	Rating  int     `json:"rating"`
	Comment *string `json:"comment,omitempty"`
}

// RequestResponse is the full request view.
type RequestResponse struct {
	ID            string                 `json:"id"`
	Title         string                 `json:"title"`
	Location      string                 `json:"location"`
	Category      string                 `json:"category"`
	Description   string                 `json:"description"`
	Priority      domain.RequestPriority `json:"priority"`
	Status        domain.RequestStatus   `json:"status"`
	RequesterID   string                 `json:"requester_id"`
	TechnicianID  *string                `json:"technician_id,omitempty"`
	PhotoURL      *string                `json:"photo_url,omitempty"`
	ScheduledAt   *time.Time             `json:"scheduled_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	Rating        *int                   `json:"rating,omitempty"`
	RatingComment *string                `json:"rating_comment,omitempty"`
}

// FromRequest maps a domain request to its response form.
func FromRequest(request *domain.Request) RequestResponse {
	return RequestResponse{
		ID:            request.ID,
		Title:         request.Title,
		Location:      request.Location,
		Category:      request.Category,
		Description:   request.Description,
		Priority:      request.Priority,
		Status:        request.Status,
		RequesterID:   request.RequesterID,
		TechnicianID:  request.TechnicianID,
		PhotoURL:      request.PhotoURL,
		ScheduledAt:   request.ScheduledAt,
		CreatedAt:     request.CreatedAt,
		CompletedAt:   request.CompletedAt,
		Rating:        request.Rating,
		RatingComment: request.RatingComment,
	}
}

// TechnicianResponse is the technician view with derived load.
type TechnicianResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Specialization string `json:"specialization"`
	Active         bool   `json:"active"`
	ActiveJobs     int    `json:"active_jobs"`
}

// FromTechnician maps a domain technician to its response form.
func FromTechnician(tech *domain.Technician) TechnicianResponse {
	return TechnicianResponse{
		ID:             tech.ID,
		Name:           tech.Name,
		Email:          tech.Email,
		Specialization: tech.Specialization,
		Active:         tech.Active,
		ActiveJobs:     tech.ActiveJobs,
	}
}

// EscalationItem pairs an escalated request with its derived class.
type EscalationItem struct {
	Request RequestResponse `json:"request"`
	Class   string          `json:"class"`
}
