// Package notify projects notification feeds from a request snapshot.
// Events are recomputed on every query and discarded after rendering; there
// is no read/unread state, so "mark all read" is a client-side concern, not
// an acknowledgment mechanism.
package notify

import (
	"fmt"
	"sort"
	"time"

	"github.com/spec-kit/maintenance-dispatch/internal/domain"
)

// Kind identifies what a notification is about, per viewer role.
type Kind string

const (
	KindSubmitted Kind = "SUBMITTED"
	KindScheduled Kind = "SCHEDULED"
	KindAssigned  Kind = "ASSIGNED"
	KindCompleted Kind = "COMPLETED"
	KindNew       Kind = "NEW"
	KindEscalated Kind = "ESCALATED"
)

// Event is one derived notification. The id is deterministic per request and
// kind, so re-projection after a reload reconstructs the same feed.
type Event struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	Subtitle  string    `json:"subtitle"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
}

// ForRequester projects the feed for one requester. A single request can
// contribute several events: the per-status checks are independent, not
// mutually exclusive.
func ForRequester(requests []domain.Request, requesterID string) []Event {
	var result []Event
	for i := range requests {
		request := &requests[i]
		if request.RequesterID != requesterID {
			continue
		}
		if request.Status == domain.RequestStatusPending {
			result = append(result, event(request, KindSubmitted,
				fmt.Sprintf("Your request %q was submitted", request.Title), request.CreatedAt))
		}
		if request.ScheduledAt != nil {
			result = append(result, event(request, KindScheduled,
				fmt.Sprintf("A visit for %q has been scheduled", request.Title), *request.ScheduledAt))
		}
		if request.Status == domain.RequestStatusCompleted {
			result = append(result, event(request, KindCompleted,
				fmt.Sprintf("Your request %q was completed", request.Title), completedAt(request)))
		}
	}
	return sorted(result)
}

// ForTechnician projects the feed for one technician.
func ForTechnician(requests []domain.Request, technicianID string) []Event {
	var result []Event
	for i := range requests {
		request := &requests[i]
		if !request.AssignedTo(technicianID) {
			continue
		}
		switch request.Status {
		case domain.RequestStatusAssigned:
			result = append(result, event(request, KindAssigned,
				fmt.Sprintf("%q at %s was assigned to you", request.Title, request.Location), request.CreatedAt))
		case domain.RequestStatusActive:
			if request.ScheduledAt != nil {
				result = append(result, event(request, KindScheduled,
					fmt.Sprintf("Visit scheduled for %q at %s", request.Title, request.Location), *request.ScheduledAt))
			}
		case domain.RequestStatusCompleted:
			ts := request.CreatedAt
			if request.ScheduledAt != nil {
				ts = *request.ScheduledAt
			}
			result = append(result, event(request, KindCompleted,
				fmt.Sprintf("You completed %q", request.Title), ts))
		}
	}
	return sorted(result)
}

// ForAdmin projects the oversight feed over every request.
func ForAdmin(requests []domain.Request) []Event {
	var result []Event
	for i := range requests {
		request := &requests[i]
		if request.Status == domain.RequestStatusPending {
			result = append(result, event(request, KindNew,
				fmt.Sprintf("New request %q at %s", request.Title, request.Location), request.CreatedAt))
		}
		if request.Status == domain.RequestStatusEscalated {
			result = append(result, event(request, KindEscalated,
				fmt.Sprintf("%q needs attention", request.Title), request.CreatedAt))
		}
		if request.Status == domain.RequestStatusCompleted {
			result = append(result, event(request, KindCompleted,
				fmt.Sprintf("%q was completed", request.Title), completedAt(request)))
		}
	}
	return sorted(result)
}

func event(request *domain.Request, kind Kind, subtitle string, ts time.Time) Event {
	return Event{
		ID:        request.ID + ":" + string(kind),
		RequestID: request.ID,
		Subtitle:  subtitle,
		Timestamp: ts,
		Kind:      kind,
	}
}

func completedAt(request *domain.Request) time.Time {
	if request.CompletedAt != nil {
		return *request.CompletedAt
	}
	return request.CreatedAt
}

func sorted(result []Event) []Event {
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	return result
}
