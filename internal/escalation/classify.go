package escalation

import (
	"time"

	"github.com/spec-kit/maintenance-dispatch/internal/domain"
)

// Class buckets an escalated request for the admin escalation view. It is
// derived per query and never stored, since "now" changes it.
type Class string

const (
	ClassNone    Class = "NONE"
	ClassUrgent  Class = "URGENT"
	ClassOverdue Class = "OVERDUE"
)

// OverdueAfterDays is the age beyond which an escalated request is overdue.
const OverdueAfterDays = 5

// Classify buckets an escalated request by age and priority. Requests in any
// other status classify as NONE. Overdue is checked first: an old urgent
// request is overdue, not urgent.
func Classify(request *domain.Request, now time.Time) Class {
	if request.Status != domain.RequestStatusEscalated {
		return ClassNone
	}
	if domain.WholeDays(request.CreatedAt, now) > OverdueAfterDays {
		return ClassOverdue
	}
	if request.Priority == domain.RequestPriorityHigh || request.Priority == domain.RequestPriorityUrgent {
		return ClassUrgent
	}
	return ClassNone
}
