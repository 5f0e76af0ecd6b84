package domain

import "time"

// Technician models a dispatchable maintenance worker.
//
// ActiveJobs is derived: it always equals the count of requests assigned to
// the technician with status ASSIGNED or ACTIVE. It is recomputed from the
// request collection on every read and never incremented imperatively, so it
// cannot drift from the assignments it summarizes.
type Technician struct {
	ID             string
	Name           string
	Email          string
	Specialization string
	Active         bool
	ActiveJobs     int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
