// Package reporting provides pure aggregations over a request snapshot.
// Nothing here mutates the snapshot or holds state between calls.
package reporting

import (
	"sort"
	"time"

	"github.com/spec-kit/maintenance-dispatch/internal/domain"
)

// Window bounds a time-filtered view on creation dates.
type Window string

const (
	WindowLastWeek  Window = "LAST_WEEK"
	WindowLastMonth Window = "LAST_MONTH"
	WindowLastYear  Window = "LAST_YEAR"
	WindowAllTime   Window = "ALL_TIME"
)

// ValidWindow reports whether w is a known window.
func ValidWindow(w Window) bool {
	switch w {
	case WindowLastWeek, WindowLastMonth, WindowLastYear, WindowAllTime:
		return true
	}
	return false
}

func (w Window) duration() (time.Duration, bool) {
	switch w {
	case WindowLastWeek:
		return 7 * 24 * time.Hour, true
	case WindowLastMonth:
		return 30 * 24 * time.Hour, true
	case WindowLastYear:
		return 365 * 24 * time.Hour, true
	}
	return 0, false
}

// ByWindow keeps requests created at or after now minus the window.
func ByWindow(requests []domain.Request, window Window, now time.Time) []domain.Request {
	span, bounded := window.duration()
	if !bounded {
		return append([]domain.Request{}, requests...)
	}
	cutoff := now.Add(-span)
	result := make([]domain.Request, 0, len(requests))
	for _, request := range requests {
		if !request.CreatedAt.Before(cutoff) {
			result = append(result, request)
		}
	}
	return result
}

// ExcludingEscalated drops escalated requests; they surface only in the
// dedicated escalation view.
func ExcludingEscalated(requests []domain.Request) []domain.Request {
	result := make([]domain.Request, 0, len(requests))
	for _, request := range requests {
		if request.Status != domain.RequestStatusEscalated {
			result = append(result, request)
		}
	}
	return result
}

// KeyCount is one grouping bucket.
type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// CountsByKey groups requests by the extractor, ordered by count descending
// with ties broken by first-seen key.
func CountsByKey(requests []domain.Request, keyFn func(*domain.Request) string) []KeyCount {
	counts := make(map[string]int)
	order := make([]string, 0)
	for i := range requests {
		key := keyFn(&requests[i])
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}
	result := make([]KeyCount, 0, len(order))
	for _, key := range order {
		result = append(result, KeyCount{Key: key, Count: counts[key]})
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Count > result[j].Count })
	return result
}

// TechnicianMetrics summarizes one technician's job history.
type TechnicianMetrics struct {
	TechnicianID          string `json:"technician_id"`
	TotalJobsCompleted    int    `json:"total_jobs_completed"`
	PendingJobs           int    `json:"pending_jobs"`
	AverageCompletionDays int    `json:"average_completion_days"`
}

// ForTechnician computes completion metrics for one technician. The average
// is a truncated integer over whole days from creation to completion, with
// "now" standing in for a missing completion date; zero when no jobs
// completed.
func ForTechnician(requests []domain.Request, technicianID string, now time.Time) TechnicianMetrics {
	metrics := TechnicianMetrics{TechnicianID: technicianID}
	totalDays := 0
	for i := range requests {
		request := &requests[i]
		if !request.AssignedTo(technicianID) {
			continue
		}
		switch request.Status {
		case domain.RequestStatusCompleted:
			metrics.TotalJobsCompleted++
			totalDays += completionDays(request, now)
		case domain.RequestStatusPending, domain.RequestStatusActive:
			metrics.PendingJobs++
		}
	}
	if metrics.TotalJobsCompleted > 0 {
		metrics.AverageCompletionDays = totalDays / metrics.TotalJobsCompleted
	}
	return metrics
}

// DashboardCounters holds the admin dashboard headline numbers.
type DashboardCounters struct {
	Total                 int `json:"total"`
	Completed             int `json:"completed"`
	Pending               int `json:"pending"`
	Escalated             int `json:"escalated"`
	AverageCompletionDays int `json:"average_completion_days"`
}

// Dashboard aggregates counters over the whole snapshot.
func Dashboard(requests []domain.Request, now time.Time) DashboardCounters {
	counters := DashboardCounters{Total: len(requests)}
	totalDays := 0
	for i := range requests {
		request := &requests[i]
		switch request.Status {
		case domain.RequestStatusCompleted:
			counters.Completed++
			totalDays += completionDays(request, now)
		case domain.RequestStatusPending:
			counters.Pending++
		case domain.RequestStatusEscalated:
			counters.Escalated++
		}
	}
	if counters.Completed > 0 {
		counters.AverageCompletionDays = totalDays / counters.Completed
	}
	return counters
}

func completionDays(request *domain.Request, now time.Time) int {
	end := now
	if request.CompletedAt != nil {
		end = *request.CompletedAt
	}
	return domain.WholeDays(request.CreatedAt, end)
}
